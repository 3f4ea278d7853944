// Package xumm talks to the Xumm (Xaman) platform API to register sign-in
// payloads and read back their signed result.
package xumm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/inconshreveable/log15"
	"github.com/layer-3/xrpauth/core"
	"github.com/layer-3/xrpauth/internal/secret"
)

const (
	DefaultAPIURL = "https://xumm.app/api/v1"
)

// Client client for the Xumm platform API
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret *secret.Secret
	client    *http.Client
	log       log.Logger
}

// NewClient creates a new Xumm client. Missing credentials are not an error
// here; each call then fails with core.ErrConfig.
func NewClient(baseURL, apiKey string, apiSecret *secret.Secret, logger log.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: logger,
	}
}

// Configured reports whether both API credentials are present
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.apiSecret.Configured()
}

type signInRequest struct {
	TxJSON struct {
		TransactionType string `json:"TransactionType"`
	} `json:"txjson"`
}

// CreatedResponse response from the payload create call
type CreatedResponse struct {
	UUID string `json:"uuid"`
	Next struct {
		Always string `json:"always"`
	} `json:"next"`
	Refs struct {
		QRPNG           string `json:"qr_png"`
		WebsocketStatus string `json:"websocket_status"`
	} `json:"refs"`
	Pushed bool `json:"pushed"`
}

type errorResponse struct {
	Error struct {
		Reference string `json:"reference"`
		Code      int    `json:"code"`
	} `json:"error"`
}

// CreateSignIn registers a SignIn pseudo-transaction for the user to sign
func (c *Client) CreateSignIn(ctx context.Context) (*core.PayloadChallenge, error) {
	var req signInRequest
	req.TxJSON.TransactionType = "SignIn"

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	var created CreatedResponse
	if err := c.do(ctx, http.MethodPost, "/platform/payload", body, &created); err != nil {
		return nil, fmt.Errorf("failed to create payload: %w", err)
	}
	if created.UUID == "" {
		return nil, fmt.Errorf("failed to create payload: %w: no payload id returned", core.ErrUpstream)
	}

	qrImage := created.Refs.QRPNG
	if qrImage == "" && created.Next.Always != "" {
		if qrImage, err = qrDataURI(created.Next.Always); err != nil {
			c.log.Warn("Rendering payload QR failed", "payload", created.UUID, "err", err)
		}
	}

	c.log.Debug("Payload created", "payload", created.UUID, "pushed", created.Pushed)
	return &core.PayloadChallenge{
		PayloadID:  created.UUID,
		DeepLink:   created.Next.Always,
		QRImageURL: qrImage,
		ChannelURL: created.Refs.WebsocketStatus,
		Pushed:     created.Pushed,
	}, nil
}

// GetPayload fetches the full payload document
func (c *Client) GetPayload(ctx context.Context, id string) (*core.PayloadDetails, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: payloadId", core.ErrMissingParameter)
	}

	var details core.PayloadDetails
	if err := c.do(ctx, http.MethodGet, "/platform/payload/"+url.PathEscape(id), nil, &details); err != nil {
		return nil, fmt.Errorf("failed to get payload: %w", err)
	}

	return &details, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	if !c.Configured() {
		return fmt.Errorf("%w: Xumm API keys not configured", core.ErrConfig)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.apiKey)
	err = c.apiSecret.Use(func(key []byte) error {
		req.Header.Set("X-API-Secret", string(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfig, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&apiErr)
		c.log.Warn("Xumm API call failed", "method", method, "path", path, "status", resp.StatusCode, "code", apiErr.Error.Code)
		return fmt.Errorf("%w: status %d", core.ErrUpstream, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", core.ErrUpstream, err)
	}

	return nil
}
