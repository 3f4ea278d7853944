// Package client calls an xrpauth server over HTTP. Client satisfies the
// flow.Backend contract, so a Flow can run against a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/layer-3/xrpauth/core"
)

// Client client for the xrpauth HTTP API
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the API mounted at baseURL, for example
// "http://localhost:9000/api/auth"
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// sentinels are matched against error bodies to restore error identity
var sentinels = []error{
	core.ErrConfig,
	core.ErrMissingParameter,
	core.ErrMalformedParameter,
	core.ErrSignatureInvalid,
	core.ErrTokenExpired,
	core.ErrTokenMalformed,
	core.ErrClaimMissing, // before ErrTokenInvalid, which is its prefix
	core.ErrTokenInvalid,
	core.ErrChallengeReused,
	core.ErrUpstreamUnavailable,
	core.ErrUpstream,
	core.ErrProviderMismatch,
}

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Message string
	kind    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

func newAPIError(status int, message string) *APIError {
	e := &APIError{Status: status, Message: message}
	for _, s := range sentinels {
		if strings.HasPrefix(message, s.Error()) {
			e.kind = s
			return e
		}
	}
	switch {
	case status == http.StatusUnauthorized:
		e.kind = core.ErrTokenInvalid
	case status >= http.StatusInternalServerError:
		e.kind = core.ErrConfig
	default:
		e.kind = core.ErrMalformedParameter
	}
	return e
}

type sessionResponse struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

// IssueChallenge requests a challenge for provider
func (c *Client) IssueChallenge(ctx context.Context, provider core.Provider, claim core.AccountClaim) (core.Challenge, error) {
	switch provider {
	case core.ProviderXumm:
		var resp struct {
			PayloadID  string `json:"payloadId"`
			QRImageRef string `json:"qrImageRef"`
			DeepLink   string `json:"deepLink"`
			ChannelURL string `json:"channelURL"`
			Pushed     bool   `json:"pushed"`
		}
		if err := c.do(ctx, http.MethodGet, "/challenge/outOfBand/create", "", nil, &resp); err != nil {
			return nil, err
		}
		return &core.PayloadChallenge{
			PayloadID:  resp.PayloadID,
			DeepLink:   resp.DeepLink,
			QRImageURL: resp.QRImageRef,
			ChannelURL: resp.ChannelURL,
			Pushed:     resp.Pushed,
		}, nil

	case core.ProviderGem:
		q := url.Values{"publicKey": {claim.PublicKey}, "address": {claim.Address}}
		var resp struct {
			NonceToken string `json:"nonceToken"`
		}
		if err := c.do(ctx, http.MethodGet, "/challenge/extensionB/nonce?"+q.Encode(), "", nil, &resp); err != nil {
			return nil, err
		}
		return &core.NonceChallenge{
			Token:     resp.NonceToken,
			PublicKey: claim.PublicKey,
			Address:   claim.Address,
		}, nil

	case core.ProviderCrossmark:
		var resp struct {
			ChallengeHex string `json:"challengeHex"`
		}
		if err := c.do(ctx, http.MethodGet, "/challenge/extensionC/challenge", "", nil, &resp); err != nil {
			return nil, err
		}
		return &core.HashChallenge{Hex: resp.ChallengeHex}, nil

	default:
		return nil, fmt.Errorf("%w: unknown provider %q", core.ErrMalformedParameter, provider)
	}
}

// Authenticate submits a signed response and returns the issued session
func (c *Client) Authenticate(ctx context.Context, resp core.SignedResponse) (core.Session, error) {
	var out sessionResponse
	var err error

	switch r := resp.(type) {
	case *core.PayloadResponse:
		q := url.Values{"signedBlobHex": {r.SignedBlob}}
		err = c.do(ctx, http.MethodGet, "/challenge/outOfBand/verify?"+q.Encode(), "", nil, &out)
	case *core.NonceResponse:
		body := map[string]string{"signature": r.Signature}
		err = c.do(ctx, http.MethodPost, "/challenge/extensionB/verify", r.Token, body, &out)
	case *core.HashResponse:
		body := map[string]string{
			"signature": r.Signature,
			"publicKey": r.PublicKey,
			"address":   r.Address,
		}
		err = c.do(ctx, http.MethodPost, "/challenge/extensionC/verify", r.Challenge, body, &out)
	default:
		return core.Session{}, fmt.Errorf("%w: unsupported response %T", core.ErrMalformedParameter, resp)
	}
	if err != nil {
		return core.Session{}, err
	}

	return core.Session{
		Address:  out.Address,
		Provider: resp.Provider(),
		Token:    out.Token,
	}, nil
}

// FetchPayload returns the upstream document of an out-of-band sign request
func (c *Client) FetchPayload(ctx context.Context, id string) (*core.PayloadDetails, error) {
	var resp struct {
		Payload core.PayloadDetails `json:"payload"`
	}
	q := url.Values{"payloadId": {id}}
	if err := c.do(ctx, http.MethodGet, "/challenge/outOfBand/status?"+q.Encode(), "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Payload, nil
}

// ValidateSession checks a stored session credential
func (c *Client) ValidateSession(ctx context.Context, token string) (string, error) {
	var resp struct {
		Address string `json:"address"`
	}
	if err := c.do(ctx, http.MethodPost, "/session/validate", "", map[string]string{"token": token}, &resp); err != nil {
		return "", err
	}
	return resp.Address, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", core.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return newAPIError(resp.StatusCode, apiErr.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", core.ErrUpstream, err)
	}
	return nil
}
