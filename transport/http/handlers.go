package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/xrpauth/core"
	"github.com/layer-3/xrpauth/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

// ValidateSession handles stored credential validation
func (h *AuthHandlers) ValidateSession(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}

	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	address, err := h.authService.ValidateSession(c.Request.Context(), req.Token)
	if err != nil {
		statusCode := statusOf(err)
		if errors.Is(err, core.ErrClaimMissing) {
			statusCode = http.StatusBadRequest
		}
		c.JSON(statusCode, gin.H{"error": messageOf(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"address": address})
}

// CreatePayload registers an out-of-band sign request
func (h *AuthHandlers) CreatePayload(c *gin.Context) {
	challenge, err := h.authService.IssueChallenge(c.Request.Context(), core.ProviderXumm, core.AccountClaim{})
	if err != nil {
		abortWithError(c, err)
		return
	}
	payload := challenge.(*core.PayloadChallenge)

	c.JSON(http.StatusOK, gin.H{
		"payloadId":  payload.PayloadID,
		"qrImageRef": payload.QRImageURL,
		"deepLink":   payload.DeepLink,
		"channelURL": payload.ChannelURL,
		"pushed":     payload.Pushed,
	})
}

// PayloadStatus returns the upstream document of a sign request
func (h *AuthHandlers) PayloadStatus(c *gin.Context) {
	id := c.Query("payloadId")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payloadId parameter is required"})
		return
	}

	details, err := h.authService.FetchPayload(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payload": details,
		"status": core.PayloadStatus{
			ID:    id,
			State: details.State(),
		},
	})
}

// VerifyPayload checks a signed transaction blob
func (h *AuthHandlers) VerifyPayload(c *gin.Context) {
	blob := firstQuery(c, "signedBlobHex", "hex")
	if blob == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signedBlobHex parameter is required"})
		return
	}

	h.authenticate(c, &core.PayloadResponse{SignedBlob: blob})
}

// Nonce issues a nonce token for the claimed account
func (h *AuthHandlers) Nonce(c *gin.Context) {
	claim := core.AccountClaim{
		PublicKey: firstQuery(c, "publicKey", "pubkey"),
		Address:   c.Query("address"),
	}

	challenge, err := h.authService.IssueChallenge(c.Request.Context(), core.ProviderGem, claim)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"nonceToken": challenge.(*core.NonceChallenge).Token})
}

// VerifyNonce checks a signature over a nonce token
func (h *AuthHandlers) VerifyNonce(c *gin.Context) {
	token, ok := bearer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		Signature string `json:"signature"`
	}
	// The signature may come in the query alone, so an empty body is fine
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	signature := c.Query("signature")
	if signature == "" {
		signature = req.Signature
	}
	if signature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature parameter is required"})
		return
	}

	h.authenticate(c, &core.NonceResponse{Token: token, Signature: signature})
}

// HashChallenge issues a random hash challenge
func (h *AuthHandlers) HashChallenge(c *gin.Context) {
	challenge, err := h.authService.IssueChallenge(c.Request.Context(), core.ProviderCrossmark, core.AccountClaim{})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"challengeHex": challenge.(*core.HashChallenge).Hex})
}

// VerifyHash checks a signature over a hash challenge
func (h *AuthHandlers) VerifyHash(c *gin.Context) {
	hash, ok := bearer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		Signature string `json:"signature"`
		PublicKey string `json:"publicKey"`
		Pubkey    string `json:"pubkey"`
		Address   string `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	resp := &core.HashResponse{
		Challenge: hash,
		Signature: req.Signature,
		PublicKey: req.PublicKey,
		Address:   req.Address,
	}
	if resp.Signature == "" {
		resp.Signature = c.Query("signature")
	}
	if resp.PublicKey == "" {
		resp.PublicKey = req.Pubkey
	}
	if resp.Signature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature parameter is required"})
		return
	}
	if resp.PublicKey == "" || resp.Address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "publicKey and address are required in request body"})
		return
	}

	h.authenticate(c, resp)
}

// Me returns information about the authenticated user
func (h *AuthHandlers) Me(c *gin.Context) {
	// User address is set by the auth middleware
	address, exists := c.Get(userAddressKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address": address,
	})
}

// Health reports liveness
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AuthHandlers) authenticate(c *gin.Context, resp core.SignedResponse) {
	session, err := h.authService.Authenticate(c.Request.Context(), resp)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   session.Token,
		"address": session.Address,
	})
}

// bearer extracts the credential of an "Authorization: Bearer" header
func bearer(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	scheme, value, found := strings.Cut(auth, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func firstQuery(c *gin.Context, names ...string) string {
	for _, name := range names {
		if v := c.Query(name); v != "" {
			return v
		}
	}
	return ""
}
