package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/inconshreveable/log15"
	"github.com/layer-3/xrpauth/core"
	"github.com/layer-3/xrpauth/internal/xrpl"
	"github.com/layer-3/xrpauth/ports"
)

const (
	DefaultNonceTTL   = time.Hour
	DefaultSessionTTL = 7 * 24 * time.Hour
	DefaultLedgerTTL  = 24 * time.Hour
)

// AuthService handles authentication business logic
type AuthService struct {
	tokenizer ports.Tokenizer
	payloads  ports.PayloadService
	ledger    ports.ChallengeLedger
	eventPub  ports.EventPublisher
	log       log.Logger
	now       func() time.Time

	nonceTTL   time.Duration
	sessionTTL time.Duration
	ledgerTTL  time.Duration
}

// Option configures optional collaborators of the AuthService
type Option func(*AuthService)

// WithLedger makes every challenge single-use for ttl after it authenticates
func WithLedger(ledger ports.ChallengeLedger, ttl time.Duration) Option {
	return func(s *AuthService) {
		s.ledger = ledger
		if ttl > 0 {
			s.ledgerTTL = ttl
		}
	}
}

// WithEventPublisher announces every minted session
func WithEventPublisher(pub ports.EventPublisher) Option {
	return func(s *AuthService) {
		s.eventPub = pub
	}
}

// WithLogger sets the service logger
func WithLogger(logger log.Logger) Option {
	return func(s *AuthService) {
		s.log = logger
	}
}

// WithClock replaces the clock used to stamp tokens
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		s.now = now
	}
}

// NewAuthService creates a new authentication service. payloads may be nil
// when out-of-band signing is not configured.
func NewAuthService(tokenizer ports.Tokenizer, payloads ports.PayloadService, opts ...Option) *AuthService {
	s := &AuthService{
		tokenizer:  tokenizer,
		payloads:   payloads,
		log:        log.New("module", "auth"),
		now:        time.Now,
		nonceTTL:   DefaultNonceTTL,
		sessionTTL: DefaultSessionTTL,
		ledgerTTL:  DefaultLedgerTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueChallenge produces a fresh challenge for provider. The claim is only
// read for ProviderGem, whose nonce token embeds it.
func (s *AuthService) IssueChallenge(ctx context.Context, provider core.Provider, claim core.AccountClaim) (core.Challenge, error) {
	switch provider {
	case core.ProviderXumm:
		if s.payloads == nil {
			return nil, fmt.Errorf("%w: payload service not configured", core.ErrConfig)
		}
		challenge, err := s.payloads.CreateSignIn(ctx)
		if err != nil {
			return nil, err
		}
		return challenge, nil
	case core.ProviderGem:
		challenge, err := s.issueNonce(claim)
		if err != nil {
			return nil, err
		}
		return challenge, nil
	case core.ProviderCrossmark:
		challenge, err := s.issueHash()
		if err != nil {
			return nil, err
		}
		return challenge, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", core.ErrMalformedParameter, provider)
	}
}

func (s *AuthService) issueNonce(claim core.AccountClaim) (*core.NonceChallenge, error) {
	if claim.PublicKey == "" {
		return nil, fmt.Errorf("%w: publicKey", core.ErrMissingParameter)
	}
	if claim.Address == "" {
		return nil, fmt.Errorf("%w: address", core.ErrMissingParameter)
	}
	if _, err := xrpl.ParsePublicKey(claim.PublicKey); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedParameter, err)
	}
	if err := xrpl.ValidateAddress(claim.Address); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedParameter, err)
	}

	now := s.now()
	nonce := &core.NonceChallenge{
		ID:        uuid.New().String(),
		PublicKey: claim.PublicKey,
		Address:   claim.Address,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.nonceTTL),
	}

	token, err := s.tokenizer.NonceToToken(nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to create nonce token: %w", err)
	}
	nonce.Token = token

	return nonce, nil
}

func (s *AuthService) issueHash() (*core.HashChallenge, error) {
	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to generate challenge: %w", err)
	}
	digest := sha256.Sum256(seed)
	return &core.HashChallenge{Hex: hex.EncodeToString(digest[:])}, nil
}

// Verify checks a signed response and returns the proven identity
func (s *AuthService) Verify(ctx context.Context, resp core.SignedResponse) (core.Identity, error) {
	identity, _, err := s.verify(resp)
	return identity, err
}

// verify also returns a key naming the challenge that was answered
func (s *AuthService) verify(resp core.SignedResponse) (core.Identity, string, error) {
	switch r := resp.(type) {
	case *core.PayloadResponse:
		return s.verifyPayload(r)
	case *core.NonceResponse:
		return s.verifyNonce(r)
	case *core.HashResponse:
		return s.verifyHash(r)
	default:
		return core.Identity{}, "", fmt.Errorf("%w: unsupported response %T", core.ErrMalformedParameter, resp)
	}
}

func (s *AuthService) verifyPayload(r *core.PayloadResponse) (core.Identity, string, error) {
	if r.SignedBlob == "" {
		return core.Identity{}, "", fmt.Errorf("%w: signedBlobHex", core.ErrMissingParameter)
	}

	tx, err := xrpl.VerifySignedBlob(r.SignedBlob)
	if err != nil {
		return core.Identity{}, "", verifyError(err)
	}
	if !tx.Valid {
		return core.Identity{}, "", core.ErrSignatureInvalid
	}

	// Keyed on the decoded blob so hex case variants collide
	blob, err := hex.DecodeString(r.SignedBlob)
	if err != nil {
		return core.Identity{}, "", fmt.Errorf("%w: %v", core.ErrMalformedParameter, err)
	}
	digest := sha256.Sum256(blob)
	return core.Identity{Provider: core.ProviderXumm, Address: tx.SignedBy}, "blob:" + hex.EncodeToString(digest[:]), nil
}

func (s *AuthService) verifyNonce(r *core.NonceResponse) (core.Identity, string, error) {
	if r.Token == "" {
		return core.Identity{}, "", fmt.Errorf("%w: nonce token", core.ErrMissingParameter)
	}
	if r.Signature == "" {
		return core.Identity{}, "", fmt.Errorf("%w: signature", core.ErrMissingParameter)
	}

	nonce, err := s.tokenizer.TokenToNonce(r.Token)
	if err != nil {
		return core.Identity{}, "", err
	}

	// The wallet signs the token text itself
	message := hex.EncodeToString([]byte(r.Token))
	if err := verifyMessage(message, r.Signature, nonce.PublicKey); err != nil {
		return core.Identity{}, "", err
	}

	key := "nonce:" + nonce.ID
	if nonce.ID == "" {
		key = "nonce:" + r.Token
	}
	return core.Identity{Provider: core.ProviderGem, Address: nonce.Address}, key, nil
}

func (s *AuthService) verifyHash(r *core.HashResponse) (core.Identity, string, error) {
	switch {
	case r.Challenge == "":
		return core.Identity{}, "", fmt.Errorf("%w: challenge", core.ErrMissingParameter)
	case r.Signature == "":
		return core.Identity{}, "", fmt.Errorf("%w: signature", core.ErrMissingParameter)
	case r.PublicKey == "":
		return core.Identity{}, "", fmt.Errorf("%w: publicKey", core.ErrMissingParameter)
	case r.Address == "":
		return core.Identity{}, "", fmt.Errorf("%w: address", core.ErrMissingParameter)
	}
	if err := xrpl.ValidateAddress(r.Address); err != nil {
		return core.Identity{}, "", fmt.Errorf("%w: %v", core.ErrMalformedParameter, err)
	}

	if err := verifyMessage(r.Challenge, r.Signature, r.PublicKey); err != nil {
		return core.Identity{}, "", err
	}

	return core.Identity{Provider: core.ProviderCrossmark, Address: r.Address}, "hash:" + strings.ToLower(r.Challenge), nil
}

// verifyMessage maps xrpl verification failures onto the service errors
func verifyMessage(messageHex, signatureHex, publicKeyHex string) error {
	ok, err := xrpl.Verify(messageHex, signatureHex, publicKeyHex)
	if err != nil {
		return verifyError(err)
	}
	if !ok {
		return core.ErrSignatureInvalid
	}
	return nil
}

func verifyError(err error) error {
	if errors.Is(err, xrpl.ErrSignatureFormat) {
		return fmt.Errorf("%w: %v", core.ErrSignatureInvalid, err)
	}
	return fmt.Errorf("%w: %v", core.ErrMalformedParameter, err)
}

// Authenticate verifies resp and mints a session for the proven address
func (s *AuthService) Authenticate(ctx context.Context, resp core.SignedResponse) (core.Session, error) {
	identity, challengeKey, err := s.verify(resp)
	if err != nil {
		s.log.Debug("Verification failed", "provider", resp.Provider(), "err", err)
		return core.Session{}, err
	}

	if s.ledger != nil {
		fresh, err := s.ledger.Consume(ctx, challengeKey, s.ledgerTTL)
		if err != nil {
			return core.Session{}, fmt.Errorf("failed to check challenge: %w", err)
		}
		if !fresh {
			return core.Session{}, core.ErrChallengeReused
		}
	}

	session, err := s.MintSession(ctx, identity)
	if err != nil {
		return core.Session{}, err
	}

	if s.eventPub != nil {
		// The credential is already issued; a lost event is not fatal
		if err := s.eventPub.PublishAuthenticated(ctx, session); err != nil {
			s.log.Warn("Failed to publish authenticated event", "address", session.Address, "err", err)
		}
	}

	s.log.Info("Authenticated", "provider", identity.Provider, "address", identity.Address)
	return session, nil
}

// MintSession issues a session credential for identity
func (s *AuthService) MintSession(ctx context.Context, identity core.Identity) (core.Session, error) {
	if identity.Address == "" {
		return core.Session{}, fmt.Errorf("%w: address", core.ErrMissingParameter)
	}

	now := s.now()
	session := core.Session{
		ID:        uuid.New().String(),
		Address:   identity.Address,
		Provider:  identity.Provider,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	token, err := s.tokenizer.SessionToToken(&session)
	if err != nil {
		return core.Session{}, fmt.Errorf("failed to create session token: %w", err)
	}
	session.Token = token

	return session, nil
}

// ValidateSession checks a session credential and returns its address
func (s *AuthService) ValidateSession(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: token", core.ErrMissingParameter)
	}

	session, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return "", err
	}

	return session.Address, nil
}

// FetchPayload returns the upstream document of an out-of-band sign request
func (s *AuthService) FetchPayload(ctx context.Context, id string) (*core.PayloadDetails, error) {
	if s.payloads == nil {
		return nil, fmt.Errorf("%w: payload service not configured", core.ErrConfig)
	}
	if id == "" {
		return nil, fmt.Errorf("%w: payloadId", core.ErrMissingParameter)
	}
	return s.payloads.GetPayload(ctx, id)
}
