package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/xrpauth/core"
	"github.com/layer-3/xrpauth/internal/secret"
)

const AudienceNonce = "xrpauth:nonce"
const AudienceSession = "xrpauth:session"

// JWTTokenizer implements the Tokenizer interface using HMAC signed JWTs
type JWTTokenizer struct {
	key *secret.Secret
	now func() time.Time
}

// Option configures a JWTTokenizer
type Option func(*JWTTokenizer)

// WithClock replaces the wall clock used to validate expiry
func WithClock(now func() time.Time) Option {
	return func(j *JWTTokenizer) {
		j.now = now
	}
}

// NewJWTTokenizer creates a new JWT tokenizer. A nil key is accepted; every
// operation then fails with core.ErrConfig.
func NewJWTTokenizer(key *secret.Secret, opts ...Option) *JWTTokenizer {
	j := &JWTTokenizer{key: key, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// NonceToToken converts a NonceChallenge to a JWT token
func (j *JWTTokenizer) NonceToToken(nonce *core.NonceChallenge) (string, error) {
	claims := NonceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce.ID,
			ExpiresAt: jwt.NewNumericDate(nonce.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(nonce.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceNonce},
		},
		PublicKey: nonce.PublicKey,
		Address:   nonce.Address,
	}

	signedToken, err := j.sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign nonce token: %w", err)
	}

	return signedToken, nil
}

// TokenToNonce converts a JWT token to a NonceChallenge
func (j *JWTTokenizer) TokenToNonce(tokenStr string) (*core.NonceChallenge, error) {
	claims := &NonceClaims{}
	if err := j.parse(tokenStr, claims, AudienceNonce); err != nil {
		return nil, err
	}

	if claims.PublicKey == "" || claims.Address == "" {
		return nil, core.ErrClaimMissing
	}

	nonce := &core.NonceChallenge{
		ID:        claims.ID,
		Token:     tokenStr,
		PublicKey: claims.PublicKey,
		Address:   claims.Address,
	}
	if claims.IssuedAt != nil {
		nonce.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		nonce.ExpiresAt = claims.ExpiresAt.Time
	}

	return nonce, nil
}

// SessionToToken converts a Session to a JWT token
func (j *JWTTokenizer) SessionToToken(session *core.Session) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		Address: session.Address,
	}

	signedToken, err := j.sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signedToken, nil
}

// TokenToSession parses a session token and returns the session it encodes
func (j *JWTTokenizer) TokenToSession(tokenStr string) (*core.Session, error) {
	claims := &SessionClaims{}
	if err := j.parse(tokenStr, claims, AudienceSession); err != nil {
		return nil, err
	}

	if claims.Address == "" {
		return nil, core.ErrClaimMissing
	}

	session := &core.Session{
		ID:      claims.ID,
		Address: claims.Address,
		Token:   tokenStr,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}

	return session, nil
}

func (j *JWTTokenizer) sign(claims jwt.Claims) (string, error) {
	if !j.key.Configured() {
		return "", fmt.Errorf("%w: signing key not set", core.ErrConfig)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	var signed string
	err := j.key.Use(func(key []byte) error {
		var err error
		signed, err = token.SignedString(key)
		return err
	})
	return signed, err
}

func (j *JWTTokenizer) parse(tokenStr string, claims jwt.Claims, audience string) error {
	if !j.key.Configured() {
		return fmt.Errorf("%w: signing key not set", core.ErrConfig)
	}
	if tokenStr == "" {
		return core.ErrTokenMalformed
	}

	var token *jwt.Token
	err := j.key.Use(func(key []byte) error {
		var err error
		token, err = jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
			// Validate the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		},
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(j.now),
		)
		return err
	})

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return core.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", core.ErrTokenMalformed, err)
	case err != nil:
		return fmt.Errorf("%w: %v", core.ErrTokenInvalid, err)
	case !token.Valid:
		return core.ErrTokenInvalid
	}

	return nil
}
