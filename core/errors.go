package core

import "errors"

var (
	ErrConfig              = errors.New("server configuration error")
	ErrMissingParameter    = errors.New("missing parameter")
	ErrMalformedParameter  = errors.New("malformed parameter")
	ErrSignatureInvalid    = errors.New("signature not verified")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenMalformed      = errors.New("malformed token")
	ErrTokenInvalid        = errors.New("invalid token")
	ErrClaimMissing        = errors.New("invalid token payload")
	ErrChallengeReused     = errors.New("challenge already used")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrUpstream            = errors.New("upstream service error")
	ErrProviderMismatch    = errors.New("response does not match challenge provider")
)

// Category groups errors by how callers should react to them
type Category int

const (
	CategoryUnknown Category = iota
	CategoryConfig
	CategoryValidation
	CategoryAuth
	CategoryUpstream
)

func (c Category) String() string {
	switch c {
	case CategoryConfig:
		return "config"
	case CategoryValidation:
		return "validation"
	case CategoryAuth:
		return "auth"
	case CategoryUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// CategoryOf classifies err by the sentinel it wraps
func CategoryOf(err error) Category {
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.Is(err, ErrConfig):
		return CategoryConfig
	case errors.Is(err, ErrMissingParameter),
		errors.Is(err, ErrMalformedParameter),
		errors.Is(err, ErrProviderMismatch):
		return CategoryValidation
	case errors.Is(err, ErrSignatureInvalid),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrClaimMissing),
		errors.Is(err, ErrChallengeReused):
		return CategoryAuth
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrUpstream):
		return CategoryUpstream
	default:
		return CategoryUnknown
	}
}
