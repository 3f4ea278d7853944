package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	for _, name := range []string{"xumm", "gem", "crossmark"} {
		p, err := ParseProvider(name)
		require.NoError(t, err)
		assert.Equal(t, Provider(name), p)
	}

	_, err := ParseProvider("metamask")
	assert.ErrorIs(t, err, ErrMalformedParameter)
	_, err = ParseProvider("")
	assert.ErrorIs(t, err, ErrMalformedParameter)
}

func TestChallengeProviders(t *testing.T) {
	assert.Equal(t, ProviderXumm, (&PayloadChallenge{}).Provider())
	assert.Equal(t, ProviderGem, (&NonceChallenge{}).Provider())
	assert.Equal(t, ProviderCrossmark, (&HashChallenge{}).Provider())
	assert.Equal(t, ProviderXumm, (&PayloadResponse{}).Provider())
	assert.Equal(t, ProviderGem, (&NonceResponse{}).Provider())
	assert.Equal(t, ProviderCrossmark, (&HashResponse{}).Provider())
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		err  error
		want Category
	}{
		{nil, CategoryUnknown},
		{errors.New("other"), CategoryUnknown},
		{ErrConfig, CategoryConfig},
		{fmt.Errorf("%w: publicKey", ErrMissingParameter), CategoryValidation},
		{ErrMalformedParameter, CategoryValidation},
		{ErrProviderMismatch, CategoryValidation},
		{ErrSignatureInvalid, CategoryAuth},
		{fmt.Errorf("wrapped: %w", ErrTokenExpired), CategoryAuth},
		{ErrTokenMalformed, CategoryAuth},
		{ErrTokenInvalid, CategoryAuth},
		{ErrClaimMissing, CategoryAuth},
		{ErrChallengeReused, CategoryAuth},
		{ErrUpstreamUnavailable, CategoryUpstream},
		{ErrUpstream, CategoryUpstream},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CategoryOf(tt.err), "%v", tt.err)
	}
	assert.Equal(t, "auth", CategoryAuth.String())
	assert.Equal(t, "unknown", Category(99).String())
}

func TestPayloadState(t *testing.T) {
	tests := []struct {
		meta PayloadMeta
		want PayloadState
	}{
		{PayloadMeta{Exists: true}, PayloadCreated},
		{PayloadMeta{Pushed: true}, PayloadPending},
		{PayloadMeta{AppOpened: true}, PayloadPending},
		{PayloadMeta{Expired: true, AppOpened: true}, PayloadExpired},
		{PayloadMeta{Cancelled: true}, PayloadExpired},
		{PayloadMeta{Signed: true, Resolved: true, AppOpened: true}, PayloadSigned},
	}

	for _, tt := range tests {
		d := PayloadDetails{Meta: tt.meta}
		assert.Equal(t, tt.want, d.State(), "%+v", tt.meta)
	}
}
