package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	log "github.com/inconshreveable/log15"
	"github.com/layer-3/xrpauth/adapters/store"
	"github.com/layer-3/xrpauth/adapters/tokenizer"
	"github.com/layer-3/xrpauth/adapters/xumm"
	"github.com/layer-3/xrpauth/adapters/xumm/xummtest"
	"github.com/layer-3/xrpauth/core"
	"github.com/layer-3/xrpauth/internal/secret"
	"github.com/layer-3/xrpauth/internal/xrpl/xrpltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	svc      *AuthService
	platform *xummtest.Server
	now      time.Time
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{now: time.Unix(1_700_000_000, 0)}
	clock := func() time.Time { return env.now }

	logger := log.New()
	logger.SetHandler(log.DiscardHandler())

	env.platform = xummtest.NewServer(t)
	payloads := xumm.NewClient(env.platform.URL, xummtest.APIKey, secret.FromString(xummtest.APISecret), logger)
	tok := tokenizer.NewJWTTokenizer(secret.FromString("service-test-key"), tokenizer.WithClock(clock))

	opts = append([]Option{WithLogger(logger), WithClock(clock)}, opts...)
	env.svc = NewAuthService(tok, payloads, opts...)
	return env
}

type recordingPublisher struct {
	sessions []core.Session
	err      error
}

func (p *recordingPublisher) PublishAuthenticated(ctx context.Context, session core.Session) error {
	p.sessions = append(p.sessions, session)
	return p.err
}

func TestGemFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := xrpltest.NewSecp256k1(t)

	challenge, err := env.svc.IssueChallenge(ctx, core.ProviderGem, core.AccountClaim{
		PublicKey: key.PublicKeyHex(),
		Address:   key.Address(),
	})
	require.NoError(t, err)
	nonce, ok := challenge.(*core.NonceChallenge)
	require.True(t, ok)
	assert.Equal(t, env.now.Add(time.Hour), nonce.ExpiresAt)

	session, err := env.svc.Authenticate(ctx, &core.NonceResponse{
		Token:     nonce.Token,
		Signature: key.SignText(nonce.Token),
	})
	require.NoError(t, err)
	assert.Equal(t, key.Address(), session.Address)
	assert.Equal(t, core.ProviderGem, session.Provider)
	assert.Equal(t, env.now.Add(7*24*time.Hour), session.ExpiresAt)

	address, err := env.svc.ValidateSession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, key.Address(), address)
}

func TestGemRejectsForeignSignature(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := xrpltest.NewEd25519(t)
	other := xrpltest.NewEd25519(t)

	challenge, err := env.svc.IssueChallenge(ctx, core.ProviderGem, core.AccountClaim{
		PublicKey: key.PublicKeyHex(),
		Address:   key.Address(),
	})
	require.NoError(t, err)
	token := challenge.(*core.NonceChallenge).Token

	_, err = env.svc.Verify(ctx, &core.NonceResponse{Token: token, Signature: other.SignText(token)})
	assert.ErrorIs(t, err, core.ErrSignatureInvalid)

	// signing only the nonce id instead of the whole token is rejected
	_, err = env.svc.Verify(ctx, &core.NonceResponse{Token: token, Signature: key.SignText(challenge.(*core.NonceChallenge).ID)})
	assert.ErrorIs(t, err, core.ErrSignatureInvalid)

	// a signature over any other text is not accepted
	_, err = env.svc.Verify(ctx, &core.NonceResponse{Token: token, Signature: key.SignText(token + ".")})
	assert.ErrorIs(t, err, core.ErrSignatureInvalid)

	_, err = env.svc.Verify(ctx, &core.NonceResponse{Token: token})
	assert.ErrorIs(t, err, core.ErrMissingParameter)

	env.now = env.now.Add(2 * time.Hour)
	_, err = env.svc.Verify(ctx, &core.NonceResponse{Token: token, Signature: key.SignText(token)})
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestGemNonceValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := xrpltest.NewSecp256k1(t)

	_, err := env.svc.IssueChallenge(ctx, core.ProviderGem, core.AccountClaim{Address: key.Address()})
	assert.ErrorIs(t, err, core.ErrMissingParameter)

	_, err = env.svc.IssueChallenge(ctx, core.ProviderGem, core.AccountClaim{PublicKey: key.PublicKeyHex()})
	assert.ErrorIs(t, err, core.ErrMissingParameter)

	_, err = env.svc.IssueChallenge(ctx, core.ProviderGem, core.AccountClaim{PublicKey: "04abcd", Address: key.Address()})
	assert.ErrorIs(t, err, core.ErrMalformedParameter)

	_, err = env.svc.IssueChallenge(ctx, core.ProviderGem, core.AccountClaim{PublicKey: key.PublicKeyHex(), Address: "rNotAnAddress"})
	assert.ErrorIs(t, err, core.ErrMalformedParameter)
}

func TestCrossmarkFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, key := range []*xrpltest.Keypair{xrpltest.NewSecp256k1(t), xrpltest.NewEd25519(t)} {
		challenge, err := env.svc.IssueChallenge(ctx, core.ProviderCrossmark, core.AccountClaim{})
		require.NoError(t, err)
		hash := challenge.(*core.HashChallenge).Hex
		assert.Regexp(t, "^[0-9a-f]{64}$", hash)

		session, err := env.svc.Authenticate(ctx, &core.HashResponse{
			Challenge: hash,
			Signature: key.Sign(hash),
			PublicKey: key.PublicKeyHex(),
			Address:   key.Address(),
		})
		require.NoError(t, err)
		assert.Equal(t, key.Address(), session.Address)
		assert.Equal(t, core.ProviderCrossmark, session.Provider)
	}
}

func TestCrossmarkChallengesAreUnique(t *testing.T) {
	env := newTestEnv(t)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		challenge, err := env.svc.IssueChallenge(context.Background(), core.ProviderCrossmark, core.AccountClaim{})
		require.NoError(t, err)
		hash := challenge.(*core.HashChallenge).Hex
		assert.False(t, seen[hash])
		seen[hash] = true
	}
}

func TestCrossmarkErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := xrpltest.NewSecp256k1(t)
	hash := "5f2d3a1b8c0e4f6a7b9d1c3e5f7a9b0c2d4e6f8a0b1c3d5e7f9a1b3c5d7e9f0a"

	valid := core.HashResponse{
		Challenge: hash,
		Signature: key.Sign(hash),
		PublicKey: key.PublicKeyHex(),
		Address:   key.Address(),
	}

	missing := valid
	missing.Signature = ""
	_, err := env.svc.Verify(ctx, &missing)
	assert.ErrorIs(t, err, core.ErrMissingParameter)

	badAddress := valid
	badAddress.Address = "not-an-address"
	_, err = env.svc.Verify(ctx, &badAddress)
	assert.ErrorIs(t, err, core.ErrMalformedParameter)

	otherChallenge := valid
	otherChallenge.Challenge = "00" + hash[2:]
	_, err = env.svc.Verify(ctx, &otherChallenge)
	assert.ErrorIs(t, err, core.ErrSignatureInvalid)

	garbled := valid
	garbled.Signature = "3006020101"
	_, err = env.svc.Verify(ctx, &garbled)
	assert.ErrorIs(t, err, core.ErrSignatureInvalid)
}

func TestXummFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := xrpltest.NewSecp256k1(t)

	challenge, err := env.svc.IssueChallenge(ctx, core.ProviderXumm, core.AccountClaim{})
	require.NoError(t, err)
	payload := challenge.(*core.PayloadChallenge)
	assert.Equal(t, env.platform.ChannelURL(payload.PayloadID), payload.ChannelURL)

	details, err := env.svc.FetchPayload(ctx, payload.PayloadID)
	require.NoError(t, err)
	assert.Equal(t, core.PayloadCreated, details.State())

	env.platform.Sign(payload.PayloadID, key.SignedBlob("sign in"))
	details, err = env.svc.FetchPayload(ctx, payload.PayloadID)
	require.NoError(t, err)
	require.Equal(t, core.PayloadSigned, details.State())

	session, err := env.svc.Authenticate(ctx, &core.PayloadResponse{SignedBlob: details.Response.Hex})
	require.NoError(t, err)
	assert.Equal(t, key.Address(), session.Address)
	assert.Equal(t, core.ProviderXumm, session.Provider)
}

func TestXummRejectsTamperedBlob(t *testing.T) {
	env := newTestEnv(t)
	blob := []byte(xrpltest.NewSecp256k1(t).SignedBlob("sign in"))
	// last hex digit of the memo
	if blob[len(blob)-5] == '0' {
		blob[len(blob)-5] = '1'
	} else {
		blob[len(blob)-5] = '0'
	}

	_, err := env.svc.Verify(context.Background(), &core.PayloadResponse{SignedBlob: string(blob)})
	assert.ErrorIs(t, err, core.ErrSignatureInvalid)

	_, err = env.svc.Verify(context.Background(), &core.PayloadResponse{SignedBlob: "zz"})
	assert.ErrorIs(t, err, core.ErrMalformedParameter)

	// TransactionType, SigningPubKey and a two byte TxnSignature
	short := "12000373" + "21" + xrpltest.NewEd25519(t).PublicKeyHex() + "74020011"
	_, err = env.svc.Verify(context.Background(), &core.PayloadResponse{SignedBlob: short})
	assert.ErrorIs(t, err, core.ErrSignatureInvalid)

	_, err = env.svc.Verify(context.Background(), &core.PayloadResponse{})
	assert.ErrorIs(t, err, core.ErrMissingParameter)
}

func TestXummNotConfigured(t *testing.T) {
	tok := tokenizer.NewJWTTokenizer(secret.FromString("k"))
	svc := NewAuthService(tok, nil)

	_, err := svc.IssueChallenge(context.Background(), core.ProviderXumm, core.AccountClaim{})
	assert.ErrorIs(t, err, core.ErrConfig)

	_, err = svc.FetchPayload(context.Background(), "id")
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestMissingSessionKey(t *testing.T) {
	svc := NewAuthService(tokenizer.NewJWTTokenizer(nil), nil)

	_, err := svc.MintSession(context.Background(), core.Identity{Provider: core.ProviderGem, Address: "rAddress"})
	assert.ErrorIs(t, err, core.ErrConfig)

	_, err = svc.ValidateSession(context.Background(), "a.b.c")
	assert.ErrorIs(t, err, core.ErrConfig)

	_, err = svc.IssueChallenge(context.Background(), core.ProviderGem, core.AccountClaim{
		PublicKey: "0330E7FC9D56BB25D6893BA3F317AE5BCF33B3291BD63DB32654A313222F7FD020",
		Address:   "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh",
	})
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestValidateSessionErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.ValidateSession(ctx, "")
	assert.ErrorIs(t, err, core.ErrMissingParameter)

	session, err := env.svc.MintSession(ctx, core.Identity{Provider: core.ProviderGem, Address: "rAddress"})
	require.NoError(t, err)

	env.now = env.now.Add(8 * 24 * time.Hour)
	_, err = env.svc.ValidateSession(ctx, session.Token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestSingleUseChallenges(t *testing.T) {
	env := newTestEnv(t, WithLedger(store.NewMemoryLedger(), time.Hour))
	ctx := context.Background()
	key := xrpltest.NewSecp256k1(t)
	hash := "5f2d3a1b8c0e4f6a7b9d1c3e5f7a9b0c2d4e6f8a0b1c3d5e7f9a1b3c5d7e9f0a"
	resp := &core.HashResponse{
		Challenge: hash,
		Signature: key.Sign(hash),
		PublicKey: key.PublicKeyHex(),
		Address:   key.Address(),
	}

	_, err := env.svc.Authenticate(ctx, resp)
	require.NoError(t, err)

	_, err = env.svc.Authenticate(ctx, resp)
	assert.ErrorIs(t, err, core.ErrChallengeReused)
	assert.Equal(t, core.CategoryAuth, core.CategoryOf(err))

	upper := *resp
	upper.Challenge = strings.ToUpper(hash)
	_, err = env.svc.Authenticate(ctx, &upper)
	assert.ErrorIs(t, err, core.ErrChallengeReused, "hex case does not make a new challenge")

	blob := key.SignedBlob("sign in")
	_, err = env.svc.Authenticate(ctx, &core.PayloadResponse{SignedBlob: blob})
	require.NoError(t, err)
	_, err = env.svc.Authenticate(ctx, &core.PayloadResponse{SignedBlob: strings.ToLower(blob)})
	assert.ErrorIs(t, err, core.ErrChallengeReused)
}

func TestReplayAllowedWithoutLedger(t *testing.T) {
	env := newTestEnv(t)
	key := xrpltest.NewSecp256k1(t)
	blob := key.SignedBlob("sign in")

	for i := 0; i < 2; i++ {
		_, err := env.svc.Authenticate(context.Background(), &core.PayloadResponse{SignedBlob: blob})
		require.NoError(t, err)
	}
}

func TestAuthenticatedEvents(t *testing.T) {
	pub := &recordingPublisher{}
	env := newTestEnv(t, WithEventPublisher(pub))
	key := xrpltest.NewEd25519(t)

	session, err := env.svc.Authenticate(context.Background(), &core.PayloadResponse{SignedBlob: key.SignedBlob("")})
	require.NoError(t, err)
	require.Len(t, pub.sessions, 1)
	assert.Equal(t, session.ID, pub.sessions[0].ID)

	// publishing failures do not fail the login
	pub.err = errors.New("broker down")
	_, err = env.svc.Authenticate(context.Background(), &core.PayloadResponse{SignedBlob: key.SignedBlob("")})
	require.NoError(t, err)
	assert.Len(t, pub.sessions, 2)

	// nothing is published for failed attempts
	_, err = env.svc.Authenticate(context.Background(), &core.PayloadResponse{SignedBlob: "00"})
	assert.Error(t, err)
	assert.Len(t, pub.sessions, 2)
}
