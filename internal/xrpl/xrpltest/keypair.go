// Package xrpltest provides wallet keypairs and signed payloads for tests.
package xrpltest

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/xrpauth/internal/xrpl"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Keypair is a wallet key able to sign like an XRPL wallet does
type Keypair struct {
	t    testing.TB
	secp *ecdsa.PrivateKey
	ed   ed25519.PrivateKey
	pub  []byte
}

// NewSecp256k1 generates a secp256k1 wallet key
func NewSecp256k1(t testing.TB) *Keypair {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &Keypair{t: t, secp: key, pub: crypto.CompressPubkey(&key.PublicKey)}
}

// NewEd25519 generates an ed25519 wallet key
func NewEd25519(t testing.TB) *Keypair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &Keypair{t: t, ed: priv, pub: append([]byte{0xED}, pub...)}
}

// PublicKeyHex returns the key in the upper case hex wallets report
func (k *Keypair) PublicKeyHex() string {
	return strings.ToUpper(hex.EncodeToString(k.pub))
}

// Address returns the classic address of the key
func (k *Keypair) Address() string {
	return xrpl.EncodeAccountID(xrpl.AccountID(k.pub))
}

// SignBytes signs message the way ripple-keypairs does
func (k *Keypair) SignBytes(message []byte) []byte {
	k.t.Helper()
	if k.ed != nil {
		return ed25519.Sign(k.ed, message)
	}

	digest := xrpl.SHA512Half(message)
	sig, err := crypto.Sign(digest[:], k.secp)
	require.NoError(k.t, err)

	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(new(big.Int).SetBytes(sig[:32]))
		b.AddASN1BigInt(new(big.Int).SetBytes(sig[32:64]))
	})
	der, err := b.Bytes()
	require.NoError(k.t, err)
	return der
}

// Sign signs the bytes encoded by messageHex and returns a hex signature
func (k *Keypair) Sign(messageHex string) string {
	k.t.Helper()
	message, err := hex.DecodeString(messageHex)
	require.NoError(k.t, err)
	return strings.ToUpper(hex.EncodeToString(k.SignBytes(message)))
}

// SignText signs the UTF-8 bytes of text
func (k *Keypair) SignText(text string) string {
	return k.Sign(hex.EncodeToString([]byte(text)))
}
