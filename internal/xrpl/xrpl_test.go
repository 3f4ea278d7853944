package xrpl_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/layer-3/xrpauth/internal/xrpl"
	"github.com/layer-3/xrpauth/internal/xrpl/xrpltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAccountID(t *testing.T) {
	zero := make([]byte, 20)
	assert.Equal(t, "rrrrrrrrrrrrrrrrrrrrrhoLvTp", xrpl.EncodeAccountID(zero))

	one := make([]byte, 20)
	one[19] = 1
	assert.Equal(t, "rrrrrrrrrrrrrrrrrrrrBZbvji", xrpl.EncodeAccountID(one))
}

func TestDeriveAddress(t *testing.T) {
	// wallet_propose for "masterpassphrase"
	addr, err := xrpl.DeriveAddress("0330E7FC9D56BB25D6893BA3F317AE5BCF33B3291BD63DB32654A313222F7FD020")
	require.NoError(t, err)
	assert.Equal(t, "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh", addr)

	_, err = xrpl.DeriveAddress("04" + strings.Repeat("00", 32))
	assert.ErrorIs(t, err, xrpl.ErrPublicKey)

	_, err = xrpl.DeriveAddress("zz")
	assert.ErrorIs(t, err, xrpl.ErrPublicKey)
}

func TestValidateAddress(t *testing.T) {
	require.NoError(t, xrpl.ValidateAddress("rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"))

	// last character changed breaks the checksum
	assert.ErrorIs(t, xrpl.ValidateAddress("rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTj"), xrpl.ErrAddress)
	assert.ErrorIs(t, xrpl.ValidateAddress("0xdeadbeef"), xrpl.ErrAddress)
	assert.ErrorIs(t, xrpl.ValidateAddress(""), xrpl.ErrAddress)
}

func TestVerify(t *testing.T) {
	keys := map[string]*xrpltest.Keypair{
		"secp256k1": xrpltest.NewSecp256k1(t),
		"ed25519":   xrpltest.NewEd25519(t),
	}
	message := hex.EncodeToString([]byte("sign in to xrpauth"))

	for name, key := range keys {
		t.Run(name, func(t *testing.T) {
			sig := key.Sign(message)

			ok, err := xrpl.Verify(message, sig, key.PublicKeyHex())
			require.NoError(t, err)
			assert.True(t, ok)

			// lower case hex is accepted as well
			ok, err = xrpl.Verify(message, strings.ToLower(sig), strings.ToLower(key.PublicKeyHex()))
			require.NoError(t, err)
			assert.True(t, ok)

			other := xrpltest.NewSecp256k1(t)
			ok, _ = xrpl.Verify(message, sig, other.PublicKeyHex())
			assert.False(t, ok)
		})
	}
}

func TestVerifyRejectsSingleByteMutations(t *testing.T) {
	for _, key := range []*xrpltest.Keypair{xrpltest.NewSecp256k1(t), xrpltest.NewEd25519(t)} {
		message := []byte("0123456789abcdef0123456789abcdef")
		sig := key.SignBytes(message)
		pub, err := xrpl.ParsePublicKey(key.PublicKeyHex())
		require.NoError(t, err)

		for i := range sig {
			mutated := append([]byte(nil), sig...)
			mutated[i] ^= 0x01
			ok, _ := xrpl.VerifyBytes(message, mutated, pub)
			assert.False(t, ok, "signature byte %d", i)
		}
		for i := range message {
			mutated := append([]byte(nil), message...)
			mutated[i] ^= 0x01
			ok, _ := xrpl.VerifyBytes(mutated, sig, pub)
			assert.False(t, ok, "message byte %d", i)
		}
	}
}

func TestVerifyMalformedInput(t *testing.T) {
	key := xrpltest.NewSecp256k1(t)

	_, err := xrpl.Verify("not hex", "00", key.PublicKeyHex())
	assert.ErrorIs(t, err, xrpl.ErrHex)

	_, err = xrpl.Verify("00", "zz", key.PublicKeyHex())
	assert.ErrorIs(t, err, xrpl.ErrHex)

	_, err = xrpl.Verify("00", "300602010102", key.PublicKeyHex())
	assert.ErrorIs(t, err, xrpl.ErrSignatureFormat)

	ed := xrpltest.NewEd25519(t)
	_, err = xrpl.Verify("00", "0011", ed.PublicKeyHex())
	assert.ErrorIs(t, err, xrpl.ErrSignatureFormat)
}

func TestVerifySignedBlob(t *testing.T) {
	for _, key := range []*xrpltest.Keypair{xrpltest.NewSecp256k1(t), xrpltest.NewEd25519(t)} {
		blob := key.SignedBlob("xrpauth sign-in")

		tx, err := xrpl.VerifySignedBlob(blob)
		require.NoError(t, err)
		assert.True(t, tx.Valid)
		assert.Equal(t, key.Address(), tx.SignedBy)
		assert.Equal(t, key.Address(), tx.Account)
		assert.Equal(t, key.PublicKeyHex(), tx.SigningPubKey)
	}
}

func TestVerifySignedBlobSignerComesFromKey(t *testing.T) {
	key := xrpltest.NewSecp256k1(t)
	victim := xrpltest.NewSecp256k1(t)

	tx, err := xrpl.VerifySignedBlob(key.SignedBlobFor(victim.Address(), ""))
	require.NoError(t, err)
	assert.True(t, tx.Valid)
	assert.Equal(t, victim.Address(), tx.Account)
	assert.Equal(t, key.Address(), tx.SignedBy)
}

func TestVerifySignedBlobTampered(t *testing.T) {
	key := xrpltest.NewSecp256k1(t)
	blob := key.SignedBlob("memo")

	// flip a bit inside the memo text at the end of the blob
	raw, err := hex.DecodeString(blob)
	require.NoError(t, err)
	raw[len(raw)-4] ^= 0x01

	tx, err := xrpl.VerifySignedBlob(hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.False(t, tx.Valid)
}

func TestVerifySignedBlobMalformed(t *testing.T) {
	_, err := xrpl.VerifySignedBlob("xyz")
	assert.ErrorIs(t, err, xrpl.ErrHex)

	// TransactionType only, no signature fields
	_, err = xrpl.VerifySignedBlob("120003")
	assert.ErrorIs(t, err, xrpl.ErrNotSingleSigned)

	// Fee field cut short
	_, err = xrpl.VerifySignedBlob("12000368400000")
	assert.ErrorIs(t, err, xrpl.ErrTruncated)
}
