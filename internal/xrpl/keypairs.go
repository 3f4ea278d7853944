// Package xrpl implements the parts of the XRP Ledger signing scheme needed to
// authenticate wallets: public key handling, message signature verification,
// classic address encoding and verification of signed transaction blobs.
package xrpl

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

const (
	// PublicKeyLength is the size of a serialized XRPL public key
	PublicKeyLength = 33

	ed25519Prefix = 0xED
)

var (
	ErrPublicKey        = errors.New("invalid public key")
	ErrSignatureFormat  = errors.New("invalid signature encoding")
	ErrHex              = errors.New("invalid hex encoding")
	ErrUnsupportedField = errors.New("unsupported field type")
	ErrTruncated        = errors.New("truncated transaction blob")
	ErrNotSingleSigned  = errors.New("transaction is not single-signed")
)

// KeyType is the signature algorithm bound to a public key
type KeyType int

const (
	KeySecp256k1 KeyType = iota
	KeyEd25519
)

// PublicKey is a parsed 33 byte XRPL public key
type PublicKey []byte

// ParsePublicKey decodes a hex public key and checks its prefix
func ParsePublicKey(publicKeyHex string) (PublicKey, error) {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPublicKey, err)
	}
	if len(raw) != PublicKeyLength {
		return nil, fmt.Errorf("%w: length %d", ErrPublicKey, len(raw))
	}
	switch raw[0] {
	case ed25519Prefix, 0x02, 0x03:
		return PublicKey(raw), nil
	default:
		return nil, fmt.Errorf("%w: prefix %#x", ErrPublicKey, raw[0])
	}
}

// Type reports the signature algorithm of the key
func (k PublicKey) Type() KeyType {
	if len(k) > 0 && k[0] == ed25519Prefix {
		return KeyEd25519
	}
	return KeySecp256k1
}

// Address derives the classic address controlled by the key
func (k PublicKey) Address() string {
	return EncodeAccountID(AccountID(k))
}

// Verify checks signatureHex over the bytes encoded by messageHex.
// secp256k1 keys verify a DER signature over SHA-512Half of the message;
// ed25519 keys verify over the raw message.
func Verify(messageHex, signatureHex, publicKeyHex string) (bool, error) {
	message, err := hex.DecodeString(messageHex)
	if err != nil {
		return false, fmt.Errorf("%w: message: %v", ErrHex, err)
	}
	signature, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false, fmt.Errorf("%w: signature: %v", ErrHex, err)
	}
	key, err := ParsePublicKey(publicKeyHex)
	if err != nil {
		return false, err
	}
	return VerifyBytes(message, signature, key)
}

// VerifyBytes is Verify on decoded inputs
func VerifyBytes(message, signature []byte, key PublicKey) (bool, error) {
	if key.Type() == KeyEd25519 {
		if len(signature) != ed25519.SignatureSize {
			return false, fmt.Errorf("%w: ed25519 signature length %d", ErrSignatureFormat, len(signature))
		}
		return ed25519.Verify(ed25519.PublicKey(key[1:]), message, signature), nil
	}

	rs, err := decodeDER(signature)
	if err != nil {
		return false, err
	}
	digest := SHA512Half(message)
	// VerifySignature rejects high-S signatures, matching the ledger's
	// fully canonical requirement.
	return crypto.VerifySignature(key, digest[:], rs), nil
}

// SHA512Half returns the first half of the SHA-512 digest of data
func SHA512Half(data []byte) [32]byte {
	var out [32]byte
	sum := sha512.Sum512(data)
	copy(out[:], sum[:32])
	return out
}

// decodeDER converts an ASN.1 DER ECDSA signature into R || S
func decodeDER(sig []byte) ([]byte, error) {
	var (
		r, s  = new(big.Int), new(big.Int)
		inner cryptobyte.String
	)
	input := cryptobyte.String(sig)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(s) ||
		!inner.Empty() {
		return nil, fmt.Errorf("%w: malformed DER", ErrSignatureFormat)
	}
	if r.Sign() <= 0 || s.Sign() <= 0 || r.BitLen() > 256 || s.BitLen() > 256 {
		return nil, fmt.Errorf("%w: scalar out of range", ErrSignatureFormat)
	}
	out := make([]byte, 64)
	r.FillBytes(out[:32])
	s.FillBytes(out[32:])
	return out, nil
}
