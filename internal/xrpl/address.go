package xrpl

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // account ids are defined over RIPEMD-160
)

const (
	accountIDLength  = 20
	accountIDVersion = 0x00
	checksumLength   = 4
)

var ErrAddress = errors.New("invalid classic address")

var rippleAlphabet = base58.NewAlphabet("rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz")

// AccountID hashes a public key into its 20 byte account identifier
func AccountID(publicKey []byte) []byte {
	sha := sha256.Sum256(publicKey)
	h := ripemd160.New()
	h.Write(sha[:])
	return h.Sum(nil)
}

// EncodeAccountID renders an account identifier as a classic r-address
func EncodeAccountID(id []byte) string {
	payload := make([]byte, 0, 1+len(id)+checksumLength)
	payload = append(payload, accountIDVersion)
	payload = append(payload, id...)
	sum := checksum(payload)
	return base58.EncodeAlphabet(append(payload, sum[:]...), rippleAlphabet)
}

// DecodeAddress returns the account identifier of a classic address
func DecodeAddress(address string) ([]byte, error) {
	raw, err := base58.DecodeAlphabet(address, rippleAlphabet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAddress, err)
	}
	if len(raw) != 1+accountIDLength+checksumLength || raw[0] != accountIDVersion {
		return nil, fmt.Errorf("%w: unexpected payload", ErrAddress)
	}
	body, sum := raw[:1+accountIDLength], raw[1+accountIDLength:]
	want := checksum(body)
	if !bytes.Equal(sum, want[:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrAddress)
	}
	return body[1:], nil
}

// ValidateAddress reports whether address is a well formed classic address
func ValidateAddress(address string) error {
	_, err := DecodeAddress(address)
	return err
}

// DeriveAddress returns the classic address of a hex encoded public key
func DeriveAddress(publicKeyHex string) (string, error) {
	key, err := ParsePublicKey(publicKeyHex)
	if err != nil {
		return "", err
	}
	return key.Address(), nil
}

func checksum(payload []byte) [checksumLength]byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	var out [checksumLength]byte
	copy(out[:], second[:checksumLength])
	return out
}
