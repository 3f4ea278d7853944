package xrpl

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// signingPrefix is prepended to a transaction before single signing ("STX\0")
var signingPrefix = []byte{0x53, 0x54, 0x58, 0x00}

// SignedTransaction is the result of checking a signed transaction blob
type SignedTransaction struct {
	Account       string // Account field of the transaction, if present
	SigningPubKey string // Upper case hex of the signing key
	SignedBy      string // Address derived from the signing key
	Valid         bool   // Whether TxnSignature verifies
}

// VerifySignedBlob checks the single signature of a hex encoded transaction.
// The signer is derived from SigningPubKey, never from the Account field.
func VerifySignedBlob(blobHex string) (*SignedTransaction, error) {
	blob, err := hex.DecodeString(blobHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHex, err)
	}
	fields, err := decodeFields(blob)
	if err != nil {
		return nil, err
	}

	var (
		pubKey    []byte
		signature *field
		account   string
	)
	for i := range fields {
		f := &fields[i]
		switch f.ID {
		case fieldSigningPubKey:
			pubKey = f.Value
		case fieldTxnSignature:
			signature = f
		case fieldAccount:
			if len(f.Value) == accountIDLength {
				account = EncodeAccountID(f.Value)
			}
		}
	}
	if len(pubKey) == 0 || signature == nil {
		return nil, ErrNotSingleSigned
	}

	key, err := ParsePublicKey(hex.EncodeToString(pubKey))
	if err != nil {
		return nil, err
	}

	signingData := make([]byte, 0, len(signingPrefix)+len(blob))
	signingData = append(signingData, signingPrefix...)
	signingData = append(signingData, blob[:signature.Start]...)
	signingData = append(signingData, blob[signature.End:]...)

	valid, err := VerifyBytes(signingData, signature.Value, key)
	if err != nil {
		return nil, err
	}

	return &SignedTransaction{
		Account:       account,
		SigningPubKey: strings.ToUpper(hex.EncodeToString(pubKey)),
		SignedBy:      key.Address(),
		Valid:         valid,
	}, nil
}
