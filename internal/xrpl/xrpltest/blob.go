package xrpltest

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/layer-3/xrpauth/internal/xrpl"
	"github.com/stretchr/testify/require"
)

var signingPrefix = []byte("STX\x00")

// SignedBlob returns a single-signed transaction sent from the key's own
// account, carrying memo in a Memos array.
func (k *Keypair) SignedBlob(memo string) string {
	return k.SignedBlobFor(k.Address(), memo)
}

// SignedBlobFor is SignedBlob with an arbitrary Account field
func (k *Keypair) SignedBlobFor(account, memo string) string {
	k.t.Helper()
	accountID := decodeAccount(k, account)

	var head bytes.Buffer
	head.Write([]byte{0x12, 0x00, 0x03})                                     // TransactionType
	head.Write([]byte{0x22, 0x00, 0x00, 0x00, 0x00})                         // Flags
	head.Write([]byte{0x24, 0x00, 0x00, 0x00, 0x01})                         // Sequence
	head.Write([]byte{0x68, 0x40, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0C}) // Fee
	head.WriteByte(0x73)                                                     // SigningPubKey
	head.Write(lengthPrefix(len(k.pub)))
	head.Write(k.pub)

	var tail bytes.Buffer
	tail.WriteByte(0x81) // Account
	tail.Write(lengthPrefix(len(accountID)))
	tail.Write(accountID)
	if memo != "" {
		tail.WriteByte(0xF9) // Memos
		tail.WriteByte(0xEA) // Memo
		tail.WriteByte(0x7D) // MemoData
		tail.Write(lengthPrefix(len(memo)))
		tail.WriteString(memo)
		tail.WriteByte(0xE1)
		tail.WriteByte(0xF1)
	}

	var signing bytes.Buffer
	signing.Write(signingPrefix)
	signing.Write(head.Bytes())
	signing.Write(tail.Bytes())
	sig := k.SignBytes(signing.Bytes())

	var blob bytes.Buffer
	blob.Write(head.Bytes())
	blob.WriteByte(0x74) // TxnSignature
	blob.Write(lengthPrefix(len(sig)))
	blob.Write(sig)
	blob.Write(tail.Bytes())
	return strings.ToUpper(hex.EncodeToString(blob.Bytes()))
}

func lengthPrefix(n int) []byte {
	if n <= 192 {
		return []byte{byte(n)}
	}
	n -= 193
	return []byte{byte(193 + n/256), byte(n % 256)}
}

func decodeAccount(k *Keypair, address string) []byte {
	k.t.Helper()
	id, err := xrpl.DecodeAddress(address)
	require.NoError(k.t, err)
	return id
}
