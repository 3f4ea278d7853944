package core

import (
	"fmt"
	"time"
)

// Provider identifies the wallet backend that signs a challenge
type Provider string

const (
	// ProviderXumm signs out-of-band in the Xaman (XUMM) mobile app
	ProviderXumm Provider = "xumm"

	// ProviderGem signs a server-issued nonce token in the GemWallet extension
	ProviderGem Provider = "gem"

	// ProviderCrossmark signs a random hash challenge in the Crossmark extension
	ProviderCrossmark Provider = "crossmark"
)

// ParseProvider converts a user supplied name into a Provider
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(name); p {
	case ProviderXumm, ProviderGem, ProviderCrossmark:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown provider %q", ErrMalformedParameter, name)
	}
}

// AccountClaim is the account a client claims to control
type AccountClaim struct {
	PublicKey string // Hex encoded XRPL public key
	Address   string // Classic r-address
}

// Challenge is a value presented to a wallet for signing.
// The concrete type decides how the signature is framed.
type Challenge interface {
	Provider() Provider
	isChallenge()
}

// PayloadChallenge is a sign request registered with the Xumm platform
type PayloadChallenge struct {
	PayloadID  string // Payload UUID
	DeepLink   string // Link that opens the request in the app
	QRImageURL string // PNG rendering of the request
	ChannelURL string // Websocket reporting payload status
	Pushed     bool   // Whether a push notification was sent
}

// NonceChallenge is a signed token embedding the claimed account
type NonceChallenge struct {
	ID        string
	Token     string
	PublicKey string
	Address   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HashChallenge is a random SHA-256 digest in hex
type HashChallenge struct {
	Hex string
}

func (*PayloadChallenge) Provider() Provider { return ProviderXumm }
func (*NonceChallenge) Provider() Provider   { return ProviderGem }
func (*HashChallenge) Provider() Provider    { return ProviderCrossmark }

func (*PayloadChallenge) isChallenge() {}
func (*NonceChallenge) isChallenge()   {}
func (*HashChallenge) isChallenge()    {}

// SignedResponse carries a wallet signature back for verification
type SignedResponse interface {
	Provider() Provider
	isSignedResponse()
}

// PayloadResponse is the signed transaction blob returned by the Xumm platform
type PayloadResponse struct {
	SignedBlob string
}

// NonceResponse is a signature over the hex encoding of a nonce token
type NonceResponse struct {
	Token     string
	Signature string
}

// HashResponse is a signature over a hash challenge with the signer's claim
type HashResponse struct {
	Challenge string
	Signature string
	PublicKey string
	Address   string
}

func (*PayloadResponse) Provider() Provider { return ProviderXumm }
func (*NonceResponse) Provider() Provider   { return ProviderGem }
func (*HashResponse) Provider() Provider    { return ProviderCrossmark }

func (*PayloadResponse) isSignedResponse() {}
func (*NonceResponse) isSignedResponse()   {}
func (*HashResponse) isSignedResponse()    {}

// Identity is the outcome of a successful signature verification
type Identity struct {
	Provider Provider
	Address  string
}

// Session represents an authenticated bearer credential
type Session struct {
	ID        string    // Unique token identifier
	Address   string    // XRPL address of the user
	Provider  Provider  // Wallet used to authenticate, empty for restored sessions
	IssuedAt  time.Time // When the token was minted
	ExpiresAt time.Time // When the token expires
	Token     string    // Encoded token
}
