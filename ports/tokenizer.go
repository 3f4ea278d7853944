package ports

import "github.com/layer-3/xrpauth/core"

// Tokenizer converts between domain objects and tokens
type Tokenizer interface {
	// Nonce token operations
	NonceToToken(nonce *core.NonceChallenge) (string, error)
	TokenToNonce(token string) (*core.NonceChallenge, error)

	// Session token operations
	SessionToToken(session *core.Session) (string, error)
	TokenToSession(token string) (*core.Session, error)
}
