package tokenizer

import "github.com/golang-jwt/jwt/v5"

// NonceClaims combines standard claims with the account a wallet must sign for
type NonceClaims struct {
	jwt.RegisteredClaims
	PublicKey string `json:"public_key"`
	Address   string `json:"address"`
}

// SessionClaims combines standard claims with the authenticated address
type SessionClaims struct {
	jwt.RegisteredClaims
	Address string `json:"address"`
}
