// Package secret keeps symmetric signing keys out of ordinary heap memory.
package secret

import (
	"github.com/awnumar/memguard"
)

// Secret is an immutable key sealed in a memguard enclave.
// A nil *Secret represents an unconfigured key.
type Secret struct {
	enclave *memguard.Enclave
}

// New seals key and wipes the caller's copy. An empty key yields nil.
func New(key []byte) *Secret {
	if len(key) == 0 {
		return nil
	}
	return &Secret{enclave: memguard.NewEnclave(key)}
}

// FromString is New for string configuration values
func FromString(key string) *Secret {
	return New([]byte(key))
}

// Configured reports whether the secret holds a key
func (s *Secret) Configured() bool {
	return s != nil && s.enclave != nil
}

// Use opens the enclave for the duration of fn. The slice passed to fn
// must not be retained.
func (s *Secret) Use(fn func(key []byte) error) error {
	buf, err := s.enclave.Open()
	if err != nil {
		return err
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}
