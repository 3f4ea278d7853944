package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecret(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	s := New(key)
	require.True(t, s.Configured())

	// caller copy is wiped
	assert.Equal(t, make([]byte, 32), key)

	var seen string
	require.NoError(t, s.Use(func(k []byte) error {
		seen = string(k)
		return nil
	}))
	assert.Equal(t, "0123456789abcdef0123456789abcdef", seen)
}

func TestSecretEmpty(t *testing.T) {
	assert.Nil(t, New(nil))
	assert.Nil(t, FromString(""))

	var s *Secret
	assert.False(t, s.Configured())
}
