package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialFile(t *testing.T) {
	f := credentialFile{path: filepath.Join(t.TempDir(), "nested", "session")}

	token, err := f.Load()
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, f.Save("abc.def.ghi"))
	info, err := os.Stat(f.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	token, err = f.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	require.NoError(t, f.Remove())
	require.NoError(t, f.Remove())
	token, err = f.Load()
	require.NoError(t, err)
	assert.Empty(t, token)
}
