package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/inconshreveable/log15"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.HTTPAddr)
	assert.Equal(t, "https://xumm.app/api/v1", cfg.Xumm.APIURL)
	assert.False(t, cfg.Challenges.SingleUse)
	assert.Equal(t, 24*time.Hour, cfg.Challenges.LedgerTTL)
	assert.Equal(t, log.LvlInfo, cfg.LogLevel())
	assert.Len(t, cfg.Warnings(), 2)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("TEST_SESSION_KEY", "from-env")
	path := writeConfig(t, `
server:
  http_addr: ":8080"
  allowed_origins: ["https://app.example"]
session:
  key: ${TEST_SESSION_KEY}
xumm:
  api_key: key
  api_secret: secret
redis:
  url: redis://localhost:6379/0
challenges:
  single_use: true
  ledger_ttl: 2h
events:
  enabled: true
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, []string{"https://app.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "from-env", cfg.Session.Key)
	assert.True(t, cfg.Challenges.SingleUse)
	assert.Equal(t, 2*time.Hour, cfg.Challenges.LedgerTTL)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "xrpauth.authenticated", cfg.Events.Topic)
	assert.Equal(t, log.LvlDebug, cfg.LogLevel())
	assert.Empty(t, cfg.Warnings())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
session:
  key: file-key
xumm:
  api_key: file-api-key
`)
	t.Setenv("ENC_KEY", "env-key")
	t.Setenv("XUMM_KEY_SECRET", "env-secret")
	t.Setenv("HTTP_ADDR", "127.0.0.1:7000")
	t.Setenv("SINGLE_USE_CHALLENGES", "true")
	t.Setenv("CHALLENGE_LEDGER_TTL", "90m")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Session.Key)
	assert.Equal(t, "file-api-key", cfg.Xumm.APIKey)
	assert.Equal(t, "env-secret", cfg.Xumm.APISecret)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.HTTPAddr)
	assert.True(t, cfg.Challenges.SingleUse)
	assert.Equal(t, 90*time.Minute, cfg.Challenges.LedgerTTL)
	assert.Equal(t, log.LvlWarn, cfg.LogLevel())
}

func TestInvalidConfig(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "challenges:\n  ledger_ttl: soon\n"))
	assert.ErrorContains(t, err, "ledger_ttl")

	_, err = Load(writeConfig(t, "logging:\n  level: loud\n"))
	assert.ErrorContains(t, err, "logging.level")

	_, err = Load(writeConfig(t, "events:\n  enabled: true\n"))
	assert.ErrorContains(t, err, "redis.url")

	t.Setenv("SINGLE_USE_CHALLENGES", "maybe")
	_, err = Load("")
	assert.Error(t, err)
}
