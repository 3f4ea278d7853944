// Package config loads server configuration from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	log "github.com/inconshreveable/log15"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Session    SessionConfig    `yaml:"session"`
	Xumm       XummConfig       `yaml:"xumm"`
	Redis      RedisConfig      `yaml:"redis"`
	Challenges ChallengesConfig `yaml:"challenges"`
	Events     EventsConfig     `yaml:"events"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	HTTPAddr       string   `yaml:"http_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SessionConfig holds the key that signs session and nonce tokens
type SessionConfig struct {
	Key string `yaml:"key"`
}

// XummConfig holds Xumm platform credentials
type XummConfig struct {
	APIURL    string `yaml:"api_url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// RedisConfig holds the Redis connection used by the ledger and events.
// An empty URL keeps everything in process.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ChallengesConfig holds challenge replay policy
type ChallengesConfig struct {
	SingleUse bool          `yaml:"single_use"`
	LedgerTTL time.Duration `yaml:"-"`

	LedgerTTLRaw string `yaml:"ledger_ttl"`
}

// EventsConfig holds authenticated event publishing configuration
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// environment lists the variables that override file values. Unset
// variables leave the pointer nil.
type environment struct {
	EncKey         *string        `envconfig:"ENC_KEY"`
	XummKey        *string        `envconfig:"XUMM_KEY"`
	XummKeySecret  *string        `envconfig:"XUMM_KEY_SECRET"`
	XummAPIURL     *string        `envconfig:"XUMM_API_URL"`
	HTTPAddr       *string        `envconfig:"HTTP_ADDR"`
	AllowedOrigins []string       `envconfig:"ALLOWED_ORIGINS"`
	RedisURL       *string        `envconfig:"REDIS_URL"`
	LogLevel       *string        `envconfig:"LOG_LEVEL"`
	SingleUse      *bool          `envconfig:"SINGLE_USE_CHALLENGES"`
	LedgerTTL      *time.Duration `envconfig:"CHALLENGE_LEDGER_TTL"`
	EventsEnabled  *bool          `envconfig:"EVENTS_ENABLED"`
	EventsTopic    *string        `envconfig:"EVENTS_TOPIC"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:       ":9000",
			AllowedOrigins: []string{"*"},
		},
		Xumm: XummConfig{
			APIURL: "https://xumm.app/api/v1",
		},
		Challenges: ChallengesConfig{
			LedgerTTL: 24 * time.Hour,
		},
		Events: EventsConfig{
			Topic: "xrpauth.authenticated",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment variables apply. Environment variables in the
// format ${VAR_NAME} inside the file are expanded.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}

		if cfg.Challenges.LedgerTTLRaw != "" {
			cfg.Challenges.LedgerTTL, err = time.ParseDuration(cfg.Challenges.LedgerTTLRaw)
			if err != nil {
				return nil, fmt.Errorf("parsing ledger_ttl %q: %w", cfg.Challenges.LedgerTTLRaw, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	var env environment
	if err := envconfig.Process("", &env); err != nil {
		return err
	}

	setString(&c.Session.Key, env.EncKey)
	setString(&c.Xumm.APIKey, env.XummKey)
	setString(&c.Xumm.APISecret, env.XummKeySecret)
	setString(&c.Xumm.APIURL, env.XummAPIURL)
	setString(&c.Server.HTTPAddr, env.HTTPAddr)
	setString(&c.Redis.URL, env.RedisURL)
	setString(&c.Logging.Level, env.LogLevel)
	setString(&c.Events.Topic, env.EventsTopic)
	if env.AllowedOrigins != nil {
		c.Server.AllowedOrigins = env.AllowedOrigins
	}
	if env.SingleUse != nil {
		c.Challenges.SingleUse = *env.SingleUse
	}
	if env.LedgerTTL != nil {
		c.Challenges.LedgerTTL = *env.LedgerTTL
	}
	if env.EventsEnabled != nil {
		c.Events.Enabled = *env.EventsEnabled
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate rejects configuration the server cannot start with
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if _, err := log.LvlFromString(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Challenges.SingleUse && c.Challenges.LedgerTTL <= 0 {
		return fmt.Errorf("challenges.ledger_ttl must be positive")
	}
	if c.Events.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("events require redis.url")
	}
	return nil
}

// Warnings lists missing settings that disable parts of the service
// without preventing startup
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Session.Key == "" {
		warnings = append(warnings, "ENC_KEY is not set; sessions and nonce tokens cannot be issued")
	}
	if c.Xumm.APIKey == "" || c.Xumm.APISecret == "" {
		warnings = append(warnings, "XUMM_KEY or XUMM_KEY_SECRET is not set; out-of-band sign-in is unavailable")
	}
	return warnings
}

// LogLevel returns the configured log15 level
func (c *Config) LogLevel() log.Lvl {
	lvl, err := log.LvlFromString(c.Logging.Level)
	if err != nil {
		return log.LvlInfo
	}
	return lvl
}
