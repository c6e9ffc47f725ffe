// Package config handles configuration loading and validation for postbox.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hay-kot/criterio"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendJSONFile = "jsonfile"
	BackendPebble   = "pebble"
)

// SecretKeyEnv is the variable holding the token signing key.
const SecretKeyEnv = "POSTBOX_SECRET_KEY"

// Config holds the application configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	HTTP      HTTPConfig      `yaml:"http"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Token     TokenConfig     `yaml:"token"`
	DataDir   string          `yaml:"-"` // set by caller, not from config file
}

// StorageConfig selects where the topics, messages and users collections live.
type StorageConfig struct {
	Backend          string `yaml:"backend"`
	UniqueTopicNames bool   `yaml:"unique_topic_names"`
	UniqueUsernames  bool   `yaml:"unique_usernames"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RateLimitConfig configures the per-user request limiter.
type RateLimitConfig struct {
	Disabled bool    `yaml:"disabled"`
	RPS      float64 `yaml:"rps"`
	Burst    int     `yaml:"burst"`
}

// TokenConfig configures session tokens.
type TokenConfig struct {
	Algorithm string        `yaml:"algorithm"`
	Lifetime  time.Duration `yaml:"lifetime"`
	Issuer    string        `yaml:"issuer"`
	// SecretFile is an env file defining POSTBOX_SECRET_KEY. Relative paths resolve
	// against the data directory.
	SecretFile string `yaml:"secret_file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			Backend: BackendJSONFile,
		},
		HTTP: HTTPConfig{
			Addr:            "127.0.0.1:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RPS:   10,
			Burst: 20,
		},
		Token: TokenConfig{
			Algorithm:  "HS256",
			Lifetime:   24 * time.Hour,
			Issuer:     "postbox",
			SecretFile: "secret.env",
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = defaults.HTTP.Addr
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = defaults.HTTP.ShutdownTimeout
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = defaults.RateLimit.RPS
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if c.Token.Algorithm == "" {
		c.Token.Algorithm = defaults.Token.Algorithm
	}
	if c.Token.Lifetime == 0 {
		c.Token.Lifetime = defaults.Token.Lifetime
	}
	if c.Token.SecretFile == "" {
		c.Token.SecretFile = defaults.Token.SecretFile
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if c.DataDir == "" {
		errs = errs.Append("data_dir", fmt.Errorf("cannot be empty"))
	}

	if !isValidBackend(c.Storage.Backend) {
		errs = errs.Append("storage.backend", fmt.Errorf("unknown backend %q (use %s or %s)", c.Storage.Backend, BackendJSONFile, BackendPebble))
	}

	if c.HTTP.Addr == "" {
		errs = errs.Append("http.addr", fmt.Errorf("cannot be empty"))
	}

	if c.HTTP.ShutdownTimeout < 0 {
		errs = errs.Append("http.shutdown_timeout", fmt.Errorf("must not be negative"))
	}

	if !c.RateLimit.Disabled {
		if c.RateLimit.RPS <= 0 {
			errs = errs.Append("rate_limit.rps", fmt.Errorf("must be positive"))
		}
		if c.RateLimit.Burst < 1 {
			errs = errs.Append("rate_limit.burst", fmt.Errorf("must be at least 1"))
		}
	}

	if !isValidAlgorithm(c.Token.Algorithm) {
		errs = errs.Append("token.algorithm", fmt.Errorf("unsupported algorithm %q (use HS256, HS384 or HS512)", c.Token.Algorithm))
	}

	if c.Token.Lifetime < time.Minute {
		errs = errs.Append("token.lifetime", fmt.Errorf("must be at least 1m"))
	}

	return errs.ToError()
}

// TopicsFile returns the path to the topics JSON file.
func (c *Config) TopicsFile() string {
	return filepath.Join(c.DataDir, "topics.json")
}

// MessagesFile returns the path to the pending messages JSON file.
func (c *Config) MessagesFile() string {
	return filepath.Join(c.DataDir, "pending_messages.json")
}

// UsersFile returns the path to the users JSON file.
func (c *Config) UsersFile() string {
	return filepath.Join(c.DataDir, "users.json")
}

// PebbleDir returns the directory of the pebble database.
func (c *Config) PebbleDir() string {
	return filepath.Join(c.DataDir, "pebble")
}

// SecretPath returns the resolved path of the token secret env file.
func (c *Config) SecretPath() string {
	if filepath.IsAbs(c.Token.SecretFile) {
		return c.Token.SecretFile
	}
	return filepath.Join(c.DataDir, c.Token.SecretFile)
}

func isValidBackend(backend string) bool {
	switch backend {
	case BackendJSONFile, BackendPebble:
		return true
	default:
		return false
	}
}

func isValidAlgorithm(alg string) bool {
	switch alg {
	case "HS256", "HS384", "HS512":
		return true
	default:
		return false
	}
}
