package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dataDir := t.TempDir()

	cfg, err := Load(filepath.Join(dataDir, "missing.yaml"), dataDir)
	require.NoError(t, err)

	want := DefaultConfig()
	want.DataDir = dataDir
	assert.Equal(t, &want, cfg)
}

func TestLoad_ParsesAndAppliesDefaults(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, `
storage:
  backend: pebble
  unique_usernames: true
http:
  addr: ":9090"
token:
  lifetime: 2h
  secret_file: /etc/postbox/secret.env
`)

	cfg, err := Load(path, dataDir)
	require.NoError(t, err)

	assert.Equal(t, BackendPebble, cfg.Storage.Backend)
	assert.True(t, cfg.Storage.UniqueUsernames)
	assert.False(t, cfg.Storage.UniqueTopicNames)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, 2*time.Hour, cfg.Token.Lifetime)
	assert.Equal(t, "HS256", cfg.Token.Algorithm)
	assert.Equal(t, "/etc/postbox/secret.env", cfg.SecretPath())
	assert.Equal(t, dataDir, cfg.DataDir)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "storage: [")

	_, err := Load(path, t.TempDir())
	assert.ErrorContains(t, err, "parse config file")
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: redis
token:
  algorithm: RS256
`)

	_, err := Load(path, t.TempDir())

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Len(t, fieldErrs, 2)
	assert.Equal(t, "storage.backend", fieldErrs[0].Field)
	assert.Equal(t, "token.algorithm", fieldErrs[1].Field)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"empty addr", func(c *Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"zero rps", func(c *Config) { c.RateLimit.RPS = 0 }, "rate_limit.rps"},
		{"zero burst", func(c *Config) { c.RateLimit.Burst = 0 }, "rate_limit.burst"},
		{"short lifetime", func(c *Config) { c.Token.Lifetime = time.Second }, "token.lifetime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.DataDir = t.TempDir()
			tt.mutate(&cfg)

			var fieldErrs criterio.FieldErrors
			require.ErrorAs(t, cfg.Validate(), &fieldErrs)
			require.Len(t, fieldErrs, 1)
			assert.Equal(t, tt.field, fieldErrs[0].Field)
		})
	}
}

func TestValidate_DisabledRateLimitSkipsChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.RateLimit = RateLimitConfig{Disabled: true}

	assert.NoError(t, cfg.Validate())
}

func TestValidateDeep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	assert.NoError(t, cfg.ValidateDeep(""))

	cfg.HTTP.Addr = "no-port"
	dir := t.TempDir()

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, cfg.ValidateDeep(dir), &fieldErrs)
	require.Len(t, fieldErrs, 2)
	assert.Equal(t, "config", fieldErrs[0].Field)
	assert.Contains(t, fieldErrs[0].Err.Error(), "is a directory")
	assert.Equal(t, "http.addr", fieldErrs[1].Field)
}

func TestWarnings_SecretFile(t *testing.T) {
	t.Setenv(SecretKeyEnv, "")

	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Storage.UniqueTopicNames = true

	warnings := cfg.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "Token", warnings[0].Category)

	require.NoError(t, os.WriteFile(cfg.SecretPath(), []byte(SecretKeyEnv+"=s3cret\n"), 0o600))
	assert.Empty(t, cfg.Warnings())
}

func TestPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/data"

	assert.Equal(t, "/data/topics.json", cfg.TopicsFile())
	assert.Equal(t, "/data/pending_messages.json", cfg.MessagesFile())
	assert.Equal(t, "/data/users.json", cfg.UsersFile())
	assert.Equal(t, "/data/pebble", cfg.PebbleDir())
	assert.Equal(t, "/data/secret.env", cfg.SecretPath())
}
