package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "byokit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
providers:
  openai:
    base_url: https://api.openai.com/v1
    default_model: gpt-4-turbo
    max_retries: 2
debug: true
default_timeout: 30s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Providers["openai"].BaseURL)
	assert.Equal(t, "gpt-4-turbo", cfg.Providers["openai"].DefaultModel)
	assert.Equal(t, 2, cfg.Providers["openai"].MaxRetries)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 30*time.Second, cfg.DefaultTimeout)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("BYOKIT_DEBUG", "true")
	t.Setenv("BYOKIT_DEFAULT_MAX_RETRIES", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 7, cfg.DefaultMaxRetries)
}

func TestLoad_ExpandsEncryptionKeyPlaceholder(t *testing.T) {
	t.Setenv("BYOKIT_MASTER_KEY", "super-secret-value")
	dir := t.TempDir()
	path := filepath.Join(dir, "byokit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
key_storage:
  type: localStorage
  encrypt: true
  encryption_key: ${BYOKIT_MASTER_KEY}
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-value", cfg.KeyStorage.EncryptionKey)
}

func TestWithDefaults_FillsZeroValues(t *testing.T) {
	cfg := Config{}.WithDefaults()
	assert.Equal(t, 60*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, 3, cfg.DefaultMaxRetries)
	assert.Equal(t, 5, cfg.DefaultBatchConcurrency)
	assert.Equal(t, "memory", cfg.KeyStorage.Type)
	assert.Equal(t, "byokit:", cfg.KeyStorage.Prefix)
	assert.Equal(t, "sliding", cfg.RateLimit.Strategy)
}

func TestWithDefaults_PreservesSetValues(t *testing.T) {
	cfg := Config{DefaultMaxRetries: 9}.WithDefaults()
	assert.Equal(t, 9, cfg.DefaultMaxRetries)
}
