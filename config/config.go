// Package config loads the configuration surface described in §6: a YAML
// file plus BYOKIT_-prefixed environment overrides plus a local .env file,
// unmarshaled into an Options value consumed by byokit.New.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ProviderOverride holds the per-provider construction overrides from
// §6's "providers" map.
type ProviderOverride struct {
	BaseURL      string            `koanf:"base_url"`
	DefaultModel string            `koanf:"default_model"`
	Headers      map[string]string `koanf:"headers"`
	Timeout      time.Duration     `koanf:"timeout"`
	MaxRetries   int               `koanf:"max_retries"`
	RateLimit    *RateLimitConfig  `koanf:"rate_limit"`
}

// KeyStorageConfig mirrors §6's "keyStorage" block.
type KeyStorageConfig struct {
	Type           string        `koanf:"type"` // memory | localStorage | sessionStorage | indexedDB
	Encrypt        bool          `koanf:"encrypt"`
	EncryptionKey  string        `koanf:"encryption_key"`
	Prefix         string        `koanf:"prefix"`
	AutoClearAfter time.Duration `koanf:"auto_clear_after"`
	Fallback       string        `koanf:"fallback"`
	FilePath       string        `koanf:"file_path"`
}

// CacheConfig mirrors §6's "cache" block.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	TTL        time.Duration `koanf:"ttl"`
	MaxEntries int           `koanf:"max_entries"`
	MaxSize    int64         `koanf:"max_size"`
	Storage    string        `koanf:"storage"` // memory | indexedDB
	Compress   bool          `koanf:"compress"`
}

// FallbackTarget names the provider/model a request should be retried
// against when its originating provider fails.
type FallbackTarget struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
}

// RateLimitConfig mirrors §6's "rateLimit" block, usable both globally
// and per-provider.
type RateLimitConfig struct {
	RequestsPerMinute int    `koanf:"requests_per_minute"`
	TokensPerMinute   int    `koanf:"tokens_per_minute"`
	MaxConcurrent     int    `koanf:"max_concurrent"`
	Strategy          string `koanf:"strategy"` // sliding | fixed | token_bucket
}

// Config is the top-level shape loaded from file + environment, before
// it's translated into an Options value (see options.go at the module
// root for that translation).
type Config struct {
	Providers map[string]ProviderOverride `koanf:"providers"`
	KeyStorage KeyStorageConfig           `koanf:"key_storage"`
	Cache      CacheConfig                `koanf:"cache"`
	RateLimit  RateLimitConfig            `koanf:"rate_limit"`

	DefaultTimeout          time.Duration `koanf:"default_timeout"`
	DefaultMaxRetries       int           `koanf:"default_max_retries"`
	DefaultBatchConcurrency int           `koanf:"default_batch_concurrency"`

	Debug bool `koanf:"debug"`

	Middleware []string `koanf:"middleware"`

	// Fallbacks maps a provider name to the provider/model pair the
	// Fallback middleware should retry against when that provider fails.
	Fallbacks map[string]FallbackTarget `koanf:"fallbacks"`

	ValidateModels      bool `koanf:"validate_models"`
	DeduplicateRequests bool `koanf:"deduplicate_requests"`

	// DisableValidation removes only the built-in Validation middleware
	// (named middleware.NameValidation) from the default chain. A
	// user-registered validation middleware added via Use still runs.
	DisableValidation bool `koanf:"disable_validation"`
}

// Load reads configuration from a YAML file, layers BYOKIT_-prefixed
// environment variable overrides on top, and returns the resulting
// Config. path may be empty, in which case only environment variables
// apply. Load does not fill zero values; Config.WithDefaults does that.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("BYOKIT_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "BYOKIT_"))
		// A leading block name becomes a nested path
		// (BYOKIT_CACHE_MAX_ENTRIES -> cache.max_entries); any other key
		// keeps its underscores (BYOKIT_DEFAULT_MAX_RETRIES ->
		// default_max_retries).
		for _, block := range []string{"key_storage", "rate_limit", "cache"} {
			if strings.HasPrefix(key, block+"_") {
				return block + "." + strings.TrimPrefix(key, block+"_")
			}
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPlaceholders(&cfg)
	return &cfg, nil
}

// expandPlaceholders resolves ${VAR_NAME} references to the runtime
// environment, keeping provider API keys and the key-store encryption
// key out of the config file itself.
func expandPlaceholders(cfg *Config) {
	cfg.KeyStorage.EncryptionKey = expandVar(cfg.KeyStorage.EncryptionKey)
	for name, p := range cfg.Providers {
		for h, v := range p.Headers {
			p.Headers[h] = expandVar(v)
		}
		cfg.Providers[name] = p
	}
}

func expandVar(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}
