package keystore

import (
	"strings"

	"github.com/byokit/byokit/errs"
)

// providerPrefixes mirrors §4.3's "static prefix convention" — a coarse
// sanity check, not an authoritative key format validator (providers rotate
// their own formats over time; we only reject what's obviously wrong).
var providerPrefixes = map[string]string{
	"openai":    "sk-",
	"anthropic": "sk-ant-",
	"google":    "AIza",
}

// localInferenceProviders accept any key, including an empty one, because
// a local daemon (Ollama) usually has no credential at all.
var localInferenceProviders = map[string]bool{
	"ollama": true,
}

const (
	minKeyLength = 8
	maxKeyLength = 512
)

// ValidateKey enforces §4.3's validation rules on set/rotate. It never
// echoes the key back in the returned error.
func ValidateKey(provider, key string) error {
	if localInferenceProviders[provider] {
		return nil
	}
	if key == "" {
		return errs.New(errs.KeyInvalid, provider, "key must not be empty")
	}
	if len(key) < minKeyLength || len(key) > maxKeyLength {
		return errs.New(errs.KeyInvalid, provider, "key length out of range")
	}
	if prefix, ok := providerPrefixes[provider]; ok && !strings.HasPrefix(key, prefix) {
		return errs.New(errs.KeyInvalid, provider, "key does not match provider's expected format")
	}
	return nil
}
