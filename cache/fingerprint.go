package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Message is the structural shape of one chat message that participates
// in a request's fingerprint — role and content only, never metadata.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FingerprintInput is the normalized subset of a chat/completion request
// that determines cache identity, per §4.7. Fields explicitly excluded
// there — signal, headers, metadata, priority, skipCache, the streaming
// flag — have no place in this struct at all, so they can never leak into
// the hash by accident.
type FingerprintInput struct {
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Tools            any       `json:"tools,omitempty"`
	ResponseFormat   string    `json:"response_format,omitempty"`
	Temperature      *float64  `json:"temperature,omitempty"`
	TopP             *float64  `json:"top_p,omitempty"`
	Stop             []string  `json:"stop,omitempty"`
	Seed             *int      `json:"seed,omitempty"`
	MaxTokens        *int      `json:"max_tokens,omitempty"`
	PresencePenalty  *float64  `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64  `json:"frequency_penalty,omitempty"`
}

// Fingerprint hashes the canonical JSON encoding of in to a hex string.
// Go's encoding/json marshals struct fields in declaration order
// regardless of map iteration order elsewhere in the caller, so the same
// logical request always produces the same bytes to hash.
func Fingerprint(in FingerprintInput) (string, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
