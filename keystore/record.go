package keystore

import "time"

// Record is a credential together with the metadata the rest of the system
// is allowed to see. The plaintext Secret never leaves the Key Store except
// transiently inside an adapter's in-flight request (see Store.Get).
type Record struct {
	Provider    string
	Secret      []byte // zeroed after use when the backend supports it
	CreatedAt   time.Time
	LastUsedAt  time.Time
	ExpiresAt   *time.Time
	Encrypted   bool
	Fingerprint string // 4 hex chars, never the key itself
}

// Stored is the on-disk/on-wire shape written by persistent backends. It
// never contains the plaintext secret unless Encrypted is false (ephemeral
// testing only) — when Encrypted is true, Ciphertext/Salt/IV/Tag hold the
// AES-256-GCM output per §6's persisted state layout.
type Stored struct {
	Version     int        `json:"v"`
	Provider    string     `json:"-"`
	Plaintext   []byte     `json:"secret,omitempty"`
	Ciphertext  []byte     `json:"ct,omitempty"`
	Salt        []byte     `json:"salt,omitempty"`
	IV          []byte     `json:"iv,omitempty"`
	Tag         []byte     `json:"tag,omitempty"`
	Encrypted   bool       `json:"encrypted"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  time.Time  `json:"last_used_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Fingerprint string     `json:"fingerprint"`
}
