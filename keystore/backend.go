package keystore

import "context"

// Backend is the pluggable storage layer beneath Store. §4.3 names four
// shapes (ephemeral, persistent, scoped-persistent, indexed-persistent);
// Store is backend-agnostic and only deals in Stored records keyed by
// provider name.
type Backend interface {
	Get(ctx context.Context, provider string) (*Stored, bool, error)
	Set(ctx context.Context, provider string, rec *Stored) error
	Remove(ctx context.Context, provider string) error
	List(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
	// Close releases any OS handle the backend holds (file descriptor,
	// network connection). Backends with nothing to release (Memory) treat
	// this as a no-op — §4.3: "an implementation-chosen close() for
	// backends holding OS handles."
	Close() error
}

// BackendKind selects which Backend ResolveBackend builds, matching §6's
// keyStorage.type enum.
type BackendKind string

const (
	BackendMemory       BackendKind = "memory"
	BackendLocalStorage BackendKind = "localStorage"
	BackendSessionStorage BackendKind = "sessionStorage"
	BackendIndexedDB    BackendKind = "indexedDB"
)
