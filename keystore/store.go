package keystore

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/byokit/byokit/errs"
	"github.com/byokit/byokit/events"
)

// Store is the public Key Store surface (C3). It composes a pluggable
// Backend with optional at-rest encryption, validation, auto-expire, and
// event emission — the backend only ever sees Stored records, never the
// decision of whether/how to encrypt them.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	bus      *events.Bus
	logger   *zap.Logger
	password string // empty: records are kept as plaintext Stored.Plaintext
	encrypt  bool
}

// StoreOption configures a Store at construction time.
type StoreOption func(*Store)

// WithEventBus attaches the bus every keystore operation emits key:* and
// security:* events to.
func WithEventBus(bus *events.Bus) StoreOption {
	return func(s *Store) { s.bus = bus }
}

// WithLogger overrides the default no-op zap logger.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithEncryption turns on AES-256-GCM at rest, deriving the cipher key from
// password via PBKDF2-SHA-512 (see crypto.go). Without this option records
// are written as plaintext, which is only appropriate for the Ephemeral
// backend in test contexts.
func WithEncryption(password string) StoreOption {
	return func(s *Store) {
		s.password = password
		s.encrypt = password != ""
	}
}

// NewStore wraps backend with the Store business logic.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{backend: backend, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) emit(kind events.Kind, provider string, data map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(events.Event{Kind: kind, Provider: provider, Data: data})
}

// Set validates and stores a credential for provider, encrypting it at rest
// when the Store was built WithEncryption. ttl, when non-zero, sets an
// expiry after which Get reports the record as absent and emits key:expired.
func (s *Store) Set(ctx context.Context, provider, key string, ttl time.Duration) error {
	if err := ValidateKey(provider, key); err != nil {
		s.emit(events.KeyError, provider, map[string]any{"reason": "validation_failed"})
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	rec := &Stored{
		Version:     1,
		CreatedAt:   now,
		LastUsedAt:  now,
		Encrypted:   s.encrypt,
		Fingerprint: Fingerprint(key),
	}
	if ttl > 0 {
		expiry := now.Add(ttl)
		rec.ExpiresAt = &expiry
	}

	if s.encrypt {
		ciphertext, tag, iv, salt, err := Seal(s.password, []byte(key))
		if err != nil {
			return err
		}
		rec.Ciphertext, rec.Tag, rec.IV, rec.Salt = ciphertext, tag, iv, salt
	} else {
		rec.Plaintext = []byte(key)
	}

	if err := s.backend.Set(ctx, provider, rec); err != nil {
		return err
	}
	s.emit(events.KeySet, provider, map[string]any{"fingerprint": rec.Fingerprint})
	return nil
}

// Get returns the plaintext credential for provider, decrypting it if
// necessary. Expired records are treated as absent: the caller sees
// (nil, false, nil) and a key:expired event fires exactly once, on the read
// that discovers the expiry.
func (s *Store) Get(ctx context.Context, provider string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := s.backend.Get(ctx, provider)
	if err != nil || !ok {
		return nil, false, err
	}

	if rec.ExpiresAt != nil && time.Now().After(*rec.ExpiresAt) {
		_ = s.backend.Remove(ctx, provider)
		s.emit(events.KeyExpired, provider, nil)
		return nil, false, nil
	}

	var plaintext []byte
	if rec.Encrypted {
		plaintext, err = Open(s.password, rec.Ciphertext, rec.Tag, rec.IV, rec.Salt)
		if err != nil {
			return nil, false, err
		}
	} else {
		plaintext = append([]byte(nil), rec.Plaintext...)
	}

	rec.LastUsedAt = time.Now()
	_ = s.backend.Set(ctx, provider, rec)

	return plaintext, true, nil
}

// Has reports whether a non-expired credential exists for provider, without
// decrypting it.
func (s *Store) Has(ctx context.Context, provider string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok, err := s.backend.Get(ctx, provider)
	if err != nil || !ok {
		return false, err
	}
	if rec.ExpiresAt != nil && time.Now().After(*rec.ExpiresAt) {
		return false, nil
	}
	return true, nil
}

// Remove deletes the credential for provider, if any.
func (s *Store) Remove(ctx context.Context, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Remove(ctx, provider); err != nil {
		return err
	}
	s.emit(events.KeyRemove, provider, nil)
	return nil
}

// List returns the providers with a currently stored credential, expired or
// not — callers wanting only live credentials should pair this with Has.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.List(ctx)
}

// Rotate atomically replaces provider's credential with newKey. The old
// record is only removed after the new one is validated and successfully
// written, so a failed rotation leaves the prior credential intact. It
// returns the fingerprints of the old and new keys, old empty if there was
// no prior credential.
func (s *Store) Rotate(ctx context.Context, provider, newKey string, ttl time.Duration) (oldFingerprint, newFingerprint string, err error) {
	if err := ValidateKey(provider, newKey); err != nil {
		return "", "", err
	}

	s.mu.Lock()
	prev, hadPrevious, _ := s.backend.Get(ctx, provider)
	s.mu.Unlock()
	if hadPrevious {
		oldFingerprint = prev.Fingerprint
	}

	newFingerprint = Fingerprint(newKey)
	if err := s.Set(ctx, provider, newKey, ttl); err != nil {
		return "", "", err
	}

	s.emit(events.KeyRotate, provider, map[string]any{"old_fingerprint": oldFingerprint, "new_fingerprint": newFingerprint})
	return oldFingerprint, newFingerprint, nil
}

// Clear removes every stored credential.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Clear(ctx)
}

// Destroy clears the store and releases the underlying backend's OS
// handle — callers must not use the Store afterward.
func (s *Store) Destroy(ctx context.Context) error {
	if err := s.Clear(ctx); err != nil {
		return err
	}
	return s.Close()
}

// Close releases the underlying backend's OS handle without clearing
// stored records.
func (s *Store) Close() error {
	if err := s.backend.Close(); err != nil {
		return errs.Wrap(errs.StorageError, "", "closing key store backend", err)
	}
	return nil
}
