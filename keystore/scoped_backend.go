package keystore

import "context"

// ScopedBackend is the Scoped-persistent storage shape from §4.3: records
// live in an underlying Persistent backend but are namespaced to a single
// scope id (e.g. one browser tab's session), so that ending the scope
// clears exactly its own records and nothing else sharing the backend.
type ScopedBackend struct {
	inner Backend
	scope string
}

// NewScopedBackend namespaces every provider key under scope before
// delegating to inner. Two ScopedBackends sharing the same inner backend
// with different scope values never see each other's records.
func NewScopedBackend(inner Backend, scope string) *ScopedBackend {
	return &ScopedBackend{inner: inner, scope: scope}
}

func (s *ScopedBackend) namespaced(provider string) string {
	return s.scope + "\x00" + provider
}

func (s *ScopedBackend) Get(ctx context.Context, provider string) (*Stored, bool, error) {
	return s.inner.Get(ctx, s.namespaced(provider))
}

func (s *ScopedBackend) Set(ctx context.Context, provider string, rec *Stored) error {
	return s.inner.Set(ctx, s.namespaced(provider), rec)
}

func (s *ScopedBackend) Remove(ctx context.Context, provider string) error {
	return s.inner.Remove(ctx, s.namespaced(provider))
}

// List only returns providers within this scope, with the scope prefix
// stripped back off.
func (s *ScopedBackend) List(ctx context.Context) ([]string, error) {
	all, err := s.inner.List(ctx)
	if err != nil {
		return nil, err
	}
	prefix := s.scope + "\x00"
	var out []string
	for _, k := range all {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k[len(prefix):])
		}
	}
	return out, nil
}

// Clear removes only this scope's records, leaving the rest of the shared
// backend untouched — ending one browsing scope must not evict another's.
func (s *ScopedBackend) Clear(ctx context.Context) error {
	providers, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, p := range providers {
		if err := s.Remove(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close does not close the underlying backend — a scope is a view, not an
// owner, of the shared persistent store.
func (s *ScopedBackend) Close() error { return nil }
