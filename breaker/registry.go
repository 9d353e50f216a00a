package breaker

import (
	"sync"

	"go.uber.org/zap"
)

// Registry lazily creates and caches one Breaker per provider, all
// sharing the same Config.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	logger   *zap.Logger
	breakers map[string]*Breaker
}

// NewRegistry builds a registry that constructs breakers on first use.
func NewRegistry(cfg Config, logger *zap.Logger) *Registry {
	return &Registry{cfg: cfg, logger: logger, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for provider, creating it on first access.
func (r *Registry) For(provider string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[provider]
	if !ok {
		b = New(provider, r.cfg, r.logger)
		r.breakers[provider] = b
	}
	return b
}

// Reset resets every known breaker to Closed.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}

// Snapshot returns the current state of every breaker that has been
// touched via For, keyed by provider name.
func (r *Registry) Snapshot() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make(map[string]State, len(r.breakers))
	for provider, b := range r.breakers {
		states[provider] = b.State()
	}
	return states
}
