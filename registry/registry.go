package registry

import (
	"strings"
	"sync"
)

type key struct {
	provider string
	id       string
}

// Registry is a queryable set of Models, keyed by (provider, id). The
// zero value is not usable; construct one with New.
type Registry struct {
	mu     sync.RWMutex
	models map[key]Model
}

// New builds an empty registry.
func New() *Registry {
	return &Registry{models: make(map[key]Model)}
}

// RegisterModel adds or replaces m.
func (r *Registry) RegisterModel(m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[key{m.Provider, m.ID}] = m
}

// UnregisterModel removes a model, reporting whether it was present.
func (r *Registry) UnregisterModel(provider, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{provider, id}
	if _, ok := r.models[k]; !ok {
		return false
	}
	delete(r.models, k)
	return true
}

// GetModel resolves a model by exact id or alias.
func (r *Registry) GetModel(provider, id string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.models[key{provider, id}]; ok {
		return m, true
	}
	for _, m := range r.models {
		if m.Provider != provider {
			continue
		}
		for _, alias := range m.Aliases {
			if alias == id {
				return m, true
			}
		}
	}
	return Model{}, false
}

// GetAllModels returns every registered model.
func (r *Registry) GetAllModels() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	return out
}

// GetModelsForProvider returns every model registered under provider.
func (r *Registry) GetModelsForProvider(provider string) []Model {
	return r.filter(func(m Model) bool { return m.Provider == provider })
}

// GetChatModels returns every chat-type model.
func (r *Registry) GetChatModels() []Model {
	return r.filter(func(m Model) bool { return m.Type == TypeChat })
}

// GetEmbeddingModels returns every embedding-type model.
func (r *Registry) GetEmbeddingModels() []Model {
	return r.filter(func(m Model) bool { return m.Type == TypeEmbedding })
}

// GetModelsWithFeature returns every model for which featureOf reports
// true, e.g. r.GetModelsWithFeature(func(m Model) bool { return m.SupportsVision }).
func (r *Registry) GetModelsWithFeature(featureOf func(Model) bool) []Model {
	return r.filter(featureOf)
}

// GetActiveModels returns every model without a DeprecationDate set.
func (r *Registry) GetActiveModels() []Model {
	return r.filter(func(m Model) bool { return m.DeprecationDate == nil })
}

func (r *Registry) filter(pred func(Model) bool) []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Model
	for _, m := range r.models {
		if pred(m) {
			out = append(out, m)
		}
	}
	return out
}

// GetContextWindow looks up a model's context window, matching the
// validate.Options.ContextWindow callback shape.
func (r *Registry) GetContextWindow(provider, model string) (int, bool) {
	m, ok := r.GetModel(provider, model)
	if !ok {
		return 0, false
	}
	return m.ContextWindow, true
}

// GetModelPricing looks up a model's pricing.
func (r *Registry) GetModelPricing(provider, model string) (Pricing, bool) {
	m, ok := r.GetModel(provider, model)
	if !ok {
		return Pricing{}, false
	}
	return m.Pricing, true
}

// FindModel returns every registered model satisfying every non-zero
// field of req.
func (r *Registry) FindModel(req Requirements) []Model {
	return r.filter(func(m Model) bool {
		if req.Provider != "" && !strings.EqualFold(req.Provider, m.Provider) {
			return false
		}
		if req.Type != "" && req.Type != m.Type {
			return false
		}
		if req.MinContextWindow > 0 && m.ContextWindow < req.MinContextWindow {
			return false
		}
		if req.SupportsVision && !m.SupportsVision {
			return false
		}
		if req.SupportsTools && !m.SupportsTools {
			return false
		}
		if req.SupportsStreaming && !m.SupportsStreaming {
			return false
		}
		if req.SupportsJSONMode && !m.SupportsJSONMode {
			return false
		}
		if req.SupportsReasoning && !m.SupportsReasoning {
			return false
		}
		return true
	})
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide singleton registry, seeded on first
// access.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = New()
		seedDefaults(defaultReg)
	})
	return defaultReg
}

// ResetDefault discards the singleton and reseeds it from scratch — for
// tests that register throwaway models against the shared instance.
func ResetDefault() {
	defaultReg = New()
	seedDefaults(defaultReg)
}
