// Package byokit is a client-resident, multi-provider BYOK (bring your
// own key) access library: a caller supplies its own provider API keys
// and this package handles credential storage, request validation,
// caching, deduplication, rate limiting, retries, circuit breaking, and
// usage accounting around a small set of wire adapters (C11).
package byokit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/byokit/byokit/breaker"
	"github.com/byokit/byokit/cache"
	"github.com/byokit/byokit/config"
	"github.com/byokit/byokit/dedup"
	"github.com/byokit/byokit/errs"
	"github.com/byokit/byokit/events"
	"github.com/byokit/byokit/keystore"
	"github.com/byokit/byokit/middleware"
	"github.com/byokit/byokit/provider"
	"github.com/byokit/byokit/ratelimit"
	"github.com/byokit/byokit/registry"
	"github.com/byokit/byokit/retry"
	"github.com/byokit/byokit/usage"
	"github.com/byokit/byokit/validate"
)

// Orchestrator (C13) is the public entry point: it owns every singleton
// component and exposes the pipeline operations described at the
// package level. The zero value is not usable; construct one with New.
type Orchestrator struct {
	cfg    config.Config
	logger *zap.Logger

	bus       *events.Bus
	keys      *keystore.Store
	respCache *cache.Cache
	coalescer *dedup.Coalescer
	chain     *middleware.Chain
	breakers  *breaker.Registry
	limiter   *ratelimit.Limiter
	ledger    *usage.Ledger
	estimator *usage.Estimator
	modelReg  *registry.Registry

	providerDeps provider.Deps

	adaptersMu sync.Mutex
	adapters   map[string]provider.Provider

	mu          sync.Mutex
	destroyed   bool
	outstanding map[string]context.CancelFunc
}

// BatchResult is one Batch outcome, in the same order as the submitted
// request slice regardless of completion order.
type BatchResult struct {
	Response *provider.ChatResponse
	Err      error
}

// New builds an Orchestrator from opts. The key store backend, the cache
// backend, and the rate limiter are all constructed eagerly;
// individual provider adapters are constructed lazily on first use.
func New(opts ...Option) (*Orchestrator, error) {
	o := buildOptions(opts...)

	bus := o.bus
	if bus == nil {
		bus = events.New()
	}

	modelReg := o.modelRegistry
	if modelReg == nil {
		modelReg = registry.Default()
	}

	backend := keystore.ResolveBackend(
		keystore.BackendKind(o.cfg.KeyStorage.Type),
		keystore.BackendConfig{
			FilePath:    o.cfg.KeyStorage.FilePath,
			Scope:       o.cfg.KeyStorage.Prefix,
			RedisClient: o.redisClient,
			RedisNS:     o.cfg.KeyStorage.Prefix,
		},
		bus, o.logger,
	)
	storeOpts := []keystore.StoreOption{keystore.WithEventBus(bus), keystore.WithLogger(o.logger)}
	if o.cfg.KeyStorage.Encrypt && o.cfg.KeyStorage.EncryptionKey != "" {
		storeOpts = append(storeOpts, keystore.WithEncryption(o.cfg.KeyStorage.EncryptionKey))
	}
	keys := keystore.NewStore(backend, storeOpts...)

	breakers := breaker.NewRegistry(breaker.Config{}, o.logger)

	limiter := ratelimit.New(buildRateLimitConfig(o.cfg), ratelimit.WithEventBus(bus), ratelimit.WithLogger(o.logger))

	var respCache *cache.Cache
	if o.cfg.Cache.Enabled {
		respCache = buildCache(o.cfg.Cache, o.redisClient, bus)
	}

	var coalescer *dedup.Coalescer
	if o.cfg.DeduplicateRequests {
		coalescer = dedup.New()
	}

	ledger := usage.New(modelReg)
	estimator := usage.NewEstimator()

	chain := buildMiddlewareChain(o.cfg, o.logger, o.metricsRegisterer, modelReg)

	orch := &Orchestrator{
		cfg:       o.cfg,
		logger:    o.logger,
		bus:       bus,
		keys:      keys,
		respCache: respCache,
		coalescer: coalescer,
		chain:     chain,
		breakers:  breakers,
		limiter:   limiter,
		ledger:    ledger,
		estimator: estimator,
		modelReg:  modelReg,
		providerDeps: provider.Deps{
			Client:   o.httpClient,
			Keys:     keys,
			Breakers: breakers,
			Bus:      bus,
			Logger:   o.logger,
			RetryOpts: retry.Options{
				MaxRetries: o.cfg.DefaultMaxRetries,
			},
		},
		adapters:    make(map[string]provider.Provider),
		outstanding: make(map[string]context.CancelFunc),
	}
	return orch, nil
}

func buildRateLimitConfig(cfg config.Config) ratelimit.Config {
	strategy := ratelimit.SlidingWindow
	switch cfg.RateLimit.Strategy {
	case "fixed":
		strategy = ratelimit.FixedWindow
	case "token_bucket":
		strategy = ratelimit.TokenBucket
	}
	rc := ratelimit.Config{
		Strategy: strategy,
		Global: ratelimit.Limits{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			TokensPerMinute:   cfg.RateLimit.TokensPerMinute,
			MaxConcurrent:     cfg.RateLimit.MaxConcurrent,
		},
		PerProvider: make(map[string]ratelimit.Limits),
	}
	for name, p := range cfg.Providers {
		if p.RateLimit == nil {
			continue
		}
		rc.PerProvider[name] = ratelimit.Limits{
			RequestsPerMinute: p.RateLimit.RequestsPerMinute,
			TokensPerMinute:   p.RateLimit.TokensPerMinute,
			MaxConcurrent:     p.RateLimit.MaxConcurrent,
		}
	}
	return rc
}

func buildCache(cfg config.CacheConfig, redisClient *redis.Client, bus *events.Bus) *cache.Cache {
	var backend cache.Backend
	if cfg.Storage == "indexedDB" && redisClient != nil {
		ttl := cfg.TTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		backend = cache.NewRedisBackend(redisClient, "byokit:cache:", ttl)
	} else {
		backend = cache.NewMemoryBackend(cfg.MaxEntries, cfg.MaxSize)
	}
	cacheOpts := []cache.Option{cache.WithEventBus(bus)}
	if cfg.TTL > 0 {
		cacheOpts = append(cacheOpts, cache.WithTTL(cfg.TTL))
	}
	if cfg.Compress {
		cacheOpts = append(cacheOpts, cache.WithCompression())
	}
	return cache.New(backend, cacheOpts...)
}

func buildMiddlewareChain(cfg config.Config, logger *zap.Logger, metricsReg prometheus.Registerer, modelReg *registry.Registry) *middleware.Chain {
	chain := middleware.New()
	chain.Use(middleware.NewSanitizing())
	if !cfg.DisableValidation {
		vopts := validate.Options{
			ContextWindow: modelReg.GetContextWindow,
		}
		chain.Use(middleware.NewValidation(vopts, true, logger))
	}
	var metricsRecorder *middleware.MetricsRecorder
	if metricsReg != nil {
		metricsRecorder = middleware.NewMetricsRecorder(metricsReg)
	}
	for _, name := range cfg.Middleware {
		switch name {
		case "logging":
			chain.Use(middleware.NewLogging(logger, 80))
		case "timeout":
			chain.Use(middleware.NewTimeout(cfg.DefaultTimeout))
		case "fallback":
			chain.Use(middleware.NewFallback(fallbackTargets(cfg.Fallbacks)))
		case "retry_hint":
			chain.Use(middleware.NewRetryHint())
		case "metrics":
			if metricsRecorder != nil {
				chain.Use(middleware.NewMetrics(metricsRecorder))
			}
		}
	}
	return chain
}

func fallbackTargets(cfg map[string]config.FallbackTarget) map[string]middleware.FallbackTarget {
	targets := make(map[string]middleware.FallbackTarget, len(cfg))
	for provider, t := range cfg {
		targets[provider] = middleware.FallbackTarget{Provider: t.Provider, Model: t.Model}
	}
	return targets
}

// SetKey stores a single credential for provider.
func (o *Orchestrator) SetKey(ctx context.Context, providerName, key string) error {
	if err := o.checkAlive(); err != nil {
		return err
	}
	return o.keys.Set(ctx, providerName, key, 0)
}

// SetKeys stores credentials for every (provider, key) pair in keys.
func (o *Orchestrator) SetKeys(ctx context.Context, keys map[string]string) error {
	if err := o.checkAlive(); err != nil {
		return err
	}
	for providerName, key := range keys {
		if err := o.keys.Set(ctx, providerName, key, 0); err != nil {
			return err
		}
	}
	return nil
}

// RemoveKey deletes the stored credential for provider, if any.
func (o *Orchestrator) RemoveKey(ctx context.Context, providerName string) error {
	if err := o.checkAlive(); err != nil {
		return err
	}
	return o.keys.Remove(ctx, providerName)
}

// RotateKey replaces the stored credential for provider with newKey,
// returning the fingerprints of the old and new keys (old empty if
// provider had no prior credential).
func (o *Orchestrator) RotateKey(ctx context.Context, providerName, newKey string) (oldFingerprint, newFingerprint string, err error) {
	if err := o.checkAlive(); err != nil {
		return "", "", err
	}
	return o.keys.Rotate(ctx, providerName, newKey, 0)
}

func (o *Orchestrator) checkAlive() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed {
		return errs.New(errs.ValidationError, "", "orchestrator has been destroyed")
	}
	return nil
}

// adapterFor lazily constructs (and caches) the provider.Provider for
// providerName, applying any per-provider base URL / retry overrides
// from config.
func (o *Orchestrator) adapterFor(providerName string) provider.Provider {
	o.adaptersMu.Lock()
	defer o.adaptersMu.Unlock()
	if a, ok := o.adapters[providerName]; ok {
		return a
	}
	deps := o.providerDeps
	if override, ok := o.cfg.Providers[providerName]; ok && override.MaxRetries > 0 {
		deps.RetryOpts.MaxRetries = override.MaxRetries
	}
	baseURL := ""
	if override, ok := o.cfg.Providers[providerName]; ok {
		baseURL = override.BaseURL
	}
	a := provider.New(providerName, baseURL, deps)
	o.adapters[providerName] = a
	return a
}

// effectiveTimeout picks min(global default, provider override, per-call
// override), per §5's timeout rule.
func (o *Orchestrator) effectiveTimeout(providerName string, override time.Duration) time.Duration {
	result := o.cfg.DefaultTimeout
	if p, ok := o.cfg.Providers[providerName]; ok && p.Timeout > 0 && p.Timeout < result {
		result = p.Timeout
	}
	if override > 0 && override < result {
		result = override
	}
	return result
}

// register tracks an in-flight request's cancel func so Destroy can
// cascade cancellation, and returns a cleanup func to deregister it.
func (o *Orchestrator) register(requestID string, cancel context.CancelFunc) func() {
	o.mu.Lock()
	o.outstanding[requestID] = cancel
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.outstanding, requestID)
		o.mu.Unlock()
	}
}

func (o *Orchestrator) estimateTokens(req *validate.Request) int {
	return o.estimator.Estimate(req.AllContent())
}

// Destroy cancels every outstanding request and stream, closes the key
// store's persistent handles, clears the cache, and detaches all event
// listeners. After Destroy returns, every other method fails with
// VALIDATION_ERROR.
func (o *Orchestrator) Destroy(ctx context.Context) error {
	o.mu.Lock()
	if o.destroyed {
		o.mu.Unlock()
		return nil
	}
	o.destroyed = true
	cancels := make([]context.CancelFunc, 0, len(o.outstanding))
	for _, c := range o.outstanding {
		cancels = append(cancels, c)
	}
	o.outstanding = make(map[string]context.CancelFunc)
	o.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	if o.respCache != nil {
		_ = o.respCache.Clear(ctx)
	}
	if err := o.keys.Destroy(ctx); err != nil {
		return err
	}
	_ = o.estimator.Close()
	o.bus.RemoveAllListeners()
	return nil
}

// --- event subscription facade ---

// On subscribes l to events of kind, returning a listener id usable with Off.
// A kind already at its hard cap yields VALIDATION_ERROR.
func (o *Orchestrator) On(kind events.Kind, l events.Listener) (int, error) {
	id, err := o.bus.On(kind, l)
	if err != nil {
		return 0, errs.Wrap(errs.ValidationError, "", "subscribing event listener", err)
	}
	return id, nil
}

// OnAll subscribes l to every event kind.
func (o *Orchestrator) OnAll(l events.Listener) (int, error) {
	id, err := o.bus.OnAll(l)
	if err != nil {
		return 0, errs.Wrap(errs.ValidationError, "", "subscribing event listener", err)
	}
	return id, nil
}

// Off unsubscribes the listener id previously returned by On for kind.
func (o *Orchestrator) Off(kind events.Kind, id int) bool {
	return o.bus.Off(kind, id)
}

// RemoveAllListeners detaches every subscriber from every event kind.
func (o *Orchestrator) RemoveAllListeners() {
	o.bus.RemoveAllListeners()
}

// SetMaxListeners reconfigures the soft-warning and hard-cap listener
// counts per event kind.
func (o *Orchestrator) SetMaxListeners(softWarnAt, hardCap int) {
	o.bus.SetMaxListeners(softWarnAt, hardCap)
}

// --- middleware management facade ---

// Use registers m in the middleware chain.
func (o *Orchestrator) Use(m *middleware.Middleware) {
	o.chain.Use(m)
}

// Remove deletes the middleware named name, reporting whether it was present.
func (o *Orchestrator) Remove(name string) bool {
	return o.chain.Remove(name)
}

// --- usage + model registry facade ---

// GetUsageStats returns a snapshot of accumulated totals and per-model
// breakdown recorded by the Usage Ledger.
func (o *Orchestrator) GetUsageStats() (usage.Totals, []usage.ModelBreakdown) {
	return o.ledger.Totals(), o.ledger.ByModel()
}

// ListModels returns providerName's live model list; if the adapter has
// none (or the call fails), it falls back to the Model Registry's
// catalog for that provider.
func (o *Orchestrator) ListModels(ctx context.Context, providerName string) ([]provider.ModelInfo, error) {
	if err := o.checkAlive(); err != nil {
		return nil, err
	}
	adapter := o.adapterFor(providerName)
	if list, err := adapter.ListModels(ctx); err == nil {
		return list, nil
	}
	models := o.modelReg.GetModelsForProvider(providerName)
	out := make([]provider.ModelInfo, 0, len(models))
	for _, m := range models {
		out = append(out, provider.ModelInfo{ID: m.ID, Provider: m.Provider})
	}
	return out, nil
}

// BreakerStates returns the current Circuit Breaker state for every
// provider that has been dispatched to at least once, keyed by provider
// name. Providers never touched are absent, not reported as Closed.
func (o *Orchestrator) BreakerStates() map[string]string {
	states := make(map[string]string)
	for provider, state := range o.breakers.Snapshot() {
		states[provider] = state.String()
	}
	return states
}

// Alive reports whether Destroy has been called. The statusserver uses
// this for its liveness probe.
func (o *Orchestrator) Alive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.destroyed
}

// KnownModels returns every model the Model Registry knows about,
// regardless of provider.
func (o *Orchestrator) KnownModels() []registry.Model {
	return o.modelReg.GetAllModels()
}

// fingerprintOf hashes the cacheable subset of req.
func fingerprintOf(req *validate.Request) (string, error) {
	in := cache.FingerprintInput{
		Provider:         req.Provider,
		Model:            req.Model,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxTokens:        req.MaxTokens,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
		Stop:             req.Stop,
		Seed:             req.Seed,
	}
	for _, m := range req.Messages {
		in.Messages = append(in.Messages, cache.Message{Role: m.Role, Content: m.Content})
	}
	if len(req.Tools) > 0 {
		in.Tools = req.Tools
	}
	if req.ResponseFormat != nil {
		in.ResponseFormat = req.ResponseFormat.Type
	}
	return cache.Fingerprint(in)
}

