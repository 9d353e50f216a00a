package byokit

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/byokit/byokit/config"
	"github.com/byokit/byokit/events"
	"github.com/byokit/byokit/registry"
)

// options collects every constructor-time setting the Orchestrator
// reads while wiring its components. Built up by applying Option values
// over zero-valued defaults, then completed with config.Config.WithDefaults
// semantics.
type options struct {
	cfg config.Config

	logger            *zap.Logger
	bus               *events.Bus
	modelRegistry     *registry.Registry
	httpClient        *http.Client
	redisClient       *redis.Client
	metricsRegisterer prometheus.Registerer
}

// Option configures the Orchestrator at construction time.
type Option func(*options)

// FromConfig seeds the Orchestrator from a loaded config.Config (see the
// config package for how one is produced from a file + environment).
func FromConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger overrides the default no-op zap logger threaded through
// every component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEventBus supplies a pre-built event bus instead of letting New
// construct one from the default listener caps.
func WithEventBus(bus *events.Bus) Option {
	return func(o *options) { o.bus = bus }
}

// WithModelRegistry supplies a pre-populated Model Registry. Without
// this option New uses registry.Default(), the process-wide registry
// seeded with the built-in model table (see registry/seed.go).
func WithModelRegistry(reg *registry.Registry) Option {
	return func(o *options) { o.modelRegistry = reg }
}

// WithHTTPClient overrides the *http.Client every provider adapter
// shares. Mainly useful for tests (httptest servers, recorded
// cassettes).
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithRedisClient supplies a shared Redis client for the indexedDB key
// store backend and the Redis cache backend — whichever of those a Config
// turns on. The rate limiter does not use it.
func WithRedisClient(client *redis.Client) Option {
	return func(o *options) { o.redisClient = client }
}

// WithMetricsRegisterer attaches the Metrics built-in middleware to reg
// instead of leaving metrics collection off.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.metricsRegisterer = reg }
}

// WithDefaultTimeout is a convenience Option for setting
// Config.DefaultTimeout without going through config.Load.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) { o.cfg.DefaultTimeout = d }
}

// WithDefaultMaxRetries is a convenience Option mirroring
// WithDefaultTimeout for Config.DefaultMaxRetries.
func WithDefaultMaxRetries(n int) Option {
	return func(o *options) { o.cfg.DefaultMaxRetries = n }
}

func buildOptions(opts ...Option) options {
	o := options{}
	for _, apply := range opts {
		apply(&o)
	}
	o.cfg = o.cfg.WithDefaults()
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.httpClient == nil {
		o.httpClient = http.DefaultClient
	}
	return o
}
