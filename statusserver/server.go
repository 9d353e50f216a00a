// Package statusserver is an optional, loopback-only HTTP surface for
// introspecting a running Orchestrator: liveness, accumulated usage,
// known models, and circuit breaker state. It never originates or
// proxies an LLM call — every response is built from state the
// Orchestrator already accumulated in-process.
package statusserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/byokit/byokit/registry"
	"github.com/byokit/byokit/usage"
)

// Source is the subset of *byokit.Orchestrator the status server reads
// from. Defined here, rather than importing the byokit root package
// directly, so a test double can stand in without constructing a real
// Orchestrator.
type Source interface {
	Alive() bool
	GetUsageStats() (usage.Totals, []usage.ModelBreakdown)
	KnownModels() []registry.Model
	BreakerStates() map[string]string
}

// Server holds the HTTP router and the Orchestrator it reports on.
type Server struct {
	router     chi.Router
	src        Source
	logger     *zap.Logger
	metricsReg *prometheus.Registry
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger attaches a logger used to report response-encoding failures.
// Request lines come from chimw.Logger, which does not use it.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetricsRegistry serves reg's collectors at /metrics. Without this
// option, /metrics responds 404 rather than exposing the default global
// registry, keeping the sidecar's surface explicit.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.metricsReg = reg }
}

// New builds a Server wired to src, ready to use as an http.Handler.
func New(src Source, opts ...Option) *Server {
	s := &Server{src: src, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{http.MethodGet},
		AllowCredentials: false,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/usage", s.handleUsage)
	r.Get("/models", s.handleModels)
	r.Get("/breakers", s.handleBreakers)
	if s.metricsReg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metricsReg, promhttp.HandlerOpts{}))
	}

	s.router = r
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenLoopback builds an *http.Server bound to 127.0.0.1:port. Only the
// port is caller-chosen, so the address is always loopback. It does not
// start the server; the caller runs ListenAndServe on the result. This
// sidecar is for local introspection only.
func ListenLoopback(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:    "127.0.0.1:" + port,
		Handler: handler,
	}
}
