package keystore

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/byokit/byokit/events"
)

// BackendConfig carries the construction parameters for whichever
// BackendKind is requested. Only the fields relevant to the chosen kind are
// read; the rest are ignored.
type BackendConfig struct {
	FilePath      string // BackendLocalStorage
	Scope         string // BackendSessionStorage
	RedisClient   *redis.Client
	RedisNS       string // BackendIndexedDB
}

// ResolveBackend builds the requested backend and, on any construction
// failure, falls back to an in-process MemoryBackend while emitting a
// security:warning event — per §4.3: "The chooser must fall back to
// Ephemeral with a security:warning event" rather than surface a
// constructor error to the caller.
func ResolveBackend(kind BackendKind, cfg BackendConfig, bus *events.Bus, logger *zap.Logger) Backend {
	if logger == nil {
		logger = zap.NewNop()
	}

	fallback := func(reason string, err error) Backend {
		logger.Warn("key store backend unavailable, falling back to memory",
			zap.String("requested_backend", string(kind)),
			zap.String("reason", reason),
			zap.Error(err))
		if bus != nil {
			bus.Emit(events.Event{
				Kind: events.SecurityWarning,
				Data: map[string]any{
					"requested_backend": string(kind),
					"reason":            reason,
				},
			})
		}
		return NewMemoryBackend()
	}

	switch kind {
	case BackendMemory:
		return NewMemoryBackend()

	case BackendLocalStorage:
		if cfg.FilePath == "" {
			return fallback("no file path configured for localStorage backend", nil)
		}
		fb, err := NewFileBackend(cfg.FilePath)
		if err != nil {
			return fallback("opening localStorage file failed", err)
		}
		return fb

	case BackendSessionStorage:
		if cfg.FilePath == "" {
			// No durable path configured: a scoped backend over an
			// in-process map still gives scope isolation semantics, just
			// without surviving a process restart.
			return NewScopedBackend(NewMemoryBackend(), cfg.Scope)
		}
		fb, err := NewFileBackend(cfg.FilePath)
		if err != nil {
			return fallback("opening sessionStorage file failed", err)
		}
		return NewScopedBackend(fb, cfg.Scope)

	case BackendIndexedDB:
		if cfg.RedisClient == nil {
			return fallback("no redis client configured for indexedDB backend", nil)
		}
		return NewRedisBackend(cfg.RedisClient, cfg.RedisNS)

	default:
		return fallback("unrecognized backend kind", nil)
	}
}
