package statusserver

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// handleHealth responds with liveness plus a quick per-provider circuit
// breaker summary, so a caller can tell "up" from "up but every provider
// is tripped" without a second request.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	alive := s.src.Alive()
	if !alive {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	s.encode(w, map[string]any{
		"status":   statusOf(alive),
		"breakers": s.src.BreakerStates(),
	})
}

func statusOf(alive bool) string {
	if alive {
		return "ok"
	}
	return "destroyed"
}

// handleUsage reports the Usage Ledger's accumulated totals and
// per-model breakdown.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	totals, byModel := s.src.GetUsageStats()
	w.Header().Set("Content-Type", "application/json")
	s.encode(w, map[string]any{
		"totals":  totals,
		"byModel": byModel,
	})
}

// handleModels reports every model the Model Registry knows about.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.encode(w, map[string]any{
		"models": s.src.KnownModels(),
	})
}

// handleBreakers reports the Circuit Breaker state of every provider
// dispatched to so far.
func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.encode(w, s.src.BreakerStates())
}

func (s *Server) encode(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("statusserver: failed to encode response", zap.Error(err))
	}
}
