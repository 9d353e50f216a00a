package statusserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byokit/byokit/registry"
	"github.com/byokit/byokit/usage"
)

type fakeSource struct {
	alive    bool
	totals   usage.Totals
	byModel  []usage.ModelBreakdown
	models   []registry.Model
	breakers map[string]string
}

func (f fakeSource) Alive() bool { return f.alive }
func (f fakeSource) GetUsageStats() (usage.Totals, []usage.ModelBreakdown) {
	return f.totals, f.byModel
}
func (f fakeSource) KnownModels() []registry.Model    { return f.models }
func (f fakeSource) BreakerStates() map[string]string { return f.breakers }

func TestHandleHealth_AliveReportsOK(t *testing.T) {
	src := fakeSource{alive: true, breakers: map[string]string{"openai": "closed"}}
	srv := New(src)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleHealth_DestroyedReports503(t *testing.T) {
	src := fakeSource{alive: false, breakers: map[string]string{}}
	srv := New(src)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleUsage_ReportsTotalsAndBreakdown(t *testing.T) {
	src := fakeSource{
		alive:   true,
		totals:  usage.Totals{Requests: 3, InputTokens: 100, OutputTokens: 50, TotalTokens: 150},
		byModel: []usage.ModelBreakdown{{Provider: "openai", Model: "gpt-4o", Requests: 3}},
	}
	srv := New(src)

	req := httptest.NewRequest(http.MethodGet, "/usage", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	totals := body["totals"].(map[string]any)
	assert.Equal(t, float64(3), totals["Requests"])
}

func TestHandleModels_ReportsRegistryContents(t *testing.T) {
	src := fakeSource{alive: true, models: []registry.Model{{Provider: "anthropic", ID: "claude-3-haiku-20240307"}}}
	srv := New(src)

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "claude-3-haiku-20240307")
}

func TestHandleBreakers_ReportsStates(t *testing.T) {
	src := fakeSource{alive: true, breakers: map[string]string{"openai": "open"}}
	srv := New(src)

	req := httptest.NewRequest(http.MethodGet, "/breakers", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "open", body["openai"])
}

func TestMetrics_AbsentWithoutRegistry(t *testing.T) {
	src := fakeSource{alive: true, breakers: map[string]string{}}
	srv := New(src)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
