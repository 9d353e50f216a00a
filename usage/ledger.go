// Package usage implements the Usage Ledger (C14): per-call token and
// cost accounting against the Model Registry's static price table.
package usage

import (
	"sync"

	"github.com/byokit/byokit/registry"
)

// Call is one recorded completion.
type Call struct {
	Provider       string
	Model          string
	InputTokens    int
	OutputTokens   int
	EstimatedCost  float64
}

// ModelBreakdown aggregates every recorded call for one model.
type ModelBreakdown struct {
	Provider      string
	Model         string
	InputTokens   int
	OutputTokens  int
	Requests      int
	EstimatedCost float64
}

// Totals aggregates every recorded call across all models.
type Totals struct {
	InputTokens   int
	OutputTokens  int
	TotalTokens   int
	Requests      int
	EstimatedCost float64
}

// Ledger accumulates Calls and exposes totals and a per-model breakdown.
type Ledger struct {
	mu     sync.Mutex
	reg    *registry.Registry
	totals Totals
	byModel map[string]*ModelBreakdown
}

// New builds an empty Ledger. reg supplies per-model pricing; pass
// registry.Default() unless the caller maintains its own registry.
func New(reg *registry.Registry) *Ledger {
	return &Ledger{reg: reg, byModel: make(map[string]*ModelBreakdown)}
}

// Record adds one completed call's token counts, pricing it from the
// registry when available (an unknown model contributes tokens but no
// cost).
func (l *Ledger) Record(provider, model string, inputTokens, outputTokens int) Call {
	cost := l.estimateCost(provider, model, inputTokens, outputTokens)
	call := Call{Provider: provider, Model: model, InputTokens: inputTokens, OutputTokens: outputTokens, EstimatedCost: cost}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.totals.InputTokens += inputTokens
	l.totals.OutputTokens += outputTokens
	l.totals.TotalTokens += inputTokens + outputTokens
	l.totals.Requests++
	l.totals.EstimatedCost += cost

	key := provider + "/" + model
	b, ok := l.byModel[key]
	if !ok {
		b = &ModelBreakdown{Provider: provider, Model: model}
		l.byModel[key] = b
	}
	b.InputTokens += inputTokens
	b.OutputTokens += outputTokens
	b.Requests++
	b.EstimatedCost += cost

	return call
}

func (l *Ledger) estimateCost(provider, model string, inputTokens, outputTokens int) float64 {
	if l.reg == nil {
		return 0
	}
	pricing, ok := l.reg.GetModelPricing(provider, model)
	if !ok {
		return 0
	}
	const perMillion = 1_000_000.0
	return (float64(inputTokens)*pricing.Input + float64(outputTokens)*pricing.Output) / perMillion
}

// Totals returns the running aggregate across every recorded call.
func (l *Ledger) Totals() Totals {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals
}

// ByModel returns a snapshot of the per-model breakdown.
func (l *Ledger) ByModel() []ModelBreakdown {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ModelBreakdown, 0, len(l.byModel))
	for _, b := range l.byModel {
		out = append(out, *b)
	}
	return out
}

// Reset discards every recorded call.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totals = Totals{}
	l.byModel = make(map[string]*ModelBreakdown)
}
