package middleware

import (
	"context"
	"fmt"
	"regexp"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/byokit/byokit/errs"
	"github.com/byokit/byokit/validate"
)

// Default priorities for the built-in middleware, per §4.9.
const (
	PrioritySanitizing = -1
	PriorityValidation = 0
)

// NameValidation is the reserved name §4.9 gives the built-in Validation
// middleware.
const NameValidation = "builtin:validation"

// NewSanitizing builds the Sanitizing built-in: clamps numeric params,
// floors max_tokens, trims model and string content, ahead of
// Validation.
func NewSanitizing() *Middleware {
	return &Middleware{
		Name:     "builtin:sanitizing",
		Priority: PrioritySanitizing,
		Enabled:  true,
		BeforeRequest: func(req any, _ *Context) (any, error) {
			r, ok := req.(*validate.Request)
			if !ok {
				return req, nil
			}
			return validate.Sanitize(r), nil
		},
	}
}

// NewValidation builds the Validation built-in. In strict mode a failed
// check aborts the request with VALIDATION_ERROR; otherwise it logs a
// warning and lets the request through unchanged.
func NewValidation(opts validate.Options, strict bool, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{
		Name:     NameValidation,
		Priority: PriorityValidation,
		Enabled:  true,
		BeforeRequest: func(req any, ctx *Context) (any, error) {
			r, ok := req.(*validate.Request)
			if !ok {
				return req, nil
			}
			if err := validate.Validate(*r, opts); err != nil {
				if strict {
					return nil, err
				}
				logger.Warn("request failed validation, continuing in non-strict mode",
					zap.String("request_id", ctx.RequestID),
					zap.Error(err))
			}
			return req, nil
		},
	}
}

// NewLogging builds the Logging built-in: structured begin/end lines via
// logger, with an optional character-counted content preview. It never
// logs credentials or full request/response bodies.
func NewLogging(logger *zap.Logger, previewChars int) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{
		Name:    "builtin:logging",
		Enabled: true,
		BeforeRequest: func(req any, ctx *Context) (any, error) {
			fields := []zap.Field{
				zap.String("request_id", ctx.RequestID),
				zap.String("provider", ctx.Provider),
				zap.String("model", ctx.Model),
			}
			if previewChars > 0 {
				if r, ok := req.(*validate.Request); ok {
					fields = append(fields, zap.String("content_preview", preview(r.AllContent(), previewChars)))
				}
			}
			logger.Info("request begin", fields...)
			return req, nil
		},
		AfterResponse: func(resp any, ctx *Context) (any, error) {
			logger.Info("request end",
				zap.String("request_id", ctx.RequestID),
				zap.String("provider", ctx.Provider),
				zap.String("model", ctx.Model))
			return resp, nil
		},
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// NewTimeout builds the Timeout built-in: installs a timer that invokes
// the cancel function stashed in ctx.Data["cancel"] (a context.CancelFunc
// the Orchestrator places there before running the chain) once duration
// elapses. AfterResponse stops the timer before it can fire.
func NewTimeout(duration time.Duration) *Middleware {
	return &Middleware{
		Name:    "builtin:timeout",
		Enabled: true,
		BeforeRequest: func(req any, ctx *Context) (any, error) {
			cancel, _ := ctx.Data["cancel"].(context.CancelFunc)
			timer := time.AfterFunc(duration, func() {
				if cancel != nil {
					cancel()
				}
			})
			ctx.Data["timeout_timer"] = timer
			return req, nil
		},
		AfterResponse: func(resp any, ctx *Context) (any, error) {
			stopTimer(ctx)
			return resp, nil
		},
		OnError: func(err error, ctx *Context) (error, any, bool) {
			stopTimer(ctx)
			return err, nil, false
		},
	}
}

func stopTimer(ctx *Context) {
	if timer, ok := ctx.Data["timeout_timer"].(*time.Timer); ok {
		timer.Stop()
	}
}

// ContentFilterOptions configures NewContentFilter.
type ContentFilterOptions struct {
	BlockedPatterns []*regexp.Regexp
	// LuaScript, if set, must define a global function
	// is_blocked(text) that returns a boolean. It generalizes the
	// regex-only blocklist to arbitrary scripted rules.
	LuaScript string
}

// NewContentFilter builds the Content filter built-in.
func NewContentFilter(opts ContentFilterOptions) *Middleware {
	return &Middleware{
		Name:    "builtin:content_filter",
		Enabled: true,
		BeforeRequest: func(req any, ctx *Context) (any, error) {
			r, ok := req.(*validate.Request)
			if !ok {
				return req, nil
			}
			text := r.AllContent()
			for _, p := range opts.BlockedPatterns {
				if p.MatchString(text) {
					return nil, errs.New(errs.ContentFiltered, r.Provider, "request matched a blocked pattern")
				}
			}
			if opts.LuaScript != "" {
				blocked, err := evalLuaBlock(opts.LuaScript, text)
				if err != nil {
					return nil, err
				}
				if blocked {
					return nil, errs.New(errs.ContentFiltered, r.Provider, "request blocked by content filter script")
				}
			}
			return req, nil
		},
	}
}

func evalLuaBlock(script, text string) (bool, error) {
	L := lua.NewState()
	defer L.Close()

	if err := L.DoString(script); err != nil {
		return false, errs.Wrap(errs.MiddlewareError, "", "evaluating content filter script", err)
	}

	fn := L.GetGlobal("is_blocked")
	if fn.Type() != lua.LTFunction {
		return false, errs.New(errs.MiddlewareError, "", "content filter script must define is_blocked(text)")
	}

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LString(text)); err != nil {
		return false, errs.Wrap(errs.MiddlewareError, "", "calling content filter script", err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(ret), nil
}

// NewFallback builds the Fallback built-in: on a retryable or
// REQUEST_FAILED error, records shouldFallback plus the target
// provider/model in the context for the Orchestrator to inspect after
// the chain runs. targets maps a request's originating provider to the
// provider/model pair to retry against; a provider absent from targets
// is left alone (no fallback hint is set).
func NewFallback(targets map[string]FallbackTarget) *Middleware {
	return &Middleware{
		Name:    "builtin:fallback",
		Enabled: true,
		OnError: func(err error, ctx *Context) (error, any, bool) {
			e, ok := errs.As(err)
			if !ok || (!e.CanRetry() && e.Kind != errs.RequestFailed) {
				return err, nil, false
			}
			target, ok := targets[ctx.Provider]
			if !ok {
				return err, nil, false
			}
			ctx.Data["shouldFallback"] = true
			ctx.Data["fallbackProvider"] = target.Provider
			ctx.Data["fallbackModel"] = target.Model
			return err, nil, false
		},
	}
}

// FallbackTarget names the provider/model a request should be retried
// against when its originating provider fails.
type FallbackTarget struct {
	Provider string
	Model    string
}

// MetricsRecorder is the subset of Chain's Metrics built-in that talks to
// Prometheus, split out so it can be constructed once and shared if the
// caller wants to register its collectors centrally.
type MetricsRecorder struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetricsRecorder registers byokit's request counters and duration
// histogram with reg.
func NewMetricsRecorder(reg prometheus.Registerer) *MetricsRecorder {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "byokit_requests_total",
		Help: "Total number of byokit requests, by provider, model, and outcome.",
	}, []string{"provider", "model", "success"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "byokit_request_duration_seconds",
		Help: "byokit request latency in seconds, by provider and model.",
	}, []string{"provider", "model"})
	reg.MustRegister(requests, duration)
	return &MetricsRecorder{requests: requests, duration: duration}
}

// NewMetrics builds the Metrics built-in: records a begin timestamp, and
// on completion or error emits one counter increment plus one duration
// observation.
func NewMetrics(rec *MetricsRecorder) *Middleware {
	return &Middleware{
		Name:    "builtin:metrics",
		Enabled: true,
		BeforeRequest: func(req any, ctx *Context) (any, error) {
			ctx.Data["metrics_begin"] = time.Now()
			return req, nil
		},
		AfterResponse: func(resp any, ctx *Context) (any, error) {
			rec.record(ctx, true)
			return resp, nil
		},
		OnError: func(err error, ctx *Context) (error, any, bool) {
			rec.record(ctx, false)
			return err, nil, false
		},
	}
}

func (r *MetricsRecorder) record(ctx *Context, success bool) {
	begin, ok := ctx.Data["metrics_begin"].(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(begin).Seconds()
	r.requests.WithLabelValues(ctx.Provider, ctx.Model, fmt.Sprintf("%t", success)).Inc()
	r.duration.WithLabelValues(ctx.Provider, ctx.Model).Observe(elapsed)
}

// NewRetryHint builds the Retry hint built-in: records retry intent in
// the context for the Orchestrator. Actual backoff happens in the Retry
// Engine, not here.
func NewRetryHint() *Middleware {
	return &Middleware{
		Name:    "builtin:retry_hint",
		Enabled: true,
		OnError: func(err error, ctx *Context) (error, any, bool) {
			if e, ok := errs.As(err); ok && e.CanRetry() {
				ctx.Data["retryHint"] = true
			}
			return err, nil, false
		},
	}
}
