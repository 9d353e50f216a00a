package byokit

import (
	"context"
	"sync"

	"github.com/byokit/byokit/errs"
	"github.com/byokit/byokit/events"
	"github.com/byokit/byokit/middleware"
	"github.com/byokit/byokit/provider"
	"github.com/byokit/byokit/validate"
)

// Chat runs the full C13 pipeline: sanitize/validate, cache lookup,
// dedup coalescing, rate-limit acquisition, the adapter call (itself
// wrapped in retry + circuit breaker by the adapter's BaseProvider), and
// usage accounting.
func (o *Orchestrator) Chat(ctx context.Context, req *validate.Request) (*provider.ChatResponse, error) {
	return o.chat(ctx, req, true)
}

// chat is Chat's implementation. allowFallback is false on the single
// retry tryFallback issues, so a fallback target that itself fails
// never chains into a second fallback (guards against an A-to-B,
// B-to-A fallback cycle looping forever).
func (o *Orchestrator) chat(ctx context.Context, req *validate.Request, allowFallback bool) (*provider.ChatResponse, error) {
	if err := o.checkAlive(); err != nil {
		return nil, err
	}

	adapter := o.adapterFor(req.Provider)
	requestID := adapter.RequestID()

	ctx, cancel := context.WithTimeout(ctx, o.effectiveTimeout(req.Provider, 0))
	defer cancel()
	unregister := o.register(requestID, cancel)
	defer unregister()

	mctx := middleware.NewContext(requestID, req.Provider, req.Model)
	mctx.Data["cancel"] = cancel

	resp, err := o.runChatPipeline(ctx, req, adapter, mctx)
	if err != nil && allowFallback {
		return o.tryFallback(ctx, req, mctx, err)
	}
	return resp, err
}

// tryFallback restarts the pipeline once, against the provider/model the
// Fallback middleware stashed in mctx.Data, when that middleware flagged
// the original failure as fallback-eligible. The retry itself runs with
// allowFallback=false, so it never triggers a second fallback.
func (o *Orchestrator) tryFallback(ctx context.Context, req *validate.Request, mctx *middleware.Context, original error) (*provider.ChatResponse, error) {
	should, _ := mctx.Data["shouldFallback"].(bool)
	fbProvider, hasProvider := mctx.Data["fallbackProvider"].(string)
	fbModel, hasModel := mctx.Data["fallbackModel"].(string)
	if !should || !hasProvider || !hasModel {
		return nil, original
	}
	retryReq := *req
	retryReq.Provider = fbProvider
	retryReq.Model = fbModel
	return o.chat(ctx, &retryReq, false)
}

func (o *Orchestrator) runChatPipeline(ctx context.Context, req *validate.Request, adapter provider.Provider, mctx *middleware.Context) (*provider.ChatResponse, error) {
	transformed, err := o.chain.RunBeforeRequest(req, mctx)
	if err != nil {
		return o.settleError(err, mctx)
	}
	sanitized := transformed.(*validate.Request)

	fingerprint := ""
	if o.respCache != nil {
		var fpErr error
		fingerprint, fpErr = fingerprintOf(sanitized)
		if fpErr == nil {
			if raw, hit, getErr := o.respCache.Get(ctx, fingerprint); getErr == nil && hit {
				resp, decodeErr := decodeChatResponse(raw)
				if decodeErr == nil {
					return o.afterSuccess(resp, mctx)
				}
			}
		}
	}

	release, err := o.limiter.Acquire(ctx, sanitized.Provider, o.estimateTokens(sanitized))
	if err != nil {
		return o.settleError(err, mctx)
	}
	defer release()

	call := func() (any, error) { return adapter.Chat(ctx, sanitized) }

	var raw any
	if o.coalescer != nil && fingerprint != "" {
		raw, _, err = o.coalescer.Do(fingerprint, call)
	} else {
		raw, err = call()
	}
	if err != nil {
		return o.settleError(err, mctx)
	}
	resp := raw.(*provider.ChatResponse)

	if o.respCache != nil && fingerprint != "" {
		if encoded, encErr := encodeChatResponse(resp); encErr == nil {
			_ = o.respCache.Set(ctx, fingerprint, sanitized.Provider, sanitized.Model, encoded)
		}
	}
	if resp.Usage != nil {
		o.ledger.Record(resp.Provider, resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return o.afterSuccess(resp, mctx)
}

func (o *Orchestrator) afterSuccess(resp *provider.ChatResponse, mctx *middleware.Context) (*provider.ChatResponse, error) {
	transformed, err := o.chain.RunAfterResponse(resp, mctx)
	if err != nil {
		return o.settleError(err, mctx)
	}
	return transformed.(*provider.ChatResponse), nil
}

func (o *Orchestrator) settleError(err error, mctx *middleware.Context) (*provider.ChatResponse, error) {
	finalErr, recovered, shortCircuit := o.chain.RunOnError(err, mctx)
	if shortCircuit {
		if resp, ok := recovered.(*provider.ChatResponse); ok {
			return resp, nil
		}
	}
	return nil, finalErr
}

// ChatStream runs the same prefix as Chat (middleware, rate limiting)
// but bypasses cache and dedup, then wraps the adapter's stream to
// record usage on completion.
func (o *Orchestrator) ChatStream(ctx context.Context, req *validate.Request) (<-chan provider.StreamEvent, error) {
	if err := o.checkAlive(); err != nil {
		return nil, err
	}

	adapter := o.adapterFor(req.Provider)
	requestID := adapter.RequestID()

	ctx, cancel := context.WithTimeout(ctx, o.effectiveTimeout(req.Provider, 0))
	unregister := o.register(requestID, cancel)

	mctx := middleware.NewContext(requestID, req.Provider, req.Model)
	mctx.Data["cancel"] = cancel

	transformed, err := o.chain.RunBeforeRequest(req, mctx)
	if err != nil {
		cancel()
		unregister()
		_, finalErr := o.settleError(err, mctx)
		return nil, finalErr
	}
	sanitized := transformed.(*validate.Request)

	release, err := o.limiter.Acquire(ctx, sanitized.Provider, o.estimateTokens(sanitized))
	if err != nil {
		cancel()
		unregister()
		_, finalErr := o.settleError(err, mctx)
		return nil, finalErr
	}

	upstream, err := adapter.ChatStream(ctx, sanitized)
	if err != nil {
		release()
		cancel()
		unregister()
		_, finalErr := o.settleError(err, mctx)
		return nil, finalErr
	}

	out := make(chan provider.StreamEvent)
	go func() {
		defer close(out)
		defer release()
		defer cancel()
		defer unregister()

		var promptTokens, completionTokens int
		for ev := range upstream {
			if ev.Delta != nil && ev.Delta.Usage != nil {
				promptTokens = ev.Delta.Usage.PromptTokens
				completionTokens = ev.Delta.Usage.CompletionTokens
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if promptTokens > 0 || completionTokens > 0 {
			o.ledger.Record(sanitized.Provider, sanitized.Model, promptTokens, completionTokens)
		}
	}()
	return out, nil
}

// Embed acquires a rate-limit slot, calls the adapter and records usage.
// It does not run the middleware chain, the cache or the dedup coalescer.
func (o *Orchestrator) Embed(ctx context.Context, req *provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	if err := o.checkAlive(); err != nil {
		return nil, err
	}
	adapter := o.adapterFor(req.Provider)

	ctx, cancel := context.WithTimeout(ctx, o.effectiveTimeout(req.Provider, 0))
	defer cancel()

	release, err := o.limiter.Acquire(ctx, req.Provider, 0)
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := adapter.Embed(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Usage != nil {
		o.ledger.Record(resp.Provider, resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return resp, nil
}

// Batch fans out requests with at most concurrency in flight at once.
// Results preserve submission order regardless of completion order. When
// stopOnError is true, the first failure cancels every request that
// hasn't started yet. onProgress, if non-nil, is called after each
// completion with the running count of settled requests.
func (o *Orchestrator) Batch(ctx context.Context, requests []*validate.Request, concurrency int, stopOnError bool, onProgress func(done, total int)) ([]BatchResult, error) {
	if err := o.checkAlive(); err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = o.cfg.DefaultBatchConcurrency
	}

	total := len(requests)
	results := make([]BatchResult, total)

	batchCtx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	done := 0
	var stopped bool

	for i, req := range requests {
		mu.Lock()
		if stopped {
			mu.Unlock()
			results[i] = BatchResult{Err: errs.AbortedErr(req.Provider)}
			continue
		}
		mu.Unlock()

		sem <- struct{}{}
		wg.Add(1)
		go func(i int, req *validate.Request) {
			defer wg.Done()
			defer func() { <-sem }()

			resp, err := o.Chat(batchCtx, req)

			mu.Lock()
			results[i] = BatchResult{Response: resp, Err: err}
			done++
			progressDone := done
			if err != nil && stopOnError {
				stopped = true
				cancelAll()
			}
			mu.Unlock()

			o.bus.Emit(events.Event{Kind: events.BatchProgress, Data: map[string]any{"done": progressDone, "total": total}})
			if onProgress != nil {
				onProgress(progressDone, total)
			}
		}(i, req)
	}
	wg.Wait()

	o.bus.Emit(events.Event{Kind: events.BatchComplete, Data: map[string]any{"total": total}})
	return results, nil
}
