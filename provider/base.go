package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/byokit/byokit/breaker"
	"github.com/byokit/byokit/errs"
	"github.com/byokit/byokit/events"
	"github.com/byokit/byokit/keystore"
	"github.com/byokit/byokit/retry"
)

// BaseProvider supplies the plumbing every concrete adapter needs:
// credential lookup, retry-gated HTTP calls behind a per-provider circuit
// breaker, request id generation, event emission, and a bounded client
// timeout. Adapters embed it and implement only their wire translation.
type BaseProvider struct {
	Name      string
	BaseURL   string
	Client    *http.Client
	Keys      *keystore.Store
	Breakers  *breaker.Registry
	Bus       *events.Bus
	Logger    *zap.Logger
	RetryOpts retry.Options
	Timeout   time.Duration
}

// NewBaseProvider builds a BaseProvider. client may be nil, in which case
// a default *http.Client is constructed; logger may be nil, in which
// case a no-op logger is used.
func NewBaseProvider(name, baseURL string, client *http.Client, keys *keystore.Store, breakers *breaker.Registry, bus *events.Bus, logger *zap.Logger) *BaseProvider {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseProvider{
		Name: name, BaseURL: baseURL, Client: client,
		Keys: keys, Breakers: breakers, Bus: bus, Logger: logger,
		Timeout: 60 * time.Second,
	}
}

// Credential returns the plaintext API key for this provider, or an
// error if none is set. Local-inference providers that never require a
// credential should bypass this and leave Keys nil.
func (b *BaseProvider) Credential(ctx context.Context) (string, error) {
	if b.Keys == nil {
		return "", nil
	}
	key, ok, err := b.Keys.Get(ctx, b.Name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errs.New(errs.KeyNotSet, b.Name, "no credential set for provider")
	}
	s := string(key)
	keystore.Zero(key)
	return s, nil
}

// RequestID generates a fresh request id for event correlation.
func (b *BaseProvider) RequestID() string {
	return uuid.NewString()
}

func (b *BaseProvider) emit(kind events.Kind, requestID string, data map[string]any) {
	if b.Bus == nil {
		return
	}
	b.Bus.Emit(events.Event{Kind: kind, Provider: b.Name, RequestID: requestID, Data: data})
}

// Invoke runs fn (one full wire call) behind this provider's circuit
// breaker and the shared retry engine, emitting request:start,
// request:end/request:error around the whole attempt sequence. fn must
// itself be idempotent-safe to call more than once.
func (b *BaseProvider) Invoke(ctx context.Context, requestID string, fn func(ctx context.Context) error) error {
	b.emit(events.RequestStart, requestID, nil)

	var br *breaker.Breaker
	if b.Breakers != nil {
		br = b.Breakers.For(b.Name)
	}

	opts := b.RetryOpts
	opts.OnRetry = func(err error, attempt int, delay time.Duration) {
		b.emit(events.RetryAttempt, requestID, map[string]any{
			"attempt": attempt,
			"delay_ms": delay.Milliseconds(),
		})
	}

	err := retry.Do(ctx, func(ctx context.Context) error {
		if br != nil {
			if allowErr := br.Allow(); allowErr != nil {
				return allowErr
			}
		}
		callErr := fn(ctx)
		if br != nil {
			if callErr != nil {
				br.RecordFailure()
			} else {
				br.RecordSuccess()
			}
		}
		return callErr
	}, opts)

	if err != nil {
		b.emit(events.RequestError, requestID, map[string]any{"kind": errKind(err)})
		return err
	}
	b.emit(events.RequestEnd, requestID, nil)
	return nil
}

func errKind(err error) string {
	if e, ok := errs.As(err); ok {
		return string(e.Kind)
	}
	return string(errs.UnknownError)
}

// WithTimeout returns a context derived from ctx bounded by this
// provider's configured timeout, plus its cancel func.
func (b *BaseProvider) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.Timeout)
}
