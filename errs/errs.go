// Package errs defines the single error type used at every public boundary
// of byokit. Instead of one Go error type per component, every failure —
// from a bad parameter to a dropped connection to an expired key — carries
// the same shape: a closed-set Kind, a provider tag, retryability, and an
// optional wrapped cause. Components translate whatever the wire gives them
// (HTTP status codes, JSON error bodies, context errors) into this shape
// before it crosses their package boundary.
package errs

import (
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// Kind is the closed set of error classifications. New kinds are never added
// by a caller — only by this package — so a type switch on Kind is exhaustive
// in practice even though Go can't enforce that at compile time.
type Kind string

const (
	ProviderNotFound       Kind = "PROVIDER_NOT_FOUND"
	ModelNotFound          Kind = "MODEL_NOT_FOUND"
	KeyNotSet              Kind = "KEY_NOT_SET"
	KeyInvalid             Kind = "KEY_INVALID"
	KeyExpired             Kind = "KEY_EXPIRED"
	RequestFailed          Kind = "REQUEST_FAILED"
	RateLimited            Kind = "RATE_LIMITED"
	Timeout                Kind = "TIMEOUT"
	Aborted                Kind = "ABORTED"
	NetworkError           Kind = "NETWORK_ERROR"
	StreamError            Kind = "STREAM_ERROR"
	ValidationError        Kind = "VALIDATION_ERROR"
	EncryptionError        Kind = "ENCRYPTION_ERROR"
	StorageError           Kind = "STORAGE_ERROR"
	MiddlewareError        Kind = "MIDDLEWARE_ERROR"
	TemplateError          Kind = "TEMPLATE_ERROR"
	BatchError             Kind = "BATCH_ERROR"
	QuotaExceeded          Kind = "QUOTA_EXCEEDED"
	ContentFiltered        Kind = "CONTENT_FILTERED"
	ContextLengthExceeded  Kind = "CONTEXT_LENGTH_EXCEEDED"
	UnknownError           Kind = "UNKNOWN_ERROR"
)

// nonRetryableKinds can never be retried regardless of their Retryable flag —
// retrying after a bad or expired key just repeats the same failure.
var nonRetryableKinds = map[Kind]bool{
	KeyInvalid: true,
	KeyNotSet:  true,
	KeyExpired: true,
}

// Error is the single error type returned at every byokit public API
// boundary. It is never constructed with a bare struct literal outside this
// package's constructors, so that Retryable and Kind always agree.
type Error struct {
	Kind       Kind
	Message    string
	Provider   string
	HTTPStatus int
	Retryable  bool
	RetryAfter time.Duration // zero means "no hint"
	RequestID  string
	Details    any // opaque, provider-specific context; never the raw key
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Provider != "" {
		b.WriteString(" (")
		b.WriteString(e.Provider)
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// CanRetry reports whether a retry loop should attempt this error again.
// Key errors are never retryable even if the Retryable flag was set by a
// careless caller of New — this guard exists so nothing downstream has to
// remember the exclusion list.
func (e *Error) CanRetry() bool {
	if nonRetryableKinds[e.Kind] {
		return false
	}
	return e.Retryable
}

// jsonError is the shape written by MarshalJSON — deliberately narrower than
// Error: no Cause (which could contain a stack trace or, worse, an upstream
// body), no Details.
type jsonError struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	Provider   string `json:"provider,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Retryable  bool   `json:"retryable"`
	RetryAfter int64  `json:"retry_after_ms,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// MarshalJSON produces a payload safe to log or ship to telemetry: no
// request body, no credential material, no cause stack. Details is
// intentionally omitted — callers who need it read the Go struct directly.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonError{
		Kind:       e.Kind,
		Message:    e.Message,
		Provider:   e.Provider,
		HTTPStatus: e.HTTPStatus,
		Retryable:  e.CanRetry(),
		RetryAfter: e.RetryAfter.Milliseconds(),
		RequestID:  e.RequestID,
	})
}

// New builds an Error of the given kind. Most callers should prefer one of
// the kind-specific constructors below, which set sane Retryable defaults.
func New(kind Kind, provider, message string) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message}
}

func Wrap(kind Kind, provider, message string, cause error) *Error {
	e := New(kind, provider, message)
	e.Cause = cause
	return e
}

// WithRequestID returns a copy of e annotated with a request id, so a
// caller can correlate a failure with the events emitted for that call.
func (e *Error) WithRequestID(id string) *Error {
	c := *e
	c.RequestID = id
	return &c
}

// As reports whether err is (or wraps) an *Error, mirroring errors.As without
// requiring every call site to declare a local variable.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// FromHTTPStatus classifies an HTTP response per §4.2's status table. body is
// the decoded JSON error body (may be nil) used to disambiguate 400s into
// CONTEXT_LENGTH_EXCEEDED / CONTENT_FILTERED / QUOTA_EXCEEDED, and to read a
// provider's own retry_after hint. header is the raw Retry-After header
// value, if any (either integer seconds or an HTTP date).
func FromHTTPStatus(status int, provider string, body map[string]any, header string) *Error {
	msg := extractMessage(body)

	var e *Error
	switch {
	case status == 400:
		e = classifyBadRequest(provider, msg, body)
	case status == 401 || status == 403:
		e = New(KeyInvalid, provider, msg)
	case status == 404:
		e = New(ModelNotFound, provider, msg)
	case status == 408:
		e = New(Timeout, provider, msg)
		e.Retryable = true
	case status == 413:
		e = New(ContextLengthExceeded, provider, msg)
	case status == 429:
		e = New(RateLimited, provider, msg)
		e.Retryable = true
	case status == 451:
		e = New(ContentFiltered, provider, msg)
	case status == 500 || status == 502 || status == 503 || status == 504:
		e = New(RequestFailed, provider, msg)
		e.Retryable = true
	case status == 529:
		e = New(RequestFailed, provider, msg)
		e.Retryable = true
	default:
		e = New(UnknownError, provider, msg)
	}

	e.HTTPStatus = status
	e.Details = body
	if ra := retryAfterFromBody(body); ra > 0 {
		e.RetryAfter = ra
	} else if ra := retryAfterFromHeader(header); ra > 0 {
		e.RetryAfter = ra
	}
	return e
}

func classifyBadRequest(provider, msg string, body map[string]any) *Error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "context") && (strings.Contains(lower, "length") || strings.Contains(lower, "too long") || strings.Contains(lower, "maximum")):
		return New(ContextLengthExceeded, provider, msg)
	case strings.Contains(lower, "content") && (strings.Contains(lower, "polic") || strings.Contains(lower, "filter") || strings.Contains(lower, "safety")):
		return New(ContentFiltered, provider, msg)
	case strings.Contains(lower, "quota") || strings.Contains(lower, "billing") || strings.Contains(lower, "insufficient"):
		return New(QuotaExceeded, provider, msg)
	default:
		return New(ValidationError, provider, msg)
	}
}

func extractMessage(body map[string]any) string {
	if body == nil {
		return "request failed"
	}
	// Most providers nest the message under an "error" object; a few (Google)
	// put it at the top level. Try both shapes before giving up.
	if errObj, ok := body["error"].(map[string]any); ok {
		if m, ok := errObj["message"].(string); ok {
			return m
		}
	}
	if m, ok := body["message"].(string); ok {
		return m
	}
	return "request failed"
}

func retryAfterFromBody(body map[string]any) time.Duration {
	if body == nil {
		return 0
	}
	var raw any
	if errObj, ok := body["error"].(map[string]any); ok {
		raw = errObj["retry_after"]
	}
	if raw == nil {
		raw = body["retry_after"]
	}
	switch v := raw.(type) {
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}

func retryAfterFromHeader(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, header); err == nil {
		d := time.Until(t)
		if d > 0 {
			return d
		}
	}
	return 0
}

// NetworkErr wraps a transport-level failure (dial/read/write) that never
// reached an HTTP status.
func NetworkErr(provider string, cause error) *Error {
	e := Wrap(NetworkError, provider, "network error", cause)
	e.Retryable = true
	return e
}

// TimeoutErr builds a retryable TIMEOUT error for an expired deadline.
func TimeoutErr(provider string) *Error {
	e := New(Timeout, provider, "request timed out")
	e.Retryable = true
	return e
}

// AbortedErr builds a non-retryable ABORTED error for a caller-cancelled
// request. Aborts are deliberate, so retrying would fight the caller's
// own decision to stop.
func AbortedErr(provider string) *Error {
	return New(Aborted, provider, "request aborted")
}

// ValidationErr aggregates one or more field-level validation failures into
// a single VALIDATION_ERROR, matching §4.10's "aggregated field list".
func ValidationErr(fields []string) *Error {
	return New(ValidationError, "", strings.Join(fields, "; "))
}

// RetryDelay implements §4.2's retryDelay(attempt, base): honor a server
// hint verbatim, otherwise exponential backoff plus up to 10% jitter,
// capped at 60s.
func (e *Error) RetryDelay(attempt int, base time.Duration) time.Duration {
	if e.RetryAfter > 0 {
		return e.RetryAfter
	}
	capped := base * time.Duration(1<<uint(attempt))
	const maxDelay = 60 * time.Second
	if capped > maxDelay {
		capped = maxDelay
	}
	jitterSpan := int64(float64(capped) * 0.1)
	if jitterSpan <= 0 {
		return capped
	}
	d := capped + time.Duration(rand.Int63n(jitterSpan))
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
