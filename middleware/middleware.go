// Package middleware implements the Middleware Chain (C9): an ordered
// set of before/after/error interceptors that wrap every wire call the
// Orchestrator makes.
package middleware

import (
	"fmt"
	"sort"
	"sync"

	"github.com/byokit/byokit/errs"
)

// Context is the mutable bag middleware share across a single request's
// lifetime — timer ids, fallback hints, metric start times, and whatever
// else a middleware stashes for a later stage to read.
type Context struct {
	RequestID string
	Provider  string
	Model     string
	Data      map[string]any
}

// NewContext builds a Context with an initialized Data map.
func NewContext(requestID, provider, model string) *Context {
	return &Context{RequestID: requestID, Provider: provider, Model: model, Data: make(map[string]any)}
}

// BeforeRequestFunc may return a transformed request.
type BeforeRequestFunc func(req any, ctx *Context) (any, error)

// AfterResponseFunc may return a transformed response.
type AfterResponseFunc func(resp any, ctx *Context) (any, error)

// OnErrorFunc may return a transformed error, or short-circuit with a
// synthesized successful response when recovered is non-nil.
type OnErrorFunc func(err error, ctx *Context) (transformed error, recovered any, shortCircuit bool)

// Middleware is one named, orderable interceptor. Any subset of the
// three hooks may be nil.
type Middleware struct {
	Name          string
	Priority      int
	Enabled       bool
	BeforeRequest BeforeRequestFunc
	AfterResponse AfterResponseFunc
	OnError       OnErrorFunc
}

// Chain holds an ordered, name-addressable set of middleware.
type Chain struct {
	mu    sync.Mutex
	items []*Middleware
}

// New builds an empty Chain.
func New() *Chain {
	return &Chain{}
}

// Use inserts m and keeps the chain sorted by ascending priority (stable:
// equal priorities keep insertion order). Repeated Use calls with the
// same name do not deduplicate — both entries run, in priority order.
func (c *Chain) Use(m *Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, m)
	c.resort()
}

func (c *Chain) resort() {
	sort.SliceStable(c.items, func(i, j int) bool {
		return c.items[i].Priority < c.items[j].Priority
	})
}

// Remove deletes the middleware named name, reporting whether it was
// present.
func (c *Chain) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, m := range c.items {
		if m.Name == name {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Chain) snapshot() []*Middleware {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Middleware(nil), c.items...)
}

// RunBeforeRequest runs every enabled middleware's BeforeRequest hook in
// ascending priority order, threading the (possibly transformed) request
// through each.
func (c *Chain) RunBeforeRequest(req any, ctx *Context) (any, error) {
	for _, m := range c.snapshot() {
		if !m.Enabled || m.BeforeRequest == nil {
			continue
		}
		next, err := runBefore(m, req, ctx)
		if err != nil {
			return nil, err
		}
		req = next
	}
	return req, nil
}

func runBefore(m *Middleware, req any, ctx *Context) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = wrapMiddlewareError(m.Name, ctx.RequestID, fmt.Errorf("panic: %v", r))
		}
	}()
	out, err = m.BeforeRequest(req, ctx)
	if err != nil {
		err = wrapMiddlewareError(m.Name, ctx.RequestID, err)
	}
	return out, err
}

// RunAfterResponse runs every enabled middleware's AfterResponse hook in
// the same ascending priority order as the request pipeline.
func (c *Chain) RunAfterResponse(resp any, ctx *Context) (any, error) {
	for _, m := range c.snapshot() {
		if !m.Enabled || m.AfterResponse == nil {
			continue
		}
		next, err := runAfter(m, resp, ctx)
		if err != nil {
			return nil, err
		}
		resp = next
	}
	return resp, nil
}

func runAfter(m *Middleware, resp any, ctx *Context) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = wrapMiddlewareError(m.Name, ctx.RequestID, fmt.Errorf("panic: %v", r))
		}
	}()
	out, err = m.AfterResponse(resp, ctx)
	if err != nil {
		err = wrapMiddlewareError(m.Name, ctx.RequestID, err)
	}
	return out, err
}

// RunOnError runs every enabled middleware's OnError hook, in the same
// order, until one short-circuits with a recovered response.
func (c *Chain) RunOnError(err error, ctx *Context) (finalErr error, recovered any, shortCircuited bool) {
	finalErr = err
	for _, m := range c.snapshot() {
		if !m.Enabled || m.OnError == nil {
			continue
		}
		transformed, rec, short := runOnError(m, finalErr, ctx)
		finalErr = transformed
		if short {
			return finalErr, rec, true
		}
	}
	return finalErr, nil, false
}

func runOnError(m *Middleware, err error, ctx *Context) (transformed error, recovered any, shortCircuit bool) {
	defer func() {
		if r := recover(); r != nil {
			transformed = wrapMiddlewareError(m.Name, ctx.RequestID, fmt.Errorf("panic: %v", r))
			recovered, shortCircuit = nil, false
		}
	}()
	return m.OnError(err, ctx)
}

func wrapMiddlewareError(name, requestID string, cause error) error {
	e := errs.Wrap(errs.MiddlewareError, "", fmt.Sprintf("middleware %q failed", name), cause)
	return e.WithRequestID(requestID)
}
