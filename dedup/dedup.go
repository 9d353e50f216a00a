// Package dedup implements the Dedup Coalescer (C8): concurrent callers
// requesting the same fingerprint attach to one in-flight call instead of
// each issuing their own. Streaming calls never pass through here — they
// are excluded by the caller, per §4.8.
package dedup

import (
	"golang.org/x/sync/singleflight"
)

// Coalescer wraps a singleflight.Group keyed by request fingerprint. The
// entry for a fingerprint is removed automatically by singleflight once
// the in-flight call settles, so a later call with the same fingerprint
// always starts a fresh attempt.
type Coalescer struct {
	group singleflight.Group
}

// New constructs an empty Coalescer.
func New() *Coalescer {
	return &Coalescer{}
}

// Do runs fn for fingerprint, or waits on an already in-flight call for
// the same fingerprint and returns its result instead of calling fn
// again. shared reports whether the result came from an existing call.
func (c *Coalescer) Do(fingerprint string, fn func() (any, error)) (result any, shared bool, err error) {
	return c.group.Do(fingerprint, fn)
}

// Forget evicts fingerprint's in-flight entry, if any, so the next Do for
// it starts a fresh call instead of attaching to one still running.
func (c *Coalescer) Forget(fingerprint string) {
	c.group.Forget(fingerprint)
}
