package vtcore

import "sync/atomic"

// CancelToken is a hierarchical cancellation flag. Checking a child
// token also consults its parent, so cancelling a VT cancels every
// descendant spawned under it without the scheduler having to walk the
// tree itself (mirrors `original_source/crates/gvthread-core/src/cancel.rs`).
type CancelToken struct {
	cancelled atomic.Bool
	parent    *CancelToken
}

// NewCancelToken returns a root token with no parent.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Child returns a token that is cancelled whenever t or any of t's
// ancestors is cancelled, in addition to its own direct cancellation.
func (t *CancelToken) Child() *CancelToken {
	return &CancelToken{parent: t}
}

// Cancel marks t (and therefore every descendant) cancelled. Idempotent.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether t or any ancestor has been cancelled.
func (t *CancelToken) Cancelled() bool {
	for c := t; c != nil; c = c.parent {
		if c.cancelled.Load() {
			return true
		}
	}
	return false
}
