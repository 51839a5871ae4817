package gvthread

import (
	"github.com/kestrelrun/gvthread/internal/sched"
	"github.com/kestrelrun/gvthread/internal/vtcore"
)

// Handle is what a spawned closure receives in place of the original
// spec's bare cancellation handle: the VT's own identity, passed in
// explicitly because Go has no thread-local "current VT" to recover it
// from (see internal/vtcore/metadata.go's entry field comment). Every
// blocking operation in this package (Yield, Sleep, channel send/recv,
// mutex lock, Stream I/O) takes a *Handle so it can hand control back
// to the right worker and be woken by the right timer/reactor entry.
type Handle struct {
	meta *vtcore.Metadata
	rt   *Runtime
}

// Cancel marks h's VT (and every descendant spawned under it)
// cancelled. Idempotent.
func (h *Handle) Cancel() { h.meta.SetCancel() }

// Cancelled reports whether h's VT or any ancestor has been cancelled.
// User code checks this at safepoints; see SafePoint.
func (h *Handle) Cancelled() bool { return h.meta.CancelSet() }

// ID returns the VT's identifier, useful for logging/debugging only —
// nothing in the public API accepts a bare ID back.
func (h *Handle) ID() vtcore.ID { return h.meta.ID() }

// Yield hands control back to h's worker, which re-enqueues the VT for
// another turn once some worker is free to run it.
func Yield(h *Handle) { sched.Yield(h.meta) }

// SafePoint is the cooperative preemption check for hot user loops: a
// no-op unless the preemption monitor has flagged h's VT for
// time-slice preemption, in which case it yields immediately.
func SafePoint(h *Handle) { sched.SafePoint(h.meta) }
