package timer

import (
	"time"

	"github.com/kestrelrun/gvthread/internal/vtcore"
)

// Registry is the high-level timer API used by the rest of the
// runtime, wrapping a Backend. Grounded directly on
// original_source's TimerRegistry, trimmed of the Arc<dyn TimerBackend>
// indirection since Go has exactly one Backend implementation and no
// call site needs to swap it at runtime.
type Registry struct {
	backend *Backend
}

// NewRegistry wraps backend.
func NewRegistry(backend *Backend) *Registry { return &Registry{backend: backend} }

// BackendStats exposes the underlying Backend's counters.
func (r *Registry) BackendStats() Stats { return r.backend.Stats() }

// SchedulePreempt arms a time-slice preemption timer for vt, pinned to
// workerID for cache locality. Call Cancel with the returned handle if
// the VT yields voluntarily before the timer fires.
func (r *Registry) SchedulePreempt(vt vtcore.ID, workerID int, timeSlice time.Duration) Handle {
	return r.backend.Insert(Preempt(vt, workerID, timeSlice))
}

// ScheduleSleep wakes vt after d.
func (r *Registry) ScheduleSleep(vt vtcore.ID, d time.Duration, affinity int) Handle {
	return r.backend.Insert(Sleep(vt, d, affinity))
}

// ScheduleSleepUntil wakes vt at the given absolute deadline.
func (r *Registry) ScheduleSleepUntil(vt vtcore.ID, deadline time.Time, affinity int) Handle {
	return r.backend.Insert(newEntry(vt, deadline, affinity, KindSleep, 0))
}

// ScheduleTimeout arms a timeout for an in-flight async operation (I/O,
// channel receive, mutex acquire).
func (r *Registry) ScheduleTimeout(vt vtcore.ID, d time.Duration, affinity int) Handle {
	return r.backend.Insert(Timeout(vt, d, affinity))
}

// SchedulePeriodic arms a self-rescheduling timer.
func (r *Registry) SchedulePeriodic(vt vtcore.ID, interval time.Duration, affinity int) Handle {
	return r.backend.Insert(Periodic(vt, interval, affinity))
}

// Cancel cancels a previously scheduled timer. Safe to call after the
// timer has already fired (no-op) or been cancelled (returns false).
func (r *Registry) Cancel(h Handle) bool { return r.backend.Cancel(h) }

// Len reports the number of live timers.
func (r *Registry) Len() int { return r.backend.Len() }
