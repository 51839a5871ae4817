//go:build linux

package gvthread

import (
	"time"

	"github.com/kestrelrun/gvthread/internal/sched"
)

// Sleep parks h's VT for at least d, matching §6's sleep(duration).
// Per §5, cancellation never unblocks a sleeping VT early: the timer
// always fires on schedule, and Sleep only reports ErrCancelled after
// waking, for the caller to check at its next safepoint.
func Sleep(h *Handle, d time.Duration) error {
	return sleepUntilWake(h, func() {
		h.rt.timerRegistry.ScheduleSleep(h.meta.ID(), d, int(h.meta.Worker()))
	})
}

// SleepUntil parks h's VT until the given absolute deadline.
func SleepUntil(h *Handle, deadline time.Time) error {
	return sleepUntilWake(h, func() {
		h.rt.timerRegistry.ScheduleSleepUntil(h.meta.ID(), deadline, int(h.meta.Worker()))
	})
}

func sleepUntilWake(h *Handle, arm func()) error {
	arm()
	sched.Block(h.meta)
	if h.Cancelled() {
		return ErrCancelled
	}
	return nil
}
