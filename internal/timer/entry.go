// Package timer implements the binary-heap timer backend and typed
// registry of spec §4.G, with the preemption monitor of §4.H folded
// into the same dedicated goroutine.
package timer

import (
	"sync/atomic"
	"time"

	"github.com/kestrelrun/gvthread/internal/vtcore"
)

// Handle uniquely identifies a scheduled timer for cancellation.
type Handle uint64

var handleCounter atomic.Uint64

// NewHandle returns a fresh, process-wide unique Handle.
func NewHandle() Handle {
	return Handle(handleCounter.Add(1))
}

// Kind distinguishes what happens when a timer fires, matching
// original_source's TimerType.
type Kind uint8

const (
	KindPreempt Kind = iota
	KindSleep
	KindTimeout
	KindPeriodic
)

func (k Kind) String() string {
	switch k {
	case KindPreempt:
		return "preempt"
	case KindSleep:
		return "sleep"
	case KindTimeout:
		return "timeout"
	case KindPeriodic:
		return "periodic"
	default:
		return "unknown"
	}
}

// Entry is one scheduled timer.
type Entry struct {
	Handle         Handle
	Deadline       time.Time
	VTID           vtcore.ID
	WorkerAffinity int // -1 means "any worker"
	Kind           Kind
	Interval       time.Duration // only meaningful when Kind == KindPeriodic
}

// Expired is what poll returns for each fired entry — enough for the
// registry/thread to route the wake without re-reading the heap.
type Expired struct {
	Handle         Handle
	VTID           vtcore.ID
	WorkerAffinity int
	Kind           Kind
}

func newEntry(vtID vtcore.ID, deadline time.Time, affinity int, kind Kind, interval time.Duration) Entry {
	return Entry{
		Handle:         NewHandle(),
		Deadline:       deadline,
		VTID:           vtID,
		WorkerAffinity: affinity,
		Kind:           kind,
		Interval:       interval,
	}
}

// Preempt builds a time-slice preemption timer, pinned to workerID for
// cache locality exactly as original_source's TimerEntry::preempt does.
func Preempt(vtID vtcore.ID, workerID int, timeSlice time.Duration) Entry {
	return newEntry(vtID, time.Now().Add(timeSlice), workerID, KindPreempt, 0)
}

// Sleep builds a voluntary-sleep timer.
func Sleep(vtID vtcore.ID, d time.Duration, affinity int) Entry {
	return newEntry(vtID, time.Now().Add(d), affinity, KindSleep, 0)
}

// Timeout builds an async-operation timeout timer.
func Timeout(vtID vtcore.ID, d time.Duration, affinity int) Entry {
	return newEntry(vtID, time.Now().Add(d), affinity, KindTimeout, 0)
}

// Periodic builds a self-rescheduling timer.
func Periodic(vtID vtcore.ID, interval time.Duration, affinity int) Entry {
	return newEntry(vtID, time.Now().Add(interval), affinity, KindPeriodic, interval)
}

// reschedule returns the next Entry for a periodic timer, with a fresh
// handle, or false if e isn't periodic.
func (e Entry) reschedule() (Entry, bool) {
	if e.Kind != KindPeriodic {
		return Entry{}, false
	}
	return newEntry(e.VTID, time.Now().Add(e.Interval), e.WorkerAffinity, KindPeriodic, e.Interval), true
}
