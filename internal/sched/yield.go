package sched

import (
	"time"

	"github.com/kestrelrun/gvthread/internal/vtcore"
)

func nowNS() int64 { return time.Now().UnixNano() }

// This file is the public surface of spec §4.J, called from within a
// running VT's own goroutine with its own Metadata (passed explicitly
// into the entry closure — see vtcore.Metadata's entry field comment
// for why this replaces the original's thread-local "current VT"
// lookup). The root gvthread package's Yield/Sleep/SafePoint wrap these
// directly.

// Yield hands control back to meta's worker, marking the VT Ready so
// the worker re-enqueues it for another turn. Returns once some worker
// resumes it.
func Yield(meta *vtcore.Metadata) {
	meta.RecordActivity(nowNS())
	yieldCurrent(meta, vtcore.Ready)
}

// Block hands control back to meta's worker without re-enqueuing.
// Callers (timer, reactor, channel, mutex) are responsible for calling
// Pool.Requeue once whatever meta is waiting on is ready.
func Block(meta *vtcore.Metadata) {
	yieldCurrent(meta, vtcore.Blocked)
}

// SafePoint is the cooperative preemption check user code can invoke
// inside hot loops per §4.H: it records activity and, if the preempt
// flag is set, voluntarily yields with state Preempted instead of
// Ready, clearing the flag first so the next turn starts clean.
func SafePoint(meta *vtcore.Metadata) {
	meta.RecordActivity(nowNS())
	if !meta.PreemptSet() {
		return
	}
	meta.ClearPreempt()
	yieldCurrent(meta, vtcore.Preempted)
}
