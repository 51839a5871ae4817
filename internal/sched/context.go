package sched

import "github.com/kestrelrun/gvthread/internal/vtcore"

// This file is the Go rendition of spec §4.C's architecture ABI
// (init_context/switch_voluntary/restore_forced). A real register/stack
// switch is not reachable from Go user code, so "context" here means a
// goroutine parked on Metadata's resume/back channels, per SPEC_FULL.md §0.

// initContext starts the VT's goroutine. The goroutine blocks
// immediately on resume before running entry, so spawning a VT never
// races a worker that hasn't decided to run it yet.
func initContext(meta *vtcore.Metadata) {
	go func() {
		<-meta.ResumeChan()
		entry := meta.Entry()
		if entry != nil {
			entry(meta)
		}
		meta.SetState(vtcore.Finished)
		meta.ClearEntry()
		meta.BackChan() <- struct{}{}
	}()
}

// switchVoluntary is called from the worker goroutine to run (or
// resume) meta's VT goroutine and block until it yields, blocks,
// finishes or is preempted. It is the symmetric-coroutine handoff: the
// worker only regains control once the VT sends on back.
func switchVoluntary(meta *vtcore.Metadata) {
	meta.SetState(vtcore.Running)
	meta.ResumeChan() <- struct{}{}
	<-meta.BackChan()
}

// yieldCurrent is called from inside a running VT's own goroutine (via
// the public Yield API) to hand control back to its worker without
// finishing. The VT blocks on resume again until the worker schedules
// it a second time.
func yieldCurrent(meta *vtcore.Metadata, next vtcore.State) {
	meta.SetState(next)
	meta.BackChan() <- struct{}{}
	<-meta.ResumeChan()
	meta.SetState(vtcore.Running)
}

// There is deliberately no restoreForced here. An earlier revision of
// this file had one, but it did nothing a plain meta.SetPreempt() call
// doesn't already do — spec §4.C's restore_forced restores a complete
// register file from a forced interrupt, which is not an operation Go
// user code can perform on another goroutine at all (see pool.go's
// ForcePreempt for the real Go rendition of §4.H's forced-preempt
// escalation, and SPEC_FULL.md §0 for why). Giving the cooperative
// flag-set call a name that implied otherwise was the bug; callers now
// call meta.SetPreempt() directly and say what they mean.
