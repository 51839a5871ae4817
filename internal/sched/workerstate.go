package sched

import (
	"sync/atomic"

	"github.com/kestrelrun/gvthread/internal/vtcore"
)

// cacheLinePad keeps adjacent WorkerState entries from false-sharing
// when the timer goroutine scans the whole array (§4.H) while workers
// concurrently update their own entry.
type cacheLinePad [24]byte

// WorkerState is the per-worker record the preemption monitor scans
// without touching any VT's goroutine stack: which VT (if any) the
// worker is currently running, when that run started, and the worker's
// OS tid, which keys its entry in the worker registry (tls.go) and is
// removed from it when ForcePreempt replaces the worker. Mirrors
// original_source's
// gvthread-core::metadata::WorkerState.
type WorkerState struct {
	currentVT    atomic.Uint32 // vtcore.ID, or uint32(vtcore.None)
	currentGen   atomic.Uint32
	runStartNS   atomic.Int64
	tid          atomic.Int32
	lowPriority  atomic.Bool
	started      atomic.Bool
	_            cacheLinePad
}

func newWorkerStateArray(n int) []WorkerState {
	arr := make([]WorkerState, n)
	for i := range arr {
		arr[i].currentVT.Store(uint32(vtcore.None))
	}
	return arr
}

// Init records this worker's identity once at startup.
func (w *WorkerState) Init(tid int32, lowPriority bool) {
	w.tid.Store(tid)
	w.lowPriority.Store(lowPriority)
	w.started.Store(true)
}

func (w *WorkerState) Tid() int32          { return w.tid.Load() }
func (w *WorkerState) IsLowPriority() bool { return w.lowPriority.Load() }

// SetRunning records that the worker has begun running vt at generation
// gen, timestamped nowNS.
func (w *WorkerState) SetRunning(vt vtcore.ID, gen uint32, nowNS int64) {
	w.currentGen.Store(gen)
	w.currentVT.Store(uint32(vt))
	w.runStartNS.Store(nowNS)
}

// SetIdle clears the running VT, called once the worker's VT yields,
// blocks or finishes.
func (w *WorkerState) SetIdle() {
	w.currentVT.Store(uint32(vtcore.None))
	w.runStartNS.Store(0)
}

// CurrentVT returns the VT id the worker is running (or vtcore.None)
// together with the generation it was running at, for the preemption
// monitor's stale-wake check.
func (w *WorkerState) CurrentVT() (vtcore.ID, uint32) {
	return vtcore.ID(w.currentVT.Load()), w.currentGen.Load()
}

func (w *WorkerState) RunStartNS() int64 { return w.runStartNS.Load() }

// TryRetire marks vt as abandoned by the preemption monitor, clearing
// currentVT/runStartNS so the slot reads idle, but only if vt is still
// the VT recorded as running (a compare-and-swap, not a blind clear).
// Returns false if there was nothing to retire — the slot already went
// idle on its own, or a concurrent caller (the per-VT watcher in
// pool.go and the dedicated internal/timer.Thread scan can both reach
// the same worker) already won the race — so a stuck worker is only
// ever replaced once.
func (w *WorkerState) TryRetire(vt vtcore.ID) bool {
	if !w.currentVT.CompareAndSwap(uint32(vt), uint32(vtcore.None)) {
		return false
	}
	w.runStartNS.Store(0)
	return true
}
