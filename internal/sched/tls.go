package sched

import (
	"sync"

	"golang.org/x/sys/unix"
)

// workerRegistry maps an OS thread id to the Worker pinned to it.
// Valid because every Worker goroutine calls runtime.LockOSThread
// before registering itself and never unlocks until it exits, so the
// tid is a stable key for the goroutine's entire lifetime — the same
// property original_source's worker.rs exploits with a thread_local!,
// which Go's goroutine-based runtime has no equivalent primitive for.
var workerRegistry sync.Map // int32 tid -> *Worker

// registerCurrentWorker records w as owning the calling OS thread.
// Must be called after runtime.LockOSThread, from the worker's own
// goroutine.
func registerCurrentWorker(w *Worker) {
	workerRegistry.Store(int32(unix.Gettid()), w)
}

func unregisterCurrentWorker() {
	workerRegistry.Delete(int32(unix.Gettid()))
}

// CurrentWorker returns the Worker pinned to the calling OS thread, or
// nil if the calling goroutine/thread isn't a registered worker (e.g. a
// VT's own goroutine, which is not itself pinned).
func CurrentWorker() *Worker {
	v, ok := workerRegistry.Load(int32(unix.Gettid()))
	if !ok {
		return nil
	}
	return v.(*Worker)
}
