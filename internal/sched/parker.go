package sched

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// futexWait/futexWake are the two FUTEX_* ops this package needs;
// golang.org/x/sys/unix exposes SYS_FUTEX but no typed wrapper, so we
// call unix.Syscall directly, the same pattern the teacher uses for
// every io_uring operation it doesn't have a named wrapper for.
const (
	futexWait = 0
	futexWake = 1
)

// Parker is a futex-backed park/wake primitive for the worker pool.
// Conceptually grounded in alphadose-ZenQ's ThreadParker (a shared word
// goroutines park on and get woken from), but implemented over a real
// Linux futex rather than a runtime-internal park/ready linkage: this
// module's workers are real OS threads pinned with
// runtime.LockOSThread, not goroutines the Go scheduler can multiplex
// for us, so parking them efficiently means the same kernel primitive
// Go's own scheduler uses internally.
type Parker struct {
	word   atomic.Uint32
	parked atomic.Int32
}

// NewParker returns a ready-to-use Parker.
func NewParker() *Parker { return &Parker{} }

// Park blocks the calling worker until WakeOne/WakeAll observes it
// parked, or timeoutMS elapses (0 means wait indefinitely). Safe to
// call from multiple workers concurrently; each sees every wake that
// happens after it starts waiting.
func (p *Parker) Park(timeoutMS int64) {
	p.parked.Add(1)
	defer p.parked.Add(-1)

	cur := p.word.Load()
	var ts *unix.Timespec
	if timeoutMS > 0 {
		ts = &unix.Timespec{
			Sec:  timeoutMS / 1000,
			Nsec: (timeoutMS % 1000) * 1_000_000,
		}
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(&p.word)),
		futexWait,
		uintptr(cur),
		uintptr(unsafe.Pointer(ts)),
		0, 0,
	)
	_ = errno // EAGAIN (word changed) and ETIMEDOUT are both fine: caller re-checks the queue
}

// WakeOne wakes at most one parked worker, mirroring GlobalQueue::push's
// wake-on-submit behavior.
func (p *Parker) WakeOne() {
	if p.parked.Load() <= 0 {
		return
	}
	p.word.Add(1)
	unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(&p.word)), futexWake, 1, 0, 0, 0)
}

// WakeAll wakes every parked worker, used on shutdown (via
// ReadyQueue.WakeAll).
func (p *Parker) WakeAll() {
	p.word.Add(1)
	unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(&p.word)), futexWake, uintptr(^uint32(0)>>1), 0, 0, 0)
}
