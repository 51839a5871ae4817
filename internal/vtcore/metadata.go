package vtcore

import (
	"sync/atomic"
)

// Metadata is the Go-managed per-VT control block. It holds everything
// the scheduler, timer and reactor packages need to drive a virtual
// thread: its lifecycle state, its priority, its parent/generation
// bookkeeping, its preempt/cancel flags, and the handoff channels used
// in place of a hand-rolled register-switch ABI (see SPEC_FULL.md §0).
//
// internal/memory writes a POD subset (ids, priority, initial state)
// into the slot's mmap-backed memory.SlotHeader when it allocates the
// slot; later state changes are kept only here, and the preemption
// scan (§4.H) reads this record and sched.WorkerState. Metadata
// additionally carries Go pointers (the entry closure, the resume/back channels)
// that must never be stored in unmanaged mmap'd memory, since the
// garbage collector cannot see into it.
type Metadata struct {
	id       ID
	parent   ID
	priority Priority

	state atomic.Uint32 // State, stored as uint32 for atomic access
	gen   atomic.Uint32

	preempt atomic.Bool
	token   *CancelToken

	worker atomic.Uint32 // WorkerID widened for atomic ops; NoWorker when idle/none

	// entry is the user closure to run; consumed once by the worker
	// trampoline goroutine and then cleared. It receives the VT's own
	// Metadata rather than being discovered via thread-local storage: the
	// VT's goroutine is not pinned to its worker's OS thread (only the
	// channel handshake is), so a Gettid()-keyed lookup like the one
	// worker identity uses (see internal/sched/tls.go) cannot find it.
	// Explicit parameter passing is the idiomatic Go substitute for the
	// original's thread-local "current VT" pointer.
	entry func(*Metadata)

	// resume wakes the VT's goroutine to run (or re-run after a
	// voluntary switch back in); back signals the worker that the VT
	// has yielded, blocked, finished, or been preempted. Both are
	// unbuffered: a send only completes once the other side is ready
	// to receive, which is exactly the happens-before edge spec §5
	// requires around a context switch.
	resume chan struct{}
	back   chan struct{}

	// result holds the last blocking-I/O result observed by this VT
	// (spec's "results slab", but kept per-VT here since each VT owns
	// exactly one outstanding blocking call at a time).
	result atomic.Int64

	runStartNS    atomic.Int64
	lastActivity  atomic.Int64
	lastWorkerTid atomic.Int32
}

// New allocates fresh Metadata for slot id. Called by the slot
// allocator when a slot is (re)activated; gen is the slot's current
// generation counter.
func New(id ID, gen uint32) *Metadata {
	m := &Metadata{
		id:     id,
		parent: None,
		token:  NewCancelToken(),
		resume: make(chan struct{}),
		back:   make(chan struct{}),
	}
	m.gen.Store(gen)
	m.state.Store(uint32(Created))
	m.worker.Store(uint32(NoWorker))
	return m
}

// Reset rearms a recycled Metadata for a new occupant, bumping its
// generation. The preemption monitor compares generations to skip a VT
// recycled since it read the worker state; wakes through Pool.Requeue
// carry only an ID and do not compare generations.
// parentToken is nil for a root VT, or the parent VT's token to make
// cancellation propagate down the spawn tree.
func (m *Metadata) Reset(parent ID, parentToken *CancelToken, priority Priority, entry func(*Metadata)) {
	m.parent = parent
	m.priority = priority
	m.entry = entry
	m.gen.Add(1)
	m.state.Store(uint32(Created))
	m.preempt.Store(false)
	if parentToken != nil {
		m.token = parentToken.Child()
	} else {
		m.token = NewCancelToken()
	}
	m.worker.Store(uint32(NoWorker))
	m.result.Store(0)
	m.runStartNS.Store(0)
	m.lastActivity.Store(0)
}

func (m *Metadata) ID() ID             { return m.id }
func (m *Metadata) Parent() ID         { return m.parent }
func (m *Metadata) Priority() Priority { return m.priority }
func (m *Metadata) Generation() uint32 { return m.gen.Load() }

func (m *Metadata) State() State { return State(m.state.Load()) }

// SetState stores the VT's new state. It does not check the change
// against ValidTransition; the worker loop re-stores Ready on a VT that
// yielded as Ready, for example.
func (m *Metadata) SetState(to State) {
	m.state.Store(uint32(to))
}

func (m *Metadata) Entry() func(*Metadata) { return m.entry }
func (m *Metadata) ClearEntry()               { m.entry = nil }

func (m *Metadata) ResumeChan() chan struct{} { return m.resume }
func (m *Metadata) BackChan() chan struct{}   { return m.back }

func (m *Metadata) SetPreempt()      { m.preempt.Store(true) }
func (m *Metadata) ClearPreempt()    { m.preempt.Store(false) }
func (m *Metadata) PreemptSet() bool { return m.preempt.Load() }

func (m *Metadata) Token() *CancelToken { return m.token }
func (m *Metadata) SetCancel()          { m.token.Cancel() }
func (m *Metadata) CancelSet() bool     { return m.token.Cancelled() }

func (m *Metadata) Worker() WorkerID     { return WorkerID(m.worker.Load()) }
func (m *Metadata) SetWorker(w WorkerID) { m.worker.Store(uint32(w)) }

func (m *Metadata) Result() int64       { return m.result.Load() }
func (m *Metadata) SetResult(r int64)   { m.result.Store(r) }

func (m *Metadata) RunStartNS() int64      { return m.runStartNS.Load() }
func (m *Metadata) SetRunStartNS(ns int64) { m.runStartNS.Store(ns) }

func (m *Metadata) LastActivityNS() int64      { return m.lastActivity.Load() }
func (m *Metadata) RecordActivity(ns int64)    { m.lastActivity.Store(ns) }

func (m *Metadata) LastWorkerTid() int32      { return m.lastWorkerTid.Load() }
func (m *Metadata) SetLastWorkerTid(tid int32) { m.lastWorkerTid.Store(tid) }
