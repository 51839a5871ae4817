package sched

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrelrun/gvthread/internal/memory"
	"github.com/kestrelrun/gvthread/internal/obs"
	"github.com/kestrelrun/gvthread/internal/vtcore"
	"golang.org/x/sys/unix"
)

// Pool is the worker pool of spec §4.F: a fixed set of OS-thread-pinned
// goroutines pulling from a ReadyQueue and running VTs via the
// goroutine-handoff context switch in context.go. Grounded on
// original_source's WorkerPool/worker.rs, generalized from its
// callback-based `start(worker_fn)` to an idiomatic Go method set.
type Pool struct {
	cfg    Config
	region *memory.Region
	alloc  *memory.Allocator
	rq     *ReadyQueue
	logger obs.Logger

	states []WorkerState // index == worker id, contiguous for preemption scan

	metaMu sync.RWMutex
	metas  map[vtcore.ID]*vtcore.Metadata

	workersMu       sync.Mutex
	workers         []*Worker
	replacedWorkers atomic.Int64 // count of forced-preempt replacements, for diagnostics/tests

	shutdown atomic.Bool
	wg       sync.WaitGroup
}

// Worker is one pool slot: one goroutine, locked to one OS thread for
// its whole life. Forced preemption (see ForcePreempt) never signals
// this thread — it detaches and replaces the whole Worker instead, so a
// Worker's OS thread identity only needs to be stable for the lifetime
// of registerCurrentWorker/CurrentWorker lookups, not for any signal
// delivery.
type Worker struct {
	id          int
	lowPriority bool
	pool        *Pool
	retireOnce  sync.Once
}

func (w *Worker) ID() int { return w.id }

// retire releases this worker's slot in Pool.wg exactly once. Called
// normally when runWorker returns (shutdown) and also, out of band, by
// ForcePreempt when the worker's OS thread is being abandoned
// because its VT will never give control back — the sync.Once means
// whichever happens is a no-op if the other already ran.
func (w *Worker) retire() {
	w.retireOnce.Do(w.pool.wg.Done)
}

// NewPool constructs a Pool. region/alloc back the VT slot memory;
// cfg.NumWorkers goroutines are created by Start.
func NewPool(cfg Config, region *memory.Region, alloc *memory.Allocator, logger obs.Logger) *Pool {
	if logger == nil {
		logger = obs.NoopLogger{}
	}
	return &Pool{
		cfg:    cfg,
		region: region,
		alloc:  alloc,
		rq:     NewReadyQueue(cfg.NumWorkers),
		logger: logger,
		states: newWorkerStateArray(cfg.NumWorkers),
		metas:  make(map[vtcore.ID]*vtcore.Metadata, cfg.MaxVThreads),
	}
}

// Start launches cfg.NumWorkers worker goroutines. The trailing
// NumLowPriorityWorkers are marked low-priority, matching
// original_source's worker.rs split (`i >= num_workers - num_low`).
func (p *Pool) Start() {
	p.workersMu.Lock()
	defer p.workersMu.Unlock()
	p.workers = make([]*Worker, p.cfg.NumWorkers)
	lowStart := p.cfg.NumWorkers - p.cfg.NumLowPriorityWorkers
	for i := 0; i < p.cfg.NumWorkers; i++ {
		w := &Worker{id: i, lowPriority: i >= lowStart, pool: p}
		p.workers[i] = w
		p.wg.Add(1)
		go p.runWorker(w)
	}
}

// Shutdown asks every worker to stop after its current VT yields and
// waits for them to exit. A worker abandoned by ForcePreempt never
// returns on its own, but its wg slot was already released when it was
// retired, so Shutdown does not wait on it.
func (p *Pool) Shutdown() {
	p.shutdown.Store(true)
	p.rq.WakeAll()
	p.wg.Wait()
}

func (p *Pool) isShutdown() bool { return p.shutdown.Load() }

func (p *Pool) runWorker(w *Worker) {
	defer w.retire()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tid := int32(unix.Gettid())
	p.states[w.id].Init(tid, w.lowPriority)
	registerCurrentWorker(w)
	defer unregisterCurrentWorker()

	idleSpins := uint32(0)
	for !p.isShutdown() {
		id, _, ok := p.rq.Pop(w.id)
		if !ok {
			idleSpins++
			if idleSpins < p.cfg.IdleSpins {
				runtime.Gosched()
				continue
			}
			p.rq.Park(p.cfg.ParkTimeout.Milliseconds())
			idleSpins = 0
			continue
		}
		idleSpins = 0

		meta := p.lookup(id)
		if meta == nil {
			continue // stale id from a race with Release; drop it
		}
		p.runOne(w, meta)
	}
}

// runOne drives meta through exactly one scheduling quantum: run it
// until it yields, blocks, is preempted, finishes, or is cancelled, and
// route it accordingly.
func (p *Pool) runOne(w *Worker, meta *vtcore.Metadata) {
	gen := meta.Generation()
	meta.SetWorker(vtcore.WorkerID(w.id))
	p.states[w.id].SetRunning(meta.ID(), gen, time.Now().UnixNano())

	done := make(chan struct{})
	go p.watchTimeSlice(w, meta, gen, done)

	switchVoluntary(meta)
	close(done)

	p.states[w.id].SetIdle()

	switch meta.State() {
	case vtcore.Ready, vtcore.Preempted:
		meta.SetState(vtcore.Ready)
		p.rq.Push(meta.ID(), meta.Priority(), w.id)
	case vtcore.Blocked:
		// Parked on a synchronization object or the reactor; whichever
		// side wakes it is responsible for re-pushing it (see channel.go's
		// wakeOneLocked in the root package and internal/timer's wake path).
	case vtcore.Finished, vtcore.Cancelled:
		p.release(meta.ID())
	default:
		p.logger.Errorf("sched: vt %s left worker in unexpected state %s", meta.ID(), meta.State())
	}
}

// watchTimeSlice sets the VT's cooperative preempt flag once
// cfg.TimeSlice has elapsed, and escalates to ForcePreempt after
// cfg.GracePeriod if the VT still hasn't yielded — spec §4.H's
// two-stage preemption, inlined per-VT here; internal/timer's dedicated
// monitor goroutine performs the identical scan for every running VT
// without one watcher goroutine each, and is what a production
// deployment should rely on. This per-call watcher exists so a Pool
// used standalone (without internal/timer wired in) still preempts.
func (p *Pool) watchTimeSlice(w *Worker, meta *vtcore.Metadata, gen uint32, done chan struct{}) {
	t := time.NewTimer(p.cfg.TimeSlice)
	defer t.Stop()
	select {
	case <-done:
		return
	case <-t.C:
	}
	meta.SetPreempt()

	if !p.cfg.EnableForcedPreempt {
		return
	}
	g := time.NewTimer(p.cfg.GracePeriod)
	defer g.Stop()
	select {
	case <-done:
		return
	case <-g.C:
	}
	if cur, curGen := p.states[w.id].CurrentVT(); cur == meta.ID() && curGen == gen {
		if err := p.ForcePreempt(w.id); err != nil {
			p.logger.Warnf("sched: force preempt worker %d: %v", w.id, err)
		}
	}
}

// Spawn allocates a slot, registers its Metadata, and enqueues it
// Ready. hintWorker selects the initial local-queue home (-1 for none,
// typically the spawning VT's own worker for cache locality).
func (p *Pool) Spawn(parent vtcore.ID, parentToken *vtcore.CancelToken, priority vtcore.Priority, hintWorker int, entry func(*vtcore.Metadata)) (*vtcore.Metadata, error) {
	if p.alloc.AllocatedCount() >= int32(p.cfg.MaxVThreads) {
		return nil, fmt.Errorf("sched: max vthreads (%d) reached", p.cfg.MaxVThreads)
	}
	meta, err := p.alloc.Allocate(parent, parentToken, priority, entry)
	if err != nil {
		return nil, err
	}
	initContext(meta)

	p.metaMu.Lock()
	p.metas[meta.ID()] = meta
	p.metaMu.Unlock()

	meta.SetState(vtcore.Ready)
	p.rq.Push(meta.ID(), priority, hintWorker)
	return meta, nil
}

// Requeue re-pushes a Blocked VT that has just been woken, e.g. by a
// Channel send, Mutex unlock, or a completed reactor I/O.
func (p *Pool) Requeue(id vtcore.ID) {
	meta := p.lookup(id)
	if meta == nil {
		return
	}
	meta.SetState(vtcore.Ready)
	hint := -1
	if w := meta.Worker(); !w.IsNone() {
		hint = int(w)
	}
	p.rq.Push(id, meta.Priority(), hint)
}

func (p *Pool) lookup(id vtcore.ID) *vtcore.Metadata {
	p.metaMu.RLock()
	defer p.metaMu.RUnlock()
	return p.metas[id]
}

// Lookup exposes lookup to other internal packages (timer, reactor)
// that need a VT's Metadata by id without importing the registry
// themselves.
func (p *Pool) Lookup(id vtcore.ID) *vtcore.Metadata { return p.lookup(id) }

func (p *Pool) release(id vtcore.ID) {
	p.metaMu.Lock()
	delete(p.metas, id)
	p.metaMu.Unlock()
	p.alloc.Release(id)
}

// NumWorkers reports the pool's worker count.
func (p *Pool) NumWorkers() int { return p.cfg.NumWorkers }

// Config returns the pool's configuration, for internal/timer's monitor
// to read TimeSlice/GracePeriod/EnableForcedPreempt without duplicating
// them.
func (p *Pool) Config() Config { return p.cfg }

// WorkerStates exposes the contiguous state array for internal/timer's
// preemption monitor scan.
func (p *Pool) WorkerStates() []WorkerState { return p.states }

// ForcePreempt is spec §4.H's forced-preemption escalation, rendered
// honestly for Go: there is no way for user code to deliver a signal
// that a registered handler could use to rewrite another goroutine's
// register file (no handler is installed anywhere in this package, and
// even if one were, the VT's entry closure runs on its own unpinned
// goroutine — see context.go and SPEC_FULL.md §0 — so a signal aimed at
// the worker's locked OS thread would not land on the VT's stack at
// all). A VT that never reaches a safepoint and never yields would, if
// nothing else happened, strand its worker's OS thread forever: the
// worker goroutine is blocked inside switchVoluntary's <-meta.BackChan()
// receive, and because it's LockOSThread'd that thread can never be
// reused by the Go scheduler for anything else.
//
// What ForcePreempt actually does — modeled on the Go runtime's own
// sysmon/retake handling of a goroutine that won't yield its M — is
// detach and replace: it atomically claims the stuck worker's slot via
// WorkerState.TryRetire, abandons (leaks) that worker's goroutine, OS
// thread, and runaway VT exactly as they are, and starts a brand new
// Worker in the same worker-id slot so the pool's total scheduling
// capacity is restored. The specific runaway VT is never recovered —
// it keeps running forever on its leaked thread — which is the
// documented deviation from spec §4.H/§8 testable property #6's literal
// "resume with a valid register file" framing; spec §1's own Non-goals
// already tolerate exactly this failure mode "by convention, not
// enforced". What this mechanism does guarantee, and what the rest of
// the pool depends on, is that one non-cooperative VT can never
// permanently shrink NumWorkers.
func (p *Pool) ForcePreempt(workerID int) error {
	if workerID < 0 || workerID >= len(p.states) {
		return fmt.Errorf("sched: worker id %d out of range", workerID)
	}
	st := &p.states[workerID]
	vt, _ := st.CurrentVT()
	if vt.IsNone() {
		return nil // nothing running on this worker right now
	}
	if !st.TryRetire(vt) {
		return nil // it yielded (or another caller already retired it) first
	}

	p.workersMu.Lock()
	old := p.workers[workerID]
	oldTid := old.pool.states[workerID].Tid()
	replacement := &Worker{id: workerID, lowPriority: old.lowPriority, pool: p}
	p.workers[workerID] = replacement
	p.workersMu.Unlock()

	old.retire()
	workerRegistry.Delete(oldTid)
	p.replacedWorkers.Add(1)

	p.wg.Add(1)
	go p.runWorker(replacement)

	p.logger.Warnf("sched: worker %d replaced after forced preemption of vt %s (its OS thread is leaked)", workerID, vt)
	return nil
}

// ReplacedWorkerCount reports how many times ForcePreempt has detached
// and replaced a worker, for diagnostics and tests.
func (p *Pool) ReplacedWorkerCount() int64 { return p.replacedWorkers.Load() }
