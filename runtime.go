//go:build linux

package gvthread

import (
	"sync/atomic"
	"time"

	"github.com/kestrelrun/gvthread/internal/iouring"
	"github.com/kestrelrun/gvthread/internal/memory"
	"github.com/kestrelrun/gvthread/internal/obs"
	"github.com/kestrelrun/gvthread/internal/reactor"
	"github.com/kestrelrun/gvthread/internal/sched"
	"github.com/kestrelrun/gvthread/internal/timer"
	"github.com/kestrelrun/gvthread/internal/vtcore"
)

// Runtime is the top-level embedding type of §6: it owns the memory
// region, the worker pool, the timer thread, and one io_uring reactor
// per worker, and is the only way user code spawns VTs or blocks
// waiting for them.
type Runtime struct {
	cfg    Config
	logger obs.Logger

	region *memory.Region
	alloc  *memory.Allocator
	pool   *sched.Pool

	timerBackend  *timer.Backend
	timerRegistry *timer.Registry
	timerThread   *timer.Thread

	slab     *reactor.ResultsSlab
	reactors []*reactor.Reactor

	shutdown atomic.Bool
	pollDone chan struct{}
}

// New builds and starts a Runtime: reserves the memory region, starts
// cfg.NumWorkers worker threads, one io_uring ring + reactor per
// worker, and the dedicated timer/preemption-monitor thread.
func New(cfg Config) (*Runtime, error) {
	if cfg.NumWorkers == 0 {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, newError(KindFatal, err, "invalid configuration")
	}
	logger := cfg.logger()

	maxSlots := cfg.MaxSlots
	if cfg.MaxVThreads > maxSlots {
		maxSlots = cfg.MaxVThreads
	}
	region, err := memory.NewRegion(maxSlots)
	if err != nil {
		return nil, newError(KindFatal, err, "reserve memory region")
	}
	alloc := memory.NewAllocator(region)
	pool := sched.NewPool(cfg.Config, region, alloc, logger)

	backend := timer.NewBackend()
	registry := timer.NewRegistry(backend)
	thread := timer.NewThread(registry, pool, cfg.TimerInterval, logger)

	slab := reactor.NewResultsSlab(int(alloc.MaxSlots()))
	reactors := make([]*reactor.Reactor, cfg.NumWorkers)
	for i := 0; i < cfg.NumWorkers; i++ {
		ring, err := iouring.New(cfg.SQEntries)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = reactors[j].Close()
			}
			_ = region.Release()
			return nil, newError(KindFatal, err, "create io_uring ring for worker %d", i)
		}
		r, err := reactor.New(i, ring, slab, pool, logger)
		if err != nil {
			_ = ring.Close()
			for j := 0; j < i; j++ {
				_ = reactors[j].Close()
			}
			_ = region.Release()
			return nil, newError(KindFatal, err, "create reactor for worker %d", i)
		}
		reactors[i] = r
	}

	rt := &Runtime{
		cfg:           cfg,
		logger:        logger,
		region:        region,
		alloc:         alloc,
		pool:          pool,
		timerBackend:  backend,
		timerRegistry: registry,
		timerThread:   thread,
		slab:          slab,
		reactors:      reactors,
		pollDone:      make(chan struct{}),
	}

	pool.Start()
	thread.Start()
	go rt.pollLoop()
	return rt, nil
}

// pollLoop drains every worker's reactor on a short period. A blocking
// io_uring_enter per worker (the production shape) would need a way to
// interrupt the syscall on Shutdown that this module doesn't attempt;
// a bounded poll keeps shutdown simple and bounded at the cost of up to
// one period of added I/O latency.
func (rt *Runtime) pollLoop() {
	defer close(rt.pollDone)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for !rt.shutdown.Load() {
		<-ticker.C
		for _, r := range rt.reactors {
			r.Poll()
		}
	}
}

// BlockOn spawns fn as the runtime's root VT and blocks the calling OS
// thread until it finishes, matching §6's Runtime::block_on(fn).
func (rt *Runtime) BlockOn(fn func(*Handle)) {
	done := make(chan struct{})
	_, err := rt.spawn(Normal, nil, func(h *Handle) {
		defer close(done)
		fn(h)
	})
	if err != nil {
		rt.logger.Errorf("gvthread: BlockOn spawn failed: %v", err)
		return
	}
	<-done
}

// Shutdown asks every worker and the timer thread to stop, closes
// every reactor (each records the completions already posted, see
// reactor.Reactor.Close), and releases
// the memory region. Safe to call once; further Spawn calls return
// ErrShutdown.
func (rt *Runtime) Shutdown() {
	if !rt.shutdown.CompareAndSwap(false, true) {
		return
	}
	<-rt.pollDone
	rt.timerThread.Stop()
	rt.pool.Shutdown()
	for _, r := range rt.reactors {
		_ = r.Close()
	}
	_ = rt.region.Release()
}

func (rt *Runtime) isShutdown() bool { return rt.shutdown.Load() }

// reactorFor returns the reactor owned by meta's current worker, or
// worker 0's if meta isn't pinned yet (e.g. a child spawned but not
// yet scheduled).
func (rt *Runtime) reactorFor(meta *vtcore.Metadata) *reactor.Reactor {
	w := meta.Worker()
	if w.IsNone() || int(w) >= len(rt.reactors) {
		return rt.reactors[0]
	}
	return rt.reactors[w]
}
