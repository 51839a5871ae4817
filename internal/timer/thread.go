package timer

import (
	"sync"
	"time"

	"github.com/kestrelrun/gvthread/internal/obs"
	"github.com/kestrelrun/gvthread/internal/sched"
)

// Thread is the single dedicated goroutine that drives both the timer
// heap and the preemption monitor of spec §4.H. Grounded on
// original_source's timer/worker.rs dedicated OS thread, adapted to a
// goroutine since nothing here blocks in a syscall: it only ticks,
// pops from the heap, and scans the worker-state array.
//
// Folding the monitor into this loop (rather than Pool's one-watcher-
// goroutine-per-running-VT fallback in watchTimeSlice) is what
// original_source does: a single periodic scan over every worker,
// instead of one timer per in-flight VT.
type Thread struct {
	registry *Registry
	pool     *sched.Pool
	interval time.Duration
	logger   obs.Logger

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewThread builds a Thread polling registry and pool every interval
// (typically cfg.TimerInterval).
func NewThread(registry *Registry, pool *sched.Pool, interval time.Duration, logger obs.Logger) *Thread {
	if logger == nil {
		logger = obs.NoopLogger{}
	}
	return &Thread{
		registry: registry,
		pool:     pool,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the goroutine. Safe to call once.
func (t *Thread) Start() {
	go t.run()
}

// Stop asks the goroutine to exit and waits for it to do so.
func (t *Thread) Stop() {
	t.once.Do(func() { close(t.stopCh) })
	<-t.doneCh
}

func (t *Thread) run() {
	defer close(t.doneCh)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case now := <-ticker.C:
			t.tick(now)
		}
	}
}

func (t *Thread) tick(now time.Time) {
	t.drainExpired(now)
	t.scanPreemption(now)
}

// drainExpired wakes every VT whose sleep/timeout/periodic timer has
// fired. Preempt-kind entries are not used by this Thread (the monitor
// scan below supersedes them) but are still drained defensively in case
// a caller inserted one directly through the Registry.
func (t *Thread) drainExpired(now time.Time) {
	for _, e := range t.registry.backend.PollExpired(now) {
		switch e.Kind {
		case KindSleep, KindTimeout, KindPeriodic:
			t.pool.Requeue(e.VTID)
		case KindPreempt:
			if meta := t.pool.Lookup(e.VTID); meta != nil {
				meta.SetPreempt()
			}
		}
	}
}

// scanPreemption walks the worker-state array once, marking any VT that
// has run longer than TimeSlice for cooperative preemption and, after an
// additional GracePeriod with no yield, escalating to Pool.ForcePreempt
// — which detaches and replaces the stuck worker rather than signaling
// it (see ForcePreempt's doc comment for why) — exactly as
// original_source's monitor thread escalates, but as one pass over a
// flat array instead of per-VT timer bookkeeping.
func (t *Thread) scanPreemption(now time.Time) {
	cfg := t.pool.Config()
	nowNS := now.UnixNano()

	for i, st := range t.pool.WorkerStates() {
		vt, gen := st.CurrentVT()
		if vt.IsNone() {
			continue
		}
		started := st.RunStartNS()
		if started == 0 {
			continue
		}
		elapsed := time.Duration(nowNS - started)
		if elapsed < cfg.TimeSlice {
			continue
		}

		meta := t.pool.Lookup(vt)
		if meta == nil || meta.Generation() != gen {
			continue // recycled since we read currentVT/currentGen
		}
		meta.SetPreempt()

		if !cfg.EnableForcedPreempt || elapsed < cfg.TimeSlice+cfg.GracePeriod {
			continue
		}
		if cur, curGen := t.pool.WorkerStates()[i].CurrentVT(); cur != vt || curGen != gen {
			continue // it yielded between our two reads
		}
		if err := t.pool.ForcePreempt(i); err != nil {
			t.logger.Warnf("timer: force preempt worker %d: %v", i, err)
		}
	}
}
