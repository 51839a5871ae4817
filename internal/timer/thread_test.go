package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelrun/gvthread/internal/memory"
	"github.com/kestrelrun/gvthread/internal/sched"
	"github.com/kestrelrun/gvthread/internal/vtcore"
)

func newTestPool(t *testing.T, cfg sched.Config) *sched.Pool {
	t.Helper()
	region, err := memory.NewRegion(16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = region.Release() })
	alloc := memory.NewAllocator(region)
	pool := sched.NewPool(cfg, region, alloc, nil)
	pool.Start()
	t.Cleanup(pool.Shutdown)
	return pool
}

// TestThreadMonitorPreemptsLongRunningVT spawns a VT that never yields
// and checks the Thread's periodic scan marks it for cooperative
// preemption once it has run longer than TimeSlice.
func TestThreadMonitorPreemptsLongRunningVT(t *testing.T) {
	cfg := sched.DefaultConfig()
	cfg.NumWorkers = 1
	cfg.TimeSlice = 5 * time.Millisecond
	cfg.GracePeriod = time.Hour // don't escalate to ForcePreempt in this test
	cfg.EnableForcedPreempt = false

	pool := newTestPool(t, cfg)
	registry := NewRegistry(NewBackend())
	th := NewThread(registry, pool, 2*time.Millisecond, nil)
	th.Start()
	defer th.Stop()

	stop := make(chan struct{})
	done := make(chan struct{})
	meta, err := pool.Spawn(vtcore.None, nil, vtcore.Normal, -1, func(m *vtcore.Metadata) {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				time.Sleep(time.Millisecond)
			}
		}
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		m := pool.Lookup(meta.ID())
		return m != nil && m.PreemptSet()
	}, 200*time.Millisecond, 2*time.Millisecond, "monitor should flag the long-running VT")

	close(stop)
	<-done
}

// TestThreadDrainExpiredSkipsStaleIDs checks that a Sleep/Timeout entry
// referencing a VT that has already finished and been released is
// dropped safely instead of panicking or reviving a dead slot.
func TestThreadDrainExpiredSkipsStaleIDs(t *testing.T) {
	cfg := sched.DefaultConfig()
	cfg.NumWorkers = 1

	pool := newTestPool(t, cfg)
	registry := NewRegistry(NewBackend())
	th := NewThread(registry, pool, time.Hour, nil) // never ticks on its own

	done := make(chan struct{})
	meta, err := pool.Spawn(vtcore.None, nil, vtcore.Normal, -1, func(m *vtcore.Metadata) {
		close(done)
	})
	require.NoError(t, err)
	<-done
	require.Eventually(t, func() bool { return pool.Lookup(meta.ID()) == nil }, time.Second, time.Millisecond,
		"VT should be released once finished")

	registry.ScheduleSleep(meta.ID(), 0, -1)
	assert.NotPanics(t, func() { th.drainExpired(time.Now().Add(time.Second)) })
}

// TestThreadDrainExpiredSetsPreemptFlag checks the defensive KindPreempt
// path: an entry inserted directly through the Registry still flags the
// target VT, even though Thread's own monitor scan doesn't use it.
func TestThreadDrainExpiredSetsPreemptFlag(t *testing.T) {
	cfg := sched.DefaultConfig()
	cfg.NumWorkers = 1
	cfg.TimeSlice = time.Hour
	cfg.EnableForcedPreempt = false

	pool := newTestPool(t, cfg)
	registry := NewRegistry(NewBackend())
	th := NewThread(registry, pool, time.Hour, nil)

	stop := make(chan struct{})
	meta, err := pool.Spawn(vtcore.None, nil, vtcore.Normal, -1, func(m *vtcore.Metadata) {
		<-stop
	})
	require.NoError(t, err)

	registry.SchedulePreempt(meta.ID(), 0, 0)
	th.drainExpired(time.Now().Add(time.Second))

	assert.True(t, pool.Lookup(meta.ID()).PreemptSet())
	close(stop)
}
