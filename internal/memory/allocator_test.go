package memory

import (
	"sync"
	"testing"

	"github.com/kestrelrun/gvthread/internal/vtcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, slots int) *Allocator {
	t.Helper()
	r, err := NewRegion(slots)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Release()) })
	return NewAllocator(r)
}

func TestAllocatorSequential(t *testing.T) {
	a := newTestAllocator(t, 100)

	m1, err := a.Allocate(vtcore.None, nil, vtcore.Normal, nil)
	require.NoError(t, err)
	m2, err := a.Allocate(vtcore.None, nil, vtcore.Normal, nil)
	require.NoError(t, err)

	assert.Equal(t, vtcore.ID(0), m1.ID())
	assert.Equal(t, vtcore.ID(1), m2.ID())
	assert.EqualValues(t, 2, a.AllocatedCount())
}

func TestAllocatorReleaseReusesLIFO(t *testing.T) {
	a := newTestAllocator(t, 100)

	m1, err := a.Allocate(vtcore.None, nil, vtcore.Normal, nil)
	require.NoError(t, err)
	_, err = a.Allocate(vtcore.None, nil, vtcore.Normal, nil)
	require.NoError(t, err)

	a.Release(m1.ID())
	assert.EqualValues(t, 1, a.AllocatedCount())

	m3, err := a.Allocate(vtcore.None, nil, vtcore.Normal, nil)
	require.NoError(t, err)
	assert.Equal(t, m1.ID(), m3.ID(), "LIFO reuse should hand back the just-released slot")
}

func TestAllocatorExhaustion(t *testing.T) {
	a := newTestAllocator(t, 2)

	_, err := a.Allocate(vtcore.None, nil, vtcore.Normal, nil)
	require.NoError(t, err)
	_, err = a.Allocate(vtcore.None, nil, vtcore.Normal, nil)
	require.NoError(t, err)

	_, err = a.Allocate(vtcore.None, nil, vtcore.Normal, nil)
	assert.ErrorIs(t, err, ErrNoSlotsAvailable)
}

func TestAllocatorConcurrent(t *testing.T) {
	const workers, perWorker = 4, 200
	a := newTestAllocator(t, workers*perWorker)

	ids := make(chan vtcore.ID, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m, err := a.Allocate(vtcore.None, nil, vtcore.Normal, nil)
				require.NoError(t, err)
				ids <- m.ID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[vtcore.ID]bool)
	for id := range ids {
		require.False(t, seen[id], "duplicate slot id %v", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers*perWorker)
}
