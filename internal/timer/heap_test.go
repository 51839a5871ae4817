package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kestrelrun/gvthread/internal/vtcore"
)

func TestBackendPollExpiredOrdering(t *testing.T) {
	b := NewBackend()
	now := time.Now()

	h1 := b.Insert(newEntry(vtcore.ID(1), now.Add(30*time.Millisecond), -1, KindSleep, 0))
	h2 := b.Insert(newEntry(vtcore.ID(2), now.Add(10*time.Millisecond), -1, KindSleep, 0))
	h3 := b.Insert(newEntry(vtcore.ID(3), now.Add(20*time.Millisecond), -1, KindSleep, 0))

	expired := b.PollExpired(now.Add(25 * time.Millisecond))
	if assert.Len(t, expired, 2) {
		assert.Equal(t, h2, expired[0].Handle)
		assert.Equal(t, h3, expired[1].Handle)
	}

	remaining := b.PollExpired(now.Add(time.Hour))
	if assert.Len(t, remaining, 1) {
		assert.Equal(t, h1, remaining[0].Handle)
	}
}

func TestBackendCancelIsIdempotentAndSkipsFiring(t *testing.T) {
	b := NewBackend()
	now := time.Now()
	h := b.Insert(newEntry(vtcore.ID(1), now.Add(time.Millisecond), -1, KindTimeout, 0))

	assert.True(t, b.Cancel(h))
	assert.False(t, b.Cancel(h), "cancelling twice returns false")

	expired := b.PollExpired(now.Add(time.Hour))
	assert.Empty(t, expired, "cancelled entry never fires")
}

func TestBackendPeriodicReschedules(t *testing.T) {
	b := NewBackend()
	now := time.Now()
	b.Insert(newEntry(vtcore.ID(9), now.Add(time.Millisecond), -1, KindPeriodic, 5*time.Millisecond))

	first := b.PollExpired(now.Add(time.Hour))
	assert.Len(t, first, 1)
	assert.Equal(t, 1, b.Len(), "periodic entry reinserts itself")
}

func TestBackendNextDeadline(t *testing.T) {
	b := NewBackend()
	_, ok := b.NextDeadline()
	assert.False(t, ok)

	now := time.Now()
	b.Insert(newEntry(vtcore.ID(1), now.Add(time.Minute), -1, KindSleep, 0))
	d, ok := b.NextDeadline()
	assert.True(t, ok)
	assert.WithinDuration(t, now.Add(time.Minute), d, time.Second)
}

func TestBackendStats(t *testing.T) {
	b := NewBackend()
	now := time.Now()
	h := b.Insert(newEntry(vtcore.ID(1), now.Add(time.Millisecond), -1, KindSleep, 0))
	b.Cancel(h)
	b.Insert(newEntry(vtcore.ID(2), now.Add(time.Hour), -1, KindSleep, 0))

	s := b.Stats()
	assert.EqualValues(t, 2, s.TotalInserted)
	assert.EqualValues(t, 1, s.TotalCancelled)
	assert.Equal(t, 2, s.Active, "Active counts the raw heap, including the not-yet-drained cancellation")
	assert.Equal(t, 1, s.PendingCancellations)
}
