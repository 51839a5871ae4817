package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotHeaderPackedFlags(t *testing.T) {
	r, err := NewRegion(1)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Release()) })
	require.NoError(t, r.Activate(0))

	hdr, err := NewSlotHeader(r, 0)
	require.NoError(t, err)

	hdr.SetFlags(false, false, 2, 1)
	assert.False(t, hdr.Preempt())
	assert.False(t, hdr.Cancel())
	assert.Equal(t, uint8(2), hdr.State())
	assert.Equal(t, uint8(1), hdr.Priority())

	hdr.SetPreempt(true)
	assert.True(t, hdr.Preempt())
	assert.Equal(t, uint8(2), hdr.State(), "setting preempt must not disturb state")

	hdr.SetCancel(true)
	assert.True(t, hdr.Cancel())
	assert.True(t, hdr.Preempt(), "setting cancel must not clear preempt")

	hdr.SetState(5)
	assert.Equal(t, uint8(5), hdr.State())
	assert.True(t, hdr.Cancel(), "setting state must not clear cancel")
}

func TestSlotHeaderClear(t *testing.T) {
	r, err := NewRegion(1)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Release()) })
	require.NoError(t, r.Activate(0))

	hdr, err := NewSlotHeader(r, 0)
	require.NoError(t, err)

	hdr.SetFlags(true, true, 3, 2)
	hdr.SetVTID(9)
	hdr.SetParentID(8)
	hdr.SetWorkerID(1)

	hdr.Clear()
	assert.False(t, hdr.Preempt())
	assert.False(t, hdr.Cancel())
	assert.Equal(t, uint8(0), hdr.State())
	assert.Equal(t, uint32(0), hdr.VTID())
	assert.Equal(t, uint32(0), hdr.ParentID())
	assert.Equal(t, uint32(0), hdr.WorkerID())
}
