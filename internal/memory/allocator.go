package memory

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kestrelrun/gvthread/internal/vtcore"
)

// ErrNoSlotsAvailable is returned by Allocator.Allocate once both the
// free stack and the fresh high-water mark are exhausted.
var ErrNoSlotsAvailable = errors.New("memory: no slots available")

// Allocator hands out VT slots from a Region, grounded on
// original_source's SlotAllocator: a LIFO free stack serves recently
// released slots first (their pages are still cache-warm and, before
// deactivation, still resident), falling back to a monotonically
// increasing "fresh" counter for slots never used before.
type Allocator struct {
	region *Region

	mu        sync.Mutex
	freeStack []uint32

	nextFresh atomic.Uint32
	allocated atomic.Int32
	maxSlots  uint32

	headers []*SlotHeader // lazily populated, index == slot id
	hmu     sync.Mutex
}

// NewAllocator creates an Allocator over region, capped at the
// region's slot count.
func NewAllocator(region *Region) *Allocator {
	max := uint32(region.MaxSlots())
	return &Allocator{
		region:    region,
		freeStack: make([]uint32, 0, max),
		maxSlots:  max,
		headers:   make([]*SlotHeader, max),
	}
}

// Allocate reserves a slot, activates its memory, and returns fresh
// vtcore.Metadata bound to that slot's id.
func (a *Allocator) Allocate(parent vtcore.ID, parentToken *vtcore.CancelToken, priority vtcore.Priority, entry func(*vtcore.Metadata)) (*vtcore.Metadata, error) {
	id, err := a.allocateSlot()
	if err != nil {
		return nil, err
	}
	if err := a.region.Activate(int(id)); err != nil {
		a.Release(vtcore.ID(id))
		return nil, err
	}

	hdr, err := a.headerFor(id)
	if err != nil {
		a.Release(vtcore.ID(id))
		return nil, err
	}
	hdr.Clear()
	hdr.SetVTID(id)
	if parent.IsNone() {
		hdr.SetParentID(uint32(vtcore.None))
	} else {
		hdr.SetParentID(uint32(parent))
	}
	hdr.SetWorkerID(uint32(vtcore.NoWorker))
	hdr.SetPriority(uint8(priority))
	hdr.SetState(uint8(vtcore.Created))

	meta := vtcore.New(vtcore.ID(id), 0)
	meta.Reset(parent, parentToken, priority, entry)
	return meta, nil
}

func (a *Allocator) allocateSlot() (uint32, error) {
	a.mu.Lock()
	if n := len(a.freeStack); n > 0 {
		id := a.freeStack[n-1]
		a.freeStack = a.freeStack[:n-1]
		a.mu.Unlock()
		a.allocated.Add(1)
		return id, nil
	}
	a.mu.Unlock()

	for {
		cur := a.nextFresh.Load()
		if cur >= a.maxSlots {
			return 0, ErrNoSlotsAvailable
		}
		if a.nextFresh.CompareAndSwap(cur, cur+1) {
			a.allocated.Add(1)
			return cur, nil
		}
	}
}

func (a *Allocator) headerFor(id uint32) (*SlotHeader, error) {
	a.hmu.Lock()
	defer a.hmu.Unlock()
	if h := a.headers[id]; h != nil {
		return h, nil
	}
	h, err := NewSlotHeader(a.region, int(id))
	if err != nil {
		return nil, err
	}
	a.headers[id] = h
	return h, nil
}

// Release deactivates id's slot memory and returns it to the free
// stack for LIFO reuse.
func (a *Allocator) Release(id vtcore.ID) {
	if id.IsNone() {
		return
	}
	_ = a.region.Deactivate(int(id))

	a.mu.Lock()
	a.freeStack = append(a.freeStack, uint32(id))
	a.mu.Unlock()
	a.allocated.Add(-1)
}

// AllocatedCount returns the number of slots currently in use.
func (a *Allocator) AllocatedCount() int32 { return a.allocated.Load() }

// MaxSlots returns the allocator's slot capacity.
func (a *Allocator) MaxSlots() uint32 { return a.maxSlots }

// FreshRemaining returns the number of never-used slot ids left.
func (a *Allocator) FreshRemaining() uint32 {
	cur := a.nextFresh.Load()
	if cur >= a.maxSlots {
		return 0
	}
	return a.maxSlots - cur
}
