package memory

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Region is a single large virtual-memory reservation carved into
// fixed-size slots, mirroring original_source's MemoryRegion (the Rust
// runtime's global AtomicPtr<u8> + max_slots pair), but instance-scoped
// so a process can run more than one Runtime in tests.
//
// The reservation is made with PROT_NONE up front (unix.Mmap with
// PROT_NONE) so the address space is claimed without committing
// physical pages; Activate/Deactivate move a slot's metadata+stack
// pages between resident and non-resident via mprotect/madvise exactly
// as spec §4.A describes.
type Region struct {
	mu       sync.Mutex
	mem      []byte // the full PROT_NONE reservation, len == maxSlots*SlotSize
	maxSlots int
}

// NewRegion reserves virtual address space for maxSlots slots. The
// reservation is MAP_PRIVATE|MAP_ANONYMOUS|MAP_NORESERVE, matching
// unix.rs's init(): it must never be counted against RSS or the
// overcommit heuristic until a slot is actually activated.
func NewRegion(maxSlots int) (*Region, error) {
	if maxSlots <= 0 {
		return nil, fmt.Errorf("memory: maxSlots must be positive, got %d", maxSlots)
	}
	total := maxSlots * SlotSize
	mem, err := unix.Mmap(-1, 0, total,
		unix.PROT_NONE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("memory: reserve region: %w", err)
	}
	return &Region{mem: mem, maxSlots: maxSlots}, nil
}

// MaxSlots returns the number of slots the region was reserved for.
func (r *Region) MaxSlots() int { return r.maxSlots }

func (r *Region) checkSlot(slot int) error {
	if slot < 0 || slot >= r.maxSlots {
		return fmt.Errorf("memory: slot %d out of range [0,%d)", slot, r.maxSlots)
	}
	return nil
}

func (r *Region) slotBytes(slot int) []byte {
	off := slot * SlotSize
	return r.mem[off : off+SlotSize : off+SlotSize]
}

// Activate makes the metadata page and the filler stack region of slot
// readable/writable, leaving the trailing guard page PROT_NONE so a
// runaway write past the slot still faults.
func (r *Region) Activate(slot int) error {
	if err := r.checkSlot(slot); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	usable := r.slotBytes(slot)[:MetadataSize+StackSize]
	if err := unix.Mprotect(usable, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("memory: activate slot %d: %w", slot, err)
	}
	return nil
}

// Deactivate releases the physical pages backing slot's metadata and
// stack regions via MADV_DONTNEED; the virtual mapping (and its
// PROT_READ|PROT_WRITE protection) stays intact. Allocator.Allocate
// still calls Activate on every reuse, which re-applies the protection.
func (r *Region) Deactivate(slot int) error {
	if err := r.checkSlot(slot); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	usable := r.slotBytes(slot)[:MetadataSize+StackSize]
	for i := range usable {
		usable[i] = 0
	}
	if err := unix.Madvise(usable, unix.MADV_DONTNEED); err != nil {
		return fmt.Errorf("memory: deactivate slot %d: %w", slot, err)
	}
	return nil
}

// HeaderBytes returns the MetadataSize-length byte slice backing
// slot's metadata page, for use by SlotHeader. The slot must already
// be active.
func (r *Region) HeaderBytes(slot int) ([]byte, error) {
	if err := r.checkSlot(slot); err != nil {
		return nil, err
	}
	b := r.slotBytes(slot)[:MetadataSize:MetadataSize]
	return b, nil
}

// basePointer exposes slot's base address, mirroring the pointerFromMmap
// idiom used for go-ublk's mmap'd descriptor arrays: converting an
// mmap-obtained address to unsafe.Pointer is safe because the mapping's
// address is fixed for the mapping's lifetime.
func (r *Region) basePointer(slot int) unsafe.Pointer {
	return unsafe.Pointer(&r.slotBytes(slot)[0])
}

// Release unmaps the entire region. Callers must ensure no slot is in
// use by another goroutine.
func (r *Region) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	if err != nil {
		return fmt.Errorf("memory: release region: %w", err)
	}
	return nil
}
