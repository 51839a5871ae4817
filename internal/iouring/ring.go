//go:build linux

// Package iouring is a minimal io_uring submission/completion binding:
// enough of the kernel ABI (spec Component I) to back one
// internal/reactor.Reactor per worker. It is deliberately not a
// general-purpose io_uring library — every exported method here is
// exercised by internal/reactor's routing table or one of the nine
// syscall families spec §4.I names (read/write/accept/recv/send/
// connect/close/openat/shutdown); SQPOLL/IOPOLL/fixed-buffer/fixed-file
// registration, multishot variants, timeouts, splice, and the other
// io_uring features a production driver would expose are out of scope
// because nothing in this module's routing table ever resolves to them
// — see DESIGN.md for the full accounting of what was trimmed.
package iouring

import (
	"errors"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/kestrelrun/gvthread/internal/iouring/sys"
)

var (
	ErrRingClosed = errors.New("iouring: ring closed")
	ErrSQFull     = errors.New("iouring: submission queue full")
)

// Ring is one io_uring instance: its mmap'd submission and completion
// queues plus the fd that owns them. One Reactor owns exactly one Ring.
type Ring struct {
	fd       int
	params   sys.Params
	features uint32

	sqRing    []byte
	sqEntries uint32
	sqMask    uint32
	sqHead    *uint32
	sqTail    *uint32
	sqArray   []uint32
	sqes      []sys.SQE
	sqesMmap  []byte

	cqRing []byte
	cqMask uint32
	cqHead *uint32
	cqTail *uint32
	cqes   []sys.CQE

	sqLock    sync.Mutex // serializes getSQE/Submit against concurrent Prep* calls
	sqPending uint32
	closed    atomic.Bool
}

// New opens an io_uring instance with at least entries submission-queue
// slots (rounded up to a power of 2 by the kernel). No setup flags are
// requested — see the package doc for why SQPOLL/IOPOLL aren't wired.
func New(entries uint32) (*Ring, error) {
	if entries == 0 {
		return nil, syscall.EINVAL
	}

	params := sys.Params{}
	fd, err := sys.Setup(entries, &params)
	if err != nil {
		return nil, err
	}

	r := &Ring{fd: fd, params: params, features: params.Features}
	if err := r.mapRings(); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	return r, nil
}

// mapRings maps the SQ, CQ, and SQE arrays into this process.
func (r *Ring) mapRings() error {
	p := &r.params

	sqRingSize := p.SQOff.Array + p.SQEntries*4
	cqRingSize := p.CQOff.CQEs + p.CQEntries*uint32(unsafe.Sizeof(sys.CQE{}))

	singleMmap := p.Features&sys.IORING_FEAT_SINGLE_MMAP != 0
	if singleMmap && cqRingSize > sqRingSize {
		sqRingSize = cqRingSize
	}

	var err error
	r.sqRing, err = sys.Mmap(r.fd, sys.IORING_OFF_SQ_RING, int(sqRingSize),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		return err
	}

	if singleMmap {
		r.cqRing = r.sqRing
	} else {
		r.cqRing, err = sys.Mmap(r.fd, sys.IORING_OFF_CQ_RING, int(cqRingSize),
			syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
		if err != nil {
			sys.Munmap(r.sqRing)
			return err
		}
	}

	sqeSize := p.SQEntries * uint32(unsafe.Sizeof(sys.SQE{}))
	r.sqesMmap, err = sys.Mmap(r.fd, sys.IORING_OFF_SQES, int(sqeSize),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		if !singleMmap {
			sys.Munmap(r.cqRing)
		}
		sys.Munmap(r.sqRing)
		return err
	}

	r.sqEntries = *(*uint32)(unsafe.Pointer(&r.sqRing[p.SQOff.RingEntries]))
	r.sqMask = *(*uint32)(unsafe.Pointer(&r.sqRing[p.SQOff.RingMask]))
	r.sqHead = (*uint32)(unsafe.Pointer(&r.sqRing[p.SQOff.Head]))
	r.sqTail = (*uint32)(unsafe.Pointer(&r.sqRing[p.SQOff.Tail]))

	sqArrayPtr := unsafe.Pointer(&r.sqRing[p.SQOff.Array])
	r.sqArray = unsafe.Slice((*uint32)(sqArrayPtr), r.sqEntries)

	sqesPtr := unsafe.Pointer(&r.sqesMmap[0])
	r.sqes = unsafe.Slice((*sys.SQE)(sqesPtr), p.SQEntries)

	r.cqMask = *(*uint32)(unsafe.Pointer(&r.cqRing[p.CQOff.RingMask]))
	cqEntries := *(*uint32)(unsafe.Pointer(&r.cqRing[p.CQOff.RingEntries]))
	r.cqHead = (*uint32)(unsafe.Pointer(&r.cqRing[p.CQOff.Head]))
	r.cqTail = (*uint32)(unsafe.Pointer(&r.cqRing[p.CQOff.Tail]))

	cqesPtr := unsafe.Pointer(&r.cqRing[p.CQOff.CQEs])
	r.cqes = unsafe.Slice((*sys.CQE)(cqesPtr), cqEntries)

	return nil
}

// Close unmaps the ring's memory and closes its fd.
func (r *Ring) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if r.params.Features&sys.IORING_FEAT_SINGLE_MMAP == 0 && r.cqRing != nil {
		sys.Munmap(r.cqRing)
	}
	if r.sqRing != nil {
		sys.Munmap(r.sqRing)
	}
	if r.sqesMmap != nil {
		sys.Munmap(r.sqesMmap)
	}
	return syscall.Close(r.fd)
}

// Fd returns the ring's file descriptor, e.g. for epoll-driven waiting.
func (r *Ring) Fd() int { return r.fd }

// Submit flushes all pending SQEs to the kernel without waiting for any
// completion. Returns the number of SQEs submitted.
func (r *Ring) Submit() (int, error) {
	if r.closed.Load() {
		return 0, ErrRingClosed
	}

	r.sqLock.Lock()
	submitted := r.sqPending
	if submitted == 0 {
		r.sqLock.Unlock()
		return 0, nil
	}
	tail := atomic.LoadUint32(r.sqTail)
	atomic.StoreUint32(r.sqTail, tail+submitted)
	r.sqPending = 0
	r.sqLock.Unlock()

	n, err := sys.Enter(r.fd, submitted, 0, 0, nil)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SubmitAndWait submits any pending SQEs and blocks until at least n
// completions are available.
func (r *Ring) SubmitAndWait(n uint32) (int, error) {
	if r.closed.Load() {
		return 0, ErrRingClosed
	}

	r.sqLock.Lock()
	submitted := r.sqPending
	if submitted > 0 {
		tail := atomic.LoadUint32(r.sqTail)
		atomic.StoreUint32(r.sqTail, tail+submitted)
		r.sqPending = 0
	}
	r.sqLock.Unlock()

	result, err := sys.Enter(r.fd, submitted, n, sys.IORING_ENTER_GETEVENTS, nil)
	if err != nil {
		return 0, err
	}
	return result, nil
}
