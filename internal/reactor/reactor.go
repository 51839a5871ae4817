//go:build linux

// Package reactor implements the per-worker io_uring reactor of spec
// §4.I: one ring per worker, a results slab shared across workers, and
// a routing table resolving each operation to its io_uring/worker-pool/
// legacy tier.
package reactor

import (
	"sync/atomic"
	"syscall"

	"github.com/kestrelrun/gvthread/internal/iouring"
	"github.com/kestrelrun/gvthread/internal/obs"
	"github.com/kestrelrun/gvthread/internal/sched"
	"github.com/kestrelrun/gvthread/internal/vtcore"
)

// wouldBlockResult/notImplementedResult are the synthetic CQE-like
// results the reactor writes when it can't even submit an operation,
// per §4.I: "If the SQE ring is full... 'would-block' error... If the
// opcode is unsupported... 'not implemented' error", both cases waking
// the VT immediately rather than leaving it parked.
const (
	wouldBlockResult     = -int64(unix_EAGAIN)
	notImplementedResult = -int64(unix_ENOSYS)
)

// unix_EAGAIN/unix_ENOSYS avoid importing golang.org/x/sys/unix here
// purely for two errno constants already available via syscall.
const (
	unix_EAGAIN = int64(syscall.EAGAIN)
	unix_ENOSYS = int64(syscall.ENOSYS)
)

// Reactor owns one worker's io_uring ring and correlates its
// completions back to submitting VTs via the shared ResultsSlab.
type Reactor struct {
	workerID int
	ring     *iouring.Ring
	routing  *RoutingTable
	slab     *ResultsSlab
	pool     *sched.Pool
	logger   obs.Logger
	epoll    *epollFallback

	inflight atomic.Int64
}

// New builds a Reactor for workerID, owning ring. slab is shared across
// every worker's Reactor.
func New(workerID int, ring *iouring.Ring, slab *ResultsSlab, pool *sched.Pool, logger obs.Logger) (*Reactor, error) {
	if logger == nil {
		logger = obs.NoopLogger{}
	}
	routing, err := NewRoutingTable(ring)
	if err != nil {
		return nil, err
	}
	epoll, err := newEpollFallback()
	if err != nil {
		return nil, err
	}
	return &Reactor{
		workerID: workerID,
		ring:     ring,
		routing:  routing,
		slab:     slab,
		pool:     pool,
		logger:   logger,
		epoll:    epoll,
	}, nil
}

// Close releases the reactor's ring and fallback poller. It first runs
// one non-blocking Poll, which records the completions already posted;
// it does not wait for operations still in flight, and it closes only
// the epoll instance and the ring, not the sockets or files that VTs
// opened through this reactor.
func (r *Reactor) Close() error {
	r.Poll()
	_ = r.epoll.close()
	return r.ring.Close()
}

// Submit builds and queues an SQE for req, tagged with vtID as
// user_data. It never blocks: a full SQ or an unsupported opcode is
// resolved immediately by writing a synthetic result and requeuing the
// VT, exactly as §4.I specifies.
func (r *Reactor) Submit(vtID vtcore.ID, req Request) {
	entry := r.routing.Resolve(req.Kind)

	switch entry.Tier {
	case TierIoUring:
		if err := r.prepOp(vtID, req); err != nil {
			r.failAndWake(vtID, err)
			return
		}
		r.inflight.Add(1)
	case TierLegacy:
		if req.Kind == OpAccept {
			r.submitLegacy(vtID, req)
		} else {
			r.failAndWake(vtID, syscall.ENOSYS)
		}
	default:
		r.failAndWake(vtID, syscall.ENOSYS)
	}
}

func (r *Reactor) prepOp(vtID vtcore.ID, req Request) error {
	userData := uint64(vtID)
	switch req.Kind {
	case OpRead:
		return r.ring.PrepRead(req.FD, req.Buf, req.Offset, userData)
	case OpWrite:
		return r.ring.PrepWrite(req.FD, req.Buf, req.Offset, userData)
	case OpAccept:
		return r.ring.PrepAccept(req.FD, req.Addr, req.AddrLen, req.Flags, userData)
	case OpRecv:
		return r.ring.PrepRecv(req.FD, req.Buf, int(req.Flags), userData)
	case OpSend:
		return r.ring.PrepSend(req.FD, req.Buf, int(req.Flags), userData)
	case OpConnect:
		return r.ring.PrepConnect(req.FD, req.Addr, req.AddrL, userData)
	case OpClose:
		return r.ring.PrepClose(req.FD, userData)
	case OpOpenat:
		return r.ring.PrepOpenat(req.FD, req.Path, int(req.Flags), req.Mode, userData)
	case OpShutdown:
		return r.ring.PrepShutdown(req.FD, req.How, userData)
	default:
		return syscall.ENOSYS
	}
}

// submitLegacy handles the TierLegacy accept fallback via epoll: wait
// for the listening fd to become readable, then perform a blocking
// accept4 directly (off the reactor's hot path, in its own goroutine)
// and write the real result.
func (r *Reactor) submitLegacy(vtID vtcore.ID, req Request) {
	ch, err := r.epoll.awaitReadable(req.FD)
	if err != nil {
		r.failAndWake(vtID, err)
		return
	}
	r.inflight.Add(1)
	go func() {
		<-ch
		nfd, _, err := syscall.Accept4(req.FD, int(req.Flags))
		r.inflight.Add(-1)
		if err != nil {
			r.slab.Set(uint32(vtID), -int64(errnoOf(err)))
		} else {
			r.slab.Set(uint32(vtID), int64(nfd))
		}
		r.pool.Requeue(vtID)
	}()
}

func errnoOf(err error) syscall.Errno {
	if errno, ok := err.(syscall.Errno); ok {
		return errno
	}
	return syscall.EIO
}

func (r *Reactor) failAndWake(vtID vtcore.ID, err error) {
	var result int64
	switch {
	case err == iouring.ErrSQFull:
		result = wouldBlockResult
	case err == syscall.ENOSYS:
		result = notImplementedResult
	default:
		if errno, ok := err.(syscall.Errno); ok {
			result = -int64(errno)
		} else {
			result = notImplementedResult
		}
	}
	r.slab.Set(uint32(vtID), result)
	r.pool.Requeue(vtID)
}

// Poll flushes any queued SQEs without blocking, then drains every
// currently-available CQE, writing each result into the slab and
// requeuing its VT with this worker as the affinity hint.
func (r *Reactor) Poll() int {
	r.epoll.poll()
	if _, err := r.ring.Submit(); err != nil {
		r.logger.Warnf("reactor: worker %d submit: %v", r.workerID, err)
	}
	return r.drain()
}

// WaitAndPoll submits any queued SQEs and blocks inside a single
// io_uring_enter(min_complete=1) until at least one completion arrives,
// then drains all available — the zero-CPU-spend path the worker loop
// uses when it has no ready VT but does have in-flight I/O.
func (r *Reactor) WaitAndPoll() int {
	if _, err := r.ring.SubmitAndWait(1); err != nil {
		if err != syscall.EINTR {
			r.logger.Warnf("reactor: worker %d wait: %v", r.workerID, err)
		}
		return 0
	}
	return r.drain()
}

func (r *Reactor) drain() int {
	n := r.ring.ForEachCQE(func(userData uint64, res int32, flags uint32) bool {
		vtID := uint32(userData)
		r.slab.Set(vtID, int64(res))
		r.inflight.Add(-1)
		r.pool.Requeue(vtcore.ID(vtID))
		return true
	})
	return n
}

// HasInflight reports whether this worker has any in-flight I/O
// (io_uring submissions or legacy-tier epoll waits), used by the worker
// loop to choose between WaitAndPoll and parking.
func (r *Reactor) HasInflight() bool {
	return r.inflight.Load() > 0
}

// SubmitAndBlock is the blocking-style helper of §4.I's pseudocode:
// submit the request, block the calling VT, and return the result once
// woken. meta must be the Metadata of the VT currently running on this
// reactor's worker (threaded explicitly, per vtcore.Metadata's entry
// field comment, rather than discovered via TLS).
func (r *Reactor) SubmitAndBlock(meta *vtcore.Metadata, req Request) int64 {
	r.Submit(meta.ID(), req)
	sched.Block(meta)
	return r.slab.Get(uint32(meta.ID()))
}
