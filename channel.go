//go:build linux

package gvthread

import (
	"sync"

	"github.com/kestrelrun/gvthread/internal/sched"
	"github.com/kestrelrun/gvthread/internal/vtcore"
)

// spinAttempts bounds the cooperative spin every Channel/Mutex
// operation tries before parking, per §9's resolved Open Question: a
// short bounded spin catches the common case where the complementary
// side is running concurrently on another worker and about to make
// progress, without wasting a full block/wake round trip.
const spinAttempts = 32

// Channel is a fixed-capacity (or capacity-0, synchronous) VT-aware
// channel implementing §6's channel(capacity). Sends and receives that
// can't proceed immediately register the calling VT as a waiter and
// block; the complementary operation requeues exactly one waiter
// directly rather than relying on a timer or a busy poll.
type Channel[T any] struct {
	rt *Runtime

	mu          sync.Mutex
	buf         []T
	capacity    int
	closed      bool
	sendWaiters []*vtcore.Metadata
	recvWaiters []*vtcore.Metadata
}

// NewChannel creates a channel with room for capacity buffered values
// of type T (capacity 0 is a synchronous rendezvous channel). A
// package-level generic function rather than a Runtime method, since
// Go methods can't carry their own type parameters.
func NewChannel[T any](rt *Runtime, capacity int) *Channel[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Channel[T]{
		rt:       rt,
		capacity: capacity,
		buf:      make([]T, 0, capacity),
	}
}

// Send blocks until v is accepted (buffered, or handed directly to a
// waiting receiver) or h is cancelled. Per §5, cancellation is only
// observed after Send is woken, never used to unblock it early.
func (c *Channel[T]) Send(h *Handle, v T) error {
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return newError(KindState, nil, "send on closed channel")
		}
		if len(c.buf) < c.capacity || len(c.recvWaiters) > 0 {
			c.buf = append(c.buf, v)
			c.wakeOneLocked(&c.recvWaiters)
			c.mu.Unlock()
			return nil
		}
		if attempt < spinAttempts {
			c.mu.Unlock()
			Yield(h)
			continue
		}
		c.sendWaiters = append(c.sendWaiters, h.meta)
		c.mu.Unlock()
		sched.Block(h.meta)
		if h.Cancelled() {
			return ErrCancelled
		}
	}
}

// Receive blocks until a value is available or the channel is closed
// and drained, returning ok=false in the latter case.
func (c *Channel[T]) Receive(h *Handle) (v T, ok bool, err error) {
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		if len(c.buf) > 0 {
			v = c.buf[0]
			c.buf = c.buf[1:]
			c.wakeOneLocked(&c.sendWaiters)
			c.mu.Unlock()
			return v, true, nil
		}
		if c.closed {
			c.mu.Unlock()
			return v, false, nil
		}
		if attempt < spinAttempts {
			c.mu.Unlock()
			Yield(h)
			continue
		}
		c.recvWaiters = append(c.recvWaiters, h.meta)
		c.mu.Unlock()
		sched.Block(h.meta)
		if h.Cancelled() {
			return v, false, ErrCancelled
		}
	}
}

// Close marks the channel closed. Buffered values already sent remain
// receivable; further Receive calls return ok=false once drained, and
// further Send calls return an error immediately.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, w := range c.sendWaiters {
		c.rt.pool.Requeue(w.ID())
	}
	for _, w := range c.recvWaiters {
		c.rt.pool.Requeue(w.ID())
	}
	c.sendWaiters = nil
	c.recvWaiters = nil
}

// wakeOneLocked pops and requeues a single waiter from the given list.
// Called with c.mu held.
func (c *Channel[T]) wakeOneLocked(waiters *[]*vtcore.Metadata) {
	if len(*waiters) == 0 {
		return
	}
	w := (*waiters)[0]
	*waiters = (*waiters)[1:]
	c.rt.pool.Requeue(w.ID())
}
