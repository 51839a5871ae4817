//go:build linux

package gvthread

import (
	"sync"

	"github.com/kestrelrun/gvthread/internal/sched"
	"github.com/kestrelrun/gvthread/internal/vtcore"
)

// Mutex is a VT-aware lock implementing §6's Mutex::new. Unlike
// sync.Mutex, contending VTs yield/block cooperatively instead of
// parking the underlying OS thread, so a worker stays free to run
// other VTs while one waits for the lock.
type Mutex struct {
	rt *Runtime

	mu      sync.Mutex
	held    bool
	waiters []*vtcore.Metadata
}

// NewMutex returns an unlocked Mutex.
func NewMutex(rt *Runtime) *Mutex {
	return &Mutex{rt: rt}
}

// Lock blocks h until the mutex is acquired or h is cancelled.
func (m *Mutex) Lock(h *Handle) error {
	for attempt := 0; ; attempt++ {
		m.mu.Lock()
		if !m.held {
			m.held = true
			m.mu.Unlock()
			return nil
		}
		if attempt < spinAttempts {
			m.mu.Unlock()
			Yield(h)
			continue
		}
		m.waiters = append(m.waiters, h.meta)
		m.mu.Unlock()
		sched.Block(h.meta)
		if h.Cancelled() {
			return ErrCancelled
		}
	}
}

// TryLock attempts to acquire the mutex without blocking, matching
// §6's try_lock.
func (m *Mutex) TryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held {
		return false
	}
	m.held = true
	return true
}

// Unlock releases the mutex, handing it directly to the next waiter
// if one is parked rather than letting late arrivals race for it.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.waiters) == 0 {
		m.held = false
		return
	}
	w := m.waiters[0]
	m.waiters = m.waiters[1:]
	// held stays true: ownership passes straight to w.
	m.rt.pool.Requeue(w.ID())
}
