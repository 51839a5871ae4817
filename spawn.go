//go:build linux

package gvthread

import (
	"errors"

	"github.com/kestrelrun/gvthread/internal/memory"
	"github.com/kestrelrun/gvthread/internal/vtcore"
)

// Spawn starts fn as a new VT at Normal priority with no parent,
// matching §6's spawn(closure).
func (rt *Runtime) Spawn(fn func(*Handle)) (*Handle, error) {
	return rt.spawn(Normal, nil, fn)
}

// SpawnWithPriority starts fn as a new VT at the given priority,
// matching §6's spawn_with_priority(closure, priority).
func (rt *Runtime) SpawnWithPriority(priority Priority, fn func(*Handle)) (*Handle, error) {
	return rt.spawn(priority, nil, fn)
}

// Spawn starts fn as a child VT of h: cancelling h also cancels fn
// (§5's hierarchical cancellation), and fn inherits h's priority.
func (h *Handle) Spawn(fn func(*Handle)) (*Handle, error) {
	return h.rt.spawn(h.meta.Priority(), h.meta, fn)
}

// SpawnWithPriority starts fn as a child VT of h at the given priority.
func (h *Handle) SpawnWithPriority(priority Priority, fn func(*Handle)) (*Handle, error) {
	return h.rt.spawn(priority, h.meta, fn)
}

func (rt *Runtime) spawn(priority Priority, parent *vtcore.Metadata, fn func(*Handle)) (*Handle, error) {
	if rt.isShutdown() {
		return nil, newError(KindState, ErrShutdown, "spawn after shutdown")
	}
	if !priority.Valid() {
		return nil, newError(KindState, nil, "invalid priority %v", priority)
	}

	parentID := vtcore.None
	var parentToken *vtcore.CancelToken
	if parent != nil {
		parentID = parent.ID()
		parentToken = parent.Token()
	}

	var out *Handle
	meta, err := rt.pool.Spawn(parentID, parentToken, priority, -1, func(m *vtcore.Metadata) {
		fn(&Handle{meta: m, rt: rt})
	})
	if err != nil {
		if errors.Is(err, memory.ErrNoSlotsAvailable) || rt.alloc.AllocatedCount() >= int32(rt.cfg.MaxVThreads) {
			return nil, newError(KindCapacity, ErrNoSlots, "no free VT slots: %v", err)
		}
		return nil, newError(KindCapacity, err, "spawn failed")
	}
	out = &Handle{meta: meta, rt: rt}
	return out, nil
}
