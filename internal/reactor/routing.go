//go:build linux

package reactor

import (
	"github.com/kestrelrun/gvthread/internal/iouring"
	"github.com/kestrelrun/gvthread/internal/iouring/sys"
)

// Tier names where a Request ultimately executes, per spec §4.I's
// routing table: "(a) Tier::IoUring(opcode) ... (b) Tier::WorkerPool
// ... (c) Tier::Legacy otherwise". The core hot path only ever expects
// TierIoUring; the other two exist for accept-heavy workloads on
// kernels missing an opcode, per SPEC_FULL.md's supplement of the
// peripheral tiers the distilled spec marks out of scope for the core.
type Tier uint8

const (
	TierIoUring Tier = iota
	TierWorkerPool
	TierLegacy
)

func (t Tier) String() string {
	switch t {
	case TierIoUring:
		return "io_uring"
	case TierWorkerPool:
		return "worker_pool"
	case TierLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// RoutingEntry is one resolved routing decision.
type RoutingEntry struct {
	Tier   Tier
	Opcode sys.Op // only meaningful when Tier == TierIoUring
}

// opcodeFor maps each OpKind to the io_uring opcode that implements it.
var opcodeFor = [opKindCount]sys.Op{
	OpRead:     sys.IORING_OP_READ,
	OpWrite:    sys.IORING_OP_WRITE,
	OpAccept:   sys.IORING_OP_ACCEPT,
	OpRecv:     sys.IORING_OP_RECV,
	OpSend:     sys.IORING_OP_SEND,
	OpConnect:  sys.IORING_OP_CONNECT,
	OpClose:    sys.IORING_OP_CLOSE,
	OpOpenat:   sys.IORING_OP_OPENAT,
	OpShutdown: sys.IORING_OP_SHUTDOWN,
}

// accept-family ops are the only ones this module gives a WorkerPool/
// Legacy fallback for: spec §4.I calls out "accept-heavy workloads" as
// the peripheral case worth wiring, and it's the one op an epoll-based
// poller can actually satisfy without a blocking helper thread (read/
// write/send/recv need one too, but a full blocking-thread pool is out
// of scope for this core per the spec's Non-goals).
var fallbackTier = map[OpKind]Tier{
	OpAccept: TierLegacy,
}

// RoutingTable resolves an OpKind to where it should execute, built
// once at reactor construction from an io_uring probe.
type RoutingTable struct {
	entries [opKindCount]RoutingEntry
}

// NewRoutingTable probes ring for opcode support and builds the table,
// grounded on spec §4.I's "discovered via io_uring's probe mechanism".
func NewRoutingTable(ring *iouring.Ring) (*RoutingTable, error) {
	probe, err := ring.Probe()
	if err != nil {
		return nil, err
	}
	rt := &RoutingTable{}
	for k := OpRead; k < opKindCount; k++ {
		op := opcodeFor[k]
		if probe.SupportsOp(op) {
			rt.entries[k] = RoutingEntry{Tier: TierIoUring, Opcode: op}
			continue
		}
		if tier, ok := fallbackTier[k]; ok {
			rt.entries[k] = RoutingEntry{Tier: tier}
			continue
		}
		rt.entries[k] = RoutingEntry{Tier: TierLegacy}
	}
	return rt, nil
}

// Resolve returns the routing decision for kind.
func (rt *RoutingTable) Resolve(kind OpKind) RoutingEntry {
	return rt.entries[kind]
}
