//go:build linux

package iouring

import "github.com/kestrelrun/gvthread/internal/iouring/sys"

// Probe reports which io_uring opcodes this kernel supports, backing
// internal/reactor's RoutingTable (spec §4.I: "discovered via io_uring's
// probe mechanism").
type Probe struct {
	probe sys.Probe
}

// Probe queries the kernel for supported operations.
func (r *Ring) Probe() (*Probe, error) {
	p := &Probe{}
	if err := sys.RegisterProbe(r.fd, &p.probe); err != nil {
		return nil, err
	}
	return p, nil
}

// SupportsOp reports whether op is implemented by this kernel.
func (p *Probe) SupportsOp(op sys.Op) bool {
	if uint8(op) > p.probe.LastOp || int(op) >= len(p.probe.Ops) {
		return false
	}
	return p.probe.Ops[op].Flags&sys.IO_URING_OP_SUPPORTED != 0
}
