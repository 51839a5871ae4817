//go:build linux

package gvthread

import (
	"net"
	"os"
	"syscall"
	"unsafe"

	"github.com/kestrelrun/gvthread/internal/reactor"
)

// Listener wraps a bound, listening TCP socket, handing out Streams
// through the reactor's Accept tier (io_uring when supported, the
// epoll fallback otherwise) per §6's Listener::bind/accept.
type Listener struct {
	rt   *Runtime
	ln   *net.TCPListener
	file *os.File // keeps the dup'd fd alive; *os.File closes it on GC otherwise
	fd   int
}

// Bind creates a Listener on addr (e.g. "127.0.0.1:0"), matching §6's
// Listener::bind. Built on net.Listen for address parsing/resolution,
// the way the teacher's own tests obtain a listening fd to hand to
// io_uring (see internal/iouring's accept tests), then the raw fd is
// extracted and switched to non-blocking mode for the reactor.
func (rt *Runtime) Bind(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, newError(KindIO, err, "bind %s", addr)
	}
	tcpLn := ln.(*net.TCPListener)
	file, err := tcpLn.File()
	if err != nil {
		ln.Close()
		return nil, newError(KindIO, err, "extract listener fd")
	}
	fd := int(file.Fd())
	if err := syscall.SetNonblock(fd, true); err != nil {
		file.Close()
		ln.Close()
		return nil, newError(KindIO, err, "set listener non-blocking")
	}
	return &Listener{rt: rt, ln: tcpLn, file: file, fd: fd}, nil
}

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept blocks h until a connection arrives, matching §6's
// Listener::accept.
func (l *Listener) Accept(h *Handle) (*Stream, error) {
	var rawAddr syscall.RawSockaddrAny
	addrLen := uint32(unsafe.Sizeof(rawAddr))
	req := reactor.AcceptRequest(l.fd, unsafe.Pointer(&rawAddr), &addrLen, syscall.SOCK_NONBLOCK)
	res := l.rt.reactorFor(h.meta).SubmitAndBlock(h.meta, req)
	if h.Cancelled() {
		return nil, ErrCancelled
	}
	if res < 0 {
		return nil, newError(KindIO, syscall.Errno(-res), "accept")
	}
	return &Stream{rt: l.rt, fd: int(res)}, nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	_ = l.file.Close()
	return l.ln.Close()
}
