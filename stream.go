//go:build linux

package gvthread

import (
	"syscall"

	"github.com/kestrelrun/gvthread/internal/reactor"
)

// Stream is a connected socket driven entirely through the reactor, as
// §6's Stream::read/write/write_all/close.
type Stream struct {
	rt *Runtime
	fd int
}

// Read reads into buf, blocking h until at least one byte arrives,
// EOF, or an error.
func (s *Stream) Read(h *Handle, buf []byte) (int, error) {
	req := reactor.ReadRequest(s.fd, buf, 0)
	res := s.rt.reactorFor(h.meta).SubmitAndBlock(h.meta, req)
	if h.Cancelled() {
		return 0, ErrCancelled
	}
	if res < 0 {
		return 0, newError(KindIO, syscall.Errno(-res), "read")
	}
	return int(res), nil
}

// Write writes buf, blocking h until the kernel accepts some or all of
// it. Matches §6's write (a single, possibly short, write call).
func (s *Stream) Write(h *Handle, buf []byte) (int, error) {
	req := reactor.WriteRequest(s.fd, buf, 0)
	res := s.rt.reactorFor(h.meta).SubmitAndBlock(h.meta, req)
	if h.Cancelled() {
		return 0, ErrCancelled
	}
	if res < 0 {
		return 0, newError(KindIO, syscall.Errno(-res), "write")
	}
	return int(res), nil
}

// WriteAll writes buf in full, looping over short writes, matching
// §6's write_all.
func (s *Stream) WriteAll(h *Handle, buf []byte) error {
	for len(buf) > 0 {
		n, err := s.Write(h, buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// Close shuts down and closes the underlying socket, matching §6's
// Stream::close. Both steps go through the reactor so they share the
// same fairness and routing as every other operation on this stream.
func (s *Stream) Close(h *Handle) error {
	shutReq := reactor.ShutdownRequest(s.fd, syscall.SHUT_RDWR)
	s.rt.reactorFor(h.meta).SubmitAndBlock(h.meta, shutReq)

	closeReq := reactor.CloseRequest(s.fd)
	res := s.rt.reactorFor(h.meta).SubmitAndBlock(h.meta, closeReq)
	if res < 0 {
		return newError(KindIO, syscall.Errno(-res), "close")
	}
	return nil
}
