//go:build linux

package iouring

import (
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/kestrelrun/gvthread/internal/iouring/sys"
)

func skipIfNoIOURing(t *testing.T) *Ring {
	t.Helper()
	ring, err := New(32)
	if err != nil {
		switch err {
		case syscall.ENOSYS:
			t.Skip("io_uring not supported on this kernel")
		case syscall.EPERM:
			t.Skip("io_uring blocked by seccomp or permissions")
		}
		t.Skipf("io_uring unavailable: %v", err)
	}
	t.Cleanup(func() { ring.Close() })
	return ring
}

func TestNewRejectsZeroEntries(t *testing.T) {
	if _, err := New(0); err != syscall.EINVAL {
		t.Fatalf("New(0) error = %v, want EINVAL", err)
	}
}

func TestNewAcceptsNonPowerOfTwoEntries(t *testing.T) {
	ring, err := New(100) // kernel rounds this up to 128
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	t.Cleanup(func() { ring.Close() })
	if ring.Fd() < 0 {
		t.Fatal("ring fd should be valid")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ring := skipIfNoIOURing(t)
	if err := ring.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := ring.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}

func TestSubmitWithNothingPendingIsNoop(t *testing.T) {
	ring := skipIfNoIOURing(t)
	n, err := ring.Submit()
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if n != 0 {
		t.Fatalf("Submit() = %d, want 0", n)
	}
}

func TestSubmitOnClosedRingErrors(t *testing.T) {
	ring := skipIfNoIOURing(t)
	ring.Close()
	if _, err := ring.Submit(); err != ErrRingClosed {
		t.Fatalf("Submit on closed ring = %v, want ErrRingClosed", err)
	}
	if _, err := ring.SubmitAndWait(0); err != ErrRingClosed {
		t.Fatalf("SubmitAndWait on closed ring = %v, want ErrRingClosed", err)
	}
}

// TestReadWriteRoundTrip exercises exactly the path internal/reactor
// drives: PrepRead/PrepWrite tagged with a VT id, Submit, and
// ForEachCQE routing the completion back by that same id.
func TestReadWriteRoundTrip(t *testing.T) {
	ring := skipIfNoIOURing(t)

	f, err := os.CreateTemp(t.TempDir(), "iouring-rw")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	const vtID = uint64(42)
	payload := []byte("hello io_uring")
	if err := ring.PrepWrite(int(f.Fd()), payload, 0, vtID); err != nil {
		t.Fatalf("PrepWrite: %v", err)
	}
	if _, err := ring.SubmitAndWait(1); err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}

	var gotWrite bool
	ring.ForEachCQE(func(userData uint64, res int32, flags uint32) bool {
		if userData != vtID {
			t.Errorf("write CQE userData = %d, want %d", userData, vtID)
		}
		if res != int32(len(payload)) {
			t.Errorf("write CQE res = %d, want %d", res, len(payload))
		}
		gotWrite = true
		return true
	})
	if !gotWrite {
		t.Fatal("write CQE never arrived")
	}

	buf := make([]byte, len(payload))
	if err := ring.PrepRead(int(f.Fd()), buf, 0, vtID+1); err != nil {
		t.Fatalf("PrepRead: %v", err)
	}
	if _, err := ring.SubmitAndWait(1); err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}

	var gotRead bool
	ring.ForEachCQE(func(userData uint64, res int32, flags uint32) bool {
		if userData != vtID+1 {
			t.Errorf("read CQE userData = %d, want %d", userData, vtID+1)
		}
		gotRead = true
		return true
	})
	if !gotRead {
		t.Fatal("read CQE never arrived")
	}
	if string(buf) != string(payload) {
		t.Fatalf("read back %q, want %q", buf, payload)
	}
}

// TestSubmissionQueueFillsUp checks that once every slot is pending,
// getSQE (via PrepRead) returns ErrSQFull instead of silently
// overwriting an in-flight entry — the condition internal/reactor's
// Submit relies on to fall back to a synthetic would-block result.
func TestSubmissionQueueFillsUp(t *testing.T) {
	ring, err := New(4) // kernel rounds this up, but stays small and bounded
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	t.Cleanup(func() { ring.Close() })

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatalf("open /dev/null: %v", err)
	}
	defer devNull.Close()

	buf := make([]byte, 1)
	var filled int
	for i := 0; i < 4096; i++ {
		if err := ring.PrepRead(int(devNull.Fd()), buf, 0, uint64(i)); err != nil {
			if err == ErrSQFull {
				return // reached capacity as expected
			}
			t.Fatalf("PrepRead at %d: %v", i, err)
		}
		filled++
	}
	t.Fatalf("submission queue never reported full after %d entries", filled)
}

func TestAcceptConnectRoundTrip(t *testing.T) {
	ring := skipIfNoIOURing(t)

	probe, err := ring.Probe()
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !probe.SupportsOp(sys.IORING_OP_ACCEPT) || !probe.SupportsOp(sys.IORING_OP_CONNECT) {
		t.Skip("kernel doesn't support accept/connect opcodes")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	lnFile, err := ln.(*net.TCPListener).File()
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	defer lnFile.Close()

	var addrLen uint32
	if err := ring.PrepAccept(int(lnFile.Fd()), nil, &addrLen, 0, 1); err != nil {
		t.Fatalf("PrepAccept: %v", err)
	}
	if _, err := ring.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := ring.SubmitAndWait(1); err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}

	var acceptedFD int32 = -1
	ring.ForEachCQE(func(userData uint64, res int32, flags uint32) bool {
		if userData == 1 {
			acceptedFD = res
		}
		return true
	})
	if acceptedFD < 0 {
		t.Fatalf("accept CQE result = %d, want a valid fd", acceptedFD)
	}
	syscall.Close(int(acceptedFD))
}

func TestCloseOpcode(t *testing.T) {
	ring := skipIfNoIOURing(t)

	f, err := os.CreateTemp(t.TempDir(), "iouring-close")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	fd := int(f.Fd())

	if err := ring.PrepClose(fd, 7); err != nil {
		t.Fatalf("PrepClose: %v", err)
	}
	if _, err := ring.SubmitAndWait(1); err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}

	var res int32 = 1
	ring.ForEachCQE(func(userData uint64, r int32, flags uint32) bool {
		if userData == 7 {
			res = r
		}
		return true
	})
	if res != 0 {
		t.Fatalf("close CQE res = %d, want 0", res)
	}
}

func TestProbeReportsSupportedOps(t *testing.T) {
	ring := skipIfNoIOURing(t)

	probe, err := ring.Probe()
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	for _, op := range []sys.Op{sys.IORING_OP_READ, sys.IORING_OP_WRITE} {
		if !probe.SupportsOp(op) {
			t.Errorf("expected op %d to be reported as supported on any kernel new enough to run io_uring at all", op)
		}
	}
	if probe.SupportsOp(sys.IORING_OP_LAST) {
		t.Error("sentinel op IORING_OP_LAST should never be reported as supported")
	}
}
