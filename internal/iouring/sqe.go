//go:build linux

package iouring

import (
	"sync/atomic"
	"unsafe"

	"github.com/kestrelrun/gvthread/internal/iouring/sys"
)

// getSQE returns the next available SQE, or nil if the submission queue
// is full. Caller must hold sqLock.
func (r *Ring) getSQE() *sys.SQE {
	head := atomic.LoadUint32(r.sqHead)
	tail := atomic.LoadUint32(r.sqTail) + r.sqPending

	if tail-head >= r.sqEntries {
		return nil
	}

	idx := tail & r.sqMask
	sqe := &r.sqes[idx]
	*sqe = sys.SQE{}

	r.sqArray[idx] = idx
	r.sqPending++

	return sqe
}

// vtData packs a VT id as io_uring user_data, keeping the encoding in
// one place since every Prep* call below carries it.
func vtData(vtID uint64) uint64 { return vtID }

// PrepRead prepares a read of len(buf) bytes from fd at offset, tagged
// with vtID so internal/reactor can route the completion back to the
// submitting VT.
func (r *Ring) PrepRead(fd int, buf []byte, offset uint64, vtID uint64) error {
	if len(buf) == 0 {
		return nil
	}
	r.sqLock.Lock()
	defer r.sqLock.Unlock()
	sqe := r.getSQE()
	if sqe == nil {
		return ErrSQFull
	}
	sqe.Opcode = uint8(sys.IORING_OP_READ)
	sqe.Fd = int32(fd)
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	sqe.Len = uint32(len(buf))
	sqe.Off = offset
	sqe.UserData = vtData(vtID)
	return nil
}

// PrepWrite prepares a write of len(buf) bytes from buf to fd at offset.
func (r *Ring) PrepWrite(fd int, buf []byte, offset uint64, vtID uint64) error {
	if len(buf) == 0 {
		return nil
	}
	r.sqLock.Lock()
	defer r.sqLock.Unlock()
	sqe := r.getSQE()
	if sqe == nil {
		return ErrSQFull
	}
	sqe.Opcode = uint8(sys.IORING_OP_WRITE)
	sqe.Fd = int32(fd)
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	sqe.Len = uint32(len(buf))
	sqe.Off = offset
	sqe.UserData = vtData(vtID)
	return nil
}

// PrepAccept prepares an accept4 on the listening socket fd. addr/addrLen
// may be nil when the peer address isn't needed.
func (r *Ring) PrepAccept(fd int, addr unsafe.Pointer, addrLen *uint32, flags uint32, vtID uint64) error {
	r.sqLock.Lock()
	defer r.sqLock.Unlock()
	sqe := r.getSQE()
	if sqe == nil {
		return ErrSQFull
	}
	sqe.Opcode = uint8(sys.IORING_OP_ACCEPT)
	sqe.Fd = int32(fd)
	sqe.Addr = uint64(uintptr(addr))
	sqe.Off = uint64(uintptr(unsafe.Pointer(addrLen)))
	sqe.OpFlags = flags
	sqe.UserData = vtData(vtID)
	return nil
}

// PrepConnect prepares a connect on fd to the sockaddr at addr/addrLen.
func (r *Ring) PrepConnect(fd int, addr unsafe.Pointer, addrLen uint32, vtID uint64) error {
	r.sqLock.Lock()
	defer r.sqLock.Unlock()
	sqe := r.getSQE()
	if sqe == nil {
		return ErrSQFull
	}
	sqe.Opcode = uint8(sys.IORING_OP_CONNECT)
	sqe.Fd = int32(fd)
	sqe.Addr = uint64(uintptr(addr))
	sqe.Off = uint64(addrLen)
	sqe.UserData = vtData(vtID)
	return nil
}

// PrepSend prepares a send of buf on fd.
func (r *Ring) PrepSend(fd int, buf []byte, flags int, vtID uint64) error {
	if len(buf) == 0 {
		return nil
	}
	r.sqLock.Lock()
	defer r.sqLock.Unlock()
	sqe := r.getSQE()
	if sqe == nil {
		return ErrSQFull
	}
	sqe.Opcode = uint8(sys.IORING_OP_SEND)
	sqe.Fd = int32(fd)
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	sqe.Len = uint32(len(buf))
	sqe.OpFlags = uint32(flags)
	sqe.UserData = vtData(vtID)
	return nil
}

// PrepRecv prepares a recv into buf on fd.
func (r *Ring) PrepRecv(fd int, buf []byte, flags int, vtID uint64) error {
	if len(buf) == 0 {
		return nil
	}
	r.sqLock.Lock()
	defer r.sqLock.Unlock()
	sqe := r.getSQE()
	if sqe == nil {
		return ErrSQFull
	}
	sqe.Opcode = uint8(sys.IORING_OP_RECV)
	sqe.Fd = int32(fd)
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	sqe.Len = uint32(len(buf))
	sqe.OpFlags = uint32(flags)
	sqe.UserData = vtData(vtID)
	return nil
}

// PrepClose prepares a close of fd.
func (r *Ring) PrepClose(fd int, vtID uint64) error {
	r.sqLock.Lock()
	defer r.sqLock.Unlock()
	sqe := r.getSQE()
	if sqe == nil {
		return ErrSQFull
	}
	sqe.Opcode = uint8(sys.IORING_OP_CLOSE)
	sqe.Fd = int32(fd)
	sqe.UserData = vtData(vtID)
	return nil
}

// PrepShutdown prepares a shutdown(how) of fd.
func (r *Ring) PrepShutdown(fd int, how int, vtID uint64) error {
	r.sqLock.Lock()
	defer r.sqLock.Unlock()
	sqe := r.getSQE()
	if sqe == nil {
		return ErrSQFull
	}
	sqe.Opcode = uint8(sys.IORING_OP_SHUTDOWN)
	sqe.Fd = int32(fd)
	sqe.Len = uint32(how)
	sqe.UserData = vtData(vtID)
	return nil
}

// PrepOpenat prepares an openat(dirfd, path, flags, mode). path must be
// a NUL-terminated string valid until the operation completes.
func (r *Ring) PrepOpenat(dirfd int, path *byte, flags int, mode uint32, vtID uint64) error {
	r.sqLock.Lock()
	defer r.sqLock.Unlock()
	sqe := r.getSQE()
	if sqe == nil {
		return ErrSQFull
	}
	sqe.Opcode = uint8(sys.IORING_OP_OPENAT)
	sqe.Fd = int32(dirfd)
	sqe.Addr = uint64(uintptr(unsafe.Pointer(path)))
	sqe.Len = uint32(mode)
	sqe.OpFlags = uint32(flags)
	sqe.UserData = vtData(vtID)
	return nil
}
