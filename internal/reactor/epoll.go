//go:build linux

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// epollFallback is the Tier::Legacy poller for accept on kernels whose
// io_uring build doesn't support IORING_OP_ACCEPT, adapted from
// joeycumines-go-utilpkg/eventloop's FastPoller: a map from fd to a
// wait channel instead of its direct fd-indexed table, one epoll
// instance per Reactor.
// Kept far smaller than the original (no version-counter consistency
// check, no modify-in-place) since this module only ever registers an
// fd for one pending accept at a time before unregistering it.
type epollFallback struct {
	epfd int

	mu   sync.Mutex
	wait map[int32]chan struct{} // fd -> channel closed when readable
}

func newEpollFallback() (*epollFallback, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollFallback{epfd: fd, wait: make(map[int32]chan struct{})}, nil
}

// awaitReadable registers fd for EPOLLIN and returns a channel closed
// the next time poll() observes it readable.
func (p *epollFallback) awaitReadable(fd int) (chan struct{}, error) {
	ch := make(chan struct{})
	p.mu.Lock()
	p.wait[int32(fd)] = ch
	p.mu.Unlock()

	ev := &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLONESHOT, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		p.mu.Lock()
		delete(p.wait, int32(fd))
		p.mu.Unlock()
		return nil, err
	}
	return ch, nil
}

// poll drains ready events non-blocking and wakes their waiters.
func (p *epollFallback) poll() {
	var events [32]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, events[:], 0)
	if err != nil || n == 0 {
		return
	}
	for i := 0; i < n; i++ {
		fd := events[i].Fd
		p.mu.Lock()
		ch, ok := p.wait[fd]
		if ok {
			delete(p.wait, fd)
		}
		p.mu.Unlock()
		if ok {
			_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
			close(ch)
		}
	}
}

func (p *epollFallback) close() error {
	return unix.Close(p.epfd)
}
