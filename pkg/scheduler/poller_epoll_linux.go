//go:build linux

package scheduler

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// EpollPoller is the Linux readiness poller: a select()-style readiness
// loop re-expressed in terms of epoll, which scales to the descriptor
// counts an on-demand RTSP server accumulates
// (one control connection per client, plus listening sockets) without the
// FD_SETSIZE ceiling select() carries.
type EpollPoller struct {
	epfd int
	mask map[SocketID]Condition
	buf  []unix.EpollEvent
}

// NewEpollPoller creates an epoll instance.
func NewEpollPoller() (*EpollPoller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &EpollPoller{
		epfd: fd,
		mask: make(map[SocketID]Condition),
		buf:  make([]unix.EpollEvent, 64),
	}, nil
}

func toEpollEvents(c Condition) uint32 {
	var e uint32
	if c.has(Readable) {
		e |= unix.EPOLLIN
	}
	if c.has(Writable) {
		e |= unix.EPOLLOUT
	}
	if c.has(Exception) {
		e |= unix.EPOLLPRI
	}
	return e
}

func fromEpollEvents(e uint32) Condition {
	var c Condition
	if e&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		c |= Readable
	}
	if e&unix.EPOLLOUT != 0 {
		c |= Writable
	}
	if e&unix.EPOLLPRI != 0 {
		c |= Exception
	}
	return c
}

func (p *EpollPoller) Add(socket SocketID, mask Condition) error {
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(socket)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, int(socket), &ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd=%d: %w", socket, err)
	}
	p.mask[socket] = mask
	return nil
}

func (p *EpollPoller) Modify(socket SocketID, mask Condition) error {
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(socket)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, int(socket), &ev); err != nil {
		return fmt.Errorf("epoll_ctl mod fd=%d: %w", socket, err)
	}
	p.mask[socket] = mask
	return nil
}

func (p *EpollPoller) Remove(socket SocketID) error {
	delete(p.mask, socket)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(socket), nil); err != nil {
		return fmt.Errorf("epoll_ctl del fd=%d: %w", socket, err)
	}
	return nil
}

func (p *EpollPoller) Wait(timeout time.Duration, dst []Event) ([]Event, error) {
	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	if timeout < 0 {
		ms = -1
	}

	for {
		n, err := unix.EpollWait(p.epfd, p.buf, ms)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return dst, fmt.Errorf("epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			sock := SocketID(p.buf[i].Fd)
			dst = append(dst, Event{Socket: sock, Conditions: fromEpollEvents(p.buf[i].Events)})
		}
		return dst, nil
	}
}

func (p *EpollPoller) Close() error {
	return unix.Close(p.epfd)
}
