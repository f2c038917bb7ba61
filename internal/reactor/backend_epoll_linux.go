//go:build linux

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// epollBackend is the Linux readiness backend, grounded on
// pkg/websocket/netpoll.go's raw syscall.EpollCreate1 / EpollCtl /
// EpollWait usage — adapted here to golang.org/x/sys/unix for the
// typed constants and to satisfy the Backend interface instead of
// driving a standalone listener loop.
//
// masks tracks each registered fd's current direction set so Add can
// EPOLL_CTL_MOD with the merged mask instead of clobbering a direction
// registered by an earlier call, and so Del can re-arm with the
// remaining mask instead of dropping the fd from epoll entirely —
// RegisterFile/UnregisterFile register and clear one direction at a
// time (see client.go's separate Readable/Writable calls), so the
// kernel registration must always reflect the union, not just the
// most recent call's mask.
type epollBackend struct {
	epfd   int
	events []unix.EpollEvent
	masks  map[int]EventMask
}

func newBackend(setsize int) (Backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &epollBackend{
		epfd:   epfd,
		events: make([]unix.EpollEvent, setsize),
		masks:  make(map[int]EventMask),
	}, nil
}

func (b *epollBackend) Name() string { return "epoll" }

func (b *epollBackend) Resize(setsize int) error {
	events := make([]unix.EpollEvent, setsize)
	copy(events, b.events)
	b.events = events
	return nil
}

func (b *epollBackend) Free() error {
	return unix.Close(b.epfd)
}

func toEpollEvents(mask EventMask) uint32 {
	var e uint32
	if mask&Readable != 0 {
		e |= unix.EPOLLIN
	}
	if mask&Writable != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func (b *epollBackend) Add(fd int, mask EventMask) error {
	merged := b.masks[fd] | mask
	ev := unix.EpollEvent{Events: toEpollEvents(merged), Fd: int32(fd)}

	var err error
	if _, exists := b.masks[fd]; exists {
		err = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	} else {
		err = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
		if err == unix.EEXIST {
			err = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
		}
	}
	if err != nil {
		return err
	}
	b.masks[fd] = merged
	return nil
}

// Del clears the given directions of fd's registration. If any
// direction remains, re-arm with EPOLL_CTL_MOD using the remaining
// mask; only EPOLL_CTL_DEL once the mask is fully empty. Removing the
// fd from epoll entirely while a direction is still wanted would
// silently stop delivering events for that direction.
func (b *epollBackend) Del(fd int, mask EventMask) error {
	remaining := b.masks[fd] &^ mask

	if remaining == None {
		delete(b.masks, fd)
		err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		if err == unix.ENOENT {
			return nil
		}
		return err
	}

	ev := unix.EpollEvent{Events: toEpollEvents(remaining), Fd: int32(fd)}
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	if err != nil {
		return err
	}
	b.masks[fd] = remaining
	return nil
}

func (b *epollBackend) Poll(timeoutMillis int64) ([]ReadyEvent, error) {
	timeout := int(timeoutMillis)
	if timeoutMillis < 0 {
		timeout = -1
	}

	n, err := unix.EpollWait(b.epfd, b.events, timeout)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("epoll_wait: %w", err)
	}

	out := make([]ReadyEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := b.events[i]
		var mask EventMask
		if ev.Events&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			mask |= Readable
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			mask |= Writable
		}
		out = append(out, ReadyEvent{FD: int(ev.Fd), Mask: mask})
	}
	return out, nil
}
