//go:build !linux

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// selectBackend is the portable readiness backend used on platforms
// without epoll, bounded to the platform's FD_SETSIZE.
type selectBackend struct {
	setsize int
	masks   map[int]EventMask
}

func newBackend(setsize int) (Backend, error) {
	if setsize > unix.FD_SETSIZE {
		setsize = unix.FD_SETSIZE
	}
	return &selectBackend{setsize: setsize, masks: make(map[int]EventMask)}, nil
}

func (b *selectBackend) Name() string { return "select" }

func (b *selectBackend) Resize(setsize int) error {
	if setsize > unix.FD_SETSIZE {
		return fmt.Errorf("select backend limited to FD_SETSIZE=%d", unix.FD_SETSIZE)
	}
	b.setsize = setsize
	return nil
}

func (b *selectBackend) Free() error { return nil }

func (b *selectBackend) Add(fd int, mask EventMask) error {
	b.masks[fd] |= mask
	return nil
}

func (b *selectBackend) Del(fd int, mask EventMask) error {
	b.masks[fd] &^= mask
	if b.masks[fd] == None {
		delete(b.masks, fd)
	}
	return nil
}

func (b *selectBackend) Poll(timeoutMillis int64) ([]ReadyEvent, error) {
	if len(b.masks) == 0 {
		if timeoutMillis > 0 {
			time.Sleep(time.Duration(timeoutMillis) * time.Millisecond)
		}
		return nil, nil
	}

	var rfds, wfds unix.FdSet
	maxfd := 0
	for fd, mask := range b.masks {
		if mask&Readable != 0 {
			fdSet(&rfds, fd)
		}
		if mask&Writable != 0 {
			fdSet(&wfds, fd)
		}
		if fd > maxfd {
			maxfd = fd
		}
	}

	var timeout *unix.Timeval
	if timeoutMillis >= 0 {
		tv := unix.NsecToTimeval(timeoutMillis * int64(time.Millisecond))
		timeout = &tv
	}

	_, err := unix.Select(maxfd+1, &rfds, &wfds, nil, timeout)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("select: %w", err)
	}

	out := make([]ReadyEvent, 0, len(b.masks))
	for fd, mask := range b.masks {
		var ready EventMask
		if mask&Readable != 0 && fdIsSet(&rfds, fd) {
			ready |= Readable
		}
		if mask&Writable != 0 && fdIsSet(&wfds, fd) {
			ready |= Writable
		}
		if ready != None {
			out = append(out, ReadyEvent{FD: fd, Mask: ready})
		}
	}
	return out, nil
}

func fdSet(set *unix.FdSet, fd int) {
	bitsPerWord := 8 * int(unsafeSizeofLong())
	set.Bits[fd/bitsPerWord] |= 1 << (uint(fd) % uint(bitsPerWord))
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	bitsPerWord := 8 * int(unsafeSizeofLong())
	return set.Bits[fd/bitsPerWord]&(1<<(uint(fd)%uint(bitsPerWord))) != 0
}

// unsafeSizeofLong reports the width, in bytes, of the FdSet.Bits word
// type on this platform (matches the int64 backing used on every
// golang.org/x/sys/unix target this backend builds for).
func unsafeSizeofLong() uintptr {
	return 8
}
