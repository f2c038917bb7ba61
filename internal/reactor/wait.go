package reactor

import "golang.org/x/sys/unix"

// Wait blocks the calling goroutine (not the reactor loop — this is
// the synchronous helper used by MIGRATE's blocking dial/read/write)
// until fd is ready for mask or timeoutMillis elapses. Returns the
// mask actually observed ready, or None on timeout.
func Wait(fd int, mask EventMask, timeoutMillis int64) (EventMask, error) {
	var rfds, wfds unix.FdSet
	if mask&Readable != 0 {
		fdSetGeneric(&rfds, fd)
	}
	if mask&Writable != 0 {
		fdSetGeneric(&wfds, fd)
	}

	tv := unix.NsecToTimeval(timeoutMillis * 1_000_000)
	n, err := unix.Select(fd+1, &rfds, &wfds, nil, &tv)
	if err != nil {
		return None, err
	}
	if n == 0 {
		return None, nil
	}

	var ready EventMask
	if mask&Readable != 0 && fdIsSetGeneric(&rfds, fd) {
		ready |= Readable
	}
	if mask&Writable != 0 && fdIsSetGeneric(&wfds, fd) {
		ready |= Writable
	}
	return ready, nil
}

func fdSetGeneric(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSetGeneric(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
