// Package reactor implements the single-threaded event loop that
// multiplexes file-descriptor readiness and timer expiration over a
// pluggable readiness backend (epoll on Linux, a portable select-based
// backend elsewhere).
package reactor

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// EventMask selects which directions of a file descriptor a caller is
// interested in.
type EventMask int

const (
	None     EventMask = 0
	Readable EventMask = 1 << 0
	Writable EventMask = 1 << 1
)

// ProcessFlags controls a single ProcessEvents iteration.
type ProcessFlags int

const (
	FileEvents ProcessFlags = 1 << iota
	TimeEvents
	DontWait
	AllEvents = FileEvents | TimeEvents
)

// FileProc handles readiness on one direction of a registered fd.
type FileProc func(loop *Loop, fd int, data any, mask EventMask)

// TimeProc runs when a timer fires. Returning a non-negative value
// re-arms the timer for now+that many milliseconds; returning NoMore
// deletes it.
type TimeProc func(loop *Loop, id int64, data any) int64

// Finalizer runs once, when a timer is deleted (explicitly or because
// its TimeProc returned NoMore).
type Finalizer func(loop *Loop, data any)

// NoMore tells the reactor to delete the timer instead of re-arming it.
const NoMore int64 = -1

type fileEvent struct {
	mask        EventMask
	read, write FileProc
	sharedProc  bool // true when the same FileProc was registered for both directions
	data        any
}

type timerEvent struct {
	id        int64
	whenMillis int64
	proc      TimeProc
	finalizer Finalizer
	data      any
	next      *timerEvent
}

// Loop is the single-threaded reactor: a fixed-size file-event table
// plus an unsorted, linearly-scanned list of timers.
type Loop struct {
	mu sync.Mutex // guards timer list mutation against calls from goroutines other than the loop's

	backend Backend
	setsize int
	events  []fileEvent
	maxfd   int

	timerHead   *timerEvent
	nextTimerID int64
	lastSeenNow int64

	stop bool

	beforeSleep func(loop *Loop)

	// onIteration, if set, is called once per ProcessEvents pass that
	// actually polls with the number of file/time events it fired —
	// an optional observability hook (e.g. wired to a metrics
	// counter by the caller) that keeps this package itself free of a
	// metrics dependency, the same pattern client.Options.OnProtocolError uses.
	onIteration func(fired int)
}

// SetOnIteration installs (or clears, with nil) the per-iteration
// observability hook.
func (l *Loop) SetOnIteration(fn func(fired int)) {
	l.onIteration = fn
}

// Create allocates a Loop with room for setsize file descriptors.
func Create(setsize int) (*Loop, error) {
	backend, err := newBackend(setsize)
	if err != nil {
		return nil, errors.Wrap(err, "reactor: create backend")
	}

	return &Loop{
		backend: backend,
		setsize: setsize,
		events:  make([]fileEvent, setsize),
		maxfd:   -1,
		lastSeenNow: nowMillis(),
	}, nil
}

// Resize changes the event table's capacity. Fails if a registered fd
// is already >= the requested size.
func (l *Loop) Resize(setsize int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if setsize == l.setsize {
		return nil
	}
	if l.maxfd >= setsize {
		return fmt.Errorf("reactor: resize to %d: fd %d already registered", setsize, l.maxfd)
	}
	if err := l.backend.Resize(setsize); err != nil {
		return err
	}

	events := make([]fileEvent, setsize)
	copy(events, l.events)
	l.events = events
	l.setsize = setsize
	return nil
}

// Free releases the backend's resources. The Loop must not be used afterward.
func (l *Loop) Free() error {
	return l.backend.Free()
}

// SetBeforeSleep installs a hook invoked once per Run iteration before
// the backend blocks in Poll.
func (l *Loop) SetBeforeSleep(fn func(loop *Loop)) {
	l.beforeSleep = fn
}

// Stop requests that Run return after its current iteration.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stop = true
	l.mu.Unlock()
}

// RegisterFile registers interest in the given directions of fd.
// Repeated calls for the same fd merge masks and overwrite the
// per-direction callback for the directions present in mask.
func (l *Loop) RegisterFile(fd int, mask EventMask, read, write FileProc, data any) error {
	if fd >= l.setsize {
		return fmt.Errorf("reactor: fd %d exceeds setsize %d", fd, l.setsize)
	}

	if err := l.backend.Add(fd, mask); err != nil {
		return err
	}

	fe := &l.events[fd]
	fe.mask |= mask
	if mask&Readable != 0 {
		fe.read = read
	}
	if mask&Writable != 0 {
		fe.write = write
	}
	fe.sharedProc = fe.read != nil && fe.write != nil &&
		reflect.ValueOf(fe.read).Pointer() == reflect.ValueOf(fe.write).Pointer()
	fe.data = data
	if fd > l.maxfd {
		l.maxfd = fd
	}
	return nil
}

// UnregisterFile clears the given directions of interest in fd. Once
// both directions are cleared the slot becomes free.
func (l *Loop) UnregisterFile(fd int, mask EventMask) {
	if fd >= l.setsize {
		return
	}
	fe := &l.events[fd]
	if fe.mask == None {
		return
	}
	fe.mask &^= mask
	l.backend.Del(fd, mask)

	if fd == l.maxfd && fe.mask == None {
		j := l.maxfd - 1
		for ; j >= 0; j-- {
			if l.events[j].mask != None {
				break
			}
		}
		l.maxfd = j
	}
}

// FileEvents reports the currently registered mask for fd.
func (l *Loop) FileEvents(fd int) EventMask {
	if fd >= l.setsize {
		return None
	}
	return l.events[fd].mask
}

// CreateTimer schedules proc to run delay milliseconds from now,
// returning a monotonically increasing id.
func (l *Loop) CreateTimer(delayMillis int64, proc TimeProc, finalizer Finalizer, data any) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextTimerID
	l.nextTimerID++

	te := &timerEvent{
		id:         id,
		whenMillis: nowMillis() + delayMillis,
		proc:       proc,
		finalizer:  finalizer,
		data:       data,
		next:       l.timerHead,
	}
	l.timerHead = te
	return id
}

// DeleteTimer removes the timer with the given id, running its
// finalizer if present. Returns false if no such timer exists.
func (l *Loop) DeleteTimer(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deleteTimerLocked(id)
}

func (l *Loop) deleteTimerLocked(id int64) bool {
	var prev *timerEvent
	te := l.timerHead
	for te != nil {
		if te.id == id {
			if prev == nil {
				l.timerHead = te.next
			} else {
				prev.next = te.next
			}
			if te.finalizer != nil {
				te.finalizer(l, te.data)
			}
			return true
		}
		prev = te
		te = te.next
	}
	return false
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
