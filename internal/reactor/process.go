package reactor

// Run loops until Stop is called, invoking the before-sleep hook each iteration.
func (l *Loop) Run() {
	for {
		l.mu.Lock()
		stop := l.stop
		l.mu.Unlock()
		if stop {
			return
		}
		if l.beforeSleep != nil {
			l.beforeSleep(l)
		}
		l.ProcessEvents(AllEvents)
	}
}

// ProcessEvents runs a single iteration and returns the number of file
// and time events fired.
func (l *Loop) ProcessEvents(flags ProcessFlags) int {
	if flags&FileEvents == 0 && flags&TimeEvents == 0 {
		return 0
	}

	var sleep int64 // milliseconds; -1 means unbounded
	if flags&TimeEvents != 0 && flags&DontWait == 0 {
		if nearest, ok := l.nearestTimer(); ok {
			d := nearest - nowMillis()
			if d < 0 {
				d = 0
			}
			sleep = d
		} else {
			sleep = -1
		}
	} else if flags&DontWait != 0 {
		sleep = 0
	} else {
		sleep = -1
	}

	ready, err := l.backend.Poll(sleep)
	fired := 0
	if err == nil {
		for _, ev := range ready {
			fe := &l.events[ev.FD]
			readFired := false
			if fe.mask&Readable != 0 && ev.Mask&Readable != 0 && fe.read != nil {
				fe.read(l, ev.FD, fe.data, Readable)
				fired++
				readFired = true
			}
			// A handler serving both directions should only run once
			// per ready event. Go function values aren't comparable,
			// so identity is tracked at registration time instead:
			// RegisterFile records whether the same FileProc was
			// installed for both directions (fileEvent.sharedProc),
			// and that flag, not pointer equality, drives the skip.
			if fe.mask&Writable != 0 && ev.Mask&Writable != 0 && fe.write != nil {
				if !(readFired && fe.sharedProc) {
					fe.write(l, ev.FD, fe.data, Writable)
					fired++
				}
			}
		}
	}

	if flags&TimeEvents != 0 {
		fired += l.processTimeEvents()
	}

	if l.onIteration != nil {
		l.onIteration(fired)
	}

	return fired
}

func (l *Loop) nearestTimer() (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var nearest *timerEvent
	for te := l.timerHead; te != nil; te = te.next {
		if nearest == nil || te.whenMillis < nearest.whenMillis {
			nearest = te
		}
	}
	if nearest == nil {
		return 0, false
	}
	return nearest.whenMillis, true
}

// processTimeEvents walks the timer list once: it detects backward
// clock jumps by force-firing everything, skips timers created by a
// callback during this same pass (tracked via maxID), and restarts
// traversal from head after every fired callback since a handler may
// mutate the list.
func (l *Loop) processTimeEvents() int {
	l.mu.Lock()
	now := nowMillis()
	if now < l.lastSeenNow {
		for te := l.timerHead; te != nil; te = te.next {
			te.whenMillis = 0
		}
	}
	l.lastSeenNow = now
	maxID := l.nextTimerID - 1
	l.mu.Unlock()

	processed := 0
restart:
	l.mu.Lock()
	te := l.timerHead
	for te != nil {
		if te.id > maxID {
			te = te.next
			continue
		}
		if te.whenMillis <= nowMillis() {
			id := te.id
			proc := te.proc
			data := te.data
			l.mu.Unlock()

			retval := proc(l, id, data)
			processed++

			l.mu.Lock()
			if retval != NoMore {
				// Re-locate: the list may have moved under us.
				for cur := l.timerHead; cur != nil; cur = cur.next {
					if cur.id == id {
						cur.whenMillis = nowMillis() + retval
						break
					}
				}
				l.mu.Unlock()
			} else {
				l.deleteTimerLocked(id)
				l.mu.Unlock()
			}
			goto restart
		}
		te = te.next
	}
	l.mu.Unlock()

	return processed
}
