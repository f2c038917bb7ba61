package client

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/adred-codev/kvstore-core/internal/reactor"
)

// MaxWritePerEvent bounds how many reply bytes a single writable
// callback will push to the socket, so one chatty client can't starve
// the rest of the reactor's ready list.
const MaxWritePerEvent = 64 * 1024

// prepareToWrite installs WRITABLE interest if it isn't already
// present. Skipped for fake clients, which have no socket.
func (c *Client) prepareToWrite() {
	if c.Flags.has(FlagFake) || c.loop == nil {
		return
	}
	mask := c.loop.FileEvents(c.FD)
	if mask&reactor.Writable != 0 {
		return
	}
	_ = c.loop.RegisterFile(c.FD, reactor.Writable, nil, c.onWritable, nil)
}

func (c *Client) onWritable(loop *reactor.Loop, fd int, data any, mask reactor.EventMask) {
	c.writeOnce()
}

// writeOnce drains as much of the reply queue as the socket accepts,
// up to MaxWritePerEvent bytes, re-queueing any short write. Once both
// the static buffer and overflow queue are empty it unregisters
// WRITABLE interest; if FlagCloseAfterReply is set, it frees the client.
func (c *Client) writeOnce() {
	if c.reply.Empty() {
		c.finishWrite()
		return
	}

	chunk := c.reply.Drain(MaxWritePerEvent)
	n, err := unix.Write(c.FD, chunk)
	if n > 0 && n < len(chunk) {
		c.reply.Requeue(chunk[n:])
	}
	if err != nil && err != unix.EAGAIN {
		c.Flags.set(FlagCloseASAP)
		return
	}

	if c.reply.Empty() {
		c.finishWrite()
	}
}

func (c *Client) finishWrite() {
	if c.loop != nil {
		c.loop.UnregisterFile(c.FD, reactor.Writable)
	}
	if c.Flags.has(FlagCloseAfterReply) {
		c.Free()
	}
}

// checkOutputBufferLimit implements the per-class hard/soft/soft-seconds
// policy: hard overflow schedules an immediate async close; soft
// overflow starts (or continues) a timer that, once it persists for
// soft_seconds, also schedules an async close. Dropping back under the
// soft threshold clears the timer.
func (c *Client) checkOutputBufferLimit() {
	limits := c.limits.limitsFor(c.class)
	used := int64(c.reply.Bytes()) + PerNodeOverheadBytes

	if limits.hardBytes > 0 && used >= limits.hardBytes {
		c.FreeAsync()
		return
	}

	if limits.softBytes > 0 && used >= limits.softBytes {
		if !c.hasSoft {
			c.hasSoft = true
			c.softSince = time.Now()
			return
		}
		if time.Since(c.softSince) >= limits.softSecs {
			c.FreeAsync()
		}
		return
	}

	c.hasSoft = false
}
