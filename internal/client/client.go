// Package client owns per-connection state: the socket, its parse and
// reply buffers, output-buffer limit tracking, and the registries a
// freed client must be pruned from.
package client

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/adred-codev/kvstore-core/internal/protocol"
	"github.com/adred-codev/kvstore-core/internal/reactor"
)

// IOBufLen is the chunk size used for each non-blocking read.
const IOBufLen = 16 * 1024

var nextClientID uint64

// PerNodeOverheadBytes approximates reply-queue bookkeeping cost. When
// checking output-buffer limits it is added once to the total queued
// payload size; it is not multiplied by the number of queued chunks.
const PerNodeOverheadBytes = 16

// Dispatcher executes a fully-parsed command against whatever state
// the caller wires in (keyspace, pubsub, ...). It returns nothing: a
// command's reply is appended to the client directly via
// Client.Reply*, so the caller doesn't need visibility into command
// internals.
type Dispatcher interface {
	Dispatch(c *Client, argv [][]byte)
}

// Client is one connection's full state.
type Client struct {
	id    uint64
	FD    int
	Flags Flags

	reader *protocol.Reader
	reply  *protocol.Queue

	class  Class
	limits Limits

	softSince time.Time
	hasSoft   bool

	CreatedAt  time.Time
	LastActive time.Time
	Name       string

	selectedDB int

	loop       *reactor.Loop
	dispatcher Dispatcher

	onFree          func(*Client)
	onProtocolError func()

	closed bool
}

// Options configures a new Client.
type Options struct {
	FD         int
	Loop       *reactor.Loop
	Dispatcher Dispatcher
	Limits     Limits
	Class      Class
	OnFree     func(*Client)
	// OnProtocolError, if set, is called once for every malformed
	// request the parser rejects — the hook lets the caller observe
	// protocol errors (e.g. a metrics counter) without this package
	// depending on anything beyond the callback signature.
	OnProtocolError func()
}

// Create registers socket readiness (unless fd == -1, a "fake"
// internal client with no socket events) and returns a ready Client.
func Create(opts Options) (*Client, error) {
	c := &Client{
		id:              atomic.AddUint64(&nextClientID, 1),
		FD:              opts.FD,
		reader:          protocol.NewReader(),
		reply:           protocol.NewQueue(protocol.StaticBufferBytes),
		class:           opts.Class,
		limits:          opts.Limits,
		CreatedAt:       time.Now(),
		LastActive:      time.Now(),
		loop:            opts.Loop,
		dispatcher:      opts.Dispatcher,
		onFree:          opts.OnFree,
		onProtocolError: opts.OnProtocolError,
	}

	if opts.FD == -1 {
		c.Flags.set(FlagFake)
		return c, nil
	}

	if err := setNonBlocking(opts.FD); err != nil {
		return nil, fmt.Errorf("client: set non-blocking: %w", err)
	}
	if err := setNoDelay(opts.FD); err != nil {
		return nil, fmt.Errorf("client: set nodelay: %w", err)
	}
	_ = unix.SetsockoptInt(opts.FD, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)

	if opts.Loop != nil {
		if err := opts.Loop.RegisterFile(opts.FD, reactor.Readable, c.onReadable, nil, nil); err != nil {
			return nil, fmt.Errorf("client: register readable: %w", err)
		}
	}

	return c, nil
}

func setNonBlocking(fd int) error {
	return unix.SetNonblock(fd, true)
}

func setNoDelay(fd int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
}

// ID returns the client's process-lifetime-unique identity.
func (c *Client) ID() uint64 { return c.id }

// SelectedDB reports the logical database index SELECT last set.
func (c *Client) SelectedDB() int { return c.selectedDB }

// SetSelectedDB updates the logical database index.
func (c *Client) SetSelectedDB(n int) { c.selectedDB = n }

// Class reports the client's output-buffer policy class.
func (c *Client) Class() Class { return c.class }

// SetClass updates the client's output-buffer policy class, used when
// a connection transitions into pubsub mode.
func (c *Client) SetClass(class Class) {
	c.class = class
}

// Free unregisters events, closes the socket, and prunes the client
// from whatever registry owns it via onFree. Safe to call more than once.
func (c *Client) Free() {
	if c.closed {
		return
	}
	c.closed = true

	if !c.Flags.has(FlagFake) {
		if c.loop != nil {
			c.loop.UnregisterFile(c.FD, reactor.Readable|reactor.Writable)
		}
		_ = unix.Close(c.FD)
	}

	if c.onFree != nil {
		c.onFree(c)
	}
}

// FreeAsync idempotently flags the client for deferred teardown; a
// periodic sweep is expected to call Free once it observes the flag.
func (c *Client) FreeAsync() {
	c.Flags.set(FlagCloseASAP)
}

// PendingAsyncClose reports whether FreeAsync has been called and Free
// has not yet run.
func (c *Client) PendingAsyncClose() bool {
	return c.Flags.has(FlagCloseASAP) && !c.closed
}

func (c *Client) onReadable(loop *reactor.Loop, fd int, data any, mask reactor.EventMask) {
	c.readAndProcess()
}

// readAndProcess performs one non-blocking read and feeds everything
// read through the parser and dispatcher. It implements the reader/
// process_input pairing: reads up to IOBufLen bytes, then loops the
// parser while input remains and the client is neither blocked nor
// closing. No query-buffer size limit is enforced here.
func (c *Client) readAndProcess() {
	buf := make([]byte, IOBufLen)
	n, err := unix.Read(c.FD, buf)
	if n > 0 {
		c.reader.Feed(buf[:n])
		c.LastActive = time.Now()
	}
	if err != nil && err != unix.EAGAIN {
		c.Flags.set(FlagCloseASAP)
	}
	if n == 0 && err == nil {
		c.Flags.set(FlagCloseASAP)
	}

	c.processInput()
}

// ProcessInput is exported for fake/internal clients whose input is
// fed directly rather than via a socket read.
func (c *Client) ProcessInput() { c.processInput() }

func (c *Client) processInput() {
	for !c.Flags.has(FlagBlocked) && !c.Flags.has(FlagCloseAfterReply) {
		argv, ok, err := c.reader.Next()
		if err != nil {
			if c.onProtocolError != nil {
				c.onProtocolError()
			}
			c.ReplyError(err.Error())
			c.Flags.set(FlagCloseAfterReply)
			c.reader.Reset()
			break
		}
		if !ok {
			break
		}
		if len(argv) == 0 {
			c.reader.Reset()
			continue
		}

		if c.dispatcher != nil {
			c.dispatcher.Dispatch(c, argv)
		}

		// Reset only clears parser state (argv/lengths/request-type);
		// FlagMulti is a dispatcher-owned bit and survives untouched,
		// matching the requirement that reset not leave a transaction.
		c.reader.Reset()
	}

	if c.reply != nil && !c.reply.Empty() {
		c.prepareToWrite()
	}
}

// Feed lets tests and fake clients push raw bytes without a real socket.
func (c *Client) Feed(p []byte) {
	c.reader.Feed(p)
	c.processInput()
}
