package client

// Flags is a bitset of per-client state flags.
type Flags uint32

const (
	FlagNone Flags = 0
	// FlagCloseAfterReply marks a client to be freed once its pending
	// reply has been fully written.
	FlagCloseAfterReply Flags = 1 << iota
	// FlagCloseASAP marks a client for async teardown via the
	// server's periodic close-list drain.
	FlagCloseASAP
	// FlagBlocked suppresses further input parsing while the client
	// waits on an external blocking subsystem (e.g. BLPOP-like commands).
	FlagBlocked
	// FlagMulti marks a client inside a MULTI/EXEC transaction.
	FlagMulti
	// FlagFake marks a client created with fd == -1: no socket, no
	// registered events, used for internal command execution.
	FlagFake
	// FlagForceReply overrides the normal "don't bother replying to
	// this kind of client" suppression (e.g. master-originated commands).
	FlagForceReply
)

func (f *Flags) set(bit Flags)     { *f |= bit }
func (f *Flags) clear(bit Flags)   { *f &^= bit }
func (f Flags) has(bit Flags) bool { return f&bit != 0 }
