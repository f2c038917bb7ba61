package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/kvstore-core/internal/config"
)

type recordingDispatcher struct {
	commands [][][]byte
}

func (d *recordingDispatcher) Dispatch(c *Client, argv [][]byte) {
	d.commands = append(d.commands, argv)
	c.ReplyStatus("OK")
}

func testLimits() Limits {
	return NewLimits(config.ClientConfig{
		NormalHardBytes: 1 << 20,
		NormalSoftBytes: 1 << 19,
		NormalSoftSecs:  time.Second,
	})
}

func TestFakeClientHasNoSocketEvents(t *testing.T) {
	c, err := Create(Options{FD: -1, Limits: testLimits(), Class: ClassNormal})
	require.NoError(t, err)
	assert.True(t, c.Flags.has(FlagFake))
}

func TestFeedDispatchesCompleteCommand(t *testing.T) {
	d := &recordingDispatcher{}
	c, err := Create(Options{FD: -1, Dispatcher: d, Limits: testLimits(), Class: ClassNormal})
	require.NoError(t, err)

	c.Feed([]byte("*1\r\n$4\r\nPING\r\n"))
	require.Len(t, d.commands, 1)
	assert.Equal(t, [][]byte{[]byte("PING")}, d.commands[0])
}

func TestFeedHandlesPipelinedCommands(t *testing.T) {
	d := &recordingDispatcher{}
	c, err := Create(Options{FD: -1, Dispatcher: d, Limits: testLimits(), Class: ClassNormal})
	require.NoError(t, err)

	c.Feed([]byte("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n"))
	assert.Len(t, d.commands, 2)
}

func TestProtocolErrorClosesAfterReply(t *testing.T) {
	c, err := Create(Options{FD: -1, Limits: testLimits(), Class: ClassNormal})
	require.NoError(t, err)

	c.Feed([]byte("*abc\r\n"))
	assert.True(t, c.Flags.has(FlagCloseAfterReply))
}

func TestFakeClientAccumulatesReplyForSyncInspection(t *testing.T) {
	d := &recordingDispatcher{}
	c, err := Create(Options{FD: -1, Dispatcher: d, Limits: testLimits(), Class: ClassNormal})
	require.NoError(t, err)

	c.Feed([]byte("*1\r\n$4\r\nPING\r\n"))
	assert.Equal(t, "+OK\r\n", string(c.reply.Drain(64)))
}

func TestOutputBufferHardLimitSchedulesAsyncClose(t *testing.T) {
	limits := NewLimits(config.ClientConfig{NormalHardBytes: 8})
	c, err := Create(Options{FD: -1, Limits: limits, Class: ClassNormal})
	require.NoError(t, err)

	c.appendReply([]byte("0123456789"))
	assert.True(t, c.PendingAsyncClose())
}

func TestOutputBufferSoftLimitRequiresPersistence(t *testing.T) {
	limits := NewLimits(config.ClientConfig{NormalSoftBytes: 4, NormalSoftSecs: time.Hour})
	c, err := Create(Options{FD: -1, Limits: limits, Class: ClassNormal})
	require.NoError(t, err)

	c.appendReply([]byte("12345"))
	assert.False(t, c.PendingAsyncClose(), "soft overflow alone should not close until soft_seconds elapses")
}

func TestOutputBufferSoftLimitClearsBelowThreshold(t *testing.T) {
	limits := NewLimits(config.ClientConfig{NormalSoftBytes: 100, NormalSoftSecs: time.Hour})
	c, err := Create(Options{FD: -1, Limits: limits, Class: ClassNormal})
	require.NoError(t, err)

	c.hasSoft = true
	c.softSince = time.Now().Add(-2 * time.Hour)
	c.appendReply([]byte("x"))
	assert.False(t, c.hasSoft, "dropping below soft threshold must clear the soft timer")
}
