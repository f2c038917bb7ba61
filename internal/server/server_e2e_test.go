package server

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/kvstore-core/internal/client"
	"github.com/adred-codev/kvstore-core/internal/config"
	"github.com/adred-codev/kvstore-core/internal/logging"
	"github.com/adred-codev/kvstore-core/internal/metrics"
)

// testRegistry builds the metrics registry once: metrics.New registers
// its collectors with the process-wide Prometheus registry, so a
// second call would fail on duplicate registration.
var testRegistry = sync.OnceValue(metrics.New)

// newTestServer builds a Server with no listener. Tests drive it
// through fake clients (Server.NewFakeClient), which take the same
// Client.Feed path a real connection uses and keep their replies for
// DrainReply instead of writing to a socket.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{}
	cfg.Server.SetSize = 128
	cfg.Client.PubSubHardBytes = 0
	cfg.Client.NormalHardBytes = 0

	logger, err := logging.New(config.LoggingConfig{Level: "error"})
	require.NoError(t, err)

	reg := testRegistry()
	s, err := New(cfg, logger, reg)
	require.NoError(t, err)
	return s
}

func feedAndDrain(t *testing.T, c *client.Client, command string) []byte {
	t.Helper()
	c.Feed([]byte(command))
	return c.DrainReply(1 << 20)
}

func TestE2EPing(t *testing.T) {
	s := newTestServer(t)
	c := s.NewFakeClient()

	out := feedAndDrain(t, c, "*1\r\n$4\r\nPING\r\n")
	assert.Equal(t, "+PONG\r\n", string(out))
}

func TestE2ESetGetString(t *testing.T) {
	s := newTestServer(t)
	c := s.NewFakeClient()

	out := feedAndDrain(t, c, "*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")
	assert.Equal(t, "+OK\r\n", string(out))

	out = feedAndDrain(t, c, "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n")
	assert.Equal(t, "$3\r\nbar\r\n", string(out))
}

func TestE2EObjectEncodingOnIntegerString(t *testing.T) {
	s := newTestServer(t)
	c := s.NewFakeClient()

	feedAndDrain(t, c, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$5\r\n12345\r\n")
	out := feedAndDrain(t, c, "*3\r\n$6\r\nOBJECT\r\n$8\r\nENCODING\r\n$1\r\nk\r\n")
	assert.Equal(t, "$3\r\nint\r\n", string(out))
}

func TestE2EPubSubDeliversPublishedMessage(t *testing.T) {
	s := newTestServer(t)
	a := s.NewFakeClient()
	b := s.NewFakeClient()

	out := feedAndDrain(t, a, "*2\r\n$9\r\nSUBSCRIBE\r\n$4\r\nnews\r\n")
	assert.Equal(t, "*3\r\n$9\r\nsubscribe\r\n$4\r\nnews\r\n:1\r\n", string(out))

	out = feedAndDrain(t, b, "*3\r\n$7\r\nPUBLISH\r\n$4\r\nnews\r\n$2\r\nhi\r\n")
	assert.Equal(t, ":1\r\n", string(out))

	out = a.DrainReply(1 << 20)
	assert.Equal(t, "*3\r\n$7\r\nmessage\r\n$4\r\nnews\r\n$2\r\nhi\r\n", string(out))
}

func TestE2EProtocolErrorClosesAfterReply(t *testing.T) {
	s := newTestServer(t)
	c := s.NewFakeClient()

	c.Feed([]byte("*abc\r\n"))
	out := c.DrainReply(1 << 20)
	assert.Contains(t, string(out), "-ERR Protocol error")
	assert.NotZero(t, c.Flags&client.FlagCloseAfterReply, "a protocol error must mark the client to close after its reply")
}

func TestE2EUnknownCommandRepliesError(t *testing.T) {
	s := newTestServer(t)
	c := s.NewFakeClient()

	out := feedAndDrain(t, c, "*1\r\n$4\r\nFROB\r\n")
	assert.Contains(t, string(out), "ERR unknown command")
}

// fakeMigrateTarget runs a minimal RESP server that accepts one
// connection, discards the SELECT and RESTORE commands MIGRATE sends,
// and replies with whatever restoreReply says ("+OK" or "-ERR ...").
func fakeMigrateTarget(t *testing.T, restoreReply string) (host string, port int, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)

		readRESPCommand(t, r) // SELECT
		conn.Write([]byte("+OK\r\n"))

		readRESPCommand(t, r) // RESTORE
		conn.Write([]byte(restoreReply + "\r\n"))
	}()

	hostStr, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err = strconv.Atoi(portStr)
	require.NoError(t, err)
	return hostStr, port, func() { ln.Close() }
}

func readRESPCommand(t *testing.T, r *bufio.Reader) {
	t.Helper()
	header, err := r.ReadString('\n')
	require.NoError(t, err)
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(header, "*")))
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		lenLine, err := r.ReadString('\n')
		require.NoError(t, err)
		length, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(lenLine, "$")))
		require.NoError(t, err)
		buf := make([]byte, length+2)
		_, err = io.ReadFull(r, buf)
		require.NoError(t, err)
	}
}

func TestE2EMigrateSurfacesTargetErrorVerbatimNotDoubled(t *testing.T) {
	host, port, stop := fakeMigrateTarget(t, "-BUSYKEY target already has this key")
	defer stop()

	s := newTestServer(t)
	c := s.NewFakeClient()

	feedAndDrain(t, c, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")

	cmd := fmt.Sprintf("*6\r\n$7\r\nMIGRATE\r\n$%d\r\n%s\r\n$%d\r\n%s\r\n$1\r\nk\r\n$1\r\n0\r\n$4\r\n1000\r\n",
		len(host), host, len(strconv.Itoa(port)), strconv.Itoa(port))
	out := feedAndDrain(t, c, cmd)

	assert.Equal(t, "-BUSYKEY target already has this key\r\n", string(out))
}

func TestE2EMigrateReportsIOErrOnDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	hostStr, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	ln.Close() // nothing listening now

	s := newTestServer(t)
	c := s.NewFakeClient()

	feedAndDrain(t, c, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")

	cmd := fmt.Sprintf("*6\r\n$7\r\nMIGRATE\r\n$%d\r\n%s\r\n$%d\r\n%s\r\n$1\r\nk\r\n$1\r\n0\r\n$3\r\n200\r\n",
		len(hostStr), hostStr, len(portStr), portStr)
	out := feedAndDrain(t, c, cmd)

	assert.True(t, strings.HasPrefix(string(out), "-IOERR "), "expected a single IOERR prefix, got %q", string(out))
	assert.False(t, strings.Contains(string(out), "IOERR IOERR"), "must not double-prefix IOERR")
}

func TestE2EDumpRestoreRoundTrip(t *testing.T) {
	s := newTestServer(t)
	c := s.NewFakeClient()

	feedAndDrain(t, c, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$5\r\nhello\r\n")
	dumped := feedAndDrain(t, c, "*2\r\n$4\r\nDUMP\r\n$1\r\nk\r\n")
	require.True(t, len(dumped) > 0 && dumped[0] == '$')

	feedAndDrain(t, c, "*2\r\n$3\r\nDEL\r\n$1\r\nk\r\n")
	out := feedAndDrain(t, c, "*2\r\n$3\r\nGET\r\n$1\r\nk\r\n")
	assert.Equal(t, "$-1\r\n", string(out))

	// dumped is already a complete "$<len>\r\n<payload>\r\n" bulk reply,
	// so it can be appended verbatim as RESTORE's payload argument.
	out = feedAndDrain(t, c, "*4\r\n$7\r\nRESTORE\r\n$1\r\nk\r\n$1\r\n0\r\n"+string(dumped))
	assert.Equal(t, "+OK\r\n", string(out))
	out = feedAndDrain(t, c, "*2\r\n$3\r\nGET\r\n$1\r\nk\r\n")
	assert.Equal(t, "$5\r\nhello\r\n", string(out))
}
