package protocol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMultiBulkSingleCommand(t *testing.T) {
	r := NewReader()
	r.Feed([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))

	argv, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [][]byte{[]byte("GET"), []byte("foo")}, argv)
	assert.Equal(t, 0, r.Buffered())
}

func TestParseMultiBulkAcrossFeeds(t *testing.T) {
	r := NewReader()
	r.Feed([]byte("*1\r\n$4\r\nPI"))

	argv, ok, err := r.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, argv)

	r.Feed([]byte("NG\r\n"))
	argv, ok, err = r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [][]byte{[]byte("PING")}, argv)
}

func TestParseInlineCommand(t *testing.T) {
	r := NewReader()
	r.Feed([]byte("PING\r\n"))

	argv, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [][]byte{[]byte("PING")}, argv)
}

func TestParseInlineQuotedArgs(t *testing.T) {
	r := NewReader()
	r.Feed([]byte(`SET key "hello world"` + "\r\n"))

	argv, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [][]byte{[]byte("SET"), []byte("key"), []byte("hello world")}, argv)
}

func TestParseInlineBareCRLFIsNotACommand(t *testing.T) {
	r := NewReader()
	r.Feed([]byte("\r\n"))

	argv, ok, err := r.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, argv)
	assert.Equal(t, 0, r.Buffered())
}

func TestParseMultiBulkInvalidHeaderIsProtocolError(t *testing.T) {
	r := NewReader()
	r.Feed([]byte("*abc\r\n"))

	_, _, err := r.Next()
	require.Error(t, err)
	var perr *ErrProtocol
	assert.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "Protocol error")
}

func TestParseMultiBulkRejectsOversizeMultiBulkLen(t *testing.T) {
	r := NewReader()
	r.Feed([]byte("*99999999\r\n"))

	_, _, err := r.Next()
	require.Error(t, err)
}

func TestParseMultiBulkRejectsOversizeBulkLen(t *testing.T) {
	r := NewReader()
	r.Feed([]byte("*1\r\n$99999999999\r\n"))

	_, _, err := r.Next()
	require.Error(t, err)
}

func TestParseMultiBulkZeroElementsYieldsNoCommand(t *testing.T) {
	r := NewReader()
	r.Feed([]byte("*0\r\n"))

	argv, ok, err := r.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, argv)
}

func TestReaderResetAllowsPipelining(t *testing.T) {
	r := NewReader()
	r.Feed([]byte("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n"))

	argv, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [][]byte{[]byte("PING")}, argv)

	r.Reset()
	argv, ok, err = r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [][]byte{[]byte("PING")}, argv)
}

func TestDonationCandidateOnlyWhenOneBulkRemains(t *testing.T) {
	r := NewReader()
	r.Feed([]byte("*2\r\n$3\r\nfoo\r\n$40000\r\n"))
	_, ok, err := r.Next()
	require.NoError(t, err)
	require.False(t, ok)

	_, candidate := r.DonationCandidate()
	assert.True(t, candidate, "single remaining large bulk should be a donation candidate")
}

func TestAppendReplyTypes(t *testing.T) {
	assert.Equal(t, "+OK\r\n", string(AppendStatus(nil, "OK")))
	assert.Equal(t, ":42\r\n", string(AppendInteger(nil, 42)))
	assert.Equal(t, "$3\r\nfoo\r\n", string(AppendBulk(nil, []byte("foo"))))
	assert.Equal(t, "$-1\r\n", string(AppendNilBulk(nil)))
	assert.Equal(t, "*2\r\n", string(AppendMultiBulkHeader(nil, 2)))
}

func TestAppendErrorStripsCRLF(t *testing.T) {
	out := AppendError(nil, "bad\r\nvalue")
	assert.Equal(t, "-bad  value\r\n", string(out))
}

func TestAppendDoubleHandlesInfinities(t *testing.T) {
	assert.Equal(t, "$3\r\ninf\r\n", string(AppendDouble(nil, posInf())))
	assert.Equal(t, "$4\r\n-inf\r\n", string(AppendDouble(nil, negInf())))
}

func posInf() float64 { return math.Inf(1) }
func negInf() float64 { return math.Inf(-1) }

func TestCoalesceSmallBulksMergesUnderThreshold(t *testing.T) {
	chunks := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	out := CoalesceSmallBulks(chunks)
	require.Len(t, out, 1)
	assert.Equal(t, "abc", string(out[0]))
}

func TestCoalesceSmallBulksKeepsLargeChunksSeparate(t *testing.T) {
	big := make([]byte, ReplyChunkBytes)
	chunks := [][]byte{big, []byte("tail")}
	out := CoalesceSmallBulks(chunks)
	require.Len(t, out, 2)
}

func TestQueueDrainOrdersStaticBeforeOverflow(t *testing.T) {
	q := NewQueue(4)
	q.Append([]byte("ab"))
	q.Append([]byte("cdef")) // overflows the 4-byte static cap

	assert.Equal(t, 6, q.Bytes())
	out := q.Drain(3)
	assert.Equal(t, "abc", string(out))
	assert.Equal(t, 3, q.Bytes())

	out = q.Drain(10)
	assert.Equal(t, "def", string(out))
	assert.True(t, q.Empty())
}

func TestQueueRequeuePreservesOrder(t *testing.T) {
	q := NewQueue(16)
	q.Append([]byte("hello"))
	out := q.Drain(3)
	assert.Equal(t, "hel", string(out))
	q.Requeue(out)
	assert.Equal(t, 5, q.Bytes())

	full := q.Drain(16)
	assert.Equal(t, "hello", string(full), "requeued bytes must come back out ahead of what followed them")
}
