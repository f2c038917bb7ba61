package client

import "github.com/adred-codev/kvstore-core/internal/protocol"

// ReplyStatus queues a status line reply.
func (c *Client) ReplyStatus(text string) {
	c.appendReply(protocol.AppendStatus(nil, text))
}

// ReplyError queues an error reply.
func (c *Client) ReplyError(text string) {
	c.appendReply(protocol.AppendError(nil, text))
}

// ReplyInteger queues an integer reply.
func (c *Client) ReplyInteger(n int64) {
	c.appendReply(protocol.AppendInteger(nil, n))
}

// ReplyBulk queues a bulk string reply.
func (c *Client) ReplyBulk(value []byte) {
	c.appendReply(protocol.AppendBulk(nil, value))
}

// ReplyNilBulk queues a nil bulk reply.
func (c *Client) ReplyNilBulk() {
	c.appendReply(protocol.AppendNilBulk(nil))
}

// ReplyMultiBulkHeader queues a multi-bulk header; the caller follows
// with count further Reply* calls for the elements.
func (c *Client) ReplyMultiBulkHeader(count int) {
	c.appendReply(protocol.AppendMultiBulkHeader(nil, count))
}

// ReplyDouble queues a double reply.
func (c *Client) ReplyDouble(f float64) {
	c.appendReply(protocol.AppendDouble(nil, f))
}

// appendReply is the single choke point every Reply* call goes
// through: it appends to the reply queue and re-checks the
// output-buffer class limit. Fake clients accumulate replies the same
// way — callers that drive them synchronously read ReplyBytes/drain
// the queue directly instead of going through a socket write.
func (c *Client) appendReply(b []byte) {
	c.reply.Append(b)
	c.checkOutputBufferLimit()
}

// ReplyBytes reports how many bytes of reply are queued right now,
// used by output-buffer-limit accounting.
func (c *Client) ReplyBytes() int {
	return c.reply.Bytes()
}

// DrainReply removes and returns up to maxBytes of queued reply bytes.
// Exported for synchronous callers (fake clients, tests) that inspect
// a dispatched command's reply without a socket write loop.
func (c *Client) DrainReply(maxBytes int) []byte {
	return c.reply.Drain(maxBytes)
}
