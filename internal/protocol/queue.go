package protocol

// StaticBufferBytes is the size of a client's fixed-size reply buffer.
// Replies are appended here first; only once it's full (or the
// overflow queue already holds data, to preserve ordering) do new
// replies go to the overflow queue.
const StaticBufferBytes = 16 * 1024

// Queue is a per-client reply sink: a fixed-size static buffer backed
// by an overflow queue of byte chunks, mirroring the client output
// buffer Protocol feeds and Client drains to the socket.
type Queue struct {
	static    []byte
	staticCap int
	overflow  [][]byte
}

// NewQueue returns an empty reply queue with the given static buffer capacity.
func NewQueue(staticCap int) *Queue {
	if staticCap <= 0 {
		staticCap = StaticBufferBytes
	}
	return &Queue{staticCap: staticCap}
}

// Append adds reply bytes to the queue, preferring the static buffer
// and falling back to the overflow queue on overflow or whenever the
// overflow queue is already non-empty (so bytes stay in arrival order).
func (q *Queue) Append(p []byte) {
	if len(q.overflow) == 0 && len(q.static)+len(p) <= q.staticCap {
		q.static = append(q.static, p...)
		return
	}
	q.overflow = append(q.overflow, append([]byte(nil), p...))
	q.compact()
}

// compact coalesces small consecutive overflow chunks per the
// reply-queue contract.
func (q *Queue) compact() {
	q.overflow = CoalesceSmallBulks(q.overflow)
}

// Bytes reports the total queued reply size across static buffer and overflow.
func (q *Queue) Bytes() int {
	n := len(q.static)
	for _, c := range q.overflow {
		n += len(c)
	}
	return n
}

// Empty reports whether there is nothing left to write.
func (q *Queue) Empty() bool {
	return len(q.static) == 0 && len(q.overflow) == 0
}

// Drain returns up to maxBytes of queued reply data, in order, and
// removes it from the queue. A caller that gets a short write should
// re-queue the undelivered remainder via Requeue.
func (q *Queue) Drain(maxBytes int) []byte {
	out := make([]byte, 0, maxBytes)

	if len(q.static) > 0 {
		n := len(q.static)
		if n > maxBytes {
			n = maxBytes
		}
		out = append(out, q.static[:n]...)
		q.static = q.static[n:]
		maxBytes -= n
	}

	for maxBytes > 0 && len(q.overflow) > 0 {
		chunk := q.overflow[0]
		n := len(chunk)
		if n > maxBytes {
			n = maxBytes
		}
		out = append(out, chunk[:n]...)
		if n == len(chunk) {
			q.overflow = q.overflow[1:]
		} else {
			q.overflow[0] = chunk[n:]
		}
		maxBytes -= n
	}

	return out
}

// Requeue pushes bytes that a short socket write failed to deliver
// back to the front of the queue, ahead of everything else Drain
// would otherwise return first.
func (q *Queue) Requeue(undelivered []byte) {
	if len(undelivered) == 0 {
		return
	}
	q.static = append(append([]byte(nil), undelivered...), q.static...)
}
