// Package queue provides the incoming message FIFO owned by the consumer's
// core loop.
package queue

import "github.com/arloliu/multitopic/types"

// Incoming is the FIFO of received results awaiting a caller.
//
// Incoming is not safe for concurrent use. It is owned by the core loop and
// every mutation happens there; this is what keeps the byte accounting and
// the waiter/queue exclusivity invariant tractable without locks.
type Incoming struct {
	entries []types.Result
	bytes   int64
}

// New creates an empty queue with capacity hint n.
func New(n int) *Incoming {
	return &Incoming{entries: make([]types.Result, 0, n)}
}

// Enqueue appends a result. Successful entries contribute their payload
// length to Bytes.
func (q *Incoming) Enqueue(res types.Result) {
	q.entries = append(q.entries, res)
	if res.Err == nil {
		q.bytes += int64(res.Msg.Size())
	}
}

// Dequeue removes and returns the head. ok is false when the queue is empty.
//
// This is the only place the byte count decrements.
func (q *Incoming) Dequeue() (types.Result, bool) {
	if len(q.entries) == 0 {
		return types.Result{}, false
	}
	res := q.entries[0]
	q.entries[0] = types.Result{}
	q.entries = q.entries[1:]
	if res.Err == nil {
		q.bytes -= int64(res.Msg.Size())
	}

	return res, true
}

// DrainBatch removes up to maxMessages successful messages from the head,
// stopping early once maxBytes is reached (at least one message is taken if
// available). Error entries at the head stop the drain so they can surface
// through single receives.
func (q *Incoming) DrainBatch(maxMessages, maxBytes int) types.Messages {
	var batch types.Messages
	bytes := 0
	for len(q.entries) > 0 {
		if maxMessages > 0 && len(batch) >= maxMessages {
			break
		}
		if q.entries[0].Err != nil {
			break
		}
		if maxBytes > 0 && len(batch) > 0 && bytes+q.entries[0].Msg.Size() > maxBytes {
			break
		}
		res, _ := q.Dequeue()
		batch = append(batch, res.Msg)
		bytes += res.Msg.Size()
	}

	return batch
}

// Len returns the number of queued entries.
func (q *Incoming) Len() int { return len(q.entries) }

// Bytes returns the payload bytes of queued successful entries.
func (q *Incoming) Bytes() int64 { return q.bytes }

// Clear discards every entry and resets the byte count.
func (q *Incoming) Clear() {
	q.entries = q.entries[:0]
	q.bytes = 0
}

// ReachedBatchLimit reports whether the queued messages satisfy either batch
// limit: message count >= maxMessages or payload bytes >= maxBytes. A zero
// limit never triggers.
func (q *Incoming) ReachedBatchLimit(maxMessages, maxBytes int) bool {
	if maxMessages > 0 && len(q.entries) >= maxMessages {
		return true
	}
	if maxBytes > 0 && q.bytes >= int64(maxBytes) {
		return true
	}

	return false
}
