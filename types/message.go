package types

import (
	"fmt"
	"math"
	"time"
)

// MessageID identifies a message position within a single (topic, partition).
//
// MessageIDs are totally ordered within one partition and comparable across
// partitions only for equality. The zero value is not a valid position; use
// EarliestMessageID or LatestMessageID for the special endpoints.
type MessageID struct {
	LedgerID   int64
	EntryID    int64
	BatchIndex int32
	Partition  int32

	// Topic is the complete topic the message originated from. Set by the
	// owning child's stream before the message reaches the core; ack routing
	// relies on it.
	Topic CompleteTopicName
}

// EarliestMessageID returns the id addressing the first available message of
// a partition.
func EarliestMessageID() MessageID {
	return MessageID{LedgerID: -1, EntryID: -1, BatchIndex: -1, Partition: -1}
}

// LatestMessageID returns the id addressing the next message published to a
// partition.
func LatestMessageID() MessageID {
	return MessageID{LedgerID: math.MaxInt64, EntryID: math.MaxInt64, BatchIndex: -1, Partition: -1}
}

// IsEarliest reports whether the id equals the earliest endpoint, ignoring
// topic and partition.
func (id MessageID) IsEarliest() bool {
	return id.LedgerID == -1 && id.EntryID == -1 && id.BatchIndex == -1
}

// IsLatest reports whether the id equals the latest endpoint, ignoring topic
// and partition.
func (id MessageID) IsLatest() bool {
	return id.LedgerID == math.MaxInt64 && id.EntryID == math.MaxInt64
}

// Equal reports position equality including the owning topic.
func (id MessageID) Equal(other MessageID) bool {
	return id == other
}

// Compare orders two ids within the same (topic, partition): -1 when id is
// before other, 0 when equal, 1 when after. The result is meaningless across
// partitions.
func (id MessageID) Compare(other MessageID) int {
	switch {
	case id.LedgerID < other.LedgerID:
		return -1
	case id.LedgerID > other.LedgerID:
		return 1
	case id.EntryID < other.EntryID:
		return -1
	case id.EntryID > other.EntryID:
		return 1
	case id.BatchIndex < other.BatchIndex:
		return -1
	case id.BatchIndex > other.BatchIndex:
		return 1
	default:
		return 0
	}
}

// String renders the id as "ledger:entry:batch:partition".
func (id MessageID) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", id.LedgerID, id.EntryID, id.BatchIndex, id.Partition)
}

// Message is a single received message. Immutable after receipt.
type Message struct {
	ID              MessageID
	Payload         []byte
	Key             string
	Properties      map[string]string
	PublishTime     time.Time
	EventTime       time.Time
	Topic           CompleteTopicName
	ProducerName    string
	RedeliveryCount uint32
}

// Size returns the payload length in bytes.
func (m Message) Size() int { return len(m.Payload) }

// Messages is an ordered batch of messages as returned by batch receive.
type Messages []Message

// Size returns the total payload length of the batch in bytes.
func (ms Messages) Size() int {
	total := 0
	for _, m := range ms {
		total += m.Size()
	}

	return total
}

// IDs returns the message ids of the batch in order.
func (ms Messages) IDs() []MessageID {
	ids := make([]MessageID, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}

	return ids
}

// Result carries either a received message or the error that replaced it.
// Exactly one of the two fields is meaningful.
type Result struct {
	Msg Message
	Err error
}

// ConsumerStats is a point-in-time snapshot of consumer counters.
//
// For a multi-topic consumer the snapshot is the reduction over all child
// snapshots: counters are summed, IntervalDuration is averaged.
type ConsumerStats struct {
	NumMsgsReceived    uint64
	NumBytesReceived   uint64
	NumReceiveFailed   uint64
	NumAcksSent        uint64
	NumAcksFailed      uint64
	TotalMsgsReceived  uint64
	TotalBytesReceived uint64
	TotalReceiveFailed uint64
	TotalAcksSent      uint64
	TotalAcksFailed    uint64
	IncomingMsgs       int
	IntervalDuration   time.Duration
	LastDisconnected   time.Time
}

// Reduce combines child snapshots into a single aggregate.
func (s ConsumerStats) Reduce(others []ConsumerStats) ConsumerStats {
	agg := s
	for _, o := range others {
		agg.NumMsgsReceived += o.NumMsgsReceived
		agg.NumBytesReceived += o.NumBytesReceived
		agg.NumReceiveFailed += o.NumReceiveFailed
		agg.NumAcksSent += o.NumAcksSent
		agg.NumAcksFailed += o.NumAcksFailed
		agg.TotalMsgsReceived += o.TotalMsgsReceived
		agg.TotalBytesReceived += o.TotalBytesReceived
		agg.TotalReceiveFailed += o.TotalReceiveFailed
		agg.TotalAcksSent += o.TotalAcksSent
		agg.TotalAcksFailed += o.TotalAcksFailed
		agg.IncomingMsgs += o.IncomingMsgs
		agg.IntervalDuration += o.IntervalDuration
		if o.LastDisconnected.After(agg.LastDisconnected) {
			agg.LastDisconnected = o.LastDisconnected
		}
	}
	if n := len(others) + 1; n > 1 {
		agg.IntervalDuration /= time.Duration(n)
	}

	return agg
}
