package testing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/multitopic/types"
)

// ErrChildClosed is returned by a fake child after Close or Unsubscribe.
var ErrChildClosed = errors.New("child consumer closed")

// ErrTopicTerminated is returned by Receive once the topic is terminated and
// fully drained.
var ErrTopicTerminated = errors.New("topic terminated")

// Child is a scripted in-memory ChildConsumer.
//
// Tests publish messages into its log with Publish; Receive delivers them in
// order, blocking while the log is drained. Acks, nacks, seeks and
// redeliveries mutate a cursor over the log the way a broker-side
// subscription would, so redelivered messages come back through Receive.
type Child struct {
	topic types.CompleteTopicName

	mu             sync.Mutex
	log            []types.Message
	cursor         int
	pending        []int // redelivery queue, indexes into log
	acked          map[types.MessageID]bool
	deliveredIdx   map[types.MessageID]int
	terminated     bool
	closed         bool
	unsubscribed   bool
	disconnectedAt time.Time
	receiveErrs    []error
	ackErr         error
	seekErr        error
	unsubErr       error

	received uint64
	acks     uint64

	signal chan struct{}
}

var _ types.ChildConsumer = (*Child)(nil)

// NewChild creates a fake child for the topic.
func NewChild(topic types.CompleteTopicName) *Child {
	return &Child{
		topic:        topic,
		acked:        make(map[types.MessageID]bool),
		deliveredIdx: make(map[types.MessageID]int),
		signal:       make(chan struct{}, 1),
	}
}

// Publish appends messages to the topic log. Message ids and topics are
// filled in when unset.
func (c *Child) Publish(msgs ...types.Message) {
	c.mu.Lock()
	for _, m := range msgs {
		if m.ID == (types.MessageID{}) {
			m.ID = types.MessageID{LedgerID: 1, EntryID: int64(len(c.log)), Partition: int32(c.topic.PartitionIndex())}
		}
		m.ID.Topic = c.topic
		if m.Topic == "" {
			m.Topic = c.topic
		}
		if m.PublishTime.IsZero() {
			m.PublishTime = time.Now()
		}
		c.log = append(c.log, m)
	}
	c.mu.Unlock()
	c.wake()
}

// PublishPayloads appends one message per payload string.
func (c *Child) PublishPayloads(payloads ...string) {
	msgs := make([]types.Message, len(payloads))
	for i, p := range payloads {
		msgs[i] = types.Message{Payload: []byte(p)}
	}
	c.Publish(msgs...)
}

// FailNextReceive makes the next Receive calls return the given errors, one
// each, before normal delivery resumes.
func (c *Child) FailNextReceive(errs ...error) {
	c.mu.Lock()
	c.receiveErrs = append(c.receiveErrs, errs...)
	c.mu.Unlock()
	c.wake()
}

// FailAcks makes every ack operation return err (nil restores success).
func (c *Child) FailAcks(err error) {
	c.mu.Lock()
	c.ackErr = err
	c.mu.Unlock()
}

// FailUnsubscribe makes Unsubscribe return err (nil restores success).
func (c *Child) FailUnsubscribe(err error) {
	c.mu.Lock()
	c.unsubErr = err
	c.mu.Unlock()
}

// FailSeeks makes every seek return err (nil restores success).
func (c *Child) FailSeeks(err error) {
	c.mu.Lock()
	c.seekErr = err
	c.mu.Unlock()
}

// Terminate marks the topic terminated: once the log is drained the child
// reports HasReachedEndOfTopic.
func (c *Child) Terminate() {
	c.mu.Lock()
	c.terminated = true
	c.mu.Unlock()
	c.wake()
}

// SetLastDisconnected records a broker disconnect time.
func (c *Child) SetLastDisconnected(t time.Time) {
	c.mu.Lock()
	c.disconnectedAt = t
	c.mu.Unlock()
}

// AckedIDs returns the ids acknowledged so far.
func (c *Child) AckedIDs() []types.MessageID {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]types.MessageID, 0, len(c.acked))
	for id := range c.acked {
		ids = append(ids, id)
	}

	return ids
}

// IsClosed reports whether Close was called.
func (c *Child) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// IsUnsubscribed reports whether Unsubscribe was called.
func (c *Child) IsUnsubscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.unsubscribed
}

// Topic implements ChildConsumer.
func (c *Child) Topic() types.CompleteTopicName { return c.topic }

// Receive implements ChildConsumer. It delivers queued redeliveries first,
// then the rest of the log in order, then blocks.
func (c *Child) Receive(ctx context.Context) (types.Message, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()

			return types.Message{}, ErrChildClosed
		}
		if len(c.receiveErrs) > 0 {
			err := c.receiveErrs[0]
			c.receiveErrs = c.receiveErrs[1:]
			c.mu.Unlock()

			return types.Message{}, err
		}
		if len(c.pending) > 0 {
			idx := c.pending[0]
			c.pending = c.pending[1:]
			msg := c.log[idx]
			msg.RedeliveryCount++
			c.log[idx] = msg
			c.received++
			c.mu.Unlock()

			return msg, nil
		}
		if c.cursor < len(c.log) {
			msg := c.log[c.cursor]
			c.deliveredIdx[msg.ID] = c.cursor
			c.cursor++
			c.received++
			c.mu.Unlock()

			return msg, nil
		}
		if c.terminated {
			c.mu.Unlock()

			return types.Message{}, ErrTopicTerminated
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return types.Message{}, ctx.Err()
		case <-c.signal:
		}
	}
}

// Ack implements ChildConsumer.
func (c *Child) Ack(_ context.Context, id types.MessageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ackErr != nil {
		return c.ackErr
	}
	c.acked[id] = true
	c.acks++

	return nil
}

// AckCumulative implements ChildConsumer.
func (c *Child) AckCumulative(_ context.Context, id types.MessageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ackErr != nil {
		return c.ackErr
	}
	for _, m := range c.log {
		if m.ID.Compare(id) <= 0 {
			c.acked[m.ID] = true
		}
	}
	c.acks++

	return nil
}

// Nack implements ChildConsumer: the message is queued for redelivery.
func (c *Child) Nack(id types.MessageID) error {
	c.mu.Lock()
	if idx, ok := c.deliveredIdx[id]; ok {
		c.pending = append(c.pending, idx)
	}
	c.mu.Unlock()
	c.wake()

	return nil
}

// RedeliverAll implements ChildConsumer: every delivered, unacked message is
// queued for redelivery.
func (c *Child) RedeliverAll(_ context.Context) error {
	c.mu.Lock()
	for idx := range c.cursor {
		id := c.log[idx].ID
		if !c.acked[id] {
			c.pending = append(c.pending, idx)
		}
	}
	c.mu.Unlock()
	c.wake()

	return nil
}

// Redeliver implements ChildConsumer for a specific id set.
func (c *Child) Redeliver(_ context.Context, ids []types.MessageID) error {
	c.mu.Lock()
	for _, id := range ids {
		if idx, ok := c.deliveredIdx[id]; ok && !c.acked[id] {
			c.pending = append(c.pending, idx)
		}
	}
	c.mu.Unlock()
	c.wake()

	return nil
}

// Seek implements ChildConsumer. Seeking resets the redelivery queue; only a
// seek to Earliest also clears the ack state.
func (c *Child) Seek(_ context.Context, target types.SeekTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seekErr != nil {
		return c.seekErr
	}
	c.pending = nil
	switch tgt := target.(type) {
	case types.SeekID:
		switch {
		case tgt.ID.IsEarliest():
			c.cursor = 0
			c.acked = make(map[types.MessageID]bool)
		case tgt.ID.IsLatest():
			c.cursor = len(c.log)
		default:
			c.cursor = len(c.log)
			for i, m := range c.log {
				if m.ID.Compare(tgt.ID) > 0 {
					c.cursor = i

					break
				}
			}
		}
	case types.SeekTime:
		c.cursor = len(c.log)
		for i, m := range c.log {
			if !m.PublishTime.Before(tgt.Time) {
				c.cursor = i

				break
			}
		}
	default:
		return fmt.Errorf("unknown seek target %T", target)
	}
	c.wakeLocked()

	return nil
}

// ReconsumeLater implements ChildConsumer: the message is queued for
// redelivery after being acknowledged at its original position.
func (c *Child) ReconsumeLater(_ context.Context, msg types.Message, _ time.Duration) error {
	c.mu.Lock()
	c.acked[msg.ID] = true
	if idx, ok := c.deliveredIdx[msg.ID]; ok {
		c.pending = append(c.pending, idx)
	}
	c.mu.Unlock()
	c.wake()

	return nil
}

// ReconsumeLaterCumulative implements ChildConsumer.
func (c *Child) ReconsumeLaterCumulative(ctx context.Context, msg types.Message, delay time.Duration) error {
	if err := c.AckCumulative(ctx, msg.ID); err != nil {
		return err
	}

	return c.ReconsumeLater(ctx, msg, delay)
}

// Stats implements ChildConsumer.
func (c *Child) Stats(_ context.Context) (types.ConsumerStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return types.ConsumerStats{
		NumMsgsReceived:   c.received,
		TotalMsgsReceived: c.received,
		NumAcksSent:       c.acks,
		TotalAcksSent:     c.acks,
		IncomingMsgs:      len(c.log) - c.cursor + len(c.pending),
		IntervalDuration:  time.Minute,
		LastDisconnected:  c.disconnectedAt,
	}, nil
}

// HasReachedEndOfTopic implements ChildConsumer.
func (c *Child) HasReachedEndOfTopic() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.terminated && c.cursor >= len(c.log) && len(c.pending) == 0
}

// HasMessageAvailable implements ChildConsumer.
func (c *Child) HasMessageAvailable(_ context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cursor < len(c.log) || len(c.pending) > 0, nil
}

// LastDisconnected implements ChildConsumer.
func (c *Child) LastDisconnected() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.disconnectedAt
}

// Unsubscribe implements ChildConsumer.
func (c *Child) Unsubscribe(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubErr != nil {
		return c.unsubErr
	}
	c.unsubscribed = true
	c.closed = true
	c.wakeLocked()

	return nil
}

// Close implements ChildConsumer.
func (c *Child) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.wakeLocked()

	return nil
}

func (c *Child) wake() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// wakeLocked is wake for callers already holding c.mu.
func (c *Child) wakeLocked() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}
