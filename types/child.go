package types

import (
	"context"
	"time"
)

// ChildConsumer is the contract of a single-topic (or single-partition)
// consumer the multi-topic core fans in over. The core never looks inside a
// child; it routes operations to it by topic and merges its message stream.
//
// Implementations must be safe for the call pattern the core produces: one
// goroutine blocked in Receive while other goroutines invoke control
// operations (ack, seek, redeliver, close). Within one child, operations are
// applied in the order they are issued.
type ChildConsumer interface {
	// Topic returns the complete topic this child consumes.
	Topic() CompleteTopicName

	// Receive blocks until a message is available, the child fails, or ctx is
	// cancelled.
	Receive(ctx context.Context) (Message, error)

	// Ack acknowledges a single message.
	Ack(ctx context.Context, id MessageID) error

	// AckCumulative acknowledges every message of the child up to and
	// including id.
	AckCumulative(ctx context.Context, id MessageID) error

	// Nack requests redelivery of a single message after the configured
	// negative-ack delay.
	Nack(id MessageID) error

	// RedeliverAll requests redelivery of every unacknowledged message.
	RedeliverAll(ctx context.Context) error

	// Redeliver requests redelivery of a specific set of messages. Only
	// meaningful under Shared/KeyShared subscriptions.
	Redeliver(ctx context.Context, ids []MessageID) error

	// Seek repositions the child to the target position and discards its
	// local state.
	Seek(ctx context.Context, target SeekTarget) error

	// ReconsumeLater re-publishes the message to the retry topic for
	// consumption after the delay, then acknowledges it.
	ReconsumeLater(ctx context.Context, msg Message, delay time.Duration) error

	// ReconsumeLaterCumulative is the cumulative variant of ReconsumeLater.
	ReconsumeLaterCumulative(ctx context.Context, msg Message, delay time.Duration) error

	// Stats returns a snapshot of the child's counters.
	Stats(ctx context.Context) (ConsumerStats, error)

	// HasReachedEndOfTopic reports whether the topic has been terminated and
	// every message consumed.
	HasReachedEndOfTopic() bool

	// HasMessageAvailable reports whether at least one message is available
	// to receive.
	HasMessageAvailable(ctx context.Context) (bool, error)

	// LastDisconnected returns the time of the child's most recent broker
	// disconnect, or the zero time if never disconnected.
	LastDisconnected() time.Time

	// Unsubscribe removes the child's subscription from the broker and
	// closes it.
	Unsubscribe(ctx context.Context) error

	// Close releases the child. Idempotent.
	Close(ctx context.Context) error
}

// ChildOptions carries the per-child settings the core decides at creation
// time.
type ChildOptions struct {
	// ReceiverQueueSize is the child's prefetch window. For partitioned
	// topics this is the fair share of the parent's total at creation time.
	ReceiverQueueSize int

	// StartMessageID positions the subscription cursor, when set.
	StartMessageID *MessageID

	// StartMessageRollbackDuration rolls the cursor back in time, when
	// positive.
	StartMessageRollbackDuration time.Duration

	// CreateTopicIfDoesNotExist controls broker-side topic auto-creation.
	// Pattern discovery always sets it to false.
	CreateTopicIfDoesNotExist bool
}

// ChildFactory builds child consumers. The factory is supplied by the
// transport layer; the core only decides which topics to build and with what
// options.
type ChildFactory interface {
	Create(ctx context.Context, topic CompleteTopicName, opts ChildOptions) (ChildConsumer, error)
}

// ChildFactoryFunc adapts a function to the ChildFactory interface.
type ChildFactoryFunc func(ctx context.Context, topic CompleteTopicName, opts ChildOptions) (ChildConsumer, error)

// Create calls the function.
func (f ChildFactoryFunc) Create(ctx context.Context, topic CompleteTopicName, opts ChildOptions) (ChildConsumer, error) {
	return f(ctx, topic, opts)
}
