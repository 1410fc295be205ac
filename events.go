package multitopic

import (
	"context"
	"time"

	"github.com/arloliu/multitopic/types"
)

// event is the closed set of messages the core loop processes. Every state
// mutation of the consumer happens inside the core loop, one event at a
// time, in arrival order.
type event interface {
	isEvent()
}

// waiter is a parked single receive. The reply channel is one-shot; stop
// detaches the cancellation registration once the waiter is satisfied or
// removed.
type waiter struct {
	ctx  context.Context
	resp chan types.Result
	stop func() bool
}

// batchResult is the reply of a batch receive.
type batchResult struct {
	msgs types.Messages
	err  error
}

// batchWaiter is a parked batch receive. Its timer fires evBatchTimeout
// unless the waiter is satisfied or cancelled first.
type batchWaiter struct {
	ctx   context.Context
	resp  chan batchResult
	stop  func() bool
	timer *time.Timer
}

// evMessageReceived hands a merged-stream result to the core. The poller
// blocks on permit before its next pull; the core withholds the send once the
// queue reaches ReceiverQueueSize and releases it when a dequeue brings the
// queue down to the resume threshold.
type evMessageReceived struct {
	res    types.Result
	permit chan struct{}
}

// evReceive asks for a single message.
type evReceive struct {
	ctx  context.Context
	resp chan types.Result
}

// evBatchReceive asks for a message batch per BatchReceivePolicy.
type evBatchReceive struct {
	ctx  context.Context
	resp chan batchResult
}

// evBatchTimeout flushes the batch waiter whose timer fired with whatever is
// queued.
type evBatchTimeout struct {
	w *batchWaiter
}

// evRemoveWaiter detaches a cancelled receive waiter.
type evRemoveWaiter struct {
	w *waiter
}

// evRemoveBatchWaiter detaches a cancelled batch waiter.
type evRemoveBatchWaiter struct {
	w *batchWaiter
}

// evAck routes an acknowledgement to the owning child.
type evAck struct {
	ctx        context.Context
	id         types.MessageID
	cumulative bool
	resp       chan error
}

// evNack routes a negative acknowledgement to the owning child.
type evNack struct {
	id   types.MessageID
	resp chan error
}

// evRedeliverAll redelivers every unacknowledged message of every child.
type evRedeliverAll struct {
	ctx  context.Context
	resp chan error
}

// evRedeliverSet redelivers a specific id set, posted by the unacked
// tracker. Falls back to redeliver-all for non-shared subscriptions.
type evRedeliverSet struct {
	ids []types.MessageID
}

// evSeek repositions every child; resolve picks the per-child target.
type evSeek struct {
	ctx     context.Context
	resolve types.SeekResolver
	resp    chan error
}

// evReconsumeLater re-routes a message to the retry topic of its child.
type evReconsumeLater struct {
	ctx        context.Context
	msg        types.Message
	delay      time.Duration
	cumulative bool
	resp       chan error
}

// evPartitionTick triggers a partition growth check.
type evPartitionTick struct{}

// evPatternTick triggers a pattern discovery diff.
type evPatternTick struct{}

// evEndOfTopic asks whether every child has reached the end of its topic.
type evEndOfTopic struct {
	resp chan boolReply
}

// evHasMessageAvailable asks whether any child has a message available.
type evHasMessageAvailable struct {
	ctx  context.Context
	resp chan boolReply
}

// evLastDisconnected asks for the most recent child disconnect time.
type evLastDisconnected struct {
	resp chan time.Time
}

// evStats joins child stats into an aggregate snapshot.
type evStats struct {
	ctx  context.Context
	resp chan statsReply
}

// evClose shuts the consumer down. With unsubscribe set, children are
// unsubscribed instead of closed and failures surface.
type evClose struct {
	ctx         context.Context
	unsubscribe bool
	resp        chan error
}

type boolReply struct {
	ok  bool
	err error
}

type statsReply struct {
	stats types.ConsumerStats
	err   error
}

func (evMessageReceived) isEvent()     {}
func (evReceive) isEvent()             {}
func (evBatchReceive) isEvent()        {}
func (evBatchTimeout) isEvent()        {}
func (evRemoveWaiter) isEvent()        {}
func (evRemoveBatchWaiter) isEvent()   {}
func (evAck) isEvent()                 {}
func (evNack) isEvent()                {}
func (evRedeliverAll) isEvent()        {}
func (evRedeliverSet) isEvent()        {}
func (evSeek) isEvent()                {}
func (evReconsumeLater) isEvent()      {}
func (evPartitionTick) isEvent()       {}
func (evPatternTick) isEvent()         {}
func (evEndOfTopic) isEvent()          {}
func (evHasMessageAvailable) isEvent() {}
func (evLastDisconnected) isEvent()    {}
func (evStats) isEvent()               {}
func (evClose) isEvent()               {}
