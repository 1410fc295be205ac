package multitopic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/multitopic/internal/hooks"
	"github.com/arloliu/multitopic/internal/logging"
	"github.com/arloliu/multitopic/internal/metrics"
	"github.com/arloliu/multitopic/internal/queue"
	"github.com/arloliu/multitopic/internal/stream"
	"github.com/arloliu/multitopic/internal/unacked"
	"github.com/arloliu/multitopic/types"
)

// Consumer presents a single ordered message stream over a dynamic set of
// single-topic child consumers: every partition of a partitioned topic, an
// explicit topic list, or the topics of a namespace matching a pattern.
//
// All mutable state is owned by one core loop goroutine; public methods post
// events to it and await one-shot replies. Messages from different children
// are interleaved fairly but carry no cross-topic ordering guarantee.
//
// Lifecycle:
//   - Create with NewConsumer()
//   - Call Start() to build the child set and begin pulling
//   - Receive / BatchReceive / Ack from any goroutine
//   - Call Close() (or Unsubscribe()) for graceful shutdown
type Consumer struct {
	cfg     Config
	topics  types.Topics
	lookup  types.LookupService
	factory types.ChildFactory

	logger    types.Logger
	metrics   types.MetricsCollector
	hooks     types.Hooks
	name      string
	topicID   string
	onClosed  func(*Consumer)

	mailbox   chan event
	closedCh  chan struct{}
	drainedCh chan struct{}
	closeOnce sync.Once
	drainOnce sync.Once

	// ConnectionState, published for readers outside the core loop.
	state atomic.Int32

	merged   *stream.Merged
	incoming *queue.Incoming
	tracker  *unacked.Tracker

	// Core-loop-owned state. Never touched outside the core loop once
	// Start has launched it.
	children     map[types.CompleteTopicName]types.ChildConsumer
	partitioned  map[types.TopicName]int
	allTopics    map[types.TopicName]struct{}
	waiters      []*waiter
	batchWaiters []*batchWaiter
	pausedPermit chan struct{}

	pollCancel context.CancelFunc
	watchStop  chan struct{}

	mu      sync.Mutex
	started bool
}

// NewConsumer creates a multi-topic consumer over the given topics selector.
//
// Parameters:
//   - cfg: consumer configuration; missing values are defaulted
//   - lookup: broker metadata service
//   - factory: builds the per-topic child consumers
//   - topics: PartitionedTopic, TopicList or TopicsPattern
//   - opts: optional logger, metrics collector and hooks
//
// Returns a concrete *Consumer following the "accept interfaces, return
// structs" principle. Call Start before receiving.
func NewConsumer(cfg *Config, lookup types.LookupService, factory types.ChildFactory, topics types.Topics, opts ...Option) (*Consumer, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if lookup == nil {
		return nil, ErrLookupRequired
	}
	if factory == nil {
		return nil, ErrChildFactoryRequired
	}
	if topics == nil {
		return nil, ErrTopicsRequired
	}
	if tl, ok := topics.(types.TopicList); ok && len(tl.Topics) == 0 {
		return nil, ErrTopicsRequired
	}
	if tp, ok := topics.(types.TopicsPattern); ok && tp.Pattern == nil {
		return nil, ErrTopicsRequired
	}

	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &consumerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	logger := options.logger
	if logger == nil {
		logger = logging.NewNop()
	}
	collector := options.metrics
	if collector == nil {
		collector = metrics.NewNop()
	}
	hookSet := hooks.NewNop()
	if options.hooks != nil {
		hookSet = *options.hooks
		hooks.Fill(&hookSet)
	}

	name := cfg.ConsumerName
	if name == "" {
		name = "consumer-" + uuid.NewString()[:8]
	}

	c := &Consumer{
		cfg:         *cfg,
		topics:      topics,
		lookup:      lookup,
		factory:     factory,
		logger:      logger,
		metrics:     collector,
		hooks:       hookSet,
		name:        name,
		topicID:     "MultiTopicsConsumer-" + uuid.NewString()[:8],
		mailbox:     make(chan event, cfg.MailboxSize),
		closedCh:    make(chan struct{}),
		drainedCh:   make(chan struct{}),
		merged:      stream.NewMerged(),
		incoming:    queue.New(cfg.ReceiverQueueSize),
		children:    make(map[types.CompleteTopicName]types.ChildConsumer),
		partitioned: make(map[types.TopicName]int),
		allTopics:   make(map[types.TopicName]struct{}),
		watchStop:   make(chan struct{}),
	}
	c.state.Store(int32(types.StateUninitialized))

	return c, nil
}

// Start builds the initial child set and launches the core loop, poller and
// watchers. A failure is terminal: children already created are disposed and
// the consumer moves to the Failed state.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()

		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	if err := c.initChildren(ctx); err != nil {
		c.transitionState(types.StateUninitialized, types.StateFailed)
		c.closeOnce.Do(func() { close(c.closedCh) })
		c.drainOnce.Do(func() { close(c.drainedCh) })

		return fmt.Errorf("%w: %w", ErrInitFailed, err)
	}

	for _, child := range c.children {
		c.merged.Add(stream.New(child))
		if err := c.hooks.OnChildAdded(ctx, child.Topic()); err != nil {
			c.logger.Warn("child added hook failed", "topic", child.Topic(), "error", err)
		}
	}
	c.metrics.RecordChildCount(len(c.children))

	if c.cfg.AckTimeout > 0 {
		c.tracker = unacked.New(c.cfg.AckTimeout, c.cfg.AckTimeoutTickTime, c.postRedeliver)
		c.tracker.Start()
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	c.pollCancel = cancel

	c.transitionState(types.StateUninitialized, types.StateReady)

	go c.run()
	go c.poll(pollCtx)

	if c.cfg.AutoUpdatePartitions {
		go c.watchPartitions()
	}
	if _, ok := c.topics.(types.TopicsPattern); ok {
		go c.watchPattern()
	}

	c.logger.Info("consumer started",
		"name", c.name,
		"topic", c.topicID,
		"children", len(c.children),
		"subscription", c.cfg.SubscriptionName,
	)

	return nil
}

// initChildren builds the child set for the configured topics selector.
// Runs before the core loop exists, so it owns the child table exclusively.
func (c *Consumer) initChildren(ctx context.Context) error {
	var err error
	switch t := c.topics.(type) {
	case types.PartitionedTopic:
		err = c.initTopic(ctx, t.Topic, true)
	case types.TopicList:
		for _, topic := range t.Topics {
			if err = c.initTopic(ctx, topic, true); err != nil {
				break
			}
		}
	case types.TopicsPattern:
		var matched []types.TopicName
		matched, err = c.matchPattern(ctx, t)
		if err == nil {
			for _, topic := range matched {
				if err = c.initTopic(ctx, topic, false); err != nil {
					break
				}
			}
		}
	default:
		err = fmt.Errorf("unknown topics selector %T", c.topics)
	}
	if err != nil {
		c.disposeAllChildren()

		return err
	}

	return nil
}

// initTopic expands one logical topic into children, one per partition.
func (c *Consumer) initTopic(ctx context.Context, topic types.TopicName, createIfMissing bool) error {
	lookupCtx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	names, err := c.lookup.GetPartitionsForTopic(lookupCtx, topic)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: partitions of %s: %w", ErrLookupFailed, topic, err)
	}
	if len(names) == 0 {
		names = []types.CompleteTopicName{topic.Complete()}
	}

	share := c.queueShare(len(c.children) + len(names))
	for _, name := range names {
		child, err := c.factory.Create(ctx, name, types.ChildOptions{
			ReceiverQueueSize:            share,
			StartMessageID:               c.cfg.StartMessageID,
			StartMessageRollbackDuration: c.cfg.StartMessageRollbackDuration,
			CreateTopicIfDoesNotExist:    createIfMissing,
		})
		if err != nil {
			return fmt.Errorf("create child for %s: %w", name, err)
		}
		c.children[name] = child
	}

	c.allTopics[topic] = struct{}{}
	if len(names) > 1 || names[0] != topic.Complete() {
		c.partitioned[topic] = len(names)
	}

	return nil
}

// matchPattern lists the namespace and filters by the pattern regex.
func (c *Consumer) matchPattern(ctx context.Context, t types.TopicsPattern) ([]types.TopicName, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()
	all, err := c.lookup.GetTopicsOfNamespace(lookupCtx, t.Namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: topics of %s: %w", ErrLookupFailed, t.Namespace, err)
	}
	matched := make([]types.TopicName, 0, len(all))
	for _, topic := range all {
		if t.Pattern.MatchString(string(topic)) {
			matched = append(matched, topic)
		}
	}

	return matched, nil
}

// queueShare is the per-child receiver queue size given the projected child
// count: min(ReceiverQueueSize, MaxTotal / count).
func (c *Consumer) queueShare(childCount int) int {
	if childCount <= 0 {
		childCount = 1
	}
	share := c.cfg.MaxTotalReceiverQueueSizeAcrossPartitions / childCount
	if share > c.cfg.ReceiverQueueSize || share == 0 {
		share = c.cfg.ReceiverQueueSize
	}

	return share
}

func (c *Consumer) disposeAllChildren() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LookupTimeout)
	defer cancel()
	for name, child := range c.children {
		if err := child.Close(ctx); err != nil {
			c.logger.Warn("failed to dispose child", "topic", name, "error", err)
		}
		delete(c.children, name)
	}
}

// postRedeliver is the unacked tracker callback. It runs on the tracker's
// timer goroutine, so the event is posted from a detached goroutine to keep
// the timer from blocking on a full mailbox.
func (c *Consumer) postRedeliver(ids []types.MessageID) {
	go func() {
		select {
		case c.mailbox <- evRedeliverSet{ids: ids}:
		case <-c.closedCh:
		}
	}()
}

// transitionState publishes the new state and notifies metrics and hooks.
func (c *Consumer) transitionState(from, to types.ConnectionState) {
	c.state.Store(int32(to))
	c.metrics.RecordStateTransition(from, to)
	if err := c.hooks.OnStateChanged(context.Background(), from, to); err != nil {
		c.logger.Warn("state change hook failed", "from", from, "to", to, "error", err)
	}
	c.logger.Debug("state transition", "from", from.String(), "to", to.String())
}

// State returns the published consumer state.
func (c *Consumer) State() types.ConnectionState {
	return types.ConnectionState(c.state.Load())
}

// Topic returns the synthetic multi-topic identifier of the consumer.
func (c *Consumer) Topic() string { return c.topicID }

// Name returns the consumer name.
func (c *Consumer) Name() string { return c.name }

// post enqueues an event for the core loop, honoring cancellation and
// shutdown.
func (c *Consumer) post(ctx context.Context, e event) error {
	if c.State() == types.StateUninitialized {
		return ErrNotStarted
	}
	select {
	case <-c.closedCh:
		return ErrAlreadyClosed
	default:
	}
	select {
	case c.mailbox <- e:
		return nil
	case <-c.closedCh:
		return ErrAlreadyClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// postAsync enqueues a fire-and-forget event, dropping it on shutdown.
func (c *Consumer) postAsync(e event) {
	select {
	case c.mailbox <- e:
	case <-c.closedCh:
	}
}

// awaitErr waits for an error reply, falling back to ErrAlreadyClosed if the
// core loop exits without replying.
func (c *Consumer) awaitErr(resp <-chan error) error {
	select {
	case err := <-resp:
		return err
	case <-c.drainedCh:
		select {
		case err := <-resp:
			return err
		default:
			return ErrAlreadyClosed
		}
	}
}

// Receive returns the next message of any child. It blocks until a message
// is available, ctx is cancelled, or the consumer closes. The returned
// message is tracked for ack-timeout redelivery when configured.
func (c *Consumer) Receive(ctx context.Context) (types.Message, error) {
	ev := evReceive{ctx: ctx, resp: make(chan types.Result, 1)}
	if err := c.post(ctx, ev); err != nil {
		return types.Message{}, err
	}
	select {
	case res := <-ev.resp:
		if res.Err != nil {
			return types.Message{}, res.Err
		}

		return res.Msg, nil
	case <-c.drainedCh:
		select {
		case res := <-ev.resp:
			if res.Err != nil {
				return types.Message{}, res.Err
			}

			return res.Msg, nil
		default:
			return types.Message{}, ErrAlreadyClosed
		}
	}
}

// BatchReceive returns a batch of messages bounded by BatchReceivePolicy:
// it replies as soon as a limit is reached, or with whatever is available
// (possibly nothing) when the policy timeout fires.
func (c *Consumer) BatchReceive(ctx context.Context) (types.Messages, error) {
	ev := evBatchReceive{ctx: ctx, resp: make(chan batchResult, 1)}
	if err := c.post(ctx, ev); err != nil {
		return nil, err
	}
	select {
	case res := <-ev.resp:
		return res.msgs, res.err
	case <-c.drainedCh:
		select {
		case res := <-ev.resp:
			return res.msgs, res.err
		default:
			return nil, ErrAlreadyClosed
		}
	}
}

// Ack acknowledges a single message by id.
func (c *Consumer) Ack(ctx context.Context, id types.MessageID) error {
	ev := evAck{ctx: ctx, id: id, resp: make(chan error, 1)}
	if err := c.post(ctx, ev); err != nil {
		return err
	}

	return c.awaitErr(ev.resp)
}

// AckMessages acknowledges every message of the batch in order, stopping at
// the first failure.
func (c *Consumer) AckMessages(ctx context.Context, msgs types.Messages) error {
	for _, m := range msgs {
		if err := c.Ack(ctx, m.ID); err != nil {
			return err
		}
	}

	return nil
}

// AckCumulative acknowledges every message of the owning child up to and
// including id.
func (c *Consumer) AckCumulative(ctx context.Context, id types.MessageID) error {
	ev := evAck{ctx: ctx, id: id, cumulative: true, resp: make(chan error, 1)}
	if err := c.post(ctx, ev); err != nil {
		return err
	}

	return c.awaitErr(ev.resp)
}

// Nack requests redelivery of a single message.
func (c *Consumer) Nack(id types.MessageID) error {
	ev := evNack{id: id, resp: make(chan error, 1)}
	if err := c.post(context.Background(), ev); err != nil {
		return err
	}

	return c.awaitErr(ev.resp)
}

// NackMessages requests redelivery of every message of the batch.
func (c *Consumer) NackMessages(msgs types.Messages) error {
	for _, m := range msgs {
		if err := c.Nack(m.ID); err != nil {
			return err
		}
	}

	return nil
}

// RedeliverUnacked asks every child to redeliver its unacknowledged
// messages. The incoming queue and the unacked tracker are cleared before
// redelivery begins.
func (c *Consumer) RedeliverUnacked(ctx context.Context) error {
	ev := evRedeliverAll{ctx: ctx, resp: make(chan error, 1)}
	if err := c.post(ctx, ev); err != nil {
		return err
	}

	return c.awaitErr(ev.resp)
}

// Seek repositions every child to the target and clears local state. A
// SeekID target accepts only the Earliest/Latest endpoints; any other id is
// rejected synchronously with ErrIllegalMessageID.
func (c *Consumer) Seek(ctx context.Context, target types.SeekTarget) error {
	if id, ok := target.(types.SeekID); ok {
		if !id.ID.IsEarliest() && !id.ID.IsLatest() {
			return ErrIllegalMessageID
		}
	}

	return c.SeekEach(ctx, func(types.CompleteTopicName) types.SeekTarget { return target })
}

// SeekEach repositions every child to the target the resolver picks for its
// topic. The resolver's targets are applied as given.
func (c *Consumer) SeekEach(ctx context.Context, resolve types.SeekResolver) error {
	ev := evSeek{ctx: ctx, resolve: resolve, resp: make(chan error, 1)}
	if err := c.post(ctx, ev); err != nil {
		return err
	}

	return c.awaitErr(ev.resp)
}

// ReconsumeLater re-publishes the message to its child's retry topic for
// consumption after the delay. Requires RetryEnable.
func (c *Consumer) ReconsumeLater(ctx context.Context, msg types.Message, delay time.Duration) error {
	if !c.cfg.RetryEnable {
		return ErrRetryDisabled
	}
	ev := evReconsumeLater{ctx: ctx, msg: msg, delay: delay, resp: make(chan error, 1)}
	if err := c.post(ctx, ev); err != nil {
		return err
	}

	return c.awaitErr(ev.resp)
}

// ReconsumeLaterMessages applies ReconsumeLater to each message in order and
// returns when all complete, stopping at the first failure.
func (c *Consumer) ReconsumeLaterMessages(ctx context.Context, msgs types.Messages, delay time.Duration) error {
	if !c.cfg.RetryEnable {
		return ErrRetryDisabled
	}
	for _, m := range msgs {
		if err := c.ReconsumeLater(ctx, m, delay); err != nil {
			return err
		}
	}

	return nil
}

// ReconsumeLaterCumulative is the cumulative variant of ReconsumeLater.
func (c *Consumer) ReconsumeLaterCumulative(ctx context.Context, msg types.Message, delay time.Duration) error {
	if !c.cfg.RetryEnable {
		return ErrRetryDisabled
	}
	ev := evReconsumeLater{ctx: ctx, msg: msg, delay: delay, cumulative: true, resp: make(chan error, 1)}
	if err := c.post(ctx, ev); err != nil {
		return err
	}

	return c.awaitErr(ev.resp)
}

// HasReachedEndOfTopic reports whether every child has reached the end of
// its (terminated) topic.
func (c *Consumer) HasReachedEndOfTopic(ctx context.Context) (bool, error) {
	ev := evEndOfTopic{resp: make(chan boolReply, 1)}
	if err := c.post(ctx, ev); err != nil {
		return false, err
	}
	select {
	case r := <-ev.resp:
		return r.ok, r.err
	case <-c.drainedCh:
		return false, ErrAlreadyClosed
	}
}

// HasMessageAvailable reports whether any child has a message available.
// Messages already pulled into the consumer's incoming queue are not counted.
func (c *Consumer) HasMessageAvailable(ctx context.Context) (bool, error) {
	ev := evHasMessageAvailable{ctx: ctx, resp: make(chan boolReply, 1)}
	if err := c.post(ctx, ev); err != nil {
		return false, err
	}
	select {
	case r := <-ev.resp:
		return r.ok, r.err
	case <-c.drainedCh:
		return false, ErrAlreadyClosed
	}
}

// LastDisconnected returns the most recent broker disconnect time across
// children, or the zero time.
func (c *Consumer) LastDisconnected(ctx context.Context) (time.Time, error) {
	ev := evLastDisconnected{resp: make(chan time.Time, 1)}
	if err := c.post(ctx, ev); err != nil {
		return time.Time{}, err
	}
	select {
	case t := <-ev.resp:
		return t, nil
	case <-c.drainedCh:
		return time.Time{}, ErrAlreadyClosed
	}
}

// Stats joins every child's stats snapshot: counters are summed and the
// interval duration averaged.
func (c *Consumer) Stats(ctx context.Context) (types.ConsumerStats, error) {
	ev := evStats{ctx: ctx, resp: make(chan statsReply, 1)}
	if err := c.post(ctx, ev); err != nil {
		return types.ConsumerStats{}, err
	}
	select {
	case r := <-ev.resp:
		return r.stats, r.err
	case <-c.drainedCh:
		return types.ConsumerStats{}, ErrAlreadyClosed
	}
}

// LastMessageID is not supported on a multi-topic consumer.
func (c *Consumer) LastMessageID() (types.MessageID, error) {
	return types.MessageID{}, ErrNotSupported
}

// Close shuts the consumer down: children are disposed best-effort, parked
// receives get ErrAlreadyClosed, and background tasks stop. Close never
// fails; closing a closed consumer returns nil.
func (c *Consumer) Close(ctx context.Context) error {
	c.mu.Lock()
	started := c.started
	c.started = true
	c.mu.Unlock()
	if !started {
		// Never started: there is no core loop to drive the shutdown.
		c.closeOnce.Do(func() { close(c.closedCh) })
		c.drainOnce.Do(func() { close(c.drainedCh) })
		c.transitionState(c.State(), types.StateClosed)

		return nil
	}
	ev := evClose{ctx: ctx, resp: make(chan error, 1)}
	if err := c.post(ctx, ev); err != nil {
		if errors.Is(err, ErrAlreadyClosed) {
			return nil
		}

		return err
	}

	return c.awaitErr(ev.resp)
}

// Unsubscribe removes every child's subscription and shuts the consumer
// down. Unlike Close, child failures surface and move the consumer to the
// Failed state.
func (c *Consumer) Unsubscribe(ctx context.Context) error {
	ev := evClose{ctx: ctx, unsubscribe: true, resp: make(chan error, 1)}
	if err := c.post(ctx, ev); err != nil {
		return err
	}

	return c.awaitErr(ev.resp)
}
