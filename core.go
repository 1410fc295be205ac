package multitopic

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/multitopic/internal/stream"
	"github.com/arloliu/multitopic/types"
)

// run is the core loop: the single writer of every piece of consumer state.
// It processes one event at a time in arrival order; between events the
// state is quiescent. Background tasks never mutate state directly, they
// only post events here.
func (c *Consumer) run() {
	defer c.drainOnce.Do(func() { close(c.drainedCh) })
	for {
		e := <-c.mailbox
		if c.handle(e) {
			break
		}
	}
	// The mailbox gate is closed; answer whatever was enqueued before it.
	for {
		select {
		case e := <-c.mailbox:
			c.replyClosed(e)
		default:
			return
		}
	}
}

func (c *Consumer) handle(e event) (stop bool) {
	switch ev := e.(type) {
	case evMessageReceived:
		c.handleMessageReceived(ev)
	case evReceive:
		c.handleReceive(ev)
	case evBatchReceive:
		c.handleBatchReceive(ev)
	case evBatchTimeout:
		c.handleBatchTimeout(ev)
	case evRemoveWaiter:
		c.handleRemoveWaiter(ev)
	case evRemoveBatchWaiter:
		c.handleRemoveBatchWaiter(ev)
	case evAck:
		c.handleAck(ev)
	case evNack:
		c.handleNack(ev)
	case evRedeliverAll:
		ev.resp <- c.redeliverAll(ev.ctx)
	case evRedeliverSet:
		c.handleRedeliverSet(ev)
	case evSeek:
		c.handleSeek(ev)
	case evReconsumeLater:
		c.handleReconsumeLater(ev)
	case evPartitionTick:
		c.handlePartitionTick()
	case evPatternTick:
		c.handlePatternTick()
	case evEndOfTopic:
		c.handleEndOfTopic(ev)
	case evHasMessageAvailable:
		c.handleHasMessageAvailable(ev)
	case evLastDisconnected:
		c.handleLastDisconnected(ev)
	case evStats:
		c.handleStats(ev)
	case evClose:
		return c.handleClose(ev)
	}

	return false
}

// replyClosed answers events that arrived after shutdown.
func (c *Consumer) replyClosed(e event) {
	switch ev := e.(type) {
	case evReceive:
		ev.resp <- types.Result{Err: ErrAlreadyClosed}
	case evBatchReceive:
		ev.resp <- batchResult{err: ErrAlreadyClosed}
	case evAck:
		ev.resp <- ErrAlreadyClosed
	case evNack:
		ev.resp <- ErrAlreadyClosed
	case evRedeliverAll:
		ev.resp <- ErrAlreadyClosed
	case evSeek:
		ev.resp <- ErrAlreadyClosed
	case evReconsumeLater:
		ev.resp <- ErrAlreadyClosed
	case evEndOfTopic:
		ev.resp <- boolReply{err: ErrAlreadyClosed}
	case evHasMessageAvailable:
		ev.resp <- boolReply{err: ErrAlreadyClosed}
	case evLastDisconnected:
		ev.resp <- time.Time{}
	case evStats:
		ev.resp <- statsReply{err: ErrAlreadyClosed}
	case evClose:
		if ev.unsubscribe {
			ev.resp <- ErrAlreadyClosed
		} else {
			ev.resp <- nil
		}
	default:
		// Poller results, ticks and waiter removals need no reply; parked
		// waiters were already answered by stopConsumer.
	}
}

// handleMessageReceived places a merged-stream result: straight to a parked
// waiter when one exists, otherwise onto the queue. The poller permit is
// withheld once the queue is full and released only when a dequeue drains it
// back to the resume threshold; at most one permit is ever held.
func (c *Consumer) handleMessageReceived(ev evMessageReceived) {
	if ev.res.Err == nil {
		c.metrics.RecordReceived(ev.res.Msg.Topic, ev.res.Msg.Size())
	} else {
		c.metrics.RecordReceiveError(ev.res.Msg.Topic)
	}

	if len(c.waiters) > 0 {
		w := c.popWaiter()
		if c.incoming.Len() == 0 {
			c.deliver(w, ev.res)
		} else {
			// Keep FIFO order: the new result goes behind whatever is
			// already queued.
			c.incoming.Enqueue(ev.res)
			head, _ := c.incoming.Dequeue()
			c.deliver(w, head)
		}
	} else {
		c.incoming.Enqueue(ev.res)
		c.maybeSatisfyBatch()
	}
	c.updateQueueMetrics()

	if c.incoming.Len() >= c.cfg.ReceiverQueueSize {
		c.pausedPermit = ev.permit
		c.metrics.RecordPollerPaused(true)
	} else {
		ev.permit <- struct{}{}
	}
}

func (c *Consumer) handleReceive(ev evReceive) {
	if err := ev.ctx.Err(); err != nil {
		ev.resp <- types.Result{Err: err}

		return
	}
	if res, ok := c.incoming.Dequeue(); ok {
		if res.Err == nil {
			c.tracker.Add(res.Msg.ID)
		}
		ev.resp <- res
		c.afterDequeue()

		return
	}
	w := &waiter{ctx: ev.ctx, resp: ev.resp}
	w.stop = context.AfterFunc(ev.ctx, func() {
		c.postAsync(evRemoveWaiter{w: w})
	})
	c.waiters = append(c.waiters, w)
}

func (c *Consumer) handleBatchReceive(ev evBatchReceive) {
	if err := ev.ctx.Err(); err != nil {
		ev.resp <- batchResult{err: err}

		return
	}
	policy := c.cfg.BatchReceivePolicy
	if len(c.batchWaiters) == 0 && c.incoming.ReachedBatchLimit(policy.MaxNumMessages, policy.MaxNumBytes) {
		ev.resp <- batchResult{msgs: c.drainBatch()}

		return
	}
	bw := &batchWaiter{ctx: ev.ctx, resp: ev.resp}
	bw.timer = time.AfterFunc(policy.Timeout, func() {
		c.postAsync(evBatchTimeout{w: bw})
	})
	bw.stop = context.AfterFunc(ev.ctx, func() {
		c.postAsync(evRemoveBatchWaiter{w: bw})
	})
	c.batchWaiters = append(c.batchWaiters, bw)
}

// handleBatchTimeout flushes a parked batch waiter with whatever is queued,
// possibly an empty batch. A waiter already satisfied or cancelled is left
// alone.
func (c *Consumer) handleBatchTimeout(ev evBatchTimeout) {
	if !c.detachBatchWaiter(ev.w) {
		return
	}
	if ev.w.stop != nil {
		ev.w.stop()
	}
	ev.w.resp <- batchResult{msgs: c.drainBatch()}
}

func (c *Consumer) handleRemoveWaiter(ev evRemoveWaiter) {
	for i, w := range c.waiters {
		if w == ev.w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			err := w.ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			w.resp <- types.Result{Err: err}

			return
		}
	}
}

func (c *Consumer) handleRemoveBatchWaiter(ev evRemoveBatchWaiter) {
	if !c.detachBatchWaiter(ev.w) {
		return
	}
	ev.w.timer.Stop()
	err := ev.w.ctx.Err()
	if err == nil {
		err = context.Canceled
	}
	ev.w.resp <- batchResult{err: err}
}

func (c *Consumer) handleAck(ev evAck) {
	child, ok := c.children[ev.id.Topic]
	if !ok {
		ev.resp <- fmt.Errorf("%w: %s", ErrNoChildForTopic, ev.id.Topic)

		return
	}
	var err error
	if ev.cumulative {
		err = child.AckCumulative(ev.ctx, ev.id)
	} else {
		err = child.Ack(ev.ctx, ev.id)
	}
	if err != nil {
		ev.resp <- fmt.Errorf("acknowledge %s on %s: %w", ev.id, ev.id.Topic, err)

		return
	}
	if ev.cumulative {
		c.tracker.RemoveUntil(ev.id)
	} else {
		c.tracker.Remove(ev.id)
	}
	c.metrics.RecordAck(ev.id.Topic, ev.cumulative)
	ev.resp <- nil
}

func (c *Consumer) handleNack(ev evNack) {
	child, ok := c.children[ev.id.Topic]
	if !ok {
		ev.resp <- fmt.Errorf("%w: %s", ErrNoChildForTopic, ev.id.Topic)

		return
	}
	if err := child.Nack(ev.id); err != nil {
		ev.resp <- fmt.Errorf("negative acknowledge %s on %s: %w", ev.id, ev.id.Topic, err)

		return
	}
	c.tracker.Remove(ev.id)
	c.metrics.RecordNack(ev.id.Topic)
	ev.resp <- nil
}

// redeliverAll clears local delivery state, then asks every child to replay
// its unacknowledged messages. The queue is cleared before redelivery begins
// so replayed messages cannot interleave with stale ones.
func (c *Consumer) redeliverAll(ctx context.Context) error {
	if c.State() != types.StateReady {
		return ErrAlreadyClosed
	}
	c.incoming.Clear()
	c.tracker.Clear()
	c.afterDequeue()

	g, gctx := errgroup.WithContext(ctx)
	for _, child := range c.children {
		g.Go(func() error {
			return child.RedeliverAll(gctx)
		})
	}
	err := g.Wait()
	c.merged.RestartCompleted()
	c.metrics.RecordRedelivery(0)
	if err != nil {
		return fmt.Errorf("redeliver unacknowledged: %w", err)
	}

	return nil
}

// handleRedeliverSet serves the unacked tracker. Under Shared/KeyShared the
// expired ids are redelivered per child; other subscription types replay
// everything, matching broker semantics.
func (c *Consumer) handleRedeliverSet(ev evRedeliverSet) {
	if c.State() != types.StateReady {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LookupTimeout)
	defer cancel()

	subType := c.cfg.SubscriptionType
	if subType != types.SubscriptionShared && subType != types.SubscriptionKeyShared {
		if err := c.redeliverAll(ctx); err != nil {
			c.logger.Warn("ack-timeout redelivery failed", "error", err)
		}

		return
	}

	byTopic := make(map[types.CompleteTopicName][]types.MessageID)
	for _, id := range ev.ids {
		byTopic[id.Topic] = append(byTopic[id.Topic], id)
	}
	for topic, ids := range byTopic {
		child, ok := c.children[topic]
		if !ok {
			continue
		}
		if err := child.Redeliver(ctx, ids); err != nil {
			c.logger.Warn("ack-timeout redelivery failed", "topic", topic, "error", err)
		}
	}
	c.metrics.RecordRedelivery(len(ev.ids))
}

func (c *Consumer) handleSeek(ev evSeek) {
	g, gctx := errgroup.WithContext(ev.ctx)
	for topic, child := range c.children {
		g.Go(func() error {
			if err := child.Seek(gctx, ev.resolve(topic)); err != nil {
				return fmt.Errorf("seek %s: %w", topic, err)
			}

			return nil
		})
	}
	err := g.Wait()

	c.incoming.Clear()
	c.tracker.Clear()
	c.afterDequeue()
	c.merged.RestartCompleted()

	ev.resp <- err
}

func (c *Consumer) handleReconsumeLater(ev evReconsumeLater) {
	topic := ev.msg.ID.Topic
	child, ok := c.children[topic]
	if !ok {
		ev.resp <- fmt.Errorf("%w: %s", ErrNoChildForTopic, topic)

		return
	}
	var err error
	if ev.cumulative {
		err = child.ReconsumeLaterCumulative(ev.ctx, ev.msg, ev.delay)
	} else {
		err = child.ReconsumeLater(ev.ctx, ev.msg, ev.delay)
	}
	if err != nil {
		ev.resp <- fmt.Errorf("reconsume later on %s: %w", topic, err)

		return
	}
	if ev.cumulative {
		c.tracker.RemoveUntil(ev.msg.ID)
	} else {
		c.tracker.Remove(ev.msg.ID)
	}
	ev.resp <- nil
}

func (c *Consumer) handleEndOfTopic(ev evEndOfTopic) {
	all := true
	for _, child := range c.children {
		if !child.HasReachedEndOfTopic() {
			all = false

			break
		}
	}
	ev.resp <- boolReply{ok: all}
}

func (c *Consumer) handleHasMessageAvailable(ev evHasMessageAvailable) {
	for topic, child := range c.children {
		ok, err := child.HasMessageAvailable(ev.ctx)
		if err != nil {
			ev.resp <- boolReply{err: fmt.Errorf("has message available on %s: %w", topic, err)}

			return
		}
		if ok {
			ev.resp <- boolReply{ok: true}

			return
		}
	}
	ev.resp <- boolReply{}
}

func (c *Consumer) handleLastDisconnected(ev evLastDisconnected) {
	var last time.Time
	for _, child := range c.children {
		if t := child.LastDisconnected(); t.After(last) {
			last = t
		}
	}
	ev.resp <- last
}

func (c *Consumer) handleStats(ev evStats) {
	snapshots := make([]types.ConsumerStats, len(c.children))
	g, gctx := errgroup.WithContext(ev.ctx)
	i := 0
	for topic, child := range c.children {
		idx := i
		i++
		g.Go(func() error {
			s, err := child.Stats(gctx)
			if err != nil {
				return fmt.Errorf("stats of %s: %w", topic, err)
			}
			snapshots[idx] = s

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		ev.resp <- statsReply{err: err}

		return
	}
	var agg types.ConsumerStats
	if len(snapshots) > 0 {
		agg = snapshots[0].Reduce(snapshots[1:])
	}
	agg.IncomingMsgs += c.incoming.Len()
	ev.resp <- statsReply{stats: agg}
}

// handleClose drives the shutdown: dispose (or unsubscribe) every child,
// transition, stop background tasks and fail outstanding waiters. Close is
// best-effort and always replies Ok; Unsubscribe surfaces child failures and
// leaves the consumer Failed.
func (c *Consumer) handleClose(ev evClose) (stop bool) {
	state := c.State()
	if state == types.StateClosing || state == types.StateClosed {
		ev.resp <- nil

		return false
	}
	c.transitionState(state, types.StateClosing)

	var firstErr error
	for name, child := range c.children {
		var err error
		if ev.unsubscribe {
			err = child.Unsubscribe(ev.ctx)
		} else {
			err = child.Close(ev.ctx)
		}
		if err != nil {
			c.logger.Warn("child shutdown failed", "topic", name, "unsubscribe", ev.unsubscribe, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("shutdown of %s: %w", name, err)
			}
		}
		delete(c.children, name)
		if err := c.hooks.OnChildRemoved(context.Background(), name); err != nil {
			c.logger.Warn("child removed hook failed", "topic", name, "error", err)
		}
	}
	c.metrics.RecordChildCount(0)

	if ev.unsubscribe && firstErr != nil {
		c.transitionState(types.StateClosing, types.StateFailed)
		c.stopConsumer()
		ev.resp <- firstErr

		return true
	}
	c.transitionState(types.StateClosing, types.StateClosed)
	c.stopConsumer()
	ev.resp <- nil

	return true
}

// stopConsumer cancels the poller, the watcher timers and the unacked
// tracker, fails every parked waiter with ErrAlreadyClosed, and runs the
// externally supplied cleanup hook.
func (c *Consumer) stopConsumer() {
	c.closeOnce.Do(func() { close(c.closedCh) })
	if c.pollCancel != nil {
		c.pollCancel()
	}
	close(c.watchStop)
	c.tracker.Stop()
	c.merged.Close()

	for _, w := range c.waiters {
		if w.stop != nil {
			w.stop()
		}
		w.resp <- types.Result{Err: ErrAlreadyClosed}
	}
	c.waiters = nil
	for _, bw := range c.batchWaiters {
		if bw.stop != nil {
			bw.stop()
		}
		bw.timer.Stop()
		bw.resp <- batchResult{err: ErrAlreadyClosed}
	}
	c.batchWaiters = nil

	c.incoming.Clear()
	c.pausedPermit = nil
	c.updateQueueMetrics()

	if c.onClosed != nil {
		c.onClosed(c)
	}
	c.logger.Info("consumer stopped", "name", c.name)
}

// deliver satisfies a parked waiter and detaches its cancellation hook.
func (c *Consumer) deliver(w *waiter, res types.Result) {
	if w.stop != nil {
		w.stop()
	}
	if res.Err == nil {
		c.tracker.Add(res.Msg.ID)
	}
	w.resp <- res
}

func (c *Consumer) popWaiter() *waiter {
	w := c.waiters[0]
	c.waiters = c.waiters[1:]

	return w
}

func (c *Consumer) detachBatchWaiter(bw *batchWaiter) bool {
	for i, b := range c.batchWaiters {
		if b == bw {
			c.batchWaiters = append(c.batchWaiters[:i], c.batchWaiters[i+1:]...)

			return true
		}
	}

	return false
}

// maybeSatisfyBatch completes the oldest batch waiter once a batch limit is
// reached.
func (c *Consumer) maybeSatisfyBatch() {
	if len(c.batchWaiters) == 0 {
		return
	}
	policy := c.cfg.BatchReceivePolicy
	if !c.incoming.ReachedBatchLimit(policy.MaxNumMessages, policy.MaxNumBytes) {
		return
	}
	bw := c.batchWaiters[0]
	c.batchWaiters = c.batchWaiters[1:]
	if bw.stop != nil {
		bw.stop()
	}
	bw.timer.Stop()
	bw.resp <- batchResult{msgs: c.drainBatch()}
}

// drainBatch dequeues a policy-bounded batch, tracking each message for
// ack-timeout redelivery.
func (c *Consumer) drainBatch() types.Messages {
	policy := c.cfg.BatchReceivePolicy
	msgs := c.incoming.DrainBatch(policy.MaxNumMessages, policy.MaxNumBytes)
	for _, m := range msgs {
		c.tracker.Add(m.ID)
	}
	c.metrics.RecordBatch(len(msgs), msgs.Size())
	c.afterDequeue()

	return msgs
}

// afterDequeue releases a withheld poller permit once the queue has drained
// to the resume threshold. This is the only resume path.
func (c *Consumer) afterDequeue() {
	c.updateQueueMetrics()
	if c.pausedPermit != nil && c.incoming.Len() <= c.cfg.resumeThreshold() {
		c.pausedPermit <- struct{}{}
		c.pausedPermit = nil
		c.metrics.RecordPollerPaused(false)
	}
}

func (c *Consumer) updateQueueMetrics() {
	c.metrics.RecordQueueDepth(c.incoming.Len())
	c.metrics.RecordQueueBytes(c.incoming.Bytes())
}

// addChild registers a freshly created child with the child table and the
// merged stream, and fires the hook.
func (c *Consumer) addChild(child types.ChildConsumer) {
	name := child.Topic()
	c.children[name] = child
	c.merged.Add(stream.New(child))
	if err := c.hooks.OnChildAdded(context.Background(), name); err != nil {
		c.logger.Warn("child added hook failed", "topic", name, "error", err)
	}
}
