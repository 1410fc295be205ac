package multitopic

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/arloliu/multitopic/types"
)

// watchPartitions posts a partition growth check every
// AutoUpdatePartitionsInterval until shutdown. The timer never mutates
// state; the tick handler runs on the core loop.
func (c *Consumer) watchPartitions() {
	ticker := time.NewTicker(c.cfg.AutoUpdatePartitionsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.watchStop:
			return
		case <-ticker.C:
			c.postAsync(evPartitionTick{})
		}
	}
}

// watchPattern posts a pattern discovery diff every
// PatternAutoDiscoveryPeriod until shutdown.
func (c *Consumer) watchPattern() {
	ticker := time.NewTicker(c.cfg.PatternAutoDiscoveryPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.watchStop:
			return
		case <-ticker.C:
			c.postAsync(evPatternTick{})
		}
	}
}

// handlePartitionTick grows the child set of every tracked partitioned topic
// whose partition count increased. Lookup failures and partial child
// creation failures are logged and leave the old state intact; partition
// counts never decrease through this handler.
func (c *Consumer) handlePartitionTick() {
	if c.State() != types.StateReady {
		return
	}
	for topic, old := range c.partitioned {
		current, err := c.partitionCount(topic)
		if err != nil {
			c.logger.Warn("partition metadata lookup failed", "topic", topic, "error", err)

			continue
		}
		switch {
		case current < old:
			c.logger.Warn("refusing partition update", "topic", topic, "from", old, "to", current,
				"error", ErrShrinkingPartitions)
		case current == old:
			// Nothing to do.
		default:
			c.growPartitions(topic, old, current)
		}
	}
}

// growPartitions creates children for partition indexes [old, current) with
// the fair receiver queue share at decision time. On any failure the
// children created so far are disposed and the topic keeps its old count.
func (c *Consumer) growPartitions(topic types.TopicName, old, current int) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LookupTimeout)
	defer cancel()

	share := c.queueShare(len(c.children) + current - old)
	created := make([]types.ChildConsumer, 0, current-old)
	for i := old; i < current; i++ {
		name := topic.Partitioned(i)
		child, err := c.factory.Create(ctx, name, types.ChildOptions{
			ReceiverQueueSize:            share,
			StartMessageID:               c.cfg.StartMessageID,
			StartMessageRollbackDuration: c.cfg.StartMessageRollbackDuration,
			CreateTopicIfDoesNotExist:    true,
		})
		if err != nil {
			c.logger.Warn("failed to create child for new partition", "topic", name, "error", err)
			c.disposeChildren(ctx, created)

			return
		}
		created = append(created, child)
	}

	for _, child := range created {
		c.addChild(child)
	}
	c.partitioned[topic] = current
	c.metrics.RecordPartitionGrowth(topic, current-old)
	c.metrics.RecordChildCount(len(c.children))
	c.logger.Info("partitions grown", "topic", topic, "from", old, "to", current)
}

// handlePatternTick diffs the namespace against the pattern: children are
// created for newly matching topics (without broker-side topic creation) and
// disposed for topics that vanished. Errors are logged; whatever succeeded
// is kept.
func (c *Consumer) handlePatternTick() {
	pattern, ok := c.topics.(types.TopicsPattern)
	if !ok || c.State() != types.StateReady {
		return
	}
	matched, err := c.matchPattern(context.Background(), pattern)
	if err != nil {
		c.logger.Warn("pattern discovery failed", "namespace", pattern.Namespace, "error", err)

		return
	}

	newAll := make(map[types.TopicName]struct{}, len(matched))
	for _, topic := range matched {
		newAll[topic] = struct{}{}
	}

	for _, topic := range matched {
		if _, known := c.allTopics[topic]; !known {
			c.addDiscoveredTopic(topic)
		}
	}
	for topic := range c.allTopics {
		if _, still := newAll[topic]; !still {
			c.removeTopic(topic)
		}
	}
}

// addDiscoveredTopic subscribes a topic found by pattern discovery.
func (c *Consumer) addDiscoveredTopic(topic types.TopicName) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LookupTimeout)
	defer cancel()

	names, err := c.partitionNames(ctx, topic)
	if err != nil {
		c.logger.Warn("lookup of discovered topic failed", "topic", topic, "error", err)

		return
	}

	share := c.queueShare(len(c.children) + len(names))
	created := make([]types.ChildConsumer, 0, len(names))
	for _, name := range names {
		child, err := c.factory.Create(ctx, name, types.ChildOptions{
			ReceiverQueueSize:            share,
			StartMessageID:               c.cfg.StartMessageID,
			StartMessageRollbackDuration: c.cfg.StartMessageRollbackDuration,
			CreateTopicIfDoesNotExist:    false,
		})
		if err != nil {
			c.logger.Warn("failed to create child for discovered topic", "topic", name, "error", err)
			c.disposeChildren(ctx, created)

			return
		}
		created = append(created, child)
	}

	for _, child := range created {
		c.addChild(child)
	}
	c.allTopics[topic] = struct{}{}
	if len(names) > 1 || names[0] != topic.Complete() {
		c.partitioned[topic] = len(names)
	}
	c.metrics.RecordChildCount(len(c.children))
	c.logger.Info("discovered topic subscribed", "topic", topic, "children", len(names))
}

// removeTopic disposes every child belonging to the logical topic, matching
// both the topic itself and its "-partition-N" partitions.
func (c *Consumer) removeTopic(topic types.TopicName) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LookupTimeout)
	defer cancel()

	for name, child := range c.children {
		if !name.IsPartitionOf(topic) {
			continue
		}
		c.merged.Remove(name)
		if err := child.Close(ctx); err != nil {
			c.logger.Warn("failed to dispose child of removed topic", "topic", name, "error", err)
		}
		delete(c.children, name)
		if err := c.hooks.OnChildRemoved(context.Background(), name); err != nil {
			c.logger.Warn("child removed hook failed", "topic", name, "error", err)
		}
	}
	delete(c.allTopics, topic)
	delete(c.partitioned, topic)
	c.metrics.RecordChildCount(len(c.children))
	c.logger.Info("vanished topic unsubscribed", "topic", topic)
}

func (c *Consumer) disposeChildren(ctx context.Context, children []types.ChildConsumer) {
	for _, child := range children {
		if err := child.Close(ctx); err != nil {
			c.logger.Warn("failed to dispose child", "topic", child.Topic(), "error", err)
		}
	}
}

// partitionCount queries the partition metadata of a topic, retrying
// transient lookup failures with exponential backoff.
func (c *Consumer) partitionCount(topic types.TopicName) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LookupTimeout)
	defer cancel()

	var meta types.PartitionedTopicMetadata
	op := func() error {
		var err error
		meta, err = c.lookup.GetPartitionedTopicMetadata(ctx, topic)

		return err
	}
	if err := backoff.Retry(op, c.lookupBackoff(ctx)); err != nil {
		return 0, fmt.Errorf("%w: metadata of %s: %w", ErrLookupFailed, topic, err)
	}

	return meta.Partitions, nil
}

// partitionNames lists the complete topic names of a topic, retrying
// transient lookup failures.
func (c *Consumer) partitionNames(ctx context.Context, topic types.TopicName) ([]types.CompleteTopicName, error) {
	var names []types.CompleteTopicName
	op := func() error {
		var err error
		names, err = c.lookup.GetPartitionsForTopic(ctx, topic)

		return err
	}
	if err := backoff.Retry(op, c.lookupBackoff(ctx)); err != nil {
		return nil, fmt.Errorf("%w: partitions of %s: %w", ErrLookupFailed, topic, err)
	}
	if len(names) == 0 {
		names = []types.CompleteTopicName{topic.Complete()}
	}

	return names, nil
}

func (c *Consumer) lookupBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = time.Second

	return backoff.WithContext(backoff.WithMaxRetries(bo, 3), ctx)
}
