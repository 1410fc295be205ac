package multitopic

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/multitopic/internal/metrics"
	mttest "github.com/arloliu/multitopic/testing"
	"github.com/arloliu/multitopic/types"
)

func testConfig() *Config {
	return &Config{
		SubscriptionName:  "test-sub",
		ReceiverQueueSize: 100,
	}
}

func startConsumer(t *testing.T, cfg *Config, lookup *mttest.Lookup, factory *mttest.Factory, topics types.Topics, opts ...Option) *Consumer {
	t.Helper()
	opts = append(opts, WithLogger(mttest.NewTestLogger(t)))
	c, err := NewConsumer(cfg, lookup, factory, topics, opts...)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		_ = c.Close(context.Background())
	})

	return c
}

func receiveOne(t *testing.T, c *Consumer) types.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := c.Receive(ctx)
	require.NoError(t, err)

	return msg
}

func TestNewConsumerValidation(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	topics := types.TopicList{Topics: []types.TopicName{"t1"}}

	_, err := NewConsumer(nil, lookup, factory, topics)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewConsumer(testConfig(), nil, factory, topics)
	require.ErrorIs(t, err, ErrLookupRequired)

	_, err = NewConsumer(testConfig(), lookup, nil, topics)
	require.ErrorIs(t, err, ErrChildFactoryRequired)

	_, err = NewConsumer(testConfig(), lookup, factory, nil)
	require.ErrorIs(t, err, ErrTopicsRequired)

	_, err = NewConsumer(testConfig(), lookup, factory, types.TopicList{})
	require.ErrorIs(t, err, ErrTopicsRequired)

	_, err = NewConsumer(testConfig(), lookup, factory, types.TopicsPattern{Namespace: "ns"})
	require.ErrorIs(t, err, ErrTopicsRequired)

	cfg := testConfig()
	cfg.SubscriptionName = ""
	_, err = NewConsumer(cfg, lookup, factory, topics)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConsumerIdentity(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	cfg := testConfig()
	cfg.ConsumerName = "my-consumer"

	c := startConsumer(t, cfg, lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	require.Equal(t, "my-consumer", c.Name())
	require.Regexp(t, `^MultiTopicsConsumer-`, c.Topic())
	require.Equal(t, types.StateReady, c.State())
}

func TestReceiveAndAckSingleTopic(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	child := factory.Child("t1")
	child.PublishPayloads("a", "b", "c")

	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	for _, want := range []string{"a", "b", "c"} {
		msg := receiveOne(t, c)
		require.Equal(t, want, string(msg.Payload))
		require.Equal(t, types.CompleteTopicName("t1"), msg.Topic)
		require.Equal(t, types.CompleteTopicName("t1"), msg.ID.Topic)
		require.NoError(t, c.Ack(context.Background(), msg.ID))
	}
	require.Len(t, child.AckedIDs(), 3)
}

func TestReceiveBlocksUntilPublish(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	got := make(chan types.Message, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		msg, err := c.Receive(ctx)
		if err == nil {
			got <- msg
		}
	}()

	time.Sleep(50 * time.Millisecond)
	factory.Child("t1").PublishPayloads("late")

	select {
	case msg := <-got:
		require.Equal(t, "late", string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("parked receive was not satisfied")
	}
}

func TestReceiveInterleavesTopics(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	factory.Child("t1").PublishPayloads("a", "a", "a")
	factory.Child("t2").PublishPayloads("b", "b")

	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1", "t2"}})

	byTopic := map[types.CompleteTopicName]int{}
	for range 5 {
		msg := receiveOne(t, c)
		byTopic[msg.Topic]++
	}
	require.Equal(t, 3, byTopic["t1"])
	require.Equal(t, 2, byTopic["t2"])
}

func TestReceiveSurfacesChildErrors(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	child := factory.Child("t1")
	child.FailNextReceive(errors.New("decode failed"))
	child.PublishPayloads("ok")

	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.Receive(ctx)
	require.ErrorContains(t, err, "decode failed")

	msg := receiveOne(t, c)
	require.Equal(t, "ok", string(msg.Payload))
}

func TestPartitionedTopicInit(t *testing.T) {
	lookup := mttest.NewLookup()
	lookup.SetPartitions("t", 3)
	factory := mttest.NewFactory()

	topic := types.TopicName("t")
	_ = startConsumer(t, testConfig(), lookup, factory, types.PartitionedTopic{Topic: topic})

	for i := range 3 {
		require.True(t, factory.Created(topic.Partitioned(i)))
		require.True(t, factory.Options(topic.Partitioned(i)).CreateTopicIfDoesNotExist)
	}
}

func TestInitFailureDisposesCreatedChildren(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	factory.FailCreate("t2", errors.New("broker unavailable"))

	c, err := NewConsumer(testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1", "t2"}},
		WithLogger(mttest.NewTestLogger(t)))
	require.NoError(t, err)

	err = c.Start(context.Background())
	require.ErrorIs(t, err, ErrInitFailed)
	require.Equal(t, types.StateFailed, c.State())
	require.True(t, factory.Child("t1").IsClosed())

	ctx := context.Background()
	_, rerr := c.Receive(ctx)
	require.ErrorIs(t, rerr, ErrAlreadyClosed)
}

// blockingFactory parks the creation of one topic until the caller's
// context is cancelled, exposing the window where Start is mid-init.
type blockingFactory struct {
	*mttest.Factory
	blockOn types.CompleteTopicName
	entered chan struct{}
}

func (f *blockingFactory) Create(ctx context.Context, topic types.CompleteTopicName, opts types.ChildOptions) (types.ChildConsumer, error) {
	if topic == f.blockOn {
		close(f.entered)
		<-ctx.Done()

		return nil, ctx.Err()
	}

	return f.Factory.Create(ctx, topic, opts)
}

// Closing (cancelling) mid-initialization disposes the children already
// created and the consumer never reaches Ready.
func TestCloseWhileInitializing(t *testing.T) {
	lookup := mttest.NewLookup()
	inner := mttest.NewFactory()
	factory := &blockingFactory{Factory: inner, blockOn: "t2", entered: make(chan struct{})}

	c, err := NewConsumer(testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1", "t2"}},
		WithLogger(mttest.NewTestLogger(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Start(ctx)
	}()

	select {
	case <-factory.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("initialization never reached the blocked child")
	}
	require.True(t, inner.Created("t1"))
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrInitFailed)
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}

	require.Equal(t, types.StateFailed, c.State())
	require.True(t, inner.Child("t1").IsClosed())

	// The failed consumer accepts no operations and closes as a no-op.
	_, rerr := c.Receive(context.Background())
	require.ErrorIs(t, rerr, ErrAlreadyClosed)
	require.NoError(t, c.Close(context.Background()))
}

// Scenario: partition growth. A 2-partition topic grows to 4; the watcher
// creates children for the new partitions and their messages flow through.
func TestScenarioPartitionGrowth(t *testing.T) {
	lookup := mttest.NewLookup()
	lookup.SetPartitions("t", 2)
	factory := mttest.NewFactory()
	topic := types.TopicName("t")

	for i := range 2 {
		child := factory.Child(topic.Partitioned(i))
		for range 5 {
			child.PublishPayloads("m")
		}
	}

	cfg := testConfig()
	cfg.AutoUpdatePartitions = true
	cfg.AutoUpdatePartitionsInterval = 50 * time.Millisecond

	c := startConsumer(t, cfg, lookup, factory, types.PartitionedTopic{Topic: topic})

	seen := map[types.CompleteTopicName]int{}
	for range 10 {
		msg := receiveOne(t, c)
		seen[msg.Topic]++
	}
	require.Equal(t, 5, seen[topic.Partitioned(0)])
	require.Equal(t, 5, seen[topic.Partitioned(1)])

	lookup.SetPartitions("t", 4)
	require.Eventually(t, func() bool {
		return factory.Created(topic.Partitioned(2)) && factory.Created(topic.Partitioned(3))
	}, 5*time.Second, 10*time.Millisecond)

	factory.Child(topic.Partitioned(2)).PublishPayloads("new")
	factory.Child(topic.Partitioned(3)).PublishPayloads("new")

	grown := map[types.CompleteTopicName]int{}
	for range 2 {
		msg := receiveOne(t, c)
		grown[msg.Topic]++
	}
	require.Equal(t, 1, grown[topic.Partitioned(2)])
	require.Equal(t, 1, grown[topic.Partitioned(3)])
}

func TestPartitionShrinkIsRefused(t *testing.T) {
	lookup := mttest.NewLookup()
	lookup.SetPartitions("t", 2)
	factory := mttest.NewFactory()
	topic := types.TopicName("t")

	cfg := testConfig()
	cfg.AutoUpdatePartitions = true
	cfg.AutoUpdatePartitionsInterval = 30 * time.Millisecond

	c := startConsumer(t, cfg, lookup, factory, types.PartitionedTopic{Topic: topic})

	lookup.SetPartitions("t", 1)
	time.Sleep(150 * time.Millisecond)

	// The child set is untouched and messages still flow.
	factory.Child(topic.Partitioned(1)).PublishPayloads("still")
	msg := receiveOne(t, c)
	require.Equal(t, topic.Partitioned(1), msg.Topic)
}

// Scenario: pattern add/remove. After the namespace changes from {t1,t2} to
// {t1,t3}, the t2 child is disposed and a t3 child created; state on t1
// survives the transition.
func TestScenarioPatternAddRemove(t *testing.T) {
	ns := "tnt/ns"
	t1 := types.TopicName("persistent://tnt/ns/t1")
	t2 := types.TopicName("persistent://tnt/ns/t2")
	t3 := types.TopicName("persistent://tnt/ns/t3")
	other := types.TopicName("persistent://tnt/ns/other")

	lookup := mttest.NewLookup()
	lookup.SetTopics(ns, t1, t2, other)
	factory := mttest.NewFactory()
	factory.Child(t1.Complete()).PublishPayloads("keep")

	cfg := testConfig()
	cfg.PatternAutoDiscoveryPeriod = 50 * time.Millisecond

	c := startConsumer(t, cfg, lookup, factory, types.TopicsPattern{
		Namespace: ns,
		Pattern:   regexp.MustCompile(`^persistent://tnt/ns/t.*$`),
	})

	require.True(t, factory.Created(t1.Complete()))
	require.True(t, factory.Created(t2.Complete()))
	require.False(t, factory.Created(other.Complete()))

	msg := receiveOne(t, c)
	require.NoError(t, c.Ack(context.Background(), msg.ID))

	lookup.SetTopics(ns, t1, t3)
	require.Eventually(t, func() bool {
		return factory.Child(t2.Complete()).IsClosed() && factory.Created(t3.Complete())
	}, 5*time.Second, 10*time.Millisecond)

	require.False(t, factory.Child(t1.Complete()).IsClosed())
	require.Len(t, factory.Child(t1.Complete()).AckedIDs(), 1)
	require.False(t, factory.Options(t3.Complete()).CreateTopicIfDoesNotExist)

	factory.Child(t3.Complete()).PublishPayloads("fresh")
	msg = receiveOne(t, c)
	require.Equal(t, t3.Complete(), msg.Topic)
}

// Scenario: batch receive timeout. Three messages are available; the batch
// limits are far away, so the reply arrives with all three when the policy
// timeout fires.
func TestScenarioBatchReceiveTimeout(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	factory.Child("t1").PublishPayloads("a", "b", "c")

	cfg := testConfig()
	cfg.BatchReceivePolicy = BatchReceivePolicy{
		MaxNumMessages: 100,
		MaxNumBytes:    1 << 20,
		Timeout:        200 * time.Millisecond,
	}

	c := startConsumer(t, cfg, lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	// Let the three messages reach the incoming queue first.
	require.Eventually(t, func() bool {
		stats, err := c.Stats(context.Background())

		return err == nil && stats.NumMsgsReceived == 3
	}, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	msgs, err := c.BatchReceive(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
}

func TestBatchReceiveRepliesOnceLimitReached(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()

	cfg := testConfig()
	cfg.BatchReceivePolicy = BatchReceivePolicy{
		MaxNumMessages: 3,
		Timeout:        5 * time.Second,
	}

	c := startConsumer(t, cfg, lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	done := make(chan types.Messages, 1)
	go func() {
		msgs, err := c.BatchReceive(context.Background())
		if err == nil {
			done <- msgs
		}
	}()

	time.Sleep(50 * time.Millisecond)
	factory.Child("t1").PublishPayloads("a", "b", "c", "d", "e")

	select {
	case msgs := <-done:
		require.Len(t, msgs, 3)
	case <-time.After(2 * time.Second):
		t.Fatal("batch receive did not complete at the message limit")
	}

	// The remainder is still consumable one by one.
	require.Equal(t, "d", string(receiveOne(t, c).Payload))
	require.Equal(t, "e", string(receiveOne(t, c).Payload))
}

func TestBatchReceiveEmptyOnTimeout(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()

	cfg := testConfig()
	cfg.BatchReceivePolicy = BatchReceivePolicy{MaxNumMessages: 10, Timeout: 100 * time.Millisecond}

	c := startConsumer(t, cfg, lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	msgs, err := c.BatchReceive(context.Background())
	require.NoError(t, err)
	require.Empty(t, msgs)
}

// Scenario: cancel while parked. A parked receive replies with cancellation
// promptly and leaves no stale waiter behind.
func TestScenarioCancelWhileParked(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Receive(ctx)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled receive did not reply in time")
	}

	// No stale waiter intercepts the next message.
	factory.Child("t1").PublishPayloads("next")
	msg := receiveOne(t, c)
	require.Equal(t, "next", string(msg.Payload))
}

func TestBatchReceiveCancelWhileParked(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()

	cfg := testConfig()
	cfg.BatchReceivePolicy = BatchReceivePolicy{MaxNumMessages: 10, Timeout: 5 * time.Second}

	c := startConsumer(t, cfg, lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.BatchReceive(ctx)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled batch receive did not reply in time")
	}
}

// Scenario: redeliver-all under a shared subscription. Five received, two
// acked; redelivery brings back exactly the three unacknowledged messages.
func TestScenarioRedeliverAllShared(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	factory.Child("t1").PublishPayloads("m0", "m1", "m2", "m3", "m4")

	cfg := testConfig()
	cfg.SubscriptionType = types.SubscriptionShared

	c := startConsumer(t, cfg, lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	received := make([]types.Message, 0, 5)
	for range 5 {
		received = append(received, receiveOne(t, c))
	}
	require.NoError(t, c.Ack(context.Background(), received[0].ID))
	require.NoError(t, c.Ack(context.Background(), received[1].ID))

	require.NoError(t, c.RedeliverUnacked(context.Background()))

	want := map[types.MessageID]bool{
		received[2].ID: true,
		received[3].ID: true,
		received[4].ID: true,
	}
	for range 3 {
		msg := receiveOne(t, c)
		require.True(t, want[msg.ID], "unexpected redelivery %s", msg.ID)
		delete(want, msg.ID)
	}
	require.Empty(t, want)
}

// recordingMetrics observes poller pause/resume edges and queue depth.
type recordingMetrics struct {
	*metrics.NopMetrics
	mu       sync.Mutex
	pauses   int
	resumes  int
	maxDepth int
}

func (r *recordingMetrics) RecordPollerPaused(paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if paused {
		r.pauses++
	} else {
		r.resumes++
	}
}

func (r *recordingMetrics) RecordQueueDepth(depth int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if depth > r.maxDepth {
		r.maxDepth = depth
	}
}

func (r *recordingMetrics) snapshot() (pauses, resumes, maxDepth int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.pauses, r.resumes, r.maxDepth
}

// Scenario: backpressure. With a full incoming queue the poller permit is
// withheld; draining to the resume threshold releases it exactly once.
func TestScenarioBackpressure(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	child := factory.Child("t1")
	for range 20 {
		child.PublishPayloads("m")
	}

	rm := &recordingMetrics{NopMetrics: metrics.NewNop()}
	cfg := testConfig()
	cfg.ReceiverQueueSize = 10

	c := startConsumer(t, cfg, lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}},
		WithMetrics(rm))

	require.Eventually(t, func() bool {
		pauses, _, _ := rm.snapshot()

		return pauses == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, _, maxDepth := rm.snapshot()
	require.LessOrEqual(t, maxDepth, 10)

	for range 5 {
		receiveOne(t, c)
	}
	require.Eventually(t, func() bool {
		_, resumes, _ := rm.snapshot()

		return resumes == 1
	}, 2*time.Second, 10*time.Millisecond)

	for range 15 {
		receiveOne(t, c)
	}
	_, _, maxDepth = rm.snapshot()
	require.LessOrEqual(t, maxDepth, 10)
}

func TestSeekRejectsNonEndpointID(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	err := c.Seek(context.Background(), types.SeekID{ID: types.MessageID{LedgerID: 3, EntryID: 7}})
	require.ErrorIs(t, err, ErrIllegalMessageID)
}

func TestSeekEarliestReplaysEverything(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	factory.Child("t1").PublishPayloads("a", "b", "c")

	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	first := make(map[types.MessageID]bool)
	for range 3 {
		first[receiveOne(t, c).ID] = true
	}

	require.NoError(t, c.Seek(context.Background(), types.SeekID{ID: types.EarliestMessageID()}))

	for range 3 {
		msg := receiveOne(t, c)
		require.True(t, first[msg.ID], "replayed unknown message %s", msg.ID)
		delete(first, msg.ID)
	}
	require.Empty(t, first)

	// Nothing further: the replay neither omitted nor duplicated.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.Receive(ctx)
	require.Error(t, err)
}

func TestSeekByTime(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	cut := time.Now()
	factory.Child("t1").Publish(
		types.Message{Payload: []byte("old"), PublishTime: cut.Add(-time.Hour)},
		types.Message{Payload: []byte("new"), PublishTime: cut.Add(time.Hour)},
	)

	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	receiveOne(t, c)
	receiveOne(t, c)

	require.NoError(t, c.Seek(context.Background(), types.SeekTime{Time: cut}))

	msg := receiveOne(t, c)
	require.Equal(t, "new", string(msg.Payload))
}

func TestSeekEachUsesResolver(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	factory.Child("t1").PublishPayloads("a1", "a2")
	factory.Child("t2").PublishPayloads("b1", "b2")

	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1", "t2"}})

	for range 4 {
		receiveOne(t, c)
	}

	// Replay t1 from the beginning, keep t2 at its end.
	require.NoError(t, c.SeekEach(context.Background(), func(topic types.CompleteTopicName) types.SeekTarget {
		if topic == "t1" {
			return types.SeekID{ID: types.EarliestMessageID()}
		}

		return types.SeekID{ID: types.LatestMessageID()}
	}))

	seen := map[types.CompleteTopicName]int{}
	for range 2 {
		seen[receiveOne(t, c).Topic]++
	}
	require.Equal(t, 2, seen["t1"])
	require.Equal(t, 0, seen["t2"])
}

func TestAckRouting(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	factory.Child("t1").PublishPayloads("a")

	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	msg := receiveOne(t, c)

	t.Run("unknown topic is rejected", func(t *testing.T) {
		bad := msg.ID
		bad.Topic = "nope"
		require.ErrorIs(t, c.Ack(context.Background(), bad), ErrNoChildForTopic)
	})

	t.Run("double ack is harmless", func(t *testing.T) {
		require.NoError(t, c.Ack(context.Background(), msg.ID))
		require.NoError(t, c.Ack(context.Background(), msg.ID))
		require.Len(t, factory.Child("t1").AckedIDs(), 1)
	})

	t.Run("child failure propagates", func(t *testing.T) {
		factory.Child("t1").FailAcks(errors.New("broker down"))
		defer factory.Child("t1").FailAcks(nil)
		require.ErrorContains(t, c.Ack(context.Background(), msg.ID), "broker down")
	})
}

func TestAckCumulative(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	factory.Child("t1").PublishPayloads("a", "b", "c")

	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	var second types.Message
	for i := range 3 {
		msg := receiveOne(t, c)
		if i == 1 {
			second = msg
		}
	}

	require.NoError(t, c.AckCumulative(context.Background(), second.ID))
	require.Len(t, factory.Child("t1").AckedIDs(), 2)
}

func TestNackTriggersRedelivery(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	factory.Child("t1").PublishPayloads("a")

	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	msg := receiveOne(t, c)
	require.NoError(t, c.Nack(msg.ID))

	again := receiveOne(t, c)
	require.Equal(t, msg.ID, again.ID)
	require.Equal(t, uint32(1), again.RedeliveryCount)
}

func TestAckTimeoutRedelivery(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	factory.Child("t1").PublishPayloads("a", "b")

	cfg := testConfig()
	cfg.SubscriptionType = types.SubscriptionShared
	cfg.AckTimeout = 200 * time.Millisecond
	cfg.AckTimeoutTickTime = 50 * time.Millisecond

	c := startConsumer(t, cfg, lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	first := receiveOne(t, c)
	second := receiveOne(t, c)
	require.NoError(t, c.Ack(context.Background(), first.ID))

	// Only the unacked message comes back.
	again := receiveOne(t, c)
	require.Equal(t, second.ID, again.ID)
}

func TestHasReachedEndOfTopic(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	factory.Child("t1").PublishPayloads("a")

	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	end, err := c.HasReachedEndOfTopic(context.Background())
	require.NoError(t, err)
	require.False(t, end)

	receiveOne(t, c)
	factory.Child("t1").Terminate()

	require.Eventually(t, func() bool {
		end, err := c.HasReachedEndOfTopic(context.Background())

		return err == nil && end
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHasMessageAvailable(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	// HasMessageAvailable asks the children only. With a one-slot queue the
	// poller pauses after "a" and the merged stream holds "b", so "c" stays in
	// the child until a receive frees the slot.
	factory.Child("t1").PublishPayloads("a", "b", "c")

	cfg := testConfig()
	cfg.ReceiverQueueSize = 1
	c := startConsumer(t, cfg, lookup, factory, types.TopicList{Topics: []types.TopicName{"t1", "t2"}})

	ok, err := c.HasMessageAvailable(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	receiveOne(t, c)

	require.Eventually(t, func() bool {
		ok, err := c.HasMessageAvailable(context.Background())

		return err == nil && !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLastDisconnected(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	early := time.Unix(1000, 0)
	late := time.Unix(2000, 0)
	factory.Child("t1").SetLastDisconnected(early)
	factory.Child("t2").SetLastDisconnected(late)

	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1", "t2"}})

	got, err := c.LastDisconnected(context.Background())
	require.NoError(t, err)
	require.Equal(t, late, got)
}

func TestStatsAggregation(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	factory.Child("t1").PublishPayloads("a", "b")
	factory.Child("t2").PublishPayloads("c", "d", "e")

	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1", "t2"}})

	for range 5 {
		msg := receiveOne(t, c)
		require.NoError(t, c.Ack(context.Background(), msg.ID))
	}

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(5), stats.NumMsgsReceived)
	require.Equal(t, uint64(5), stats.NumAcksSent)
	require.Equal(t, time.Minute, stats.IntervalDuration)
}

func TestReconsumeLater(t *testing.T) {
	t.Run("requires retry enable", func(t *testing.T) {
		lookup := mttest.NewLookup()
		factory := mttest.NewFactory()
		c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

		require.ErrorIs(t, c.ReconsumeLater(context.Background(), types.Message{}, time.Second), ErrRetryDisabled)
		require.ErrorIs(t, c.ReconsumeLaterMessages(context.Background(), nil, time.Second), ErrRetryDisabled)
		require.ErrorIs(t, c.ReconsumeLaterCumulative(context.Background(), types.Message{}, time.Second), ErrRetryDisabled)
	})

	t.Run("acknowledges each message in order", func(t *testing.T) {
		lookup := mttest.NewLookup()
		factory := mttest.NewFactory()
		factory.Child("t1").PublishPayloads("a", "b")

		cfg := testConfig()
		cfg.RetryEnable = true
		c := startConsumer(t, cfg, lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

		msgs := types.Messages{receiveOne(t, c), receiveOne(t, c)}
		require.NoError(t, c.ReconsumeLaterMessages(context.Background(), msgs, time.Second))
		require.Len(t, factory.Child("t1").AckedIDs(), 2)
	})
}

func TestLastMessageIDNotSupported(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	_, err := c.LastMessageID()
	require.ErrorIs(t, err, ErrNotSupported)
}

func TestCloseIsIdempotentAndFailsParkedWaiters(t *testing.T) {
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Receive(context.Background())
		errCh <- err
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, c.Close(context.Background()))
	require.Equal(t, types.StateClosed, c.State())
	require.True(t, factory.Child("t1").IsClosed())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrAlreadyClosed)
	case <-time.After(time.Second):
		t.Fatal("parked receive was not failed on close")
	}

	require.NoError(t, c.Close(context.Background()))

	_, err := c.Receive(context.Background())
	require.ErrorIs(t, err, ErrAlreadyClosed)
	require.ErrorIs(t, c.Ack(context.Background(), types.MessageID{}), ErrAlreadyClosed)
}

func TestUnsubscribe(t *testing.T) {
	t.Run("unsubscribes every child", func(t *testing.T) {
		lookup := mttest.NewLookup()
		factory := mttest.NewFactory()
		c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1", "t2"}})

		require.NoError(t, c.Unsubscribe(context.Background()))
		require.Equal(t, types.StateClosed, c.State())
		require.True(t, factory.Child("t1").IsUnsubscribed())
		require.True(t, factory.Child("t2").IsUnsubscribed())
	})

	t.Run("child failure surfaces and fails the consumer", func(t *testing.T) {
		lookup := mttest.NewLookup()
		factory := mttest.NewFactory()
		factory.Child("t1").FailUnsubscribe(errors.New("not permitted"))
		c := startConsumer(t, testConfig(), lookup, factory, types.TopicList{Topics: []types.TopicName{"t1"}})

		err := c.Unsubscribe(context.Background())
		require.ErrorContains(t, err, "not permitted")
		require.Equal(t, types.StateFailed, c.State())
	})
}

func TestHooksFire(t *testing.T) {
	lookup := mttest.NewLookup()
	lookup.SetPartitions("t", 1)
	factory := mttest.NewFactory()
	topic := types.TopicName("t")

	var mu sync.Mutex
	added := make(map[types.CompleteTopicName]bool)
	hooks := &types.Hooks{
		OnChildAdded: func(_ context.Context, topic types.CompleteTopicName) error {
			mu.Lock()
			defer mu.Unlock()
			added[topic] = true

			return nil
		},
	}

	cfg := testConfig()
	cfg.AutoUpdatePartitions = true
	cfg.AutoUpdatePartitionsInterval = 30 * time.Millisecond

	_ = startConsumer(t, cfg, lookup, factory, types.PartitionedTopic{Topic: topic}, WithHooks(hooks))

	lookup.SetPartitions("t", 2)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return added[topic.Partitioned(1)]
	}, 5*time.Second, 10*time.Millisecond)
}
