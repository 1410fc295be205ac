package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	mttest "github.com/arloliu/multitopic/testing"
	"github.com/arloliu/multitopic/types"
)

func collect(t *testing.T, m *Merged, n int) []types.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	results := make([]types.Result, 0, n)
	for range n {
		res, err := m.Next(ctx)
		require.NoError(t, err)
		results = append(results, res)
	}

	return results
}

func TestMergedDeliversFromAllStreams(t *testing.T) {
	m := NewMerged()
	defer m.Close()

	c1 := mttest.NewChild("t1")
	c2 := mttest.NewChild("t2")
	c1.PublishPayloads("a1", "a2")
	c2.PublishPayloads("b1", "b2", "b3")
	m.Add(New(c1))
	m.Add(New(c2))

	results := collect(t, m, 5)

	byTopic := map[types.CompleteTopicName]int{}
	for _, res := range results {
		require.NoError(t, res.Err)
		byTopic[res.Msg.Topic]++
	}
	require.Equal(t, 2, byTopic["t1"])
	require.Equal(t, 3, byTopic["t2"])
}

func TestMergedRemoveNeverDeliversAfterwards(t *testing.T) {
	m := NewMerged()
	defer m.Close()

	c1 := mttest.NewChild("t1")
	c1.PublishPayloads("x")
	m.Add(New(c1))

	// Give the worker time to hand its result over, then remove.
	time.Sleep(50 * time.Millisecond)
	m.Remove("t1")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := m.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 0, m.Len())
}

func TestMergedAddStartsPullImmediately(t *testing.T) {
	m := NewMerged()
	defer m.Close()

	c1 := mttest.NewChild("t1")
	m.Add(New(c1))
	c1.PublishPayloads("late")

	results := collect(t, m, 1)
	require.Equal(t, []byte("late"), results[0].Msg.Payload)
}

func TestMergedRestartCompleted(t *testing.T) {
	m := NewMerged()
	defer m.Close()

	c1 := mttest.NewChild("t1")
	c1.PublishPayloads("only")
	c1.Terminate()
	m.Add(New(c1))

	results := collect(t, m, 1)
	require.Equal(t, []byte("only"), results[0].Msg.Payload)

	// The stream parks once the terminated topic drains.
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := m.Next(ctx)

		return err != nil
	}, time.Second, 20*time.Millisecond)

	// Seek back to earliest and re-arm; the message replays.
	require.NoError(t, c1.Seek(context.Background(), types.SeekID{ID: types.EarliestMessageID()}))
	m.RestartCompleted()

	results = collect(t, m, 1)
	require.Equal(t, []byte("only"), results[0].Msg.Payload)
}

func TestMergedSurvivorsUnaffectedByRemove(t *testing.T) {
	m := NewMerged()
	defer m.Close()

	c1 := mttest.NewChild("t1")
	c2 := mttest.NewChild("t2")
	m.Add(New(c1))
	m.Add(New(c2))

	m.Remove("t1")
	c2.PublishPayloads("still-here")

	results := collect(t, m, 1)
	require.Equal(t, types.CompleteTopicName("t2"), results[0].Msg.Topic)
}
