package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/multitopic/types"
)

func msg(entry int64, payload string) types.Result {
	return types.Result{Msg: types.Message{
		ID:      types.MessageID{LedgerID: 1, EntryID: entry},
		Payload: []byte(payload),
	}}
}

func TestEnqueueDequeueTracksBytes(t *testing.T) {
	q := New(4)

	q.Enqueue(msg(1, "abc"))
	q.Enqueue(msg(2, "de"))
	q.Enqueue(types.Result{Err: errors.New("decode failed")})

	require.Equal(t, 3, q.Len())
	require.Equal(t, int64(5), q.Bytes())

	res, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, int64(1), res.Msg.ID.EntryID)
	require.Equal(t, int64(2), q.Bytes())

	res, ok = q.Dequeue()
	require.True(t, ok)
	require.Equal(t, int64(2), res.Msg.ID.EntryID)
	require.Equal(t, int64(0), q.Bytes())

	res, ok = q.Dequeue()
	require.True(t, ok)
	require.Error(t, res.Err)
	require.Equal(t, int64(0), q.Bytes())

	_, ok = q.Dequeue()
	require.False(t, ok)
}

func TestDrainBatchHonorsMessageLimit(t *testing.T) {
	q := New(8)
	for i := range 5 {
		q.Enqueue(msg(int64(i), "xx"))
	}

	batch := q.DrainBatch(3, 0)

	require.Len(t, batch, 3)
	require.Equal(t, 2, q.Len())
	require.Equal(t, int64(4), q.Bytes())
}

func TestDrainBatchHonorsByteLimit(t *testing.T) {
	q := New(8)
	q.Enqueue(msg(1, "aaaa"))
	q.Enqueue(msg(2, "bbbb"))
	q.Enqueue(msg(3, "cccc"))

	batch := q.DrainBatch(0, 8)

	require.Len(t, batch, 2)
	require.Equal(t, 1, q.Len())
}

func TestDrainBatchTakesAtLeastOneOversizedMessage(t *testing.T) {
	q := New(2)
	q.Enqueue(msg(1, "aaaaaaaaaa"))

	batch := q.DrainBatch(0, 4)

	require.Len(t, batch, 1)
	require.Equal(t, 0, q.Len())
}

func TestDrainBatchStopsAtError(t *testing.T) {
	q := New(4)
	q.Enqueue(msg(1, "a"))
	q.Enqueue(types.Result{Err: errors.New("boom")})
	q.Enqueue(msg(2, "b"))

	batch := q.DrainBatch(10, 0)

	require.Len(t, batch, 1)
	require.Equal(t, 2, q.Len())
}

func TestReachedBatchLimit(t *testing.T) {
	q := New(4)
	q.Enqueue(msg(1, "aaaa"))
	q.Enqueue(msg(2, "bbbb"))

	require.True(t, q.ReachedBatchLimit(2, 0))
	require.False(t, q.ReachedBatchLimit(3, 0))
	require.True(t, q.ReachedBatchLimit(0, 8))
	require.False(t, q.ReachedBatchLimit(0, 9))
	require.False(t, q.ReachedBatchLimit(0, 0))
}

func TestClear(t *testing.T) {
	q := New(4)
	q.Enqueue(msg(1, "abc"))
	q.Clear()

	require.Equal(t, 0, q.Len())
	require.Equal(t, int64(0), q.Bytes())
}
