package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/multitopic/types"
)

func TestNewNop(t *testing.T) {
	h := NewNop()

	require.NotNil(t, h.OnChildAdded)
	require.NotNil(t, h.OnChildRemoved)
	require.NotNil(t, h.OnStateChanged)

	ctx := context.Background()
	require.NoError(t, h.OnChildAdded(ctx, "t-partition-0"))
	require.NoError(t, h.OnChildRemoved(ctx, "t-partition-0"))
	require.NoError(t, h.OnStateChanged(ctx, types.StateUninitialized, types.StateReady))
}

func TestFillPreservesCustomCallbacks(t *testing.T) {
	called := false
	h := types.Hooks{
		OnChildAdded: func(ctx context.Context, topic types.CompleteTopicName) error {
			called = true
			return nil
		},
	}

	Fill(&h)

	require.NoError(t, h.OnChildAdded(context.Background(), "t"))
	require.True(t, called)
	require.NotNil(t, h.OnChildRemoved)
	require.NotNil(t, h.OnStateChanged)
}
