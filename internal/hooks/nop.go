package hooks

import (
	"context"

	"github.com/arloliu/multitopic/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// NewNop creates a new no-op hooks implementation.
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnChildAdded:   h.OnChildAdded,
		OnChildRemoved: h.OnChildRemoved,
		OnStateChanged: h.OnStateChanged,
	}
}

// Fill replaces any nil callback of hooks with a no-op so callers can invoke
// every callback unconditionally.
func Fill(h *types.Hooks) {
	nop := NewNop()
	if h.OnChildAdded == nil {
		h.OnChildAdded = nop.OnChildAdded
	}
	if h.OnChildRemoved == nil {
		h.OnChildRemoved = nop.OnChildRemoved
	}
	if h.OnStateChanged == nil {
		h.OnStateChanged = nop.OnStateChanged
	}
}

// OnChildAdded is a no-op implementation.
func (h *NopHooks) OnChildAdded(ctx context.Context, topic types.CompleteTopicName) error {
	return nil
}

// OnChildRemoved is a no-op implementation.
func (h *NopHooks) OnChildRemoved(ctx context.Context, topic types.CompleteTopicName) error {
	return nil
}

// OnStateChanged is a no-op implementation.
func (h *NopHooks) OnStateChanged(ctx context.Context, from, to types.ConnectionState) error {
	return nil
}
