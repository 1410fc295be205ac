package types

import "context"

// Hooks defines callbacks for consumer lifecycle events.
//
// All hooks are optional and called from the consumer's core loop after the
// corresponding state change has been applied. Hook errors are logged but
// never fail consumer operations.
//
// Best practices for hook implementation:
//   - Complete quickly (the core loop is serialized behind the hook)
//   - Respect context cancellation
//   - Make hooks idempotent
type Hooks struct {
	// OnChildAdded is called after a child consumer joins the set, either at
	// init or through partition growth / pattern discovery.
	OnChildAdded func(ctx context.Context, topic CompleteTopicName) error

	// OnChildRemoved is called after a child consumer leaves the set through
	// pattern discovery or shutdown.
	OnChildRemoved func(ctx context.Context, topic CompleteTopicName) error

	// OnStateChanged is called when the consumer state transitions.
	OnStateChanged func(ctx context.Context, from, to ConnectionState) error
}
