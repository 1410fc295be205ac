package types

// ConnectionState represents the consumer lifecycle state.
//
// States follow a defined progression during normal operation:
//
//	StateUninitialized → StateReady → StateClosing → StateClosed
//
// Initialization failure moves StateUninitialized → StateFailed, and a failed
// unsubscribe moves StateClosing → StateFailed. Both are terminal. No state is
// ever revisited.
type ConnectionState int

const (
	// StateUninitialized is the state before Init completes.
	StateUninitialized ConnectionState = iota

	// StateReady indicates normal operation with all children running.
	StateReady

	// StateClosing indicates close or unsubscribe is in progress.
	StateClosing

	// StateClosed indicates the consumer has been fully shut down.
	StateClosed

	// StateFailed is the terminal error state.
	StateFailed
)

// String returns the string representation of the state.
func (s ConnectionState) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateReady:
		return "Ready"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// SubscriptionType selects the broker dispatch mode for every child
// subscription of the consumer.
type SubscriptionType int

const (
	// SubscriptionExclusive allows a single consumer on the subscription.
	SubscriptionExclusive SubscriptionType = iota

	// SubscriptionShared distributes messages round-robin across consumers.
	SubscriptionShared

	// SubscriptionFailover keeps one active consumer with standbys.
	SubscriptionFailover

	// SubscriptionKeyShared distributes messages by key across consumers.
	SubscriptionKeyShared
)

// String returns the string representation of the subscription type.
func (t SubscriptionType) String() string {
	switch t {
	case SubscriptionExclusive:
		return "Exclusive"
	case SubscriptionShared:
		return "Shared"
	case SubscriptionFailover:
		return "Failover"
	case SubscriptionKeyShared:
		return "KeyShared"
	default:
		return "Unknown"
	}
}
