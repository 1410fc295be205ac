package multitopic

import "github.com/arloliu/multitopic/types"

// Re-export types from the types subpackage.
//
// This file provides a stable public API for the library's core types and
// interfaces using type aliases. The `types` subpackage holds the actual
// definitions so internal packages can depend on them without importing the
// root package, while users still get the convenient `multitopic.Message`,
// `multitopic.Logger`, etc.
type (
	Message         = types.Message
	MessageID       = types.MessageID
	Messages        = types.Messages
	TopicName       = types.TopicName
	CompleteTopic   = types.CompleteTopicName
	ConsumerStats   = types.ConsumerStats
	ConnectionState = types.ConnectionState
)

// Re-export interfaces and sum types from the types subpackage.
type (
	ChildConsumer    = types.ChildConsumer
	ChildFactory     = types.ChildFactory
	ChildOptions     = types.ChildOptions
	LookupService    = types.LookupService
	ConnectionPool   = types.ConnectionPool
	Producer         = types.Producer
	Logger           = types.Logger
	MetricsCollector = types.MetricsCollector
	Hooks            = types.Hooks
	Topics           = types.Topics
	PartitionedTopic = types.PartitionedTopic
	TopicList        = types.TopicList
	TopicsPattern    = types.TopicsPattern
	SeekTarget       = types.SeekTarget
	SeekID           = types.SeekID
	SeekTime         = types.SeekTime
	SeekResolver     = types.SeekResolver
)

// Re-export state constants from the types subpackage.
const (
	StateUninitialized = types.StateUninitialized
	StateReady         = types.StateReady
	StateClosing       = types.StateClosing
	StateClosed        = types.StateClosed
	StateFailed        = types.StateFailed
)

// Re-export subscription types from the types subpackage.
const (
	SubscriptionExclusive = types.SubscriptionExclusive
	SubscriptionShared    = types.SubscriptionShared
	SubscriptionFailover  = types.SubscriptionFailover
	SubscriptionKeyShared = types.SubscriptionKeyShared
)

// EarliestMessageID returns the id addressing the first available message.
func EarliestMessageID() MessageID { return types.EarliestMessageID() }

// LatestMessageID returns the id addressing the next published message.
func LatestMessageID() MessageID { return types.LatestMessageID() }
