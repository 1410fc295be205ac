package multitopic

import "errors"

// Sentinel errors returned by the Consumer and Client.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrLookupRequired is returned when the lookup service is nil.
	ErrLookupRequired = errors.New("lookup service is required")

	// ErrChildFactoryRequired is returned when the child factory is nil.
	ErrChildFactoryRequired = errors.New("child consumer factory is required")

	// ErrTopicsRequired is returned when the topics selector is nil or empty.
	ErrTopicsRequired = errors.New("topics selector is required")

	// ErrAlreadyStarted is returned when Start is called on a running consumer.
	ErrAlreadyStarted = errors.New("consumer already started")

	// ErrNotStarted is returned when an operation requires a started consumer.
	ErrNotStarted = errors.New("consumer not started")

	// ErrAlreadyClosed is returned for operations on a closed consumer or client.
	ErrAlreadyClosed = errors.New("already closed")

	// ErrInitFailed is returned when building the initial child set fails.
	// Init failure is terminal.
	ErrInitFailed = errors.New("consumer initialization failed")

	// ErrLookupFailed wraps broker metadata query failures.
	ErrLookupFailed = errors.New("lookup failed")

	// ErrIllegalMessageID is returned when seeking a multi-topic consumer to
	// a message id other than the Earliest/Latest endpoints.
	ErrIllegalMessageID = errors.New("seek of a multi-topic consumer accepts only the earliest and latest message ids")

	// ErrRetryDisabled is returned by ReconsumeLater when RetryEnable is false.
	ErrRetryDisabled = errors.New("retry is disabled for this consumer")

	// ErrNotSupported is returned for operations a multi-topic consumer
	// cannot provide, such as LastMessageID.
	ErrNotSupported = errors.New("operation not supported on a multi-topic consumer")

	// ErrNoChildForTopic is returned when routing an operation to a topic
	// the consumer holds no child for.
	ErrNoChildForTopic = errors.New("no child consumer for topic")

	// ErrShrinkingPartitions reports a partition count decrease, which is
	// refused. It is logged by the partition watcher, never surfaced.
	ErrShrinkingPartitions = errors.New("partition count decreased; shrinking is not supported")
)
