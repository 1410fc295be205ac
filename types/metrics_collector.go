package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from the consumer's core loop and background
// goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better
// modularity.
type MetricsCollector interface {
	ReceiveMetrics
	AckMetrics
	QueueMetrics
	ChildMetrics
	StateMetrics
}

// ReceiveMetrics defines metrics for message delivery.
type ReceiveMetrics interface {
	// RecordReceived records a message handed to the caller or queued.
	//
	// Parameters:
	//   - topic: complete topic the message came from
	//   - bytes: payload size
	RecordReceived(topic CompleteTopicName, bytes int)

	// RecordReceiveError records a failed receive surfaced to the caller.
	RecordReceiveError(topic CompleteTopicName)

	// RecordBatch records a completed batch receive and its size.
	RecordBatch(count int, bytes int)
}

// AckMetrics defines metrics for acknowledgement traffic.
type AckMetrics interface {
	// RecordAck records an individual or cumulative acknowledgement.
	RecordAck(topic CompleteTopicName, cumulative bool)

	// RecordNack records a negative acknowledgement.
	RecordNack(topic CompleteTopicName)

	// RecordRedelivery records a redelivery request covering count messages
	// (0 for a redeliver-all).
	RecordRedelivery(count int)
}

// QueueMetrics defines metrics for the incoming queue.
type QueueMetrics interface {
	// RecordQueueDepth sets the current incoming queue length (gauge).
	RecordQueueDepth(depth int)

	// RecordQueueBytes sets the current incoming queue payload bytes (gauge).
	RecordQueueBytes(bytes int64)

	// RecordPollerPaused records a poller pause or resume edge.
	RecordPollerPaused(paused bool)
}

// ChildMetrics defines metrics for the child consumer set.
type ChildMetrics interface {
	// RecordChildCount sets the current number of child consumers (gauge).
	RecordChildCount(count int)

	// RecordPartitionGrowth records partitions added to a topic by the
	// partition watcher.
	RecordPartitionGrowth(topic TopicName, added int)
}

// StateMetrics defines metrics for lifecycle transitions.
type StateMetrics interface {
	// RecordStateTransition records a consumer state transition event.
	RecordStateTransition(from, to ConnectionState)
}
