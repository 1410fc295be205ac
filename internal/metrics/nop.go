package metrics

import "github.com/arloliu/multitopic/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external metrics
// collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// RecordReceived discards the delivery metric.
func (n *NopMetrics) RecordReceived(_ /* topic */ types.CompleteTopicName, _ /* bytes */ int) {}

// RecordReceiveError discards the receive error metric.
func (n *NopMetrics) RecordReceiveError(_ /* topic */ types.CompleteTopicName) {}

// RecordBatch discards the batch metric.
func (n *NopMetrics) RecordBatch(_ /* count */ int, _ /* bytes */ int) {}

// RecordAck discards the ack metric.
func (n *NopMetrics) RecordAck(_ /* topic */ types.CompleteTopicName, _ /* cumulative */ bool) {}

// RecordNack discards the nack metric.
func (n *NopMetrics) RecordNack(_ /* topic */ types.CompleteTopicName) {}

// RecordRedelivery discards the redelivery metric.
func (n *NopMetrics) RecordRedelivery(_ /* count */ int) {}

// RecordQueueDepth discards the queue depth gauge.
func (n *NopMetrics) RecordQueueDepth(_ /* depth */ int) {}

// RecordQueueBytes discards the queue bytes gauge.
func (n *NopMetrics) RecordQueueBytes(_ /* bytes */ int64) {}

// RecordPollerPaused discards the poller pause edge.
func (n *NopMetrics) RecordPollerPaused(_ /* paused */ bool) {}

// RecordChildCount discards the child count gauge.
func (n *NopMetrics) RecordChildCount(_ /* count */ int) {}

// RecordPartitionGrowth discards the partition growth metric.
func (n *NopMetrics) RecordPartitionGrowth(_ /* topic */ types.TopicName, _ /* added */ int) {}

// RecordStateTransition discards the state transition metric.
func (n *NopMetrics) RecordStateTransition(_ /* from */, _ /* to */ types.ConnectionState) {}
