package metrics

import (
	"github.com/arloliu/multitopic/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
type PrometheusCollector struct {
	received      *prometheus.CounterVec
	receivedBytes *prometheus.CounterVec
	receiveErrors *prometheus.CounterVec
	batches       prometheus.Counter
	batchMessages prometheus.Counter
	acks          *prometheus.CounterVec
	nacks         *prometheus.CounterVec
	redeliveries  prometheus.Counter
	queueDepth    prometheus.Gauge
	queueBytes    prometheus.Gauge
	pollerPaused  prometheus.Gauge
	childCount    prometheus.Gauge
	partitionAdds *prometheus.CounterVec
	transitions   *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector and
// registers its collectors.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: metrics namespace (defaults to "multitopic" if empty)
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "multitopic"
	}

	c := &PrometheusCollector{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages handed to the caller or queued, per topic.",
		}, []string{"topic"}),
		receivedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Payload bytes received, per topic.",
		}, []string{"topic"}),
		receiveErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_errors_total",
			Help:      "Failed receives surfaced to the caller, per topic.",
		}, []string{"topic"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Completed batch receives.",
		}),
		batchMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_messages_total",
			Help:      "Messages delivered through batch receives.",
		}),
		acks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acks_total",
			Help:      "Acknowledgements sent, per topic and kind.",
		}, []string{"topic", "kind"}),
		nacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nacks_total",
			Help:      "Negative acknowledgements sent, per topic.",
		}, []string{"topic"}),
		redeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redelivery_requests_total",
			Help:      "Redelivery requests issued to children.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "incoming_queue_depth",
			Help:      "Current incoming queue length.",
		}),
		queueBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "incoming_queue_bytes",
			Help:      "Current incoming queue payload bytes.",
		}),
		pollerPaused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poller_paused",
			Help:      "1 while the poller reply is withheld for backpressure.",
		}),
		childCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "child_consumers",
			Help:      "Current number of child consumers.",
		}),
		partitionAdds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partitions_added_total",
			Help:      "Partitions added by the partition watcher, per topic.",
		}, []string{"topic"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Consumer state transitions.",
		}, []string{"from", "to"}),
	}

	reg.MustRegister(
		c.received, c.receivedBytes, c.receiveErrors,
		c.batches, c.batchMessages,
		c.acks, c.nacks, c.redeliveries,
		c.queueDepth, c.queueBytes, c.pollerPaused,
		c.childCount, c.partitionAdds, c.transitions,
	)

	return c
}

// RecordReceived increments the per-topic delivery counters.
func (c *PrometheusCollector) RecordReceived(topic types.CompleteTopicName, bytes int) {
	c.received.WithLabelValues(string(topic)).Inc()
	c.receivedBytes.WithLabelValues(string(topic)).Add(float64(bytes))
}

// RecordReceiveError increments the per-topic receive error counter.
func (c *PrometheusCollector) RecordReceiveError(topic types.CompleteTopicName) {
	c.receiveErrors.WithLabelValues(string(topic)).Inc()
}

// RecordBatch counts a completed batch receive and its size.
func (c *PrometheusCollector) RecordBatch(count int, _ /* bytes */ int) {
	c.batches.Inc()
	c.batchMessages.Add(float64(count))
}

// RecordAck increments the per-topic ack counter.
func (c *PrometheusCollector) RecordAck(topic types.CompleteTopicName, cumulative bool) {
	kind := "individual"
	if cumulative {
		kind = "cumulative"
	}
	c.acks.WithLabelValues(string(topic), kind).Inc()
}

// RecordNack increments the per-topic nack counter.
func (c *PrometheusCollector) RecordNack(topic types.CompleteTopicName) {
	c.nacks.WithLabelValues(string(topic)).Inc()
}

// RecordRedelivery counts a redelivery request.
func (c *PrometheusCollector) RecordRedelivery(_ /* count */ int) {
	c.redeliveries.Inc()
}

// RecordQueueDepth sets the queue depth gauge.
func (c *PrometheusCollector) RecordQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// RecordQueueBytes sets the queue bytes gauge.
func (c *PrometheusCollector) RecordQueueBytes(bytes int64) {
	c.queueBytes.Set(float64(bytes))
}

// RecordPollerPaused sets the poller pause gauge.
func (c *PrometheusCollector) RecordPollerPaused(paused bool) {
	if paused {
		c.pollerPaused.Set(1)
	} else {
		c.pollerPaused.Set(0)
	}
}

// RecordChildCount sets the child count gauge.
func (c *PrometheusCollector) RecordChildCount(count int) {
	c.childCount.Set(float64(count))
}

// RecordPartitionGrowth counts partitions added to a topic.
func (c *PrometheusCollector) RecordPartitionGrowth(topic types.TopicName, added int) {
	c.partitionAdds.WithLabelValues(string(topic)).Add(float64(added))
}

// RecordStateTransition counts a state transition edge.
func (c *PrometheusCollector) RecordStateTransition(from, to types.ConnectionState) {
	c.transitions.WithLabelValues(from.String(), to.String()).Inc()
}
