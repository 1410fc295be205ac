package multitopic

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/multitopic/internal/metrics"
	"github.com/arloliu/multitopic/types"
)

// Option configures a Consumer with optional dependencies.
type Option func(*consumerOptions)

// consumerOptions holds optional Consumer configuration.
type consumerOptions struct {
	logger  types.Logger
	metrics types.MetricsCollector
	hooks   *types.Hooks
}

// WithLogger sets a logger.
//
// Example:
//
//	logger := logging.NewSlog(slog.Default())
//	c, err := multitopic.NewConsumer(&cfg, lookup, factory, topics, multitopic.WithLogger(logger))
func WithLogger(logger types.Logger) Option {
	return func(o *consumerOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
func WithMetrics(collector types.MetricsCollector) Option {
	return func(o *consumerOptions) {
		o.metrics = collector
	}
}

// WithPrometheusMetrics installs a Prometheus-backed metrics collector
// registered on reg (prometheus.DefaultRegisterer when nil) under the given
// namespace ("multitopic" when empty).
func WithPrometheusMetrics(reg prometheus.Registerer, namespace string) Option {
	return func(o *consumerOptions) {
		o.metrics = metrics.NewPrometheus(reg, namespace)
	}
}

// WithHooks sets lifecycle event hooks.
//
// Example:
//
//	hooks := &multitopic.Hooks{
//	    OnChildAdded: func(ctx context.Context, topic multitopic.CompleteTopic) error {
//	        return registerTopic(topic)
//	    },
//	}
//	c, err := multitopic.NewConsumer(&cfg, lookup, factory, topics, multitopic.WithHooks(hooks))
func WithHooks(hooks *types.Hooks) Option {
	return func(o *consumerOptions) {
		o.hooks = hooks
	}
}
