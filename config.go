package multitopic

import (
	"fmt"
	"time"

	"github.com/arloliu/multitopic/types"
)

// BatchReceivePolicy bounds a batch receive: the reply carries at most
// MaxNumMessages messages and MaxNumBytes payload bytes, and is sent no
// later than Timeout after the request parked, possibly empty. A single
// message larger than MaxNumBytes is still delivered, alone in its batch.
//
// A zero MaxNumMessages or MaxNumBytes disables that limit; at least one of
// the two must be positive.
type BatchReceivePolicy struct {
	// MaxNumMessages is the maximum number of messages per batch.
	MaxNumMessages int `yaml:"maxNumMessages"`

	// MaxNumBytes is the maximum total payload size per batch.
	MaxNumBytes int `yaml:"maxNumBytes"`

	// Timeout is how long a batch receive waits before replying with
	// whatever is available.
	Timeout time.Duration `yaml:"timeout"`
}

// Config holds the consumer configuration.
//
// The zero value is not usable; fill the required fields and let
// ApplyDefaults complete the rest, or start from DefaultConfig.
type Config struct {
	// SubscriptionName is the broker-side subscription identity. Required.
	SubscriptionName string `yaml:"subscriptionName"`

	// ConsumerName names this consumer. Auto-generated when empty.
	ConsumerName string `yaml:"consumerName"`

	// SubscriptionType selects the dispatch mode for every child
	// subscription. Default: Exclusive.
	SubscriptionType types.SubscriptionType `yaml:"subscriptionType"`

	// ReceiverQueueSize bounds the incoming queue. Once the queue is full
	// the poller is paused until callers drain it back to half this size.
	//
	// Default: 1000
	ReceiverQueueSize int `yaml:"receiverQueueSize"`

	// MaxTotalReceiverQueueSizeAcrossPartitions caps the sum of child
	// receiver queues. Children created by partition growth get
	// min(ReceiverQueueSize, MaxTotalReceiverQueueSizeAcrossPartitions /
	// childCount) at decision time.
	//
	// Default: 50000
	MaxTotalReceiverQueueSizeAcrossPartitions int `yaml:"maxTotalReceiverQueueSizeAcrossPartitions"`

	// AckTimeout enables redelivery of messages not acknowledged within the
	// timeout. Zero disables the unacked tracker.
	AckTimeout time.Duration `yaml:"ackTimeout"`

	// AckTimeoutTickTime is the granularity of the unacked tracker's time
	// wheel. Default: 1s.
	AckTimeoutTickTime time.Duration `yaml:"ackTimeoutTickTime"`

	// BatchReceivePolicy governs BatchReceive replies.
	//
	// Default: {MaxNumMessages: 100, MaxNumBytes: 10 MiB, Timeout: 100ms}
	BatchReceivePolicy BatchReceivePolicy `yaml:"batchReceivePolicy"`

	// AutoUpdatePartitions enables the partition watcher, which grows the
	// child set when partitioned topics gain partitions. Shrinking is
	// refused.
	AutoUpdatePartitions bool `yaml:"autoUpdatePartitions"`

	// AutoUpdatePartitionsInterval is the partition watcher period.
	// Default: 1m.
	AutoUpdatePartitionsInterval time.Duration `yaml:"autoUpdatePartitionsInterval"`

	// PatternAutoDiscoveryPeriod is the pattern watcher period, used only
	// for pattern subscriptions. Default: 1m.
	PatternAutoDiscoveryPeriod time.Duration `yaml:"patternAutoDiscoveryPeriod"`

	// RetryEnable allows ReconsumeLater. When false, ReconsumeLater fails
	// synchronously.
	RetryEnable bool `yaml:"retryEnable"`

	// StartMessageID positions new child cursors, when set.
	StartMessageID *types.MessageID `yaml:"-"`

	// StartMessageRollbackDuration rolls new child cursors back in time,
	// when positive.
	StartMessageRollbackDuration time.Duration `yaml:"startMessageRollbackDuration"`

	// LookupTimeout bounds each broker metadata query. Default: 30s.
	LookupTimeout time.Duration `yaml:"lookupTimeout"`

	// MailboxSize is the capacity of the core event mailbox. Default: 128.
	MailboxSize int `yaml:"mailboxSize"`
}

// DefaultConfig returns a Config with every optional field set to its
// default. SubscriptionName must still be filled in.
func DefaultConfig() Config {
	cfg := Config{}
	ApplyDefaults(&cfg)

	return cfg
}

// ApplyDefaults fills in missing configuration values with defaults.
// Existing non-zero values are preserved.
func ApplyDefaults(cfg *Config) {
	if cfg.ReceiverQueueSize == 0 {
		cfg.ReceiverQueueSize = 1000
	}
	if cfg.MaxTotalReceiverQueueSizeAcrossPartitions == 0 {
		cfg.MaxTotalReceiverQueueSizeAcrossPartitions = 50000
	}
	if cfg.AckTimeoutTickTime == 0 {
		cfg.AckTimeoutTickTime = time.Second
	}
	if cfg.BatchReceivePolicy.MaxNumMessages == 0 && cfg.BatchReceivePolicy.MaxNumBytes == 0 {
		cfg.BatchReceivePolicy.MaxNumMessages = 100
		cfg.BatchReceivePolicy.MaxNumBytes = 10 << 20
	}
	if cfg.BatchReceivePolicy.Timeout == 0 {
		cfg.BatchReceivePolicy.Timeout = 100 * time.Millisecond
	}
	if cfg.AutoUpdatePartitionsInterval == 0 {
		cfg.AutoUpdatePartitionsInterval = time.Minute
	}
	if cfg.PatternAutoDiscoveryPeriod == 0 {
		cfg.PatternAutoDiscoveryPeriod = time.Minute
	}
	if cfg.LookupTimeout == 0 {
		cfg.LookupTimeout = 30 * time.Second
	}
	if cfg.MailboxSize == 0 {
		cfg.MailboxSize = 128
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.SubscriptionName == "" {
		return fmt.Errorf("%w: subscription name is required", ErrInvalidConfig)
	}
	if c.ReceiverQueueSize <= 0 {
		return fmt.Errorf("%w: receiver queue size must be positive, got %d", ErrInvalidConfig, c.ReceiverQueueSize)
	}
	if c.MaxTotalReceiverQueueSizeAcrossPartitions < c.ReceiverQueueSize {
		return fmt.Errorf("%w: max total receiver queue size (%d) must be >= receiver queue size (%d)",
			ErrInvalidConfig, c.MaxTotalReceiverQueueSizeAcrossPartitions, c.ReceiverQueueSize)
	}
	if c.AckTimeout < 0 {
		return fmt.Errorf("%w: ack timeout must not be negative", ErrInvalidConfig)
	}
	if c.AckTimeout > 0 && c.AckTimeoutTickTime > c.AckTimeout {
		return fmt.Errorf("%w: ack timeout tick time (%v) must not exceed ack timeout (%v)",
			ErrInvalidConfig, c.AckTimeoutTickTime, c.AckTimeout)
	}
	if c.BatchReceivePolicy.MaxNumMessages <= 0 && c.BatchReceivePolicy.MaxNumBytes <= 0 {
		return fmt.Errorf("%w: batch receive policy needs a positive message or byte limit", ErrInvalidConfig)
	}
	if c.BatchReceivePolicy.Timeout <= 0 {
		return fmt.Errorf("%w: batch receive timeout must be positive", ErrInvalidConfig)
	}
	if c.MailboxSize <= 0 {
		return fmt.Errorf("%w: mailbox size must be positive", ErrInvalidConfig)
	}

	return nil
}

// resumeThreshold is the queue length at or below which a paused poller is
// resumed.
func (c *Config) resumeThreshold() int {
	return c.ReceiverQueueSize / 2
}
