package multitopic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, 1000, cfg.ReceiverQueueSize)
	require.Equal(t, 50000, cfg.MaxTotalReceiverQueueSizeAcrossPartitions)
	require.Equal(t, time.Second, cfg.AckTimeoutTickTime)
	require.Equal(t, 100, cfg.BatchReceivePolicy.MaxNumMessages)
	require.Equal(t, 10<<20, cfg.BatchReceivePolicy.MaxNumBytes)
	require.Equal(t, 100*time.Millisecond, cfg.BatchReceivePolicy.Timeout)
	require.Equal(t, time.Minute, cfg.AutoUpdatePartitionsInterval)
	require.Equal(t, time.Minute, cfg.PatternAutoDiscoveryPeriod)
	require.Equal(t, 30*time.Second, cfg.LookupTimeout)
	require.Equal(t, 128, cfg.MailboxSize)
}

func TestApplyDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		ApplyDefaults(&cfg)

		require.Equal(t, 1000, cfg.ReceiverQueueSize)
		require.Equal(t, 100, cfg.BatchReceivePolicy.MaxNumMessages)
		require.Equal(t, 100*time.Millisecond, cfg.BatchReceivePolicy.Timeout)
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			ReceiverQueueSize:  10,
			AckTimeout:         30 * time.Second,
			AckTimeoutTickTime: 2 * time.Second,
			BatchReceivePolicy: BatchReceivePolicy{MaxNumBytes: 1 << 20, Timeout: 200 * time.Millisecond},
		}
		ApplyDefaults(&cfg)

		require.Equal(t, 10, cfg.ReceiverQueueSize)
		require.Equal(t, 2*time.Second, cfg.AckTimeoutTickTime)
		require.Equal(t, 0, cfg.BatchReceivePolicy.MaxNumMessages)
		require.Equal(t, 1<<20, cfg.BatchReceivePolicy.MaxNumBytes)
		require.Equal(t, 200*time.Millisecond, cfg.BatchReceivePolicy.Timeout)
	})
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.SubscriptionName = "sub"

		return cfg
	}

	t.Run("valid config passes", func(t *testing.T) {
		cfg := valid()
		require.NoError(t, cfg.Validate())
	})

	t.Run("missing subscription name", func(t *testing.T) {
		cfg := valid()
		cfg.SubscriptionName = ""
		require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("non-positive receiver queue size", func(t *testing.T) {
		cfg := valid()
		cfg.ReceiverQueueSize = 0
		require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("total smaller than per-consumer queue", func(t *testing.T) {
		cfg := valid()
		cfg.MaxTotalReceiverQueueSizeAcrossPartitions = cfg.ReceiverQueueSize - 1
		require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("tick time exceeding ack timeout", func(t *testing.T) {
		cfg := valid()
		cfg.AckTimeout = time.Second
		cfg.AckTimeoutTickTime = 2 * time.Second
		require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("batch policy without limits", func(t *testing.T) {
		cfg := valid()
		cfg.BatchReceivePolicy = BatchReceivePolicy{Timeout: time.Second}
		require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("batch policy without timeout", func(t *testing.T) {
		cfg := valid()
		cfg.BatchReceivePolicy.Timeout = 0
		require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})
}

func TestConfigYAMLRoundTrip(t *testing.T) {
	in := `
subscriptionName: orders-sub
receiverQueueSize: 10
ackTimeout: 30s
batchReceivePolicy:
  maxNumMessages: 50
  timeout: 250ms
autoUpdatePartitions: true
autoUpdatePartitionsInterval: 5s
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(in), &cfg))

	require.Equal(t, "orders-sub", cfg.SubscriptionName)
	require.Equal(t, 10, cfg.ReceiverQueueSize)
	require.Equal(t, 30*time.Second, cfg.AckTimeout)
	require.Equal(t, 50, cfg.BatchReceivePolicy.MaxNumMessages)
	require.Equal(t, 250*time.Millisecond, cfg.BatchReceivePolicy.Timeout)
	require.True(t, cfg.AutoUpdatePartitions)
	require.Equal(t, 5*time.Second, cfg.AutoUpdatePartitionsInterval)

	out, err := yaml.Marshal(&cfg)
	require.NoError(t, err)
	var back Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	require.Equal(t, cfg, back)
}
