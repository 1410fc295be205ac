package multitopic

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/multitopic/internal/logging"
	"github.com/arloliu/multitopic/types"
)

// ClientState is the client lifecycle state.
type ClientState int

const (
	// ClientActive is the normal operating state.
	ClientActive ClientState = iota

	// ClientClosing indicates CloseAll is in progress: children are being
	// closed and no new producers or consumers are accepted.
	ClientClosing

	// ClientClosed indicates the connection pool has been released.
	ClientClosed
)

// String returns the string representation of the state.
func (s ClientState) String() string {
	switch s {
	case ClientActive:
		return "Active"
	case ClientClosing:
		return "Closing"
	case ClientClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Client owns the live producers and consumers built on one connection pool
// and drives their orderly shutdown: Close quiesces every child first, and
// releases the pool only once both registries are empty.
type Client struct {
	lookup  types.LookupService
	factory types.ChildFactory
	pool    types.ConnectionPool
	logger  types.Logger

	state     atomic.Int32
	nextID    atomic.Uint64
	consumers *xsync.Map[uint64, *Consumer]
	producers *xsync.Map[uint64, types.Producer]
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client logger.
func WithClientLogger(logger types.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client over the given transport collaborators.
//
// Parameters:
//   - lookup: broker metadata service shared by all consumers
//   - factory: child consumer factory shared by all consumers
//   - pool: connection pool, closed when the client stops
func NewClient(lookup types.LookupService, factory types.ChildFactory, pool types.ConnectionPool, opts ...ClientOption) (*Client, error) {
	if lookup == nil {
		return nil, ErrLookupRequired
	}
	if factory == nil {
		return nil, ErrChildFactoryRequired
	}

	c := &Client{
		lookup:    lookup,
		factory:   factory,
		pool:      pool,
		logger:    logging.NewNop(),
		consumers: xsync.NewMap[uint64, *Consumer](),
		producers: xsync.NewMap[uint64, types.Producer](),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Store(int32(ClientActive))

	return c, nil
}

// State returns the client lifecycle state.
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

// Subscribe creates and starts a consumer over the topics selector and
// registers it with the client. The consumer removes itself from the client
// when it closes.
func (c *Client) Subscribe(ctx context.Context, cfg *Config, topics types.Topics, opts ...Option) (*Consumer, error) {
	if c.State() != ClientActive {
		return nil, ErrAlreadyClosed
	}

	consumer, err := NewConsumer(cfg, c.lookup, c.factory, topics, opts...)
	if err != nil {
		return nil, err
	}

	id := c.nextID.Add(1)
	consumer.onClosed = func(*Consumer) {
		c.consumers.Delete(id)
		c.maybeStop()
	}

	if err := consumer.Start(ctx); err != nil {
		return nil, err
	}

	// Re-check after the start window: a concurrent Close must not leave an
	// orphaned consumer behind.
	c.consumers.Store(id, consumer)
	if c.State() != ClientActive {
		_ = consumer.Close(ctx)

		return nil, ErrAlreadyClosed
	}

	return consumer, nil
}

// RegisterProducer adds a producer to the live set. The returned id is
// passed to UnregisterProducer when the producer closes.
func (c *Client) RegisterProducer(p types.Producer) (uint64, error) {
	if c.State() != ClientActive {
		return 0, ErrAlreadyClosed
	}
	id := c.nextID.Add(1)
	c.producers.Store(id, p)

	return id, nil
}

// UnregisterProducer removes a producer from the live set.
func (c *Client) UnregisterProducer(id uint64) {
	c.producers.Delete(id)
	c.maybeStop()
}

// ConsumerCount returns the number of live consumers.
func (c *Client) ConsumerCount() int { return c.consumers.Size() }

// ProducerCount returns the number of live producers.
func (c *Client) ProducerCount() int { return c.producers.Size() }

// Close quiesces every producer and consumer, then releases the connection
// pool. On any child failure the client reverts to Active and reports the
// error once; a successful Close leaves the client Closed. Closing a closed
// client returns nil.
func (c *Client) Close(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(ClientActive), int32(ClientClosing)) {
		if c.State() == ClientClosed {
			return nil
		}

		return ErrAlreadyClosed
	}

	g, gctx := errgroup.WithContext(ctx)
	c.consumers.Range(func(id uint64, consumer *Consumer) bool {
		g.Go(func() error {
			if err := consumer.Close(gctx); err != nil {
				return fmt.Errorf("close consumer %s: %w", consumer.Name(), err)
			}

			return nil
		})

		return true
	})
	c.producers.Range(func(id uint64, producer types.Producer) bool {
		g.Go(func() error {
			if err := producer.Close(gctx); err != nil {
				return fmt.Errorf("close producer %s: %w", producer.Name(), err)
			}
			c.producers.Delete(id)
			c.maybeStop()

			return nil
		})

		return true
	})

	if err := g.Wait(); err != nil {
		c.state.Store(int32(ClientActive))
		c.logger.Error("client close failed", "error", err)

		return err
	}

	c.maybeStop()

	return nil
}

// maybeStop releases the connection pool once both registries are empty
// while the client is closing.
func (c *Client) maybeStop() {
	if c.State() != ClientClosing {
		return
	}
	if c.consumers.Size() != 0 || c.producers.Size() != 0 {
		return
	}
	if !c.state.CompareAndSwap(int32(ClientClosing), int32(ClientClosed)) {
		return
	}
	if c.pool != nil {
		if err := c.pool.Close(); err != nil {
			c.logger.Warn("connection pool close failed", "error", err)
		}
	}
	c.logger.Info("client stopped")
}
