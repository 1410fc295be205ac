package multitopic

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	mttest "github.com/arloliu/multitopic/testing"
	"github.com/arloliu/multitopic/types"
)

type fakePool struct {
	closed atomic.Bool
}

func (p *fakePool) Close() error {
	p.closed.Store(true)

	return nil
}

type fakeProducer struct {
	name     string
	closeErr error
	closed   atomic.Bool
}

func (p *fakeProducer) Name() string { return p.name }

func (p *fakeProducer) Close(context.Context) error {
	if p.closeErr != nil {
		return p.closeErr
	}
	p.closed.Store(true)

	return nil
}

func newTestClient(t *testing.T) (*Client, *mttest.Factory, *fakePool) {
	t.Helper()
	lookup := mttest.NewLookup()
	factory := mttest.NewFactory()
	pool := &fakePool{}
	client, err := NewClient(lookup, factory, pool, WithClientLogger(mttest.NewTestLogger(t)))
	require.NoError(t, err)

	return client, factory, pool
}

func TestNewClientValidation(t *testing.T) {
	factory := mttest.NewFactory()

	_, err := NewClient(nil, factory, &fakePool{})
	require.ErrorIs(t, err, ErrLookupRequired)

	_, err = NewClient(mttest.NewLookup(), nil, &fakePool{})
	require.ErrorIs(t, err, ErrChildFactoryRequired)
}

func TestClientSubscribeAndClose(t *testing.T) {
	client, factory, pool := newTestClient(t)

	cfg := testConfig()
	consumer, err := client.Subscribe(context.Background(), cfg, types.TopicList{Topics: []types.TopicName{"t1"}})
	require.NoError(t, err)
	require.Equal(t, 1, client.ConsumerCount())

	factory.Child("t1").PublishPayloads("hello")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := consumer.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "hello", string(msg.Payload))

	require.NoError(t, client.Close(context.Background()))
	require.Equal(t, ClientClosed, client.State())
	require.Equal(t, 0, client.ConsumerCount())
	require.Equal(t, types.StateClosed, consumer.State())
	require.True(t, pool.closed.Load())
}

func TestClientConsumerCloseDeregisters(t *testing.T) {
	client, _, pool := newTestClient(t)

	cfg := testConfig()
	consumer, err := client.Subscribe(context.Background(), cfg, types.TopicList{Topics: []types.TopicName{"t1"}})
	require.NoError(t, err)

	require.NoError(t, consumer.Close(context.Background()))
	require.Equal(t, 0, client.ConsumerCount())

	// The client is still active; the pool stays open.
	require.Equal(t, ClientActive, client.State())
	require.False(t, pool.closed.Load())
}

func TestClientProducerLifecycle(t *testing.T) {
	client, _, pool := newTestClient(t)

	producer := &fakeProducer{name: "p1"}
	id, err := client.RegisterProducer(producer)
	require.NoError(t, err)
	require.Equal(t, 1, client.ProducerCount())

	client.UnregisterProducer(id)
	require.Equal(t, 0, client.ProducerCount())
	require.False(t, pool.closed.Load())

	_, err = client.RegisterProducer(producer)
	require.NoError(t, err)
	require.NoError(t, client.Close(context.Background()))
	require.True(t, producer.closed.Load())
	require.True(t, pool.closed.Load())
}

func TestClientRejectsOperationsWhenNotActive(t *testing.T) {
	client, _, _ := newTestClient(t)
	require.NoError(t, client.Close(context.Background()))

	_, err := client.Subscribe(context.Background(), testConfig(), types.TopicList{Topics: []types.TopicName{"t1"}})
	require.ErrorIs(t, err, ErrAlreadyClosed)

	_, err = client.RegisterProducer(&fakeProducer{name: "p"})
	require.ErrorIs(t, err, ErrAlreadyClosed)

	// Closing a closed client is a no-op.
	require.NoError(t, client.Close(context.Background()))
}

func TestClientCloseFailureRevertsToActive(t *testing.T) {
	client, _, pool := newTestClient(t)

	bad := &fakeProducer{name: "bad", closeErr: errors.New("flush failed")}
	_, err := client.RegisterProducer(bad)
	require.NoError(t, err)

	err = client.Close(context.Background())
	require.ErrorContains(t, err, "flush failed")
	require.Equal(t, ClientActive, client.State())
	require.False(t, pool.closed.Load())

	// A second close succeeds once the producer can stop.
	bad.closeErr = nil
	require.NoError(t, client.Close(context.Background()))
	require.Equal(t, ClientClosed, client.State())
	require.True(t, pool.closed.Load())
}
