package testing

import (
	"context"
	"sync"

	"github.com/arloliu/multitopic/types"
)

// Factory is a ChildFactory producing fake Child consumers and remembering
// every child it built, so tests can publish into them and inspect their
// state after the consumer has grown or shrunk its child set.
type Factory struct {
	mu         sync.Mutex
	children   map[types.CompleteTopicName]*Child
	requested  map[types.CompleteTopicName]bool
	opts       map[types.CompleteTopicName]types.ChildOptions
	createErrs map[types.CompleteTopicName]error
}

var _ types.ChildFactory = (*Factory)(nil)

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{
		children:   make(map[types.CompleteTopicName]*Child),
		requested:  make(map[types.CompleteTopicName]bool),
		opts:       make(map[types.CompleteTopicName]types.ChildOptions),
		createErrs: make(map[types.CompleteTopicName]error),
	}
}

// Create implements ChildFactory. Creating the same topic twice returns the
// existing child, so messages published before subscription survive.
func (f *Factory) Create(_ context.Context, topic types.CompleteTopicName, opts types.ChildOptions) (types.ChildConsumer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErrs[topic]; err != nil {
		return nil, err
	}
	f.opts[topic] = opts
	f.requested[topic] = true
	if c, ok := f.children[topic]; ok {
		return c, nil
	}
	c := NewChild(topic)
	f.children[topic] = c

	return c, nil
}

// FailCreate makes Create of the topic return err (nil restores success).
func (f *Factory) FailCreate(topic types.CompleteTopicName, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErrs[topic] = err
}

// Child returns the fake child of the topic, creating it eagerly so tests
// can publish before the consumer subscribes.
func (f *Factory) Child(topic types.CompleteTopicName) *Child {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.children[topic]; ok {
		return c
	}
	c := NewChild(topic)
	f.children[topic] = c

	return c
}

// Created reports whether the consumer requested a child for the topic.
func (f *Factory) Created(topic types.CompleteTopicName) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.requested[topic]
}

// Options returns the ChildOptions the consumer used for the topic.
func (f *Factory) Options(topic types.CompleteTopicName) types.ChildOptions {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.opts[topic]
}

// Topics returns the topics of every created child.
func (f *Factory) Topics() []types.CompleteTopicName {
	f.mu.Lock()
	defer f.mu.Unlock()
	topics := make([]types.CompleteTopicName, 0, len(f.children))
	for topic := range f.children {
		topics = append(topics, topic)
	}

	return topics
}
