package testing

import (
	"context"
	"sync"

	"github.com/arloliu/multitopic/types"
)

// Lookup is a mutable in-memory LookupService.
//
// Tests change partition counts and namespace topic lists at runtime to
// drive the partition and pattern watchers.
type Lookup struct {
	mu         sync.Mutex
	partitions map[types.TopicName]int
	namespaces map[string][]types.TopicName
	err        error
	calls      int
}

var _ types.LookupService = (*Lookup)(nil)

// NewLookup creates an empty fake lookup.
func NewLookup() *Lookup {
	return &Lookup{
		partitions: make(map[types.TopicName]int),
		namespaces: make(map[string][]types.TopicName),
	}
}

// SetPartitions sets the partition count of a topic (0 = non-partitioned).
func (l *Lookup) SetPartitions(topic types.TopicName, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.partitions[topic] = n
}

// SetTopics sets the topic list of a namespace.
func (l *Lookup) SetTopics(namespace string, topics ...types.TopicName) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.namespaces[namespace] = append([]types.TopicName(nil), topics...)
}

// Fail makes every lookup call return err (nil restores success).
func (l *Lookup) Fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Calls returns the number of lookup queries served.
func (l *Lookup) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.calls
}

// GetPartitionedTopicMetadata implements LookupService.
func (l *Lookup) GetPartitionedTopicMetadata(_ context.Context, topic types.TopicName) (types.PartitionedTopicMetadata, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return types.PartitionedTopicMetadata{}, l.err
	}

	return types.PartitionedTopicMetadata{Partitions: l.partitions[topic]}, nil
}

// GetPartitionsForTopic implements LookupService.
func (l *Lookup) GetPartitionsForTopic(_ context.Context, topic types.TopicName) ([]types.CompleteTopicName, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	n := l.partitions[topic]
	if n <= 0 {
		return []types.CompleteTopicName{topic.Complete()}, nil
	}
	names := make([]types.CompleteTopicName, n)
	for i := range n {
		names[i] = topic.Partitioned(i)
	}

	return names, nil
}

// GetTopicsOfNamespace implements LookupService.
func (l *Lookup) GetTopicsOfNamespace(_ context.Context, namespace string) ([]types.TopicName, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}

	return append([]types.TopicName(nil), l.namespaces[namespace]...), nil
}

// GetServiceURL implements LookupService.
func (l *Lookup) GetServiceURL() string { return "pulsar://fake:6650" }
