package types

import "context"

// PartitionedTopicMetadata describes the broker-side shape of a topic.
type PartitionedTopicMetadata struct {
	// Partitions is the partition count; 0 means the topic is not
	// partitioned.
	Partitions int
}

// LookupService answers broker metadata queries. The wire-level lookup
// implementation is supplied by the transport layer.
type LookupService interface {
	// GetPartitionedTopicMetadata returns the partition metadata of a topic.
	GetPartitionedTopicMetadata(ctx context.Context, topic TopicName) (PartitionedTopicMetadata, error)

	// GetPartitionsForTopic returns the complete topic names a consumer of
	// the topic should subscribe: the topic itself when non-partitioned,
	// otherwise one entry per partition.
	GetPartitionsForTopic(ctx context.Context, topic TopicName) ([]CompleteTopicName, error)

	// GetTopicsOfNamespace lists the topics of a namespace, for pattern
	// discovery.
	GetTopicsOfNamespace(ctx context.Context, namespace string) ([]TopicName, error)

	// GetServiceURL returns the broker service URL the lookup talks to.
	GetServiceURL() string
}

// ConnectionPool is the transport connection pool owned by the client. The
// client closes it once the last producer and consumer are gone.
type ConnectionPool interface {
	Close() error
}

// Producer is the slice of the producer contract the client lifecycle needs:
// identity and orderly close.
type Producer interface {
	Name() string
	Close(ctx context.Context) error
}
