package types

import "regexp"

// Topics is the closed set of subscription shapes a multi-topic consumer can
// be built from. Implementations are PartitionedTopic, TopicList and
// TopicsPattern only.
type Topics interface {
	isTopics()
}

// PartitionedTopic subscribes every partition of a single partitioned topic.
type PartitionedTopic struct {
	Topic TopicName
}

func (PartitionedTopic) isTopics() {}

// TopicList subscribes an explicit set of topics, expanding each partitioned
// member into its partitions.
type TopicList struct {
	Topics []TopicName
}

func (TopicList) isTopics() {}

// TopicsPattern subscribes every topic of a namespace whose name matches the
// pattern, re-evaluated periodically for additions and removals.
type TopicsPattern struct {
	Namespace string
	Pattern   *regexp.Regexp
}

func (TopicsPattern) isTopics() {}
