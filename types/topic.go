package types

import (
	"fmt"
	"strconv"
	"strings"
)

// partitionSuffix separates a logical topic from its partition index.
const partitionSuffix = "-partition-"

// TopicName is a logical topic identifier, before partition expansion.
//
// Examples: "persistent://tenant/ns/orders", "orders".
type TopicName string

// CompleteTopicName is a fully qualified topic identifier including any
// "-partition-N" suffix. Each CompleteTopicName maps to exactly one child
// consumer.
type CompleteTopicName string

// Partitioned returns the CompleteTopicName of partition idx of the topic.
func (t TopicName) Partitioned(idx int) CompleteTopicName {
	return CompleteTopicName(fmt.Sprintf("%s%s%d", string(t), partitionSuffix, idx))
}

// Complete returns the topic as a CompleteTopicName for non-partitioned use.
func (t TopicName) Complete() CompleteTopicName {
	return CompleteTopicName(t)
}

// String returns the topic as a plain string.
func (t TopicName) String() string { return string(t) }

// String returns the topic as a plain string.
func (t CompleteTopicName) String() string { return string(t) }

// Logical strips any "-partition-N" suffix and returns the logical topic.
func (t CompleteTopicName) Logical() TopicName {
	name, _, ok := t.split()
	if !ok {
		return TopicName(t)
	}

	return name
}

// PartitionIndex returns the partition index encoded in the topic name, or -1
// when the topic is not a partition of a partitioned topic.
func (t CompleteTopicName) PartitionIndex() int {
	_, idx, ok := t.split()
	if !ok {
		return -1
	}

	return idx
}

// IsPartitionOf reports whether the topic is the logical topic itself or one
// of its "-partition-N" partitions. Used by the pattern watcher to match
// children against a removed logical topic.
func (t CompleteTopicName) IsPartitionOf(topic TopicName) bool {
	if TopicName(t) == topic {
		return true
	}

	return strings.HasPrefix(string(t), string(topic)+partitionSuffix) && t.PartitionIndex() >= 0
}

func (t CompleteTopicName) split() (TopicName, int, bool) {
	i := strings.LastIndex(string(t), partitionSuffix)
	if i < 0 {
		return "", 0, false
	}
	idx, err := strconv.Atoi(string(t)[i+len(partitionSuffix):])
	if err != nil || idx < 0 {
		return "", 0, false
	}

	return TopicName(string(t)[:i]), idx, true
}
