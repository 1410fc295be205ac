package types

import "time"

// SeekTarget is the closed set of positions a consumer can seek to: a message
// id or a publish timestamp. Implementations are SeekID and SeekTime only.
type SeekTarget interface {
	isSeekTarget()
}

// SeekID seeks every child to a message id. On a multi-topic consumer only
// the Earliest/Latest endpoints are accepted.
type SeekID struct {
	ID MessageID
}

func (SeekID) isSeekTarget() {}

// SeekTime seeks every child to the first message published at or after the
// given time.
type SeekTime struct {
	Time time.Time
}

func (SeekTime) isSeekTarget() {}

// SeekResolver maps a child topic to the target that child should seek to.
// Used by the per-topic seek overloads.
type SeekResolver func(topic CompleteTopicName) SeekTarget
