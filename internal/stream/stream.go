// Package stream turns child consumers into lazy result producers and merges
// a dynamic set of them into a single fan-in source.
package stream

import (
	"context"
	"fmt"

	"github.com/arloliu/multitopic/types"
)

// Stream adapts one ChildConsumer into a lazy, restartable producer of
// results.
//
// Each Next call either returns a message rewritten to carry the child's
// complete topic name, returns the child's error, or reports the child as
// terminally idle once the end of the topic has been reached. A failed Next
// does not poison the stream; it stays callable so redelivery can retry.
type Stream struct {
	child types.ChildConsumer
	topic types.CompleteTopicName
}

// New creates a stream over the child.
func New(child types.ChildConsumer) *Stream {
	return &Stream{child: child, topic: child.Topic()}
}

// Topic returns the complete topic the stream produces from.
func (s *Stream) Topic() types.CompleteTopicName { return s.topic }

// Child returns the underlying child consumer.
func (s *Stream) Child() types.ChildConsumer { return s.child }

// Next produces the next result. ok is false when the stream has nothing
// more to produce: the child reached the end of its topic, or ctx was
// cancelled.
func (s *Stream) Next(ctx context.Context) (res types.Result, ok bool) {
	if s.child.HasReachedEndOfTopic() {
		return types.Result{}, false
	}

	msg, err := s.child.Receive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return types.Result{}, false
		}
		if s.child.HasReachedEndOfTopic() {
			return types.Result{}, false
		}

		return types.Result{Err: fmt.Errorf("receive from %s: %w", s.topic, err)}, true
	}

	msg.Topic = s.topic
	msg.ID.Topic = s.topic

	return types.Result{Msg: msg}, true
}
