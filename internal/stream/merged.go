package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arloliu/multitopic/types"
)

// Merged is a fair merge over a dynamic set of Streams.
//
// Every active stream has exactly one outstanding pull driven by a dedicated
// goroutine; the goroutine blocks handing its result over an unbuffered
// channel, so the merge never buffers more than one message per stream.
// Streams can be added, removed and re-armed at runtime without disturbing
// the in-flight pulls of survivors.
//
// Next is single-consumer: only the poller calls it.
type Merged struct {
	mu      sync.Mutex
	out     chan emission
	workers map[types.CompleteTopicName]*worker
	closed  bool
}

type emission struct {
	w   *worker
	res types.Result
}

type worker struct {
	stream    *Stream
	topic     types.CompleteTopicName
	cancel    context.CancelFunc
	completed atomic.Bool
}

// NewMerged creates an empty merge.
func NewMerged() *Merged {
	return &Merged{
		out:     make(chan emission),
		workers: make(map[types.CompleteTopicName]*worker),
	}
}

// Add introduces a stream and immediately starts its outstanding pull.
// Adding a topic that is already present replaces the previous stream.
func (m *Merged) Add(s *Stream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if prev, ok := m.workers[s.Topic()]; ok {
		prev.cancel()
	}
	m.workers[s.Topic()] = m.spawn(s)
}

// Remove detaches the stream of the topic. An in-flight pull is cancelled;
// a result already handed over but not yet consumed is dropped, never
// delivered.
func (m *Merged) Remove(topic types.CompleteTopicName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[topic]
	if !ok {
		return
	}
	w.cancel()
	delete(m.workers, topic)
}

// RestartCompleted re-arms every stream whose pull has terminated (parked at
// end of topic). Used after seek and global redelivery, which can make a
// terminated topic readable again.
func (m *Merged) RestartCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for topic, w := range m.workers {
		if w.completed.Load() {
			w.cancel()
			m.workers[topic] = m.spawn(w.stream)
		}
	}
}

// Next returns the next ready stream's result. It blocks until a stream
// produces, ctx is cancelled, or the merge is closed.
func (m *Merged) Next(ctx context.Context) (types.Result, error) {
	for {
		select {
		case <-ctx.Done():
			return types.Result{}, ctx.Err()
		case e := <-m.out:
			m.mu.Lock()
			current := m.workers[e.w.topic] == e.w
			m.mu.Unlock()
			if !current {
				// Stream was removed or replaced after the handover; the
				// result must not be delivered.
				continue
			}

			return e.res, nil
		}
	}
}

// Len returns the number of attached streams.
func (m *Merged) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.workers)
}

// Topics returns the topics of the attached streams.
func (m *Merged) Topics() []types.CompleteTopicName {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]types.CompleteTopicName, 0, len(m.workers))
	for topic := range m.workers {
		topics = append(topics, topic)
	}

	return topics
}

// Close cancels every pull and detaches all streams. The merge is unusable
// afterwards.
func (m *Merged) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for topic, w := range m.workers {
		w.cancel()
		delete(m.workers, topic)
	}
}

// spawn starts the pull goroutine of a stream. Caller holds m.mu.
func (m *Merged) spawn(s *Stream) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		stream: s,
		topic:  s.Topic(),
		cancel: cancel,
	}
	go m.run(ctx, w)

	return w
}

func (m *Merged) run(ctx context.Context, w *worker) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, ok := w.stream.Next(ctx)
		if !ok {
			if ctx.Err() == nil {
				// Parked at end of topic until RestartCompleted re-arms it.
				w.completed.Store(true)
			}

			return
		}
		select {
		case m.out <- emission{w: w, res: res}:
		case <-ctx.Done():
			return
		}
	}
}
