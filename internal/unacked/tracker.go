// Package unacked provides the deadline tracker that triggers redelivery of
// messages not acknowledged in time.
package unacked

import (
	"sync"
	"time"

	"github.com/arloliu/multitopic/types"
)

// Tracker is a time-wheel over outstanding message ids.
//
// Ids are added when a message is handed to the caller and removed on ack,
// nack or seek. Ids still present when their wheel slot expires are reported
// through the redeliver callback, grouped per tick. The callback runs on the
// tracker's timer goroutine and must not block; the consumer posts it as an
// event to its core loop.
//
// A nil *Tracker is a valid no-op tracker, used when no ack timeout is
// configured.
type Tracker struct {
	redeliver func(ids []types.MessageID)

	mu      sync.Mutex
	buckets []map[types.MessageID]struct{}
	pos     int
	index   map[types.MessageID]int

	interval time.Duration
	ticker   *time.Ticker
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
}

// New creates a tracker firing redeliver for ids older than timeout, checked
// every tickTime. The wheel granularity means an id expires between timeout
// and timeout+tickTime after being added.
func New(timeout, tickTime time.Duration, redeliver func(ids []types.MessageID)) *Tracker {
	if tickTime <= 0 || tickTime > timeout {
		tickTime = timeout
	}
	n := int((timeout+tickTime-1)/tickTime) + 1
	buckets := make([]map[types.MessageID]struct{}, n)
	for i := range buckets {
		buckets[i] = make(map[types.MessageID]struct{})
	}

	return &Tracker{
		redeliver: redeliver,
		buckets:   buckets,
		index:     make(map[types.MessageID]int),
		interval:  tickTime,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the timer goroutine. Safe to call on a nil tracker.
func (t *Tracker) Start() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()

		return
	}
	t.started = true
	t.ticker = time.NewTicker(t.interval)
	t.mu.Unlock()

	go t.run()
}

// Stop halts the timer goroutine and waits for it to exit. Safe to call on a
// nil or never-started tracker, and idempotent.
func (t *Tracker) Stop() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()

		return
	}
	t.started = false
	t.mu.Unlock()

	close(t.stopCh)
	<-t.doneCh
	t.ticker.Stop()
}

// Add starts tracking an id in the youngest wheel slot.
func (t *Tracker) Add(id types.MessageID) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.index[id]; ok {
		return
	}
	slot := t.youngest()
	t.buckets[slot][id] = struct{}{}
	t.index[id] = slot
}

// Remove stops tracking an id. Removing an untracked id is a no-op.
func (t *Tracker) Remove(id types.MessageID) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(id)
}

// RemoveUntil stops tracking every id of the same complete topic at or
// before the given id, mirroring a cumulative acknowledgement.
func (t *Tracker) RemoveUntil(id types.MessageID) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for tracked := range t.index {
		if tracked.Topic == id.Topic && tracked.Compare(id) <= 0 {
			t.removeLocked(tracked)
		}
	}
}

// Clear drops every tracked id.
func (t *Tracker) Clear() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.buckets {
		t.buckets[i] = make(map[types.MessageID]struct{})
	}
	t.index = make(map[types.MessageID]int)
}

// Size returns the number of tracked ids.
func (t *Tracker) Size() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.index)
}

func (t *Tracker) run() {
	defer close(t.doneCh)
	for {
		select {
		case <-t.stopCh:
			return
		case <-t.ticker.C:
			if ids := t.advance(); len(ids) > 0 {
				t.redeliver(ids)
			}
		}
	}
}

// advance expires the oldest slot and rotates the wheel.
func (t *Tracker) advance() []types.MessageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	expired := t.buckets[t.pos]
	if len(expired) == 0 {
		t.pos = (t.pos + 1) % len(t.buckets)

		return nil
	}
	ids := make([]types.MessageID, 0, len(expired))
	for id := range expired {
		ids = append(ids, id)
		delete(t.index, id)
	}
	t.buckets[t.pos] = make(map[types.MessageID]struct{})
	t.pos = (t.pos + 1) % len(t.buckets)

	return ids
}

func (t *Tracker) removeLocked(id types.MessageID) {
	slot, ok := t.index[id]
	if !ok {
		return
	}
	delete(t.buckets[slot], id)
	delete(t.index, id)
}

// youngest is the slot that expires last from the current position. Caller
// holds t.mu.
func (t *Tracker) youngest() int {
	return (t.pos + len(t.buckets) - 1) % len(t.buckets)
}
