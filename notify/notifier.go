// Package notify carries wakeups across the boundary between producers that
// must never block and consumers that do.
//
// Notifier is the signal-safe binary semaphore the topic monitor's elected
// reader parks on. Hub fans generation changes out to channel subscribers.
package notify

import (
	"sync"
	"sync/atomic"

	"github.com/maxpert/topicmon/telemetry"
	"github.com/maxpert/topicmon/topic"
	"github.com/puzpuzpuz/xsync/v3"
)

// defaultChangeBufferSize is the buffer size for subscriber channels.
// Changes are coalescing by nature, so a small buffer is enough; subscribers
// that fall behind lose changes (non-blocking send) and should re-read the
// current generations.
const defaultChangeBufferSize = 16

// Change reports that a topic reached a new generation.
type Change struct {
	Topic      topic.Topic
	Generation topic.Generation
}

// subscription represents a single subscriber.
type subscription struct {
	id     uint64
	filter topic.Set
	ch     chan Change

	mu     sync.RWMutex // excludes send against close
	closed bool
}

// matches checks if the topic passes this subscription's filter.
func (s *subscription) matches(t topic.Topic) bool {
	// empty = all topics
	return s.filter.Empty() || s.filter.Has(t)
}

// send delivers c without blocking. It reports false if the buffer was full.
func (s *subscription) send(c Change) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- c:
		return true
	default:
		return false
	}
}

// close closes the subscription channel if not already closed.
func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Hub is a thread-safe fan-out of generation changes.
type Hub struct {
	subscriptions *xsync.MapOf[uint64, *subscription]
	nextID        atomic.Uint64
}

// NewHub creates a new change hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: xsync.NewMapOf[uint64, *subscription](),
	}
}

// Publish sends one Change per topic that advanced from prev to cur to every
// matching subscriber (non-blocking). Topics invalid in either list are skipped.
func (h *Hub) Publish(prev, cur *topic.GenerationsList) {
	for _, t := range topic.All() {
		if !prev.IsValid(t) || !cur.IsValid(t) || cur.Get(t) <= prev.Get(t) {
			continue
		}
		change := Change{Topic: t, Generation: cur.Get(t)}

		h.subscriptions.Range(func(_ uint64, sub *subscription) bool {
			// Non-blocking send - drop if buffer full
			if sub.matches(t) && !sub.send(change) {
				telemetry.HubDroppedTotal.Inc()
			}
			return true
		})
	}
}

// Subscribe creates a new subscription and returns the change channel and cancel function.
// An empty filter subscribes to every topic. The cancel function is idempotent.
func (h *Hub) Subscribe(filter topic.Set) (<-chan Change, func()) {
	sub := &subscription{
		id:     h.nextID.Add(1),
		filter: filter,
		ch:     make(chan Change, defaultChangeBufferSize),
	}

	h.subscriptions.Store(sub.id, sub)
	telemetry.HubSubscribers.Inc()

	cancel := func() {
		h.unsubscribe(sub.id)
	}

	return sub.ch, cancel
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	return h.subscriptions.Size()
}

// Close cancels every subscription.
func (h *Hub) Close() {
	h.subscriptions.Range(func(id uint64, _ *subscription) bool {
		h.unsubscribe(id)
		return true
	})
}

// unsubscribe removes a subscription and closes its channel.
func (h *Hub) unsubscribe(id uint64) {
	sub, ok := h.subscriptions.LoadAndDelete(id)
	if ok {
		telemetry.HubSubscribers.Dec()
		sub.close()
	}
}
