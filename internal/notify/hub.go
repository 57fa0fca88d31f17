// Package notify fans order lifecycle events out to in-process subscribers
// and, when configured, to a Pub/Sub topic for out-of-process consumers.
package notify

import (
	"sync"

	"github.com/foodies-app/api/internal/domain"
)

const defaultSubscriberBuffer = 16

// Hub is an in-process topic broker. Delivery is best effort: events sent to
// a subscriber whose buffer is full are dropped rather than blocking the
// publisher.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int
	closed bool

	dropped func(topic string)
}

// Subscription is one subscriber's handle on a topic.
type Subscription struct {
	topic string
	ch    chan domain.OrderEvent
	once  sync.Once
	hub   *Hub
}

// Events exposes the receive channel. It is closed when the subscription is
// cancelled or the hub shuts down.
func (s *Subscription) Events() <-chan domain.OrderEvent { return s.ch }

// Cancel removes the subscription from the hub and closes its channel.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.hub != nil {
			s.hub.remove(s)
		}
		close(s.ch)
	})
}

// HubOption customises Hub behaviour.
type HubOption func(*Hub)

// WithSubscriberBuffer overrides the per-subscriber channel buffer size.
func WithSubscriberBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithDropObserver registers a callback invoked whenever an event is dropped
// because a subscriber's buffer was full.
func WithDropObserver(fn func(topic string)) HubOption {
	return func(h *Hub) {
		h.dropped = fn
	}
}

// NewHub constructs an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		topics: make(map[string]map[*Subscription]struct{}),
		buffer: defaultSubscriberBuffer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Subscribe registers a new subscriber on the topic.
func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan domain.OrderEvent, h.buffer),
		hub:   h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		sub.once.Do(func() {})
		return sub
	}
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.topics[topic] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish delivers the event to every current subscriber of the topic
// without blocking. It reports how many subscribers received the event.
func (h *Hub) Publish(topic string, event domain.OrderEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0
	}

	delivered := 0
	for sub := range h.topics[topic] {
		select {
		case sub.ch <- event:
			delivered++
		default:
			if h.dropped != nil {
				h.dropped(topic)
			}
		}
	}
	return delivered
}

// Close shuts the hub down and closes every subscriber channel. Publish and
// Subscribe become no-ops afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var subs []*Subscription
	for _, set := range h.topics {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	h.topics = make(map[string]map[*Subscription]struct{})
	// Channels are closed outside the lock: a concurrent Cancel holds its
	// sync.Once while waiting for h.mu in remove, so closing under the
	// lock would wait on that Once and deadlock.
	h.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(func() { close(sub.ch) })
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.topics[sub.topic]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.topics, sub.topic)
		}
	}
}
