// Package events provides the in-process publish/subscribe bus that carries
// file state changes to connected SSE clients. Events carry identifiers only,
// not payloads: subscribers forward a minimal signal prompting the client to
// re-fetch, which keeps the bus cheap and avoids stale data on the wire.
package events

import "sync"

// Topic names.
const (
	TopicFileChanged = "file:changed"
)

// Event is one bus message. UserID lets per-connection subscribers filter to
// their own user's changes.
type Event struct {
	Topic  string `json:"topic"`
	UserID string `json:"userId"`
	FileID string `json:"fileId,omitempty"`
}

// subscriber buffers events so one slow SSE connection cannot block publishers.
const subscriberBuffer = 16

// Bus is an in-process pub/sub hub keyed by topic. A zero-value Bus is not
// usable; construct with NewBus.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]chan Event)}
}

// Subscribe registers a listener for a topic. The returned cancel function
// removes the subscription and closes the channel; callers must invoke it on
// disconnect or the listener leaks across reconnects.
func (b *Bus) Subscribe(topic string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan Event)
	}

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[topic][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[topic][id]; ok {
			delete(b.subs[topic], id)
			close(sub)
		}
	}

	return ch, cancel
}

// Publish delivers an event to every subscriber of its topic. Delivery is
// best-effort: a subscriber whose buffer is full is skipped rather than
// blocking the publisher — SSE clients re-fetch on the next signal anyway.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[evt.Topic] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// SubscriberCount reports how many listeners a topic currently has.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
