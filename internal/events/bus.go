package events

import "sync"

// subscriberBufferSize is the channel buffer for each subscriber. Events are
// dropped for a subscriber that falls this far behind.
const subscriberBufferSize = 64

// Bus fans events out to subscribers. It is safe for concurrent use.
// Delivery is at-most-once: slow subscribers lose events rather than
// blocking the publisher.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
	}
}

// Subscribe returns a channel that receives published events and an
// unsubscribe function. If the bus is already closed, the returned channel
// is immediately closed.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
		}
	}
}

// Publish sends an event to all subscribers, dropping it for any whose
// buffer is full.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Drop for slow subscribers to avoid blocking transitions.
		}
	}
}

// Close shuts the bus down. All subscriber channels are closed and future
// Subscribe calls return a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
