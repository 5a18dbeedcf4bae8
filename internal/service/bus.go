package service

import "sync"

// ActionAdded is published when an overlay joins the catalogue after startup.
const ActionAdded = "added"

// Event is a catalogue change.
type Event struct {
	Action  string
	Overlay Overlay
}

// EventBus fans catalogue events out to SSE viewers.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

// Publish sends e to every subscriber without blocking. It returns how many
// subscribers received it; slow ones miss the event.
func (b *EventBus) Publish(e Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sent := 0
	for ch := range b.subs {
		select {
		case ch <- e:
			sent++
		default:
		}
	}
	return sent
}

// Subscribe returns a buffered channel that receives events.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown channels
// are ignored.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// Len returns the number of subscribers.
func (b *EventBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
