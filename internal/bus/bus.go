// Package bus fans service events out to WebSocket clients.
package bus

import (
	"sync"
	"time"
)

// EventType classifies an event for stream clients.
type EventType string

const (
	EventEntrySet     EventType = "entry_set"
	EventEntryDeleted EventType = "entry_deleted"
	EventURLSelected  EventType = "url_selected"
	EventBeacon       EventType = "beacon"
)

// Event is the JSON-serialisable envelope broadcast to stream clients.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// subscriber holds a buffered channel for one stream client.
type subscriber struct {
	ch chan Event
}

// Bus fans events out to all registered stream clients. Subscribers
// are channel-based rather than raw connections to keep the bus
// transport-agnostic and fully testable without a real WebSocket.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// New constructs a ready Bus.
func New() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a new stream client.
// Returns a receive channel and an unsubscribe function that must be
// called when the client disconnects (it closes the channel).
func (b *Bus) Subscribe() (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, 64)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		close(s.ch)
	}
	return s.ch, unsub
}

// Publish sends an Event to all current subscribers.
// Slow consumers are skipped (their buffer is full) to avoid stalling
// the publisher. They can catch up via the REST history endpoints.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
			// Slow consumer – drop silently.
		}
	}
}

// PublishEntrySet is a convenience wrapper for EventEntrySet events.
func (b *Bus) PublishEntrySet(data interface{}) {
	b.Publish(Event{Type: EventEntrySet, Data: data})
}

// PublishEntryDeleted is a convenience wrapper for EventEntryDeleted events.
func (b *Bus) PublishEntryDeleted(data interface{}) {
	b.Publish(Event{Type: EventEntryDeleted, Data: data})
}

// PublishURLSelected is a convenience wrapper for EventURLSelected events.
func (b *Bus) PublishURLSelected(data interface{}) {
	b.Publish(Event{Type: EventURLSelected, Data: data})
}

// PublishBeacon is a convenience wrapper for EventBeacon events.
func (b *Bus) PublishBeacon(data interface{}) {
	b.Publish(Event{Type: EventBeacon, Data: data})
}

// Len returns the current subscriber count (useful for status/tests).
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
