package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus is an in-process publish/subscribe event bus with prefix filtering.
// Publishing never blocks: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
// Safe to call on a nil bus.
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// Emit publishes an event of the given kind stamped with the current time.
func (b *Bus) Emit(kind string, payload any) {
	b.Publish(Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// Subscribe returns a buffered channel receiving events whose kind starts with
// prefix, and a function that cancels the subscription. On a nil bus the
// channel is nil and never delivers.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{prefix: prefix, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}
