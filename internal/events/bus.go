package events

import (
	"sync"
)

// Handler receives events synchronously on the emitting goroutine.
type Handler func(Event)

// Bus fans events out to handlers and channel subscribers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	streams  map[int]chan Event
	nextID   int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		streams:  make(map[int]chan Event),
	}
}

// Subscribe registers handler for eventType.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Stream returns a channel receiving every event plus a cancel func.
// Slow consumers lose events rather than blocking emitters.
func (b *Bus) Stream(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.streams[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.streams, id)
			close(ch)
		})
	}
}

// Publish delivers event to handlers and streams.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Type]...)
	for _, ch := range b.streams {
		select {
		case ch <- event:
		default:
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
