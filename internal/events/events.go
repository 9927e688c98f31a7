package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

const (
	BookingCreated    = "booking.created"
	BookingCancelled  = "booking.cancelled"
	BookingSuperseded = "booking.superseded"
	BookingCompleted  = "booking.completed"
)

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// ErrorHandler receives handler failures.
type ErrorHandler func(event Event, err error)

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	seq         atomic.Int64
	onError     ErrorHandler
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError sets a callback for handler failures.
func (b *EventBus) OnError(h ErrorHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = h
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.ID == 0 {
		event.ID = b.seq.Add(1)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON marshals payload and publishes it under evType.
func (b *EventBus) PublishJSON(evType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.Publish(Event{Type: evType, Payload: data})
	return nil
}
