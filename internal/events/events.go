package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	// EventDataSynced fires when a pending operation is successfully
	// replayed, or a read refreshed the snapshot cache.
	EventDataSynced = "data_synced"
	// EventSyncDropped fires when an operation exhausted its retry limit
	// and was removed from the queue.
	EventSyncDropped = "sync_dropped"
)

// SyncedPayload describes one successfully replayed operation.
type SyncedPayload struct {
	OperationID string          `json:"operation_id"`
	Endpoint    string          `json:"endpoint"`
	Method      string          `json:"method"`
	Data        json.RawMessage `json:"data,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// DroppedPayload describes an operation abandoned after too many retries.
// This is surfaced data loss, not a silent removal.
type DroppedPayload struct {
	OperationID string    `json:"operation_id"`
	Endpoint    string    `json:"endpoint"`
	Method      string    `json:"method"`
	Retries     int       `json:"retries"`
	LastError   string    `json:"last_error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

type subscription struct {
	id      int
	handler EventHandler
}

// EventBus provides in-process pub/sub for events. Handlers run
// synchronously in subscription order; the caller decides concurrency.
type EventBus struct {
	subscribers map[string][]subscription
	nextID      int
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]subscription)}
}

// Subscribe registers a handler for an event type and returns a function
// that removes it again, bounding the subscriber's lifetime.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[eventType]
		for i, sub := range subs {
			if sub.id == id {
				b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, sub := range subs {
		_ = sub.handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
