package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventReservationCreated  = "reservation_created"
	EventReservationApproved = "reservation_approved"
	EventReservationDenied   = "reservation_denied"
	EventCancelRequested     = "cancel_requested"
	EventReservationCanceled = "reservation_canceled"
	EventCancelRejected      = "cancel_rejected"
	EventReservationRemoved  = "reservation_removed"
)

// ReservationEventPayload is the reservation snapshot event consumers see.
// GridDates lists the civil grid days the reservation touches, which is what
// the day-sheet cache invalidator needs.
type ReservationEventPayload struct {
	ReservationID int64     `json:"reservation_id"`
	Ref           string    `json:"ref"`
	ResourceID    int64     `json:"resource_id"`
	Owner         string    `json:"owner"`
	Status        string    `json:"status"`
	Label         string    `json:"label"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	GridDates     []string  `json:"grid_dates"`
	ActorID       string    `json:"actor_id,omitempty"`
}

// Event is a lightweight in-process domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Handler reacts to an event. Handlers run synchronously on the publisher's
// goroutine; a handler that needs concurrency owns its own queue.
type Handler func(event *Event) error

// Bus provides in-process pub/sub for reservation events.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every currently known reservation
// event type.
func (b *Bus) SubscribeAll(handler Handler) {
	for _, t := range []string{
		EventReservationCreated, EventReservationApproved, EventReservationDenied,
		EventCancelRequested, EventReservationCanceled, EventCancelRejected,
		EventReservationRemoved,
	} {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type. Handler errors are the
// handler's problem; publishing never fails because of a consumer.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *Bus) PublishJSON(eventType string, payload interface{}) error {
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
