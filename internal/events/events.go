package events

import (
	"encoding/json"
	"sync"
	"time"

	"agendamento/internal/models"
)

const (
	EventReservationCreated   = "reservation_created"
	EventReservationUpdated   = "reservation_updated"
	EventReservationConfirmed = "reservation_confirmed"
	EventReservationCanceled  = "reservation_canceled"
	EventReservationDeleted   = "reservation_deleted"
)

// ReservationEventTypes lists every event the service emits.
var ReservationEventTypes = []string{
	EventReservationCreated,
	EventReservationUpdated,
	EventReservationConfirmed,
	EventReservationCanceled,
	EventReservationDeleted,
}

// ReservationEventPayload is the reservation snapshot sent to consumers.
type ReservationEventPayload struct {
	ReservationID string              `json:"reservation_id"`
	UserID        string              `json:"user_id"`
	UserName      string              `json:"user_name"`
	Resource      models.ResourceType `json:"resource_id"`
	Date          string              `json:"date"`
	StartTime     string              `json:"start_time"`
	EndTime       string              `json:"end_time"`
	Quantity      *int64              `json:"quantity,omitempty"`
	Room          string              `json:"room,omitempty"`
	Status        models.Status       `json:"status"`
	AdminNote     string              `json:"admin_note,omitempty"`
	ChangedBy     string              `json:"changed_by,omitempty"`
}

// NewReservationPayload snapshots r as changed by actorID.
func NewReservationPayload(r *models.Reservation, actorID string) ReservationEventPayload {
	return ReservationEventPayload{
		ReservationID: r.ID,
		UserID:        r.UserID,
		UserName:      r.UserName,
		Resource:      r.Resource,
		Date:          r.DateKey(),
		StartTime:     r.StartTime.String(),
		EndTime:       r.EndTime.String(),
		Quantity:      r.Quantity,
		Room:          r.Room,
		Status:        r.Status,
		AdminNote:     r.AdminNote,
		ChangedBy:     actorID,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	onError     func(event *Event, err error)
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError sets a callback for handler failures. Failures never reach the
// publisher.
func (b *EventBus) OnError(fn func(event *Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	// Handlers run synchronously; caller decides concurrency model.
	for _, handler := range handlers {
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
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
