package events

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
	EventCarDeleted       = "car_deleted"
	EventPaymentCreated   = "payment_created"
)

// AllEventTypes lists every event the services publish.
var AllEventTypes = []string{
	EventBookingCreated,
	EventBookingConfirmed,
	EventBookingCancelled,
	EventCarDeleted,
	EventPaymentCreated,
}

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID  int64   `json:"booking_id"`
	CarID      int64   `json:"car_id"`
	CarName    string  `json:"car_name"`
	UserID     string  `json:"user_id"`
	OwnerID    string  `json:"owner_id"`
	PickupDate string  `json:"pickup_date"`
	ReturnDate string  `json:"return_date"`
	Status     string  `json:"status"`
	Price      float64 `json:"price"`
	ChangedBy  string  `json:"changed_by,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

type CarEventPayload struct {
	CarID             int64   `json:"car_id"`
	OwnerID           string  `json:"owner_id"`
	DeletedBy         string  `json:"deleted_by"`
	CancelledBookings []int64 `json:"cancelled_bookings"`
}

type PaymentEventPayload struct {
	PaymentID int64   `json:"payment_id"`
	BookingID int64   `json:"booking_id"`
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	Method    string  `json:"method"`
	Currency  string  `json:"currency"`
	Status    string  `json:"status"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// RoutingKey maps an event type to a dotted broker routing key,
// booking_created becomes booking.created.
func (e *Event) RoutingKey() string {
	return strings.ReplaceAll(e.Type, "_", ".")
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	onError     func(event *Event, err error)
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError installs a callback for handler failures.
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

// Publish runs the subscribers of the event type synchronously.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

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

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}

	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now().UTC()}, nil
}
