package events

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
)

var (
	ErrInvalidTopic    = errors.New("invalid topic")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrInvalidReceiver = errors.New("receiver should be a pointer")
)

// Metadata carries transport level attributes of an event
type Metadata map[string]string

func (m Metadata) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m Metadata) Matches(o Metadata) bool {
	for k, v := range o {
		if m[k] != v {
			return false
		}
	}
	return true
}

func (m Metadata) Clone() Metadata {
	clone := make(Metadata, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// Event is a domain or integration event. CorrelationID carries the saga ID for every
// event that takes part in a saga, so replies can be routed back to the waiting step.
type Event struct {
	ID            models.ID   `json:"id"`
	AggregateID   models.ID   `json:"aggregate_id"`
	Topic         Topic       `json:"topic"`
	EventType     string      `json:"event_type"`
	Version       string      `json:"version"`
	Data          interface{} `json:"data"`
	Metadata      Metadata    `json:"metadata"`
	Timestamp     time.Time   `json:"timestamp"`
	CorrelationID models.ID   `json:"correlation_id,omitempty"`
}

// Publisher publishes events
type Publisher interface {
	Publish(ctx context.Context, events ...*Event) error
}

// Subscriber delivers events to a handler until stopped
type Subscriber interface {
	Subscribe(ctx context.Context, handler EventHandler) error
}

// EventHandler handles domain events
type EventHandler interface {
	Handle(ctx context.Context, event *Event) error
}

// NewEvent creates an event whose topic is the event type
func NewEvent(aggregateID models.ID, eventType string, data interface{}) *Event {
	return &Event{
		ID:          models.GenerateUUID(),
		AggregateID: aggregateID,
		Topic:       Topic(eventType),
		EventType:   eventType,
		Version:     "1.0",
		Data:        data,
		Metadata:    make(Metadata),
		Timestamp:   time.Now().UTC(),
	}
}

// WithCorrelationID sets correlation ID
func (e *Event) WithCorrelationID(correlationID models.ID) *Event {
	e.CorrelationID = correlationID
	return e
}

// WithMetadata adds metadata
func (e *Event) WithMetadata(key string, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(Metadata)
	}
	e.Metadata[key] = value
	return e
}

// MarshalPayload marshals the event payload
func (e *Event) MarshalPayload() (json.RawMessage, error) {
	switch data := e.Data.(type) {
	case json.RawMessage:
		return data, nil
	case []byte:
		return data, nil
	}

	raw, err := json.Marshal(e.Data)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidPayload, err.Error())
	}
	return raw, nil
}

// UnmarshalPayload decodes the event payload into v, which must be a pointer
func (e *Event) UnmarshalPayload(v interface{}) error {
	target := reflect.ValueOf(v)
	if target.Kind() != reflect.Ptr || target.IsNil() {
		return ErrInvalidReceiver
	}

	if e.Data != nil {
		payload := reflect.ValueOf(e.Data)
		if payload.Type() == target.Elem().Type() {
			target.Elem().Set(payload)
			return nil
		}
	}

	raw, err := e.MarshalPayload()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrap(ErrInvalidPayload, err.Error())
	}
	return nil
}

// Matches checks if the event matches the given topic pattern and metadata
func (e *Event) Matches(topicPattern Topic, metadata Metadata) bool {
	return e.Topic.Matches(topicPattern) && e.Metadata.Matches(metadata)
}

// Event types
const (
	// Orders
	OrderCreatedEvent   = "order.created"
	OrderActivatedEvent = "order.activated"
	OrderCancelledEvent = "order.cancelled"
	OrderRefundedEvent  = "order.refunded"

	// Devices
	DeviceAllocationRequestedEvent = "device.allocation.requested"
	DeviceAllocationCompletedEvent = "device.allocation.completed"
	DeviceAllocationFailedEvent    = "device.allocation.failed"
	DeviceReleaseRequestedEvent    = "device.release.requested"

	// Payments
	PaymentRefundRequestedEvent = "payment.refund.requested"

	// Registrations
	UserRegisteredEvent         = "user.registered"
	UserRegistrationFailedEvent = "user.registration_failed"

	// Saga lifecycle
	SagaStartedEvent     = "saga.started"
	SagaCompletedEvent   = "saga.completed"
	SagaFailedEvent      = "saga.failed"
	SagaCompensatedEvent = "saga.compensated"
)
