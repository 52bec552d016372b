package domain

import (
	"context"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusActive    OrderStatus = "ACTIVE"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// Order aggregate root
type Order struct {
	ID           models.ID
	UserID       models.ID
	PlanID       models.ID
	Amount       models.Money
	Status       OrderStatus
	DeviceID     string
	PaymentID    string
	CancelReason string
	Timestamps   models.Timestamps

	events []*events.Event
}

// CreateOrder factory method
func CreateOrder(id, userID, planID models.ID, amount models.Money) (*Order, error) {
	if id.IsEmpty() {
		return nil, errors.New("order ID is required")
	}
	if !amount.IsPositive() {
		return nil, errors.New("amount must be positive")
	}

	order := &Order{
		ID:         id,
		UserID:     userID,
		PlanID:     planID,
		Amount:     amount,
		Status:     OrderStatusPending,
		Timestamps: models.NewTimestamps(),
	}

	order.recordEvent(events.NewEvent(order.ID, events.OrderCreatedEvent, OrderCreatedData{
		OrderID: order.ID,
		UserID:  order.UserID,
		PlanID:  order.PlanID,
		Amount:  order.Amount,
	}))
	return order, nil
}

// AttachPayment links the captured payment to the order
func (o *Order) AttachPayment(paymentID string) error {
	if o.Status != OrderStatusPending {
		return errors.Errorf("cannot attach a payment to a %s order", o.Status)
	}

	o.PaymentID = paymentID
	o.Timestamps = o.Timestamps.Touch()
	return nil
}

// Activate marks the order as active on the allocated device
func (o *Order) Activate(deviceID string) error {
	if o.Status != OrderStatusPending {
		return errors.Errorf("order can only be activated from %s status, got %s", OrderStatusPending, o.Status)
	}
	if o.PaymentID == "" {
		return errors.New("order has no payment")
	}

	o.Status = OrderStatusActive
	o.DeviceID = deviceID
	o.Timestamps = o.Timestamps.Touch()

	o.recordEvent(events.NewEvent(o.ID, events.OrderActivatedEvent, OrderActivatedData{
		OrderID:     o.ID,
		UserID:      o.UserID,
		DeviceID:    deviceID,
		PaymentID:   o.PaymentID,
		ActivatedAt: time.Now().UTC(),
	}))
	return nil
}

// Cancel cancels the order. Cancelling twice is a no-op; a refunded order keeps its
// REFUNDED status and only records the reason.
func (o *Order) Cancel(reason string) error {
	switch o.Status {
	case OrderStatusCancelled:
		return nil
	case OrderStatusActive:
		return errors.New("cannot cancel an active order")
	case OrderStatusPending:
		o.Status = OrderStatusCancelled
	}

	o.CancelReason = reason
	o.Timestamps = o.Timestamps.Touch()

	o.recordEvent(events.NewEvent(o.ID, events.OrderCancelledEvent, OrderCancelledData{
		OrderID:     o.ID,
		UserID:      o.UserID,
		Status:      o.Status,
		Reason:      reason,
		CancelledAt: time.Now().UTC(),
	}))
	return nil
}

// Refund marks a paid order as refunded
func (o *Order) Refund() error {
	switch o.Status {
	case OrderStatusRefunded:
		return nil
	case OrderStatusCancelled:
		return errors.New("cannot refund a cancelled order")
	}
	if o.PaymentID == "" {
		return errors.New("order has no payment to refund")
	}

	o.Status = OrderStatusRefunded
	o.Timestamps = o.Timestamps.Touch()

	o.recordEvent(events.NewEvent(o.ID, events.OrderRefundedEvent, OrderRefundedData{
		OrderID:   o.ID,
		UserID:    o.UserID,
		PaymentID: o.PaymentID,
		Amount:    o.Amount,
	}))
	return nil
}

// Events returns domain events
func (o *Order) Events() []*events.Event {
	return o.events
}

// ClearEvents clears domain events
func (o *Order) ClearEvents() {
	o.events = nil
}

func (o *Order) recordEvent(event *events.Event) {
	o.events = append(o.events, event)
}

// Event Data Structures
type OrderCreatedData struct {
	OrderID models.ID    `json:"order_id"`
	UserID  models.ID    `json:"user_id"`
	PlanID  models.ID    `json:"plan_id"`
	Amount  models.Money `json:"amount"`
}

type OrderActivatedData struct {
	OrderID     models.ID `json:"order_id"`
	UserID      models.ID `json:"user_id"`
	DeviceID    string    `json:"device_id"`
	PaymentID   string    `json:"payment_id"`
	ActivatedAt time.Time `json:"activated_at"`
}

type OrderCancelledData struct {
	OrderID     models.ID   `json:"order_id"`
	UserID      models.ID   `json:"user_id"`
	Status      OrderStatus `json:"status"`
	Reason      string      `json:"reason"`
	CancelledAt time.Time   `json:"cancelled_at"`
}

type OrderRefundedData struct {
	OrderID   models.ID    `json:"order_id"`
	UserID    models.ID    `json:"user_id"`
	PaymentID string       `json:"payment_id"`
	Amount    models.Money `json:"amount"`
}

// OrderRepository interface
type OrderRepository interface {
	Save(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id models.ID) (*Order, error)
}
