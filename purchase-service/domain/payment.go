package domain

import (
	"context"

	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
)

// ErrPaymentDeclined is returned when the payment provider refuses the charge
var ErrPaymentDeclined = errors.New("payment declined")

// ChargeRequest asks the payments service to capture an order's amount.
// IdempotencyKey makes retried charges safe.
type ChargeRequest struct {
	OrderID        models.ID    `json:"order_id"`
	UserID         models.ID    `json:"user_id"`
	Amount         models.Money `json:"amount"`
	IdempotencyKey string       `json:"idempotency_key"`
}

type Charge struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

type RefundRequest struct {
	OrderID   models.ID    `json:"order_id"`
	PaymentID string       `json:"payment_id"`
	Amount    models.Money `json:"amount"`
}

// PaymentGateway charges orders through the payments service
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*Charge, error)
}
