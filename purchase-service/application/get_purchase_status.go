package application

import (
	"context"
	"time"

	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/pkg/errors"
)

// GetPurchaseStatusQuery represents the query to get a purchase
type GetPurchaseStatusQuery struct {
	SagaID string `json:"saga_id"`
}

// GetPurchaseStatusResponse represents the status of a purchase saga
type GetPurchaseStatusResponse struct {
	SagaID       string     `json:"saga_id"`
	Status       string     `json:"status"`
	CurrentStep  string     `json:"current_step,omitempty"`
	StepIndex    int        `json:"step_index"`
	OrderID      string     `json:"order_id,omitempty"`
	DeviceID     string     `json:"device_id,omitempty"`
	PaymentID    string     `json:"payment_id,omitempty"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// GetPurchaseStatus use case
type GetPurchaseStatus struct {
	orchestrator SagaOrchestrator
	definition   *saga.Definition
}

// NewGetPurchaseStatus creates a new GetPurchaseStatus use case
func NewGetPurchaseStatus(orchestrator SagaOrchestrator, definition *saga.Definition) *GetPurchaseStatus {
	return &GetPurchaseStatus{
		orchestrator: orchestrator,
		definition:   definition,
	}
}

// Execute executes the get purchase status use case
func (uc *GetPurchaseStatus) Execute(ctx context.Context, query *GetPurchaseStatusQuery) (*GetPurchaseStatusResponse, error) {
	if query.SagaID == "" {
		return nil, saga.Validation("saga ID is required")
	}

	instance, err := uc.orchestrator.GetState(ctx, query.SagaID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get purchase")
	}
	if instance.Type != PurchaseSagaType {
		return nil, errors.Wrapf(saga.ErrSagaNotFound, "%s is not a purchase", query.SagaID)
	}

	response := &GetPurchaseStatusResponse{
		SagaID:       instance.ID,
		Status:       instance.Status.String(),
		StepIndex:    instance.CurrentStepIndex,
		RetryCount:   instance.RetryCount,
		ErrorMessage: instance.ErrorMessage,
		StartedAt:    instance.StartedAt,
		CompletedAt:  instance.CompletedAt,
	}
	if instance.CurrentStepIndex < len(uc.definition.Steps) {
		response.CurrentStep = uc.definition.Steps[instance.CurrentStepIndex].Name
	}
	response.OrderID, _ = instance.State.String(KeyOrderID)
	response.DeviceID, _ = instance.State.String(KeyDeviceID)
	response.PaymentID, _ = instance.State.String(KeyPaymentID)

	return response, nil
}
