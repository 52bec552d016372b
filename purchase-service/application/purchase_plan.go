package application

import (
	"context"
	"strings"

	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/pkg/errors"
)

// PurchasePlanCommand represents the command to purchase a plan
type PurchasePlanCommand struct {
	UserID   string `json:"user_id"`
	PlanID   string `json:"plan_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// PurchasePlanResponse represents the response after a purchase was accepted
type PurchasePlanResponse struct {
	SagaID string `json:"saga_id"`
	Status string `json:"status"`
}

// PurchasePlan use case. A nil error means the purchase was accepted and is being
// processed; the outcome is read through GetPurchaseStatus.
type PurchasePlan struct {
	orchestrator SagaOrchestrator
	definition   *saga.Definition
}

// NewPurchasePlan creates a new PurchasePlan use case
func NewPurchasePlan(orchestrator SagaOrchestrator, definition *saga.Definition) *PurchasePlan {
	return &PurchasePlan{
		orchestrator: orchestrator,
		definition:   definition,
	}
}

// Execute starts a purchase saga
func (uc *PurchasePlan) Execute(ctx context.Context, cmd *PurchasePlanCommand) (*PurchasePlanResponse, error) {
	if err := uc.validateCommand(cmd); err != nil {
		return nil, err
	}

	sagaID, err := uc.orchestrator.Start(ctx, uc.definition, saga.State{
		KeyUserID:   cmd.UserID,
		KeyPlanID:   cmd.PlanID,
		KeyAmount:   cmd.Amount,
		KeyCurrency: strings.ToUpper(cmd.Currency),
	})
	if err != nil {
		return nil, errors.Wrap(err, "purchase rejected")
	}

	return &PurchasePlanResponse{
		SagaID: sagaID,
		Status: "processing",
	}, nil
}

func (uc *PurchasePlan) validateCommand(cmd *PurchasePlanCommand) error {
	if cmd.UserID == "" {
		return saga.Validation("user ID is required")
	}

	if cmd.PlanID == "" {
		return saga.Validation("plan ID is required")
	}

	if cmd.Amount <= 0 {
		return saga.Validation("amount must be positive")
	}

	if cmd.Currency == "" {
		return saga.Validation("currency is required")
	}

	return nil
}
