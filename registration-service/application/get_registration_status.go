package application

import (
	"context"
	"time"

	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/pkg/errors"
)

type GetRegistrationStatusQuery struct {
	SagaID string `json:"saga_id"`
}

// GetRegistrationStatusResponse represents the status of a registration saga
type GetRegistrationStatusResponse struct {
	SagaID       string     `json:"saga_id"`
	Status       string     `json:"status"`
	CurrentStep  string     `json:"current_step,omitempty"`
	Username     string     `json:"username"`
	UserID       string     `json:"user_id,omitempty"`
	Role         string     `json:"role,omitempty"`
	QuotaLimit   int64      `json:"quota_limit,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// GetRegistrationStatus use case
type GetRegistrationStatus struct {
	orchestrator SagaOrchestrator
	definition   *saga.Definition
}

func NewGetRegistrationStatus(orchestrator SagaOrchestrator, definition *saga.Definition) *GetRegistrationStatus {
	return &GetRegistrationStatus{
		orchestrator: orchestrator,
		definition:   definition,
	}
}

// Execute executes the get registration status use case
func (uc *GetRegistrationStatus) Execute(ctx context.Context, query *GetRegistrationStatusQuery) (*GetRegistrationStatusResponse, error) {
	if query.SagaID == "" {
		return nil, saga.Validation("saga ID is required")
	}

	instance, err := uc.orchestrator.GetState(ctx, query.SagaID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get registration")
	}
	if instance.Type != RegistrationSagaType {
		return nil, errors.Wrapf(saga.ErrSagaNotFound, "%s is not a registration", query.SagaID)
	}

	response := &GetRegistrationStatusResponse{
		SagaID:       instance.ID,
		Status:       instance.Status.String(),
		ErrorMessage: instance.ErrorMessage,
		StartedAt:    instance.StartedAt,
		CompletedAt:  instance.CompletedAt,
	}
	if !instance.Status.IsTerminal() && instance.CurrentStepIndex < len(uc.definition.Steps) {
		response.CurrentStep = uc.definition.Steps[instance.CurrentStepIndex].Name
	}
	response.Username, _ = instance.State.String(KeyUsername)
	response.UserID, _ = instance.State.String(KeyUserID)
	response.Role, _ = instance.State.String(KeyRole)
	response.QuotaLimit, _ = instance.State.Int64(KeyQuotaLimit)

	return response, nil
}
