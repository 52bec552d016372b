package application

import (
	"context"

	"github.com/draftea/saga-orchestrator/shared/saga"
)

// SagaOrchestrator is the part of saga.Orchestrator the registration use cases drive
type SagaOrchestrator interface {
	Start(ctx context.Context, def *saga.Definition, initial saga.State) (string, error)
	GetState(ctx context.Context, sagaID string) (*saga.Instance, error)
}

var _ SagaOrchestrator = (*saga.Orchestrator)(nil)
