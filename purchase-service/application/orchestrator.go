package application

import (
	"context"

	"github.com/draftea/saga-orchestrator/shared/saga"
)

// SagaOrchestrator is the part of saga.Orchestrator the use cases drive
type SagaOrchestrator interface {
	Start(ctx context.Context, def *saga.Definition, initial saga.State) (string, error)
	GetState(ctx context.Context, sagaID string) (*saga.Instance, error)
	Resume(ctx context.Context, sagaID string, payload saga.State, success bool) error
}

var _ SagaOrchestrator = (*saga.Orchestrator)(nil)
