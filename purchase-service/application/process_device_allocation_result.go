package application

import (
	"context"

	"github.com/draftea/saga-orchestrator/purchase-service/domain"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/pkg/errors"
)

// ProcessDeviceAllocationResultCommand carries an allocation answer back to its saga
type ProcessDeviceAllocationResultCommand struct {
	SagaID  string
	Success bool
	Result  domain.DeviceAllocationResult
}

// ProcessDeviceAllocationResult use case resumes the purchase waiting on ALLOCATE_DEVICE
type ProcessDeviceAllocationResult struct {
	orchestrator SagaOrchestrator
}

// NewProcessDeviceAllocationResult creates a new ProcessDeviceAllocationResult use case
func NewProcessDeviceAllocationResult(orchestrator SagaOrchestrator) *ProcessDeviceAllocationResult {
	return &ProcessDeviceAllocationResult{
		orchestrator: orchestrator,
	}
}

// Execute resumes the saga. Results for sagas that are gone or already finished are
// dropped by the orchestrator.
func (uc *ProcessDeviceAllocationResult) Execute(ctx context.Context, cmd *ProcessDeviceAllocationResultCommand) error {
	if cmd.SagaID == "" {
		return errors.New("allocation result without saga ID")
	}

	success := cmd.Success && cmd.Result.DeviceID != ""
	payload := saga.State{KeyDeviceID: cmd.Result.DeviceID}
	if !success {
		reason := cmd.Result.Reason
		if reason == "" {
			reason = "device allocation failed"
		}
		payload = saga.State{"reason": reason}
	}

	if err := uc.orchestrator.Resume(ctx, cmd.SagaID, payload, success); err != nil {
		return errors.Wrap(err, "failed to resume purchase")
	}
	return nil
}
