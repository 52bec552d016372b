package saga

import (
	"context"

	"github.com/qmuntal/stateless"
)

type trigger string

const (
	triggerComplete    trigger = "complete"
	triggerFail        trigger = "fail"
	triggerCompensated trigger = "compensated"
	triggerAbandon     trigger = "abandon"
)

// newLifecycle binds the permitted status transitions to an instance.
//
//	RUNNING --complete--> COMPLETED
//	RUNNING --fail--> COMPENSATING --compensated--> COMPENSATED
//	                               --abandon-----> FAILED
//
// Terminal statuses have no outgoing transitions.
func newLifecycle(instance *Instance) *stateless.StateMachine {
	sm := stateless.NewStateMachineWithExternalStorage(
		func(_ context.Context) (stateless.State, error) {
			return instance.Status, nil
		},
		func(_ context.Context, state stateless.State) error {
			instance.Status = state.(Status)
			return nil
		},
		stateless.FiringImmediate,
	)

	sm.Configure(StatusRunning).
		Permit(triggerComplete, StatusCompleted).
		Permit(triggerFail, StatusCompensating)

	sm.Configure(StatusCompensating).
		Permit(triggerCompensated, StatusCompensated).
		Permit(triggerAbandon, StatusFailed)

	sm.Configure(StatusCompleted)
	sm.Configure(StatusCompensated)
	sm.Configure(StatusFailed)

	return sm
}
