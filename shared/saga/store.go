package saga

import (
	"context"
)

// Store persists saga instances for status queries and crash recovery.
//
// Implementations must treat Transition and Update as atomic compare-and-sets keyed by
// saga ID and must refuse to modify an instance that already reached a terminal status.
type Store interface {
	// Create stores a new instance
	Create(ctx context.Context, instance *Instance) error

	// Update overwrites the instance only while its stored status still equals expected.
	// Returns ErrSagaTerminal if the stored instance is terminal, ErrSagaClaimLost if it
	// moved to another status and ErrSagaNotFound if it does not exist.
	Update(ctx context.Context, instance *Instance, expected Status) error

	// Get returns a snapshot of the instance or ErrSagaNotFound
	Get(ctx context.Context, sagaID string) (*Instance, error)

	// Delete removes the instance; deleting an unknown ID is not an error
	Delete(ctx context.Context, sagaID string) error

	// Transition moves the stored status from `from` to `to` only if the stored status
	// still equals `from`. It reports whether the swap happened.
	Transition(ctx context.Context, sagaID string, from, to Status) (bool, error)

	// ListByStatus returns every instance currently in the given status
	ListByStatus(ctx context.Context, status Status) ([]*Instance, error)
}
