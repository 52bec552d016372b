package domain

import (
	"context"

	"github.com/draftea/saga-orchestrator/shared/models"
)

// DefaultRole is granted to every new user
const DefaultRole = "user"

// RoleRepository manages user role associations. Assign is idempotent and Remove of a
// missing association is not an error.
type RoleRepository interface {
	Assign(ctx context.Context, userID models.ID, role string) error
	Remove(ctx context.Context, userID models.ID, role string) error
}
