package infrastructure

import (
	"context"

	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// PostgresRoleRepository keeps user roles in user_roles
type PostgresRoleRepository struct {
	db *sqlx.DB
}

func NewPostgresRoleRepository(db *sqlx.DB) *PostgresRoleRepository {
	return &PostgresRoleRepository{db: db}
}

func (r *PostgresRoleRepository) Assign(ctx context.Context, userID models.ID, role string) error {
	query := `
		INSERT INTO user_roles (user_id, role, assigned_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, role) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, userID.String(), role); err != nil {
		return errors.Wrap(err, "failed to assign role")
	}
	return nil
}

func (r *PostgresRoleRepository) Remove(ctx context.Context, userID models.ID, role string) error {
	query := `DELETE FROM user_roles WHERE user_id = $1 AND role = $2`

	if _, err := r.db.ExecContext(ctx, query, userID.String(), role); err != nil {
		return errors.Wrap(err, "failed to remove role")
	}
	return nil
}
