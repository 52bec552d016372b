package infrastructure

import (
	"context"
	"time"

	"github.com/draftea/saga-orchestrator/registration-service/domain"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// PostgresQuotaRepository implements QuotaRepository using PostgreSQL
type PostgresQuotaRepository struct {
	db *sqlx.DB
}

func NewPostgresQuotaRepository(db *sqlx.DB) *PostgresQuotaRepository {
	return &PostgresQuotaRepository{db: db}
}

type postgresQuota struct {
	UserID    string    `db:"user_id"`
	Limit     int64     `db:"quota_limit"`
	Used      int64     `db:"used"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Initialize creates the quota row; an existing row for the user is kept as is
func (r *PostgresQuotaRepository) Initialize(ctx context.Context, quota domain.Quota) error {
	query := `
		INSERT INTO quotas (user_id, quota_limit, used, created_at, updated_at)
		VALUES (:user_id, :quota_limit, :used, :created_at, :updated_at)
		ON CONFLICT (user_id) DO NOTHING`

	_, err := r.db.NamedExecContext(ctx, query, &postgresQuota{
		UserID:    quota.UserID.String(),
		Limit:     quota.Limit,
		Used:      quota.Used,
		CreatedAt: quota.Timestamps.CreatedAt,
		UpdatedAt: quota.Timestamps.UpdatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "failed to initialize quota")
	}
	return nil
}

func (r *PostgresQuotaRepository) Delete(ctx context.Context, userID models.ID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM quotas WHERE user_id = $1`, userID.String()); err != nil {
		return errors.Wrap(err, "failed to delete quota")
	}
	return nil
}
