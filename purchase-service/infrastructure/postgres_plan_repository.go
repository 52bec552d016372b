package infrastructure

import (
	"context"
	"database/sql"
	"time"

	"github.com/draftea/saga-orchestrator/purchase-service/domain"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// PostgresPlanRepository implements PlanRepository using PostgreSQL
type PostgresPlanRepository struct {
	db *sqlx.DB
}

// NewPostgresPlanRepository creates a new PostgresPlanRepository
func NewPostgresPlanRepository(db *sqlx.DB) *PostgresPlanRepository {
	return &PostgresPlanRepository{db: db}
}

type postgresPlan struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Price     int64     `db:"price"`
	Currency  string    `db:"currency"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// FindByID finds a plan by ID
func (r *PostgresPlanRepository) FindByID(ctx context.Context, id models.ID) (*domain.Plan, error) {
	query := `
		SELECT id, name, price, currency, active, created_at, updated_at
		FROM plans
		WHERE id = $1`

	var row postgresPlan
	if err := r.db.GetContext(ctx, &row, query, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(domain.ErrPlanNotFound, "plan %s", id)
		}
		return nil, errors.Wrap(err, "failed to find plan")
	}

	return &domain.Plan{
		ID:     models.ID(row.ID),
		Name:   row.Name,
		Price:  models.NewMoney(row.Price, row.Currency),
		Active: row.Active,
		Timestamps: models.Timestamps{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
	}, nil
}
