package infrastructure

import (
	"context"
	"database/sql"
	"time"

	"github.com/draftea/saga-orchestrator/purchase-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// PostgresOrderRepository implements OrderRepository using PostgreSQL
type PostgresOrderRepository struct {
	db *sqlx.DB
}

// NewPostgresOrderRepository creates a new PostgresOrderRepository
func NewPostgresOrderRepository(db *sqlx.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

type postgresOrder struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	PlanID       string    `db:"plan_id"`
	Amount       int64     `db:"amount"`
	Currency     string    `db:"currency"`
	Status       string    `db:"status"`
	DeviceID     string    `db:"device_id"`
	PaymentID    string    `db:"payment_id"`
	CancelReason string    `db:"cancel_reason"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Save inserts new orders and updates existing ones. A freshly created order still
// carries its order.created event.
func (r *PostgresOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	for _, event := range order.Events() {
		if event.EventType == events.OrderCreatedEvent {
			return r.insertOrder(ctx, order)
		}
	}
	return r.updateOrder(ctx, order)
}

func (r *PostgresOrderRepository) insertOrder(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (
			id, user_id, plan_id, amount, currency, status,
			device_id, payment_id, cancel_reason, created_at, updated_at
		) VALUES (
			:id, :user_id, :plan_id, :amount, :currency, :status,
			:device_id, :payment_id, :cancel_reason, :created_at, :updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, toPostgresOrder(order)); err != nil {
		return errors.Wrap(err, "failed to insert order")
	}
	return nil
}

func (r *PostgresOrderRepository) updateOrder(ctx context.Context, order *domain.Order) error {
	query := `
		UPDATE orders
		SET status = :status, device_id = :device_id, payment_id = :payment_id,
			cancel_reason = :cancel_reason, updated_at = :updated_at
		WHERE id = :id`

	res, err := r.db.NamedExecContext(ctx, query, toPostgresOrder(order))
	if err != nil {
		return errors.Wrap(err, "failed to update order")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to update order")
	}
	if rows == 0 {
		return errors.Wrapf(domain.ErrOrderNotFound, "order %s", order.ID)
	}
	return nil
}

// FindByID finds an order by ID
func (r *PostgresOrderRepository) FindByID(ctx context.Context, id models.ID) (*domain.Order, error) {
	query := `
		SELECT id, user_id, plan_id, amount, currency, status,
			   device_id, payment_id, cancel_reason, created_at, updated_at
		FROM orders
		WHERE id = $1`

	var row postgresOrder
	if err := r.db.GetContext(ctx, &row, query, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(domain.ErrOrderNotFound, "order %s", id)
		}
		return nil, errors.Wrap(err, "failed to find order")
	}

	return &domain.Order{
		ID:           models.ID(row.ID),
		UserID:       models.ID(row.UserID),
		PlanID:       models.ID(row.PlanID),
		Amount:       models.NewMoney(row.Amount, row.Currency),
		Status:       domain.OrderStatus(row.Status),
		DeviceID:     row.DeviceID,
		PaymentID:    row.PaymentID,
		CancelReason: row.CancelReason,
		Timestamps: models.Timestamps{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
	}, nil
}

func toPostgresOrder(order *domain.Order) *postgresOrder {
	return &postgresOrder{
		ID:           order.ID.String(),
		UserID:       order.UserID.String(),
		PlanID:       order.PlanID.String(),
		Amount:       order.Amount.Amount,
		Currency:     order.Amount.Currency,
		Status:       string(order.Status),
		DeviceID:     order.DeviceID,
		PaymentID:    order.PaymentID,
		CancelReason: order.CancelReason,
		CreatedAt:    order.Timestamps.CreatedAt,
		UpdatedAt:    order.Timestamps.UpdatedAt,
	}
}
