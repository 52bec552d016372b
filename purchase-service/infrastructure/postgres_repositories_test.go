package infrastructure

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/draftea/saga-orchestrator/purchase-service/domain"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return sqlx.NewDb(db, "postgres"), mock
}

func TestPostgresPlanRepository_FindByID(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgresPlanRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("FROM plans")).
			WithArgs("plan-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "currency", "active", "created_at", "updated_at"}).
				AddRow("plan-1", "Premium", int64(9999), "usd", true, created, created))

		plan, err := repo.FindByID(context.Background(), "plan-1")
		require.NoError(t, err)
		assert.Equal(t, "Premium", plan.Name)
		assert.Equal(t, models.NewMoney(9999, "USD"), plan.Price)
		assert.True(t, plan.Active)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgresPlanRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("FROM plans")).
			WithArgs("plan-x").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.FindByID(context.Background(), "plan-x")
		assert.ErrorIs(t, err, domain.ErrPlanNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgresPlanRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("FROM plans")).
			WithArgs("plan-1").
			WillReturnError(sql.ErrConnDone)

		_, err := repo.FindByID(context.Background(), "plan-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrPlanNotFound)
	})
}

func TestPostgresOrderRepository_Save(t *testing.T) {
	t.Run("new order is inserted", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgresOrderRepository(db)

		order, err := domain.CreateOrder("order-456", "user-123", "plan-1", models.NewMoney(9999, "USD"))
		require.NoError(t, err)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
			WithArgs("order-456", "user-123", "plan-1", int64(9999), "USD", "PENDING", "", "", "",
				order.Timestamps.CreatedAt, order.Timestamps.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, repo.Save(context.Background(), order))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loaded order is updated", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgresOrderRepository(db)

		order := &domain.Order{ID: "order-456", Status: domain.OrderStatusPending, Amount: models.NewMoney(9999, "USD")}
		require.NoError(t, order.Cancel("Saga compensation"))

		mock.ExpectExec(regexp.QuoteMeta("UPDATE orders")).
			WithArgs("CANCELLED", "", "", "Saga compensation", order.Timestamps.UpdatedAt, "order-456").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Save(context.Background(), order))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("updating a missing order", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgresOrderRepository(db)

		order := &domain.Order{ID: "order-x", Status: domain.OrderStatusPending}

		mock.ExpectExec(regexp.QuoteMeta("UPDATE orders")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Save(context.Background(), order), domain.ErrOrderNotFound)
	})
}

func TestPostgresOrderRepository_FindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresOrderRepository(db)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders")).
		WithArgs("order-456").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "plan_id", "amount", "currency", "status",
			"device_id", "payment_id", "cancel_reason", "created_at", "updated_at",
		}).AddRow("order-456", "user-123", "plan-1", int64(9999), "USD", "ACTIVE",
			"device-123", "pay-1", "", created, created))

	order, err := repo.FindByID(context.Background(), "order-456")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusActive, order.Status)
	assert.Equal(t, "device-123", order.DeviceID)
	assert.Equal(t, "pay-1", order.PaymentID)
	assert.Empty(t, order.Events())

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders")).
		WithArgs("order-x").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.FindByID(context.Background(), "order-x")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
