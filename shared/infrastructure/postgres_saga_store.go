package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var _ saga.Store = (*PostgresSagaStore)(nil)

// PostgresSagaStore is the durable saga tier: one row per instance in saga_instances.
// Terminal rows are never rewritten and status swaps are conditional updates.
type PostgresSagaStore struct {
	db *sqlx.DB
}

func NewPostgresSagaStore(db *sqlx.DB) *PostgresSagaStore {
	return &PostgresSagaStore{db: db}
}

type postgresSagaInstance struct {
	ID               string     `db:"id"`
	SagaType         string     `db:"saga_type"`
	Status           string     `db:"status"`
	CurrentStepIndex int        `db:"current_step_index"`
	State            []byte     `db:"state"`
	RetryCount       int        `db:"retry_count"`
	MaxRetries       int        `db:"max_retries"`
	StartedAt        time.Time  `db:"started_at"`
	CompletedAt      *time.Time `db:"completed_at"`
	TimeoutAt        time.Time  `db:"timeout_at"`
	ErrorMessage     string     `db:"error_message"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

type conditionalUpdate struct {
	postgresSagaInstance
	ExpectedStatus string `db:"expected_status"`
}

const sagaColumns = `id, saga_type, status, current_step_index, state, retry_count, max_retries,
	started_at, completed_at, timeout_at, error_message, updated_at`

// Create inserts a new instance
func (s *PostgresSagaStore) Create(ctx context.Context, instance *saga.Instance) error {
	row, err := s.toPostgres(instance)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO saga_instances (` + sagaColumns + `)
		VALUES (
			:id, :saga_type, :status, :current_step_index, :state, :retry_count, :max_retries,
			:started_at, :completed_at, :timeout_at, :error_message, :updated_at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return errors.Wrap(err, "failed to insert saga instance")
	}
	return nil
}

// Update rewrites the instance only while its row still holds the expected status
func (s *PostgresSagaStore) Update(ctx context.Context, instance *saga.Instance, expected saga.Status) error {
	row, err := s.toPostgres(instance)
	if err != nil {
		return err
	}

	query := `
		UPDATE saga_instances SET
			status = :status,
			current_step_index = :current_step_index,
			state = :state,
			retry_count = :retry_count,
			completed_at = :completed_at,
			error_message = :error_message,
			updated_at = :updated_at
		WHERE id = :id AND status = :expected_status`

	result, err := s.db.NamedExecContext(ctx, query, conditionalUpdate{
		postgresSagaInstance: *row,
		ExpectedStatus:       expected.String(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to update saga instance")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if affected > 0 {
		return nil
	}

	status, err := s.status(ctx, instance.ID)
	if err != nil {
		return err
	}
	if saga.Status(status).IsTerminal() {
		return errors.Wrapf(saga.ErrSagaTerminal, "saga %s is %s", instance.ID, status)
	}
	return errors.Wrapf(saga.ErrSagaClaimLost, "saga %s is %s, expected %s", instance.ID, status, expected)
}

// Get loads an instance
func (s *PostgresSagaStore) Get(ctx context.Context, sagaID string) (*saga.Instance, error) {
	var row postgresSagaInstance
	err := s.db.GetContext(ctx, &row, `SELECT `+sagaColumns+` FROM saga_instances WHERE id = $1`, sagaID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(saga.ErrSagaNotFound, "saga %s", sagaID)
		}
		return nil, errors.Wrap(err, "failed to get saga instance")
	}

	return s.toDomain(&row)
}

// Delete removes an instance
func (s *PostgresSagaStore) Delete(ctx context.Context, sagaID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM saga_instances WHERE id = $1`, sagaID); err != nil {
		return errors.Wrap(err, "failed to delete saga instance")
	}
	return nil
}

// Transition swaps the status with a conditional update
func (s *PostgresSagaStore) Transition(ctx context.Context, sagaID string, from, to saga.Status) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE saga_instances SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to.String(), time.Now().UTC(), sagaID, from.String(),
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to transition saga instance")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	if affected > 0 {
		return true, nil
	}

	if _, err := s.status(ctx, sagaID); err != nil {
		return false, err
	}
	return false, nil
}

// ListByStatus returns instances in status, oldest first
func (s *PostgresSagaStore) ListByStatus(ctx context.Context, status saga.Status) ([]*saga.Instance, error) {
	var rows []postgresSagaInstance
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+sagaColumns+` FROM saga_instances WHERE status = $1 ORDER BY started_at ASC`,
		status.String(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list saga instances")
	}

	instances := make([]*saga.Instance, 0, len(rows))
	for i := range rows {
		instance, err := s.toDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

func (s *PostgresSagaStore) status(ctx context.Context, sagaID string) (string, error) {
	var status string
	err := s.db.GetContext(ctx, &status, `SELECT status FROM saga_instances WHERE id = $1`, sagaID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errors.Wrapf(saga.ErrSagaNotFound, "saga %s", sagaID)
		}
		return "", errors.Wrap(err, "failed to read saga status")
	}
	return status, nil
}

func (s *PostgresSagaStore) toPostgres(instance *saga.Instance) (*postgresSagaInstance, error) {
	state, err := json.Marshal(instance.State)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal saga state")
	}

	return &postgresSagaInstance{
		ID:               instance.ID,
		SagaType:         instance.Type.String(),
		Status:           instance.Status.String(),
		CurrentStepIndex: instance.CurrentStepIndex,
		State:            state,
		RetryCount:       instance.RetryCount,
		MaxRetries:       instance.MaxRetries,
		StartedAt:        instance.StartedAt,
		CompletedAt:      instance.CompletedAt,
		TimeoutAt:        instance.TimeoutAt,
		ErrorMessage:     instance.ErrorMessage,
		UpdatedAt:        instance.UpdatedAt,
	}, nil
}

func (s *PostgresSagaStore) toDomain(row *postgresSagaInstance) (*saga.Instance, error) {
	state := saga.State{}
	if len(row.State) > 0 {
		if err := json.Unmarshal(row.State, &state); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal saga state")
		}
	}

	return &saga.Instance{
		ID:               row.ID,
		Type:             saga.Type(row.SagaType),
		Status:           saga.Status(row.Status),
		CurrentStepIndex: row.CurrentStepIndex,
		State:            state,
		RetryCount:       row.RetryCount,
		MaxRetries:       row.MaxRetries,
		StartedAt:        row.StartedAt,
		CompletedAt:      row.CompletedAt,
		TimeoutAt:        row.TimeoutAt,
		ErrorMessage:     row.ErrorMessage,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}
