package application

import (
	"context"
	"time"

	"github.com/draftea/saga-orchestrator/registration-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// RegistrationSagaType identifies user registration sagas
const RegistrationSagaType saga.Type = "USER_REGISTRATION"

const (
	StepValidateUser      = "VALIDATE_USER"
	StepCreateUser        = "CREATE_USER"
	StepAssignDefaultRole = "ASSIGN_DEFAULT_ROLE"
	StepInitializeQuota   = "INITIALIZE_QUOTA"
	StepPublishEvent      = "PUBLISH_EVENT"
)

// Keys of the registration saga state
const (
	KeyUsername      = "username"
	KeyEmail         = "email"
	KeyCredentialRef = "credential_ref"
	KeyPasswordHash  = "password_hash"
	KeyUserID        = "user_id"
	KeyRole          = "role"
	KeyQuotaLimit    = "quota_limit"
)

const compensationReason = "Saga compensation"

// userIDNamespace scopes user IDs derived from saga IDs
var userIDNamespace = uuid.MustParse("6f1c8f52-7d0e-4a55-9d8e-2b7f4f0f6a31")

// SagaSettings tunes the saga definition built from config
type SagaSettings struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// RegistrationSaga holds the collaborators of the user registration steps
type RegistrationSaga struct {
	users       domain.UserRepository
	roles       domain.RoleRepository
	quotas      domain.QuotaRepository
	publisher   events.Publisher
	credentials *Credentials
	logger      *zap.Logger

	hashCost   int
	quotaLimit int64
	newUserID  func(sagaID string) models.ID
}

type RegistrationSagaOption func(*RegistrationSaga)

// WithHashCost sets the bcrypt cost of VALIDATE_USER
func WithHashCost(cost int) RegistrationSagaOption {
	return func(s *RegistrationSaga) {
		s.hashCost = cost
	}
}

func WithQuotaLimit(limit int64) RegistrationSagaOption {
	return func(s *RegistrationSaga) {
		s.quotaLimit = limit
	}
}

// WithUserIDs overrides how user IDs are derived from the saga ID
func WithUserIDs(newID func(sagaID string) models.ID) RegistrationSagaOption {
	return func(s *RegistrationSaga) {
		s.newUserID = newID
	}
}

// NewRegistrationSaga creates the user registration saga
func NewRegistrationSaga(
	users domain.UserRepository,
	roles domain.RoleRepository,
	quotas domain.QuotaRepository,
	publisher events.Publisher,
	credentials *Credentials,
	logger *zap.Logger,
	opts ...RegistrationSagaOption,
) *RegistrationSaga {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &RegistrationSaga{
		users:       users,
		roles:       roles,
		quotas:      quotas,
		publisher:   publisher,
		credentials: credentials,
		logger:      logger,
		hashCost:    bcrypt.DefaultCost,
		quotaLimit:  domain.DefaultQuotaLimit,
		newUserID:   userIDFor,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// userIDFor derives the user ID from the saga ID, so a retried CREATE_USER inserts the
// same row instead of a second one
func userIDFor(sagaID string) models.ID {
	return models.ID(uuid.NewSHA1(userIDNamespace, []byte(sagaID)).String())
}

// Definition builds the USER_REGISTRATION definition. PUBLISH_EVENT cannot take its
// notice back; its compensation announces the failure instead.
func (s *RegistrationSaga) Definition(settings SagaSettings) *saga.Definition {
	return &saga.Definition{
		Type:         RegistrationSagaType,
		Timeout:      settings.Timeout,
		MaxRetries:   settings.MaxRetries,
		RetryBackoff: settings.RetryBackoff,
		Steps: []saga.Step{
			{Name: StepValidateUser, Execute: s.validateUser},
			{Name: StepCreateUser, Execute: s.createUser, Compensate: s.deleteUser},
			{Name: StepAssignDefaultRole, Execute: s.assignDefaultRole, Compensate: s.removeDefaultRole},
			{Name: StepInitializeQuota, Execute: s.initializeQuota, Compensate: s.deleteQuota},
			{Name: StepPublishEvent, Execute: s.publishRegistered, Compensate: s.publishRegistrationFailed},
		},
	}
}

func (s *RegistrationSaga) validateUser(ctx context.Context, state saga.State) (saga.State, error) {
	username, _ := state.String(KeyUsername)
	email, _ := state.String(KeyEmail)
	ref, _ := state.String(KeyCredentialRef)

	password, ok := s.credentials.Get(ref)
	if !ok {
		return nil, saga.Validation("registration credentials are no longer available")
	}

	taken, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, saga.Infrastructure(err, "failed to check username")
	}
	if taken {
		return nil, saga.Conflict("username %s already exists", username)
	}

	taken, err = s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, saga.Infrastructure(err, "failed to check email")
	}
	if taken {
		return nil, saga.Conflict("email %s already exists", email)
	}

	hash, err := domain.HashPassword(password, s.hashCost)
	if err != nil {
		return nil, saga.Validation("%s", err)
	}

	return saga.State{KeyPasswordHash: hash}, nil
}

func (s *RegistrationSaga) createUser(ctx context.Context, state saga.State) (saga.State, error) {
	sagaID, ok := saga.IDFromContext(ctx)
	if !ok {
		return nil, errors.New("user creation requires a saga ID")
	}
	username, _ := state.String(KeyUsername)
	email, _ := state.String(KeyEmail)
	hash, _ := state.String(KeyPasswordHash)

	user, err := domain.CreateUser(s.newUserID(sagaID), username, email, hash)
	if err != nil {
		return nil, saga.Validation("%s", err)
	}

	err = s.users.Create(ctx, user)
	switch {
	case errors.Is(err, domain.ErrUsernameTaken), errors.Is(err, domain.ErrEmailTaken):
		return nil, saga.Conflict("%s", err)
	case err != nil:
		return nil, saga.Infrastructure(err, "failed to create user")
	}

	return saga.State{KeyUserID: user.ID.String()}, nil
}

// deleteUser removes the row and tells downstream consumers the registration is off
func (s *RegistrationSaga) deleteUser(ctx context.Context, state saga.State) error {
	userID, ok := state.String(KeyUserID)
	if !ok {
		return nil
	}

	if err := s.users.Delete(ctx, models.ID(userID)); err != nil {
		return errors.Wrap(err, "failed to delete user")
	}
	return s.publishFailure(ctx, state)
}

func (s *RegistrationSaga) assignDefaultRole(ctx context.Context, state saga.State) (saga.State, error) {
	userID, _ := state.String(KeyUserID)

	if err := s.roles.Assign(ctx, models.ID(userID), domain.DefaultRole); err != nil {
		return nil, saga.Infrastructure(err, "failed to assign default role")
	}
	return saga.State{KeyRole: domain.DefaultRole}, nil
}

func (s *RegistrationSaga) removeDefaultRole(ctx context.Context, state saga.State) error {
	userID, _ := state.String(KeyUserID)
	return errors.Wrap(s.roles.Remove(ctx, models.ID(userID), domain.DefaultRole), "failed to remove default role")
}

func (s *RegistrationSaga) initializeQuota(ctx context.Context, state saga.State) (saga.State, error) {
	userID, _ := state.String(KeyUserID)

	quota, err := domain.NewQuota(models.ID(userID), s.quotaLimit)
	if err != nil {
		return nil, saga.Validation("%s", err)
	}
	if err := s.quotas.Initialize(ctx, quota); err != nil {
		return nil, saga.Infrastructure(err, "failed to initialize quota")
	}
	return saga.State{KeyQuotaLimit: quota.Limit}, nil
}

func (s *RegistrationSaga) deleteQuota(ctx context.Context, state saga.State) error {
	userID, _ := state.String(KeyUserID)
	return errors.Wrap(s.quotas.Delete(ctx, models.ID(userID)), "failed to delete quota")
}

func (s *RegistrationSaga) publishRegistered(ctx context.Context, state saga.State) (saga.State, error) {
	userID, _ := state.String(KeyUserID)
	username, _ := state.String(KeyUsername)
	email, _ := state.String(KeyEmail)
	role, _ := state.String(KeyRole)
	limit, _ := state.Int64(KeyQuotaLimit)
	sagaID, _ := saga.IDFromContext(ctx)

	user := &domain.User{ID: models.ID(userID), Username: username, Email: email}
	event := user.RegisteredEvent(role, domain.Quota{UserID: user.ID, Limit: limit}).
		WithCorrelationID(models.ID(sagaID))

	if err := s.publisher.Publish(ctx, event); err != nil {
		return nil, saga.Infrastructure(err, "failed to publish user registered")
	}
	return nil, nil
}

func (s *RegistrationSaga) publishRegistrationFailed(ctx context.Context, state saga.State) error {
	return s.publishFailure(ctx, state)
}

func (s *RegistrationSaga) publishFailure(ctx context.Context, state saga.State) error {
	userID, _ := state.String(KeyUserID)
	username, _ := state.String(KeyUsername)
	email, _ := state.String(KeyEmail)
	sagaID, _ := saga.IDFromContext(ctx)

	event := events.NewEvent(models.ID(userID), events.UserRegistrationFailedEvent, domain.UserRegistrationFailedData{
		UserID:   models.ID(userID),
		Username: username,
		Email:    email,
		Reason:   compensationReason,
	}).WithCorrelationID(models.ID(sagaID))

	if err := s.publisher.Publish(ctx, event); err != nil {
		return errors.Wrap(err, "failed to publish registration failure")
	}

	s.logger.Info("registration failure announced",
		zap.String("saga_id", sagaID),
		zap.String("username", username),
	)
	return nil
}
