package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/draftea/saga-orchestrator/registration-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "s3cret-pass"

type registrationFixture struct {
	store        *saga.MemoryStore
	orchestrator *saga.Orchestrator
	accounts     *accountStore
	publisher    *recordingPublisher
	credentials  *Credentials

	register *RegisterUser
	status   *GetRegistrationStatus
}

func newRegistrationFixture(t *testing.T, maxRetries int) *registrationFixture {
	t.Helper()

	store, err := saga.NewMemoryStore()
	require.NoError(t, err)

	f := &registrationFixture{
		store:       store,
		accounts:    newAccountStore(),
		publisher:   &recordingPublisher{},
		credentials: NewCredentials(),
	}

	f.orchestrator = saga.NewOrchestrator(store, f.publisher, nil)
	t.Cleanup(func() { _ = f.orchestrator.Close() })

	registrationSaga := NewRegistrationSaga(
		f.accounts, f.accounts, quotaStore{f.accounts}, f.publisher, f.credentials, nil,
		WithHashCost(bcrypt.MinCost),
		WithQuotaLimit(500),
	)
	definition := registrationSaga.Definition(SagaSettings{
		Timeout:      5 * time.Second,
		MaxRetries:   maxRetries,
		RetryBackoff: time.Millisecond,
	})

	f.register = NewRegisterUser(f.orchestrator, definition, f.credentials)
	f.status = NewGetRegistrationStatus(f.orchestrator, definition)
	return f
}

func (f *registrationFixture) awaitTerminal(t *testing.T, sagaID string) *GetRegistrationStatusResponse {
	t.Helper()

	var status *GetRegistrationStatusResponse
	require.Eventually(t, func() bool {
		got, err := f.status.Execute(context.Background(), &GetRegistrationStatusQuery{SagaID: sagaID})
		if err != nil {
			return false
		}
		status = got
		return saga.Status(got.Status).IsTerminal()
	}, 2*time.Second, 5*time.Millisecond)

	return status
}

func (f *registrationFixture) registerJane(t *testing.T) string {
	t.Helper()

	response, err := f.register.Execute(context.Background(), &RegisterUserCommand{
		Username: "jane",
		Email:    "Jane@Example.com",
		Password: testPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, "processing", response.Status)
	return response.SagaID
}

func TestRegistrationSaga_Completes(t *testing.T) {
	f := newRegistrationFixture(t, 0)

	sagaID := f.registerJane(t)
	status := f.awaitTerminal(t, sagaID)

	assert.Equal(t, "COMPLETED", status.Status)
	assert.Equal(t, "jane", status.Username)
	assert.Equal(t, domain.DefaultRole, status.Role)
	assert.Equal(t, int64(500), status.QuotaLimit)
	assert.Equal(t, userIDFor(sagaID).String(), status.UserID)

	user, ok := f.accounts.user(models.ID(status.UserID))
	require.True(t, ok)
	assert.Equal(t, "jane@example.com", user.Email)
	assert.True(t, user.CheckPassword(testPassword))

	users, roles, quotas := f.accounts.rows()
	assert.Equal(t, []int{1, 1, 1}, []int{users, roles, quotas})

	registered := f.publisher.find(events.UserRegisteredEvent)
	require.NotNil(t, registered)
	assert.Equal(t, sagaID, registered.CorrelationID.String())
	assert.Equal(t, []string{events.UserRegisteredEvent}, f.publisher.domainEvents())
}

func TestRegistrationSaga_NeverStoresThePlainPassword(t *testing.T) {
	f := newRegistrationFixture(t, 0)

	sagaID := f.registerJane(t)
	f.awaitTerminal(t, sagaID)

	instance, err := f.store.Get(context.Background(), sagaID)
	require.NoError(t, err)
	for key, value := range instance.State {
		assert.NotContains(t, fmt.Sprint(value), testPassword, "state key %s", key)
	}

	hash, ok := instance.State.String(KeyPasswordHash)
	require.True(t, ok)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(testPassword)))

	ref, _ := instance.State.String(KeyCredentialRef)
	_, ok = f.credentials.Get(ref)
	assert.False(t, ok, "credentials are dropped once the registration was accepted")
}

func TestRegistrationSaga_DuplicateUsername(t *testing.T) {
	f := newRegistrationFixture(t, 0)
	f.accounts.seed(domain.User{ID: "existing", Username: "jane", Email: "other@example.com"})

	response, err := f.register.Execute(context.Background(), &RegisterUserCommand{
		Username: "jane",
		Email:    "jane@example.com",
		Password: testPassword,
	})

	require.Error(t, err)
	assert.Nil(t, response)
	assert.Equal(t, saga.KindConflict, saga.KindOf(err))
	assert.Contains(t, err.Error(), "username jane already exists")

	failed, err := f.store.ListByStatus(context.Background(), saga.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 0, failed[0].CurrentStepIndex)

	users, roles, quotas := f.accounts.rows()
	assert.Equal(t, 1, users, "only the pre-existing user remains")
	assert.Zero(t, roles)
	assert.Zero(t, quotas)
	assert.Empty(t, f.publisher.domainEvents())
}

func TestRegistrationSaga_DuplicateEmail(t *testing.T) {
	f := newRegistrationFixture(t, 0)
	f.accounts.seed(domain.User{ID: "existing", Username: "john", Email: "jane@example.com"})

	_, err := f.register.Execute(context.Background(), &RegisterUserCommand{
		Username: "jane",
		Email:    "JANE@example.com",
		Password: testPassword,
	})

	require.Error(t, err)
	assert.Equal(t, saga.KindConflict, saga.KindOf(err))
}

func TestRegistrationSaga_QuotaFailureCompensates(t *testing.T) {
	f := newRegistrationFixture(t, 0)
	f.accounts.quotaErr = errors.New("quotas table is read only")

	sagaID := f.registerJane(t)
	status := f.awaitTerminal(t, sagaID)

	assert.Equal(t, "COMPENSATED", status.Status)
	assert.Contains(t, status.ErrorMessage, "quotas table is read only")

	users, roles, quotas := f.accounts.rows()
	assert.Equal(t, []int{0, 0, 0}, []int{users, roles, quotas})

	failure := f.publisher.find(events.UserRegistrationFailedEvent)
	require.NotNil(t, failure)
	assert.Equal(t, sagaID, failure.CorrelationID.String())
	assert.Equal(t, []string{events.UserRegistrationFailedEvent}, f.publisher.domainEvents())
}

func TestRegistrationSaga_PublishFailureCompensates(t *testing.T) {
	f := newRegistrationFixture(t, 1)
	f.publisher.failOn = events.UserRegisteredEvent

	sagaID := f.registerJane(t)
	status := f.awaitTerminal(t, sagaID)

	assert.Equal(t, "COMPENSATED", status.Status)

	users, roles, quotas := f.accounts.rows()
	assert.Equal(t, []int{0, 0, 0}, []int{users, roles, quotas})
	assert.Equal(t, []string{events.UserRegistrationFailedEvent}, f.publisher.domainEvents())
}

func TestRegistrationSaga_RetriedCreateInsertsOneUser(t *testing.T) {
	f := newRegistrationFixture(t, 2)
	f.accounts.createFailures = 1

	sagaID := f.registerJane(t)
	status := f.awaitTerminal(t, sagaID)

	assert.Equal(t, "COMPLETED", status.Status)
	users, _, _ := f.accounts.rows()
	assert.Equal(t, 1, users)

	instance, err := f.store.Get(context.Background(), sagaID)
	require.NoError(t, err)
	assert.Equal(t, 1, instance.RetryCount)
}

func TestUserIDFor_IsStablePerSaga(t *testing.T) {
	assert.Equal(t, userIDFor("saga-1"), userIDFor("saga-1"))
	assert.NotEqual(t, userIDFor("saga-1"), userIDFor("saga-2"))

	_, err := models.NewID(userIDFor("saga-1").String())
	assert.NoError(t, err)
}
