package application

import (
	"context"
	"testing"

	"github.com/draftea/saga-orchestrator/registration-service/domain"
	"github.com/draftea/saga-orchestrator/registration-service/mocks"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stepMocks struct {
	users     *mocks.MockUserRepository
	roles     *mocks.MockRoleRepository
	quotas    *mocks.MockQuotaRepository
	publisher *recordingPublisher
}

func newStepSaga(t *testing.T) (*RegistrationSaga, *stepMocks, *Credentials) {
	m := &stepMocks{
		users:     mocks.NewMockUserRepository(t),
		roles:     mocks.NewMockRoleRepository(t),
		quotas:    mocks.NewMockQuotaRepository(t),
		publisher: &recordingPublisher{},
	}
	credentials := NewCredentials()
	s := NewRegistrationSaga(m.users, m.roles, m.quotas, m.publisher, credentials, nil,
		WithHashCost(bcrypt.MinCost),
	)
	return s, m, credentials
}

func TestRegistrationSaga_ValidateUser(t *testing.T) {
	tests := []struct {
		name         string
		setupMocks   func(*stepMocks)
		dropPassword bool
		expectedKind saga.ErrorKind
	}{
		{
			name: "hashes the password",
			setupMocks: func(m *stepMocks) {
				m.users.EXPECT().ExistsByUsername(mock.Anything, "jane").Return(false, nil).Once()
				m.users.EXPECT().ExistsByEmail(mock.Anything, "jane@example.com").Return(false, nil).Once()
			},
		},
		{
			name: "email taken",
			setupMocks: func(m *stepMocks) {
				m.users.EXPECT().ExistsByUsername(mock.Anything, "jane").Return(false, nil).Once()
				m.users.EXPECT().ExistsByEmail(mock.Anything, "jane@example.com").Return(true, nil).Once()
			},
			expectedKind: saga.KindConflict,
		},
		{
			name: "lookup fails",
			setupMocks: func(m *stepMocks) {
				m.users.EXPECT().ExistsByUsername(mock.Anything, "jane").Return(false, errors.New("connection reset")).Once()
			},
			expectedKind: saga.KindInfrastructure,
		},
		{
			name:         "credentials forgotten",
			setupMocks:   func(*stepMocks) {},
			dropPassword: true,
			expectedKind: saga.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, m, credentials := newStepSaga(t)
			tt.setupMocks(m)

			ref := credentials.Put(testPassword)
			if tt.dropPassword {
				credentials.Forget(ref)
			}

			output, err := s.validateUser(context.Background(), saga.State{
				KeyUsername:      "jane",
				KeyEmail:         "jane@example.com",
				KeyCredentialRef: ref,
			})

			if tt.expectedKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.expectedKind, saga.KindOf(err))
				return
			}
			require.NoError(t, err)

			hash, ok := output.String(KeyPasswordHash)
			require.True(t, ok)
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(testPassword)))
			assert.NotContains(t, output, KeyCredentialRef)
		})
	}
}

func TestRegistrationSaga_RoleAndQuotaSteps(t *testing.T) {
	s, m, _ := newStepSaga(t)
	state := saga.State{KeyUserID: "user-1"}

	m.roles.EXPECT().Assign(mock.Anything, models.ID("user-1"), domain.DefaultRole).Return(nil).Once()
	m.roles.EXPECT().Remove(mock.Anything, models.ID("user-1"), domain.DefaultRole).Return(nil).Once()
	m.quotas.EXPECT().Initialize(mock.Anything, mock.MatchedBy(func(q domain.Quota) bool {
		return q.UserID == "user-1" && q.Limit == domain.DefaultQuotaLimit && q.Used == 0
	})).Return(nil).Once()
	m.quotas.EXPECT().Delete(mock.Anything, models.ID("user-1")).Return(errors.New("timeout")).Once()

	output, err := s.assignDefaultRole(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultRole, output[KeyRole])

	output, err = s.initializeQuota(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultQuotaLimit, output[KeyQuotaLimit])

	require.NoError(t, s.removeDefaultRole(context.Background(), state))
	assert.ErrorContains(t, s.deleteQuota(context.Background(), state), "failed to delete quota")
}

func TestRegistrationSaga_DeleteUser(t *testing.T) {
	t.Run("announces the failure after deleting", func(t *testing.T) {
		s, m, _ := newStepSaga(t)
		m.users.EXPECT().Delete(mock.Anything, models.ID("user-1")).Return(nil).Once()

		err := s.deleteUser(context.Background(), saga.State{KeyUserID: "user-1", KeyUsername: "jane"})
		require.NoError(t, err)
		assert.Equal(t, []string{events.UserRegistrationFailedEvent}, m.publisher.domainEvents())
	})

	t.Run("nothing to delete", func(t *testing.T) {
		s, m, _ := newStepSaga(t)

		require.NoError(t, s.deleteUser(context.Background(), saga.State{}))
		assert.Empty(t, m.publisher.domainEvents())
	})

	t.Run("delete fails", func(t *testing.T) {
		s, m, _ := newStepSaga(t)
		m.users.EXPECT().Delete(mock.Anything, models.ID("user-1")).Return(errors.New("connection reset")).Once()

		err := s.deleteUser(context.Background(), saga.State{KeyUserID: "user-1"})
		assert.ErrorContains(t, err, "failed to delete user")
		assert.Empty(t, m.publisher.domainEvents())
	})
}
