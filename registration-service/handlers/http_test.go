package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/draftea/saga-orchestrator/registration-service/application"
	"github.com/draftea/saga-orchestrator/registration-service/mocks"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(orchestrator *mocks.MockSagaOrchestrator) *chi.Mux {
	credentials := application.NewCredentials()
	definition := application.NewRegistrationSaga(nil, nil, nil, nil, credentials, zap.NewNop()).
		Definition(application.SagaSettings{Timeout: time.Minute})

	h := NewRegistrationHandlers(
		application.NewRegisterUser(orchestrator, definition, credentials),
		application.NewGetRegistrationStatus(orchestrator, definition),
		zap.NewNop(),
	)

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestRegistrationHandlers_RegisterUser(t *testing.T) {
	const valid = `{"username":"jane","email":"jane@example.com","password":"s3cret-pass"}`

	tests := []struct {
		name           string
		body           string
		setupMocks     func(*mocks.MockSagaOrchestrator)
		expectedStatus int
		expectedSagaID string
	}{
		{
			name: "accepted",
			body: valid,
			setupMocks: func(o *mocks.MockSagaOrchestrator) {
				o.EXPECT().Start(mock.Anything, mock.Anything, mock.Anything).Return("saga-1", nil).Once()
			},
			expectedStatus: http.StatusAccepted,
			expectedSagaID: "saga-1",
		},
		{
			name:           "malformed body",
			body:           `{"username":`,
			setupMocks:     func(*mocks.MockSagaOrchestrator) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "short password",
			body:           `{"username":"jane","email":"jane@example.com","password":"short"}`,
			setupMocks:     func(*mocks.MockSagaOrchestrator) {},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "username taken",
			body: valid,
			setupMocks: func(o *mocks.MockSagaOrchestrator) {
				o.EXPECT().Start(mock.Anything, mock.Anything, mock.Anything).
					Return("saga-1", saga.Conflict("username jane already exists")).Once()
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "store unavailable",
			body: valid,
			setupMocks: func(o *mocks.MockSagaOrchestrator) {
				o.EXPECT().Start(mock.Anything, mock.Anything, mock.Anything).
					Return("", errors.New("connection refused")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orchestrator := mocks.NewMockSagaOrchestrator(t)
			tt.setupMocks(orchestrator)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/registrations/", strings.NewReader(tt.body))
			newTestRouter(orchestrator).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.NotContains(t, rec.Body.String(), "s3cret-pass")
			if tt.expectedSagaID != "" {
				var response application.RegisterUserResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
				assert.Equal(t, tt.expectedSagaID, response.SagaID)
				assert.Equal(t, "processing", response.Status)
			}
		})
	}
}

func TestRegistrationHandlers_GetRegistration(t *testing.T) {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		setupMocks     func(*mocks.MockSagaOrchestrator)
		expectedStatus int
		expectedState  string
	}{
		{
			name: "compensated",
			setupMocks: func(o *mocks.MockSagaOrchestrator) {
				o.EXPECT().GetState(mock.Anything, "saga-1").Return(&saga.Instance{
					ID:               "saga-1",
					Type:             application.RegistrationSagaType,
					Status:           saga.StatusCompensated,
					CurrentStepIndex: 3,
					ErrorMessage:     "quota store unavailable",
					State:            saga.State{application.KeyUsername: "jane"},
					StartedAt:        started,
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedState:  "COMPENSATED",
		},
		{
			name: "purchase saga id",
			setupMocks: func(o *mocks.MockSagaOrchestrator) {
				o.EXPECT().GetState(mock.Anything, "saga-1").Return(&saga.Instance{
					ID:        "saga-1",
					Type:      "PAYMENT_PURCHASE",
					Status:    saga.StatusRunning,
					StartedAt: started,
				}, nil).Once()
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "unknown saga",
			setupMocks: func(o *mocks.MockSagaOrchestrator) {
				o.EXPECT().GetState(mock.Anything, "saga-1").Return(nil, saga.ErrSagaNotFound).Once()
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orchestrator := mocks.NewMockSagaOrchestrator(t)
			tt.setupMocks(orchestrator)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/registrations/saga-1", nil)
			newTestRouter(orchestrator).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedState != "" {
				var response application.GetRegistrationStatusResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
				assert.Equal(t, tt.expectedState, response.Status)
				assert.Equal(t, "jane", response.Username)
				assert.Equal(t, "quota store unavailable", response.ErrorMessage)
				assert.Empty(t, response.CurrentStep)
			}
		})
	}
}
