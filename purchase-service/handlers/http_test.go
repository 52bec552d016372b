package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/draftea/saga-orchestrator/purchase-service/application"
	"github.com/draftea/saga-orchestrator/purchase-service/mocks"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(orchestrator *mocks.MockSagaOrchestrator) *chi.Mux {
	definition := application.NewPurchaseSaga(nil, nil, nil, nil, zap.NewNop()).
		Definition(application.SagaSettings{Timeout: time.Minute})

	h := NewPurchaseHandlers(
		application.NewPurchasePlan(orchestrator, definition),
		application.NewGetPurchaseStatus(orchestrator, definition),
		zap.NewNop(),
	)

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestPurchaseHandlers_PurchasePlan(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMocks     func(*mocks.MockSagaOrchestrator)
		expectedStatus int
		expectedSagaID string
	}{
		{
			name: "accepted",
			body: `{"user_id":"user-123","plan_id":"plan-1","amount":9999,"currency":"USD"}`,
			setupMocks: func(o *mocks.MockSagaOrchestrator) {
				o.EXPECT().Start(mock.Anything, mock.Anything, mock.Anything).Return("saga-1", nil).Once()
			},
			expectedStatus: http.StatusAccepted,
			expectedSagaID: "saga-1",
		},
		{
			name:           "malformed body",
			body:           `{"user_id":`,
			setupMocks:     func(*mocks.MockSagaOrchestrator) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing plan",
			body:           `{"user_id":"user-123","amount":9999,"currency":"USD"}`,
			setupMocks:     func(*mocks.MockSagaOrchestrator) {},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "price changed",
			body: `{"user_id":"user-123","plan_id":"plan-1","amount":100,"currency":"USD"}`,
			setupMocks: func(o *mocks.MockSagaOrchestrator) {
				o.EXPECT().Start(mock.Anything, mock.Anything, mock.Anything).
					Return("saga-1", saga.Conflict("price mismatch")).Once()
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "store unavailable",
			body: `{"user_id":"user-123","plan_id":"plan-1","amount":9999,"currency":"USD"}`,
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
			req := httptest.NewRequest(http.MethodPost, "/purchases/", strings.NewReader(tt.body))
			newTestRouter(orchestrator).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedSagaID != "" {
				var response application.PurchasePlanResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
				assert.Equal(t, tt.expectedSagaID, response.SagaID)
				assert.Equal(t, "processing", response.Status)
			}
		})
	}
}

func TestPurchaseHandlers_GetPurchase(t *testing.T) {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		setupMocks     func(*mocks.MockSagaOrchestrator)
		expectedStatus int
		expectedState  string
	}{
		{
			name: "found",
			setupMocks: func(o *mocks.MockSagaOrchestrator) {
				o.EXPECT().GetState(mock.Anything, "saga-1").Return(&saga.Instance{
					ID:               "saga-1",
					Type:             application.PurchaseSagaType,
					Status:           saga.StatusRunning,
					CurrentStepIndex: 2,
					State:            saga.State{application.KeyOrderID: "order-456"},
					StartedAt:        started,
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedState:  "RUNNING",
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
			req := httptest.NewRequest(http.MethodGet, "/purchases/saga-1", nil)
			newTestRouter(orchestrator).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedState != "" {
				var response application.GetPurchaseStatusResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
				assert.Equal(t, tt.expectedState, response.Status)
				assert.Equal(t, "ALLOCATE_DEVICE", response.CurrentStep)
				assert.Equal(t, "order-456", response.OrderID)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(errors.Wrap(saga.ErrSagaNotFound, "lookup")))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(saga.ErrSagaTimeout))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(saga.Validation("bad")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.DeadlineExceeded))
}
