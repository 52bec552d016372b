package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/draftea/saga-orchestrator/purchase-service/domain"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPPaymentGateway_Charge(t *testing.T) {
	request := domain.ChargeRequest{
		OrderID:        "order-456",
		UserID:         "user-123",
		Amount:         models.NewMoney(9999, "USD"),
		IdempotencyKey: "saga-1:PROCESS_PAYMENT",
	}

	tests := []struct {
		name          string
		status        int
		body          string
		expectedID    string
		expectedError error
		expectError   bool
	}{
		{
			name:       "payment created",
			status:     http.StatusCreated,
			body:       `{"payment_id":"pay-1","status":"completed"}`,
			expectedID: "pay-1",
		},
		{
			name:          "payment required",
			status:        http.StatusPaymentRequired,
			body:          "insufficient funds",
			expectedError: domain.ErrPaymentDeclined,
		},
		{
			name:          "unprocessable",
			status:        http.StatusUnprocessableEntity,
			body:          "card expired",
			expectedError: domain.ErrPaymentDeclined,
		},
		{
			name:        "server error",
			status:      http.StatusBadGateway,
			body:        "upstream down",
			expectError: true,
		},
		{
			name:        "missing payment id",
			status:      http.StatusOK,
			body:        `{"status":"completed"}`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var received createPaymentRequest
			var idempotencyKey string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/payments", r.URL.Path)
				idempotencyKey = r.Header.Get("Idempotency-Key")
				_ = json.NewDecoder(r.Body).Decode(&received)

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			gateway := NewHTTPPaymentGateway(server.URL+"/", time.Second)
			charge, err := gateway.Charge(context.Background(), request)

			assert.Equal(t, "saga-1:PROCESS_PAYMENT", idempotencyKey)
			assert.Equal(t, int64(9999), received.Amount)
			assert.Equal(t, "order-456", received.OrderID)

			switch {
			case tt.expectedError != nil:
				assert.ErrorIs(t, err, tt.expectedError)
			case tt.expectError:
				assert.Error(t, err)
				assert.NotErrorIs(t, err, domain.ErrPaymentDeclined)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.expectedID, charge.PaymentID)
			}
		})
	}
}
