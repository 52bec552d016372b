package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/draftea/saga-orchestrator/purchase-service/domain"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var _ domain.PaymentGateway = (*HTTPPaymentGateway)(nil)

// HTTPPaymentGateway charges orders through the payments service REST API
type HTTPPaymentGateway struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPaymentGateway creates a gateway for the payments service at baseURL
func NewHTTPPaymentGateway(baseURL string, timeout time.Duration) *HTTPPaymentGateway {
	return &HTTPPaymentGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type createPaymentRequest struct {
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	OrderID     string `json:"order_id"`
}

type createPaymentResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

// Charge creates a payment for the order. 402 and 422 answers are declines; any other
// non-2xx answer is a transient failure.
func (g *HTTPPaymentGateway) Charge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	body, err := json.Marshal(createPaymentRequest{
		UserID:      req.UserID.String(),
		Amount:      req.Amount.Amount,
		Currency:    req.Amount.Currency,
		Description: "order " + req.OrderID.String(),
		OrderID:     req.OrderID.String(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal payment request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build payment request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "payments service unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, errors.Wrap(domain.ErrPaymentDeclined, readReason(resp.Body))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, errors.Errorf("payments service answered %d: %s", resp.StatusCode, readReason(resp.Body))
	}

	var created createPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, errors.Wrap(err, "failed to decode payment response")
	}
	if created.PaymentID == "" {
		return nil, errors.New("payments service returned no payment ID")
	}

	return &domain.Charge{PaymentID: created.PaymentID, Status: created.Status}, nil
}

func readReason(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 512))
	return strings.TrimSpace(string(raw))
}
