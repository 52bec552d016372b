package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/draftea/saga-orchestrator/purchase-service/application"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PurchaseHandlers contains purchase HTTP handlers
type PurchaseHandlers struct {
	purchasePlan      *application.PurchasePlan
	getPurchaseStatus *application.GetPurchaseStatus
	logger            *zap.Logger
}

// NewPurchaseHandlers creates new purchase handlers
func NewPurchaseHandlers(
	purchasePlan *application.PurchasePlan,
	getPurchaseStatus *application.GetPurchaseStatus,
	logger *zap.Logger,
) *PurchaseHandlers {
	return &PurchaseHandlers{
		purchasePlan:      purchasePlan,
		getPurchaseStatus: getPurchaseStatus,
		logger:            logger,
	}
}

// PurchasePlan handles purchase requests. 202 means the saga was accepted.
func (h *PurchaseHandlers) PurchasePlan(w http.ResponseWriter, r *http.Request) {
	var cmd application.PurchasePlanCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	response, err := h.purchasePlan.Execute(r.Context(), &cmd)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, response)
}

// GetPurchase handles purchase status requests
func (h *PurchaseHandlers) GetPurchase(w http.ResponseWriter, r *http.Request) {
	query := &application.GetPurchaseStatusQuery{
		SagaID: chi.URLParam(r, "id"),
	}

	response, err := h.getPurchaseStatus.Execute(r.Context(), query)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// RegisterRoutes registers purchase routes
func (h *PurchaseHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/purchases", func(r chi.Router) {
		r.Post("/", h.PurchasePlan)
		r.Get("/{id}", h.GetPurchase)
	})
}

func (h *PurchaseHandlers) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("purchase request failed", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	if errors.Is(err, saga.ErrSagaNotFound) {
		return http.StatusNotFound
	}

	switch saga.KindOf(err) {
	case saga.KindValidation:
		return http.StatusUnprocessableEntity
	case saga.KindConflict:
		return http.StatusConflict
	case saga.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
