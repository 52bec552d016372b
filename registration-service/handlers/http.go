package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/draftea/saga-orchestrator/registration-service/application"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type RegistrationHandlers struct {
	registerUser          *application.RegisterUser
	getRegistrationStatus *application.GetRegistrationStatus
	logger                *zap.Logger
}

func NewRegistrationHandlers(
	registerUser *application.RegisterUser,
	getRegistrationStatus *application.GetRegistrationStatus,
	logger *zap.Logger,
) *RegistrationHandlers {
	return &RegistrationHandlers{
		registerUser:          registerUser,
		getRegistrationStatus: getRegistrationStatus,
		logger:                logger,
	}
}

// RegisterUser handles sign up requests. The request body is never logged.
func (h *RegistrationHandlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var cmd application.RegisterUserCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	response, err := h.registerUser.Execute(r.Context(), &cmd)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, response)
}

func (h *RegistrationHandlers) GetRegistration(w http.ResponseWriter, r *http.Request) {
	query := &application.GetRegistrationStatusQuery{
		SagaID: chi.URLParam(r, "id"),
	}

	response, err := h.getRegistrationStatus.Execute(r.Context(), query)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// RegisterRoutes registers registration routes
func (h *RegistrationHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/registrations", func(r chi.Router) {
		r.Post("/", h.RegisterUser)
		r.Get("/{id}", h.GetRegistration)
	})
}

func (h *RegistrationHandlers) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("registration request failed", zap.Error(err))
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
