package application

import (
	"context"

	"github.com/draftea/saga-orchestrator/registration-service/domain"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/pkg/errors"
)

// RegisterUserCommand represents the command to register a user
type RegisterUserCommand struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterUserResponse represents the response after a registration was accepted
type RegisterUserResponse struct {
	SagaID string `json:"saga_id"`
	Status string `json:"status"`
}

// RegisterUser use case
type RegisterUser struct {
	orchestrator SagaOrchestrator
	definition   *saga.Definition
	credentials  *Credentials
}

// NewRegisterUser creates a new RegisterUser use case
func NewRegisterUser(orchestrator SagaOrchestrator, definition *saga.Definition, credentials *Credentials) *RegisterUser {
	return &RegisterUser{
		orchestrator: orchestrator,
		definition:   definition,
		credentials:  credentials,
	}
}

// Execute starts a registration saga. VALIDATE_USER runs before Start returns, so the
// password is dropped from memory as soon as Execute is done with it.
func (uc *RegisterUser) Execute(ctx context.Context, cmd *RegisterUserCommand) (*RegisterUserResponse, error) {
	registration, err := domain.NewRegistration(cmd.Username, cmd.Email, cmd.Password)
	if err != nil {
		return nil, saga.Validation("%s", err)
	}

	ref := uc.credentials.Put(registration.Password)
	defer uc.credentials.Forget(ref)

	sagaID, err := uc.orchestrator.Start(ctx, uc.definition, saga.State{
		KeyUsername:      registration.Username,
		KeyEmail:         registration.Email,
		KeyCredentialRef: ref,
	})
	if err != nil {
		return nil, errors.Wrap(err, "registration rejected")
	}

	return &RegisterUserResponse{
		SagaID: sagaID,
		Status: "processing",
	}, nil
}
