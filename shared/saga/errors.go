package saga

import (
	"github.com/pkg/errors"
)

var (
	ErrSagaNotFound       = errors.New("saga not found")
	ErrSagaTimeout        = errors.New("Saga timeout")
	ErrSagaTerminal       = errors.New("saga already reached a terminal status")
	ErrSagaClaimLost      = errors.New("saga status was changed by another actor")
	ErrInvalidDefinition  = errors.New("invalid saga definition")
	ErrOrchestratorClosed = errors.New("orchestrator is closed")
)

// ErrorKind tags saga errors so callers can tell business failures from
// infrastructure failures without matching on messages
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindConflict       ErrorKind = "conflict"
	KindInfrastructure ErrorKind = "infrastructure"
	KindTimeout        ErrorKind = "timeout"
	KindCompensation   ErrorKind = "compensation"
	KindPanic          ErrorKind = "panic"
)

// Error is a step execution, timeout or compensation failure
type Error struct {
	Kind ErrorKind
	Step string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cause keeps pkg/errors.Cause walking through saga errors
func (e *Error) Cause() error {
	return e.Err
}

// Validation reports a business rule violation; it is never retried
func Validation(msg string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Err: errors.Errorf(msg, args...)}
}

// Conflict reports a uniqueness or staleness conflict, e.g. a duplicate username or a
// price that changed under the caller; it is a validation failure and never retried
func Conflict(msg string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Err: errors.Errorf(msg, args...)}
}

// Infrastructure marks err as a transient collaborator failure eligible for retries
func Infrastructure(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindInfrastructure, Err: errors.Wrap(err, msg)}
}

// KindOf returns the kind of a saga error. Untagged errors count as infrastructure.
func KindOf(err error) ErrorKind {
	var sagaErr *Error
	if errors.As(err, &sagaErr) {
		return sagaErr.Kind
	}
	if errors.Is(err, ErrSagaTimeout) {
		return KindTimeout
	}
	return KindInfrastructure
}

// IsRetryable reports whether a failed step may be re-attempted
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindInfrastructure
}

func stepError(step string, err error) error {
	var sagaErr *Error
	if errors.As(err, &sagaErr) {
		if sagaErr.Step == "" {
			sagaErr.Step = step
		}
		return sagaErr
	}
	return &Error{Kind: KindInfrastructure, Step: step, Err: err}
}

// claimLost reports whether a store write was refused because the instance is no longer
// in the status the writer holds
func claimLost(err error) bool {
	return errors.Is(err, ErrSagaClaimLost) || errors.Is(err, ErrSagaTerminal)
}

// panicError tags a recovered panic; it is never retried
func panicError(step string, r interface{}) error {
	return &Error{Kind: KindPanic, Step: step, Err: errors.Errorf("step %s panicked: %v", step, r)}
}

func timeoutError(step string) error {
	return &Error{Kind: KindTimeout, Step: step, Err: ErrSagaTimeout}
}

func compensationError(step string, err error) error {
	return &Error{Kind: KindCompensation, Step: step, Err: errors.Wrapf(err, "compensation of %s failed", step)}
}
