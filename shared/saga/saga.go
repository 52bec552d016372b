package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Status represents the lifecycle status of a saga instance
type Status string

const (
	StatusRunning      Status = "RUNNING"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusCompensated  Status = "COMPENSATED"
	StatusFailed       Status = "FAILED"
)

// IsTerminal reports whether no further step or compensation will run
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCompensated, StatusFailed:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}

// Type identifies which Definition an instance runs
type Type string

func (t Type) String() string {
	return string(t)
}

// State is the workflow-scoped data accumulated across steps
type State map[string]interface{}

// Clone returns a shallow copy of the state
func (s State) Clone() State {
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = v
	}
	return clone
}

// Merge overwrites keys of s with the keys of update. Keys are never removed.
func (s State) Merge(update State) {
	for k, v := range update {
		s[k] = v
	}
}

// String returns the string value stored under key
func (s State) String(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}

// Bool returns the bool value stored under key
func (s State) Bool(key string) (bool, bool) {
	v, ok := s[key].(bool)
	return v, ok
}

// Int64 returns the integer value stored under key. Values that went through a JSON
// round-trip come back as float64 or json.Number and are converted.
func (s State) Int64(key string) (int64, bool) {
	switch v := s[key].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// ExecuteFunc runs the forward action of a step and returns its partial state update
type ExecuteFunc func(ctx context.Context, state State) (State, error)

// CompensateFunc reverses the side effects of a completed step
type CompensateFunc func(ctx context.Context, state State) error

// Step is a named unit of work with an optional compensating action.
//
// When Async is set, Execute only dispatches a request to an external collaborator and
// the step completes when Resume is called with the instance ID, or fails on timeout.
type Step struct {
	Name       string
	Execute    ExecuteFunc
	Compensate CompensateFunc
	Async      bool
}

// HasCompensation reports whether the step declares a compensating action
func (s Step) HasCompensation() bool {
	return s.Compensate != nil
}

// Definition is the immutable configuration shared by all instances of a saga type
type Definition struct {
	Type         Type
	Steps        []Step
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Validate checks the definition is runnable
func (d *Definition) Validate() error {
	if d == nil {
		return errors.Wrap(ErrInvalidDefinition, "definition is nil")
	}
	if d.Type == "" {
		return errors.Wrap(ErrInvalidDefinition, "type is required")
	}
	if len(d.Steps) == 0 {
		return errors.Wrapf(ErrInvalidDefinition, "%s has no steps", d.Type)
	}
	if d.Timeout <= 0 {
		return errors.Wrapf(ErrInvalidDefinition, "%s timeout must be positive", d.Type)
	}
	if d.MaxRetries < 0 {
		return errors.Wrapf(ErrInvalidDefinition, "%s max retries must not be negative", d.Type)
	}

	seen := make(map[string]struct{}, len(d.Steps))
	for i, step := range d.Steps {
		if step.Name == "" {
			return errors.Wrapf(ErrInvalidDefinition, "%s step %d has no name", d.Type, i)
		}
		if step.Execute == nil {
			return errors.Wrapf(ErrInvalidDefinition, "%s step %s has no execute function", d.Type, step.Name)
		}
		if _, dup := seen[step.Name]; dup {
			return errors.Wrapf(ErrInvalidDefinition, "%s step %s is declared twice", d.Type, step.Name)
		}
		seen[step.Name] = struct{}{}
	}

	return nil
}

// Instance is the mutable record of one saga execution
type Instance struct {
	ID               string     `json:"id"`
	Type             Type       `json:"type"`
	Status           Status     `json:"status"`
	CurrentStepIndex int        `json:"current_step_index"`
	State            State      `json:"state"`
	RetryCount       int        `json:"retry_count"`
	MaxRetries       int        `json:"max_retries"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	TimeoutAt        time.Time  `json:"timeout_at"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Clone returns a deep enough copy for handing out snapshots
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	clone := *i
	clone.State = i.State.Clone()
	if i.CompletedAt != nil {
		completedAt := *i.CompletedAt
		clone.CompletedAt = &completedAt
	}
	return &clone
}

// Expired reports whether the instance passed its timeout at the given time
func (i *Instance) Expired(now time.Time) bool {
	return !i.TimeoutAt.After(now)
}

func (i *Instance) String() string {
	return fmt.Sprintf("%s[%s] %s step=%d", i.Type, i.ID, i.Status, i.CurrentStepIndex)
}
