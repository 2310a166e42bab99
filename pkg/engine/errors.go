package engine

import (
	"errors"
	"fmt"

	"github.com/openfroyo/recipes/pkg/stores"
)

// ErrorKind classifies why an execution stopped.
type ErrorKind string

const (
	// KindStepFailed means a handler returned an error (or panicked).
	KindStepFailed ErrorKind = "step_failed"

	// KindNoHandler means no handler marked the step executed.
	KindNoHandler ErrorKind = "no_handler"
)

// Sentinels for errors.Is. They match any ExecutionError of the same kind.
var (
	ErrStepFailed = &ExecutionError{Kind: KindStepFailed}
	ErrNoHandler  = &ExecutionError{Kind: KindNoHandler}

	// ErrExecutionFinished is returned when driving or cancelling an
	// execution that already reached a terminal status.
	ErrExecutionFinished = errors.New("execution already finished")

	// ErrStepInFlight is returned while a step of the execution is claimed
	// by another driver, or by one that exited without an outcome.
	ErrStepInFlight = stores.ErrStepInFlight
)

// ExecutionError reports the step that aborted an execution. The failure
// has already been recorded and the queue drained when it is returned.
type ExecutionError struct {
	Kind        ErrorKind `json:"kind"`
	ExecutionID string    `json:"execution_id"`
	StepName    string    `json:"step_name"`
	Position    int       `json:"position"`

	// Err is the handler error for KindStepFailed.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	switch e.Kind {
	case KindNoHandler:
		return fmt.Sprintf("recipe execution with ID %s failed because no matching handler for recipe step '%s' was found",
			e.ExecutionID, e.StepName)
	default:
		if e.Err == nil {
			return fmt.Sprintf("recipe execution with ID %s failed because the step '%s' failed to execute",
				e.ExecutionID, e.StepName)
		}
		return fmt.Sprintf("recipe execution with ID %s failed because the step '%s' failed to execute: %v",
			e.ExecutionID, e.StepName, e.Err)
	}
}

// Unwrap returns the handler error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an ExecutionError of the same kind.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// IsStepFailed returns true if err reports a failing handler.
func IsStepFailed(err error) bool {
	return errors.Is(err, ErrStepFailed)
}

// IsNoHandler returns true if err reports a step no handler executed.
func IsNoHandler(err error) bool {
	return errors.Is(err, ErrNoHandler)
}

// AsExecutionError returns the ExecutionError in err's chain, if any.
func AsExecutionError(err error) (*ExecutionError, bool) {
	var e *ExecutionError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// noHandlerMessage is the result message recorded for an unhandled step.
func noHandlerMessage(stepName string) string {
	return fmt.Sprintf("no matching handler for recipe step '%s' was found", stepName)
}
