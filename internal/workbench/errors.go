package workbench

import (
	"errors"
	"fmt"
)

var (
	// ErrNoStore is returned by run history operations when no database is configured.
	ErrNoStore = errors.New("run history is not available: no database configured")
	// ErrRunNotFound is returned when a run id is unknown.
	ErrRunNotFound = errors.New("run not found")
	// ErrNoBest is returned when saving the best prompt of a run that never scored.
	ErrNoBest = errors.New("run has no scored result to save")
)

// BaselineError is returned when the initial evaluation cannot seed an optimization run.
type BaselineError struct {
	Message string
	Cause   error
}

func (e *BaselineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("baseline evaluation failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("baseline evaluation failed: %s", e.Message)
}

func (e *BaselineError) Unwrap() error {
	return e.Cause
}
