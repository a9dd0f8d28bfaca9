// Package library stores named system prompts as text records on disk.
package library

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no record exists for a name.
var ErrNotFound = errors.New("prompt not found")

// PersistenceError represents a failed save, load or list against the library directory.
type PersistenceError struct {
	Op      string
	Name    string
	Message string
	Cause   error
}

func (e *PersistenceError) Error() string {
	target := e.Op
	if e.Name != "" {
		target = fmt.Sprintf("%s %q", e.Op, e.Name)
	}
	if e.Cause != nil {
		return fmt.Sprintf("library %s: %s: %v", target, e.Message, e.Cause)
	}
	return fmt.Sprintf("library %s: %s", target, e.Message)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}
