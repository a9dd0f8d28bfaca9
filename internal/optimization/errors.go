package optimization

import (
	"errors"
	"fmt"
)

// GenerationError is a failed report generation call.
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("report generation failed: %v", e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// EvaluationError is a failed evaluation call, or an evaluation instruction that could not be rendered.
type EvaluationError struct {
	Cause error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation failed: %v", e.Cause)
}

func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// OptimizationStepError is a failed prompt rewrite. The prompt is left unchanged.
type OptimizationStepError struct {
	Cause error
}

func (e *OptimizationStepError) Error() string {
	return fmt.Sprintf("prompt update failed: %v", e.Cause)
}

func (e *OptimizationStepError) Unwrap() error {
	return e.Cause
}

// ConfigError rejects a RunConfig before any step runs.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid run config: %s: %s", e.Field, e.Message)
}

func asGenerationError(err error) error {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return &GenerationError{Cause: err}
}

func asEvaluationError(err error) error {
	var ee *EvaluationError
	if errors.As(err, &ee) {
		return err
	}
	return &EvaluationError{Cause: err}
}

func asOptimizationStepError(err error) error {
	var oe *OptimizationStepError
	if errors.As(err, &oe) {
		return err
	}
	return &OptimizationStepError{Cause: err}
}
