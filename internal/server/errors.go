package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/prompt-workbench/internal/inputs"
	"github.com/jonathan/prompt-workbench/internal/library"
	"github.com/jonathan/prompt-workbench/internal/llm"
	"github.com/jonathan/prompt-workbench/internal/optimization"
	"github.com/jonathan/prompt-workbench/internal/schemas"
	"github.com/jonathan/prompt-workbench/internal/workbench"
)

// ErrInvalidCredentials indicates invalid login credentials
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid username or password"
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Hint    string              `json:"hint,omitempty"`
	Details []inputs.FieldError `json:"details,omitempty"`
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		invalidCreds *ErrInvalidCredentials
		validation   *ErrValidation
		inputErr     *inputs.ValidationError
		configErr    *optimization.ConfigError
		schemaErr    *schemas.ValidationError
		baselineErr  *workbench.BaselineError
		genErr       *optimization.GenerationError
		evalErr      *optimization.EvaluationError
		apiErr       *llm.APIError
		persistErr   *library.PersistenceError
	)

	switch {
	case errors.As(err, &invalidCreds):
		return http.StatusUnauthorized
	case errors.As(err, &validation), errors.As(err, &inputErr), errors.As(err, &configErr), errors.As(err, &schemaErr):
		return http.StatusBadRequest
	case errors.Is(err, workbench.ErrRunNotFound), errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workbench.ErrNoBest):
		return http.StatusConflict
	case errors.Is(err, workbench.ErrNoStore):
		return http.StatusServiceUnavailable
	case errors.As(err, &baselineErr) && baselineErr.Cause == nil:
		return http.StatusUnprocessableEntity
	case errors.As(err, &genErr), errors.As(err, &evalErr), errors.As(err, &apiErr):
		return http.StatusBadGateway
	case errors.As(err, &persistErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// errorBody builds the reply for err, carrying field details and provider hints.
func errorBody(err error) ErrorResponse {
	resp := ErrorResponse{Error: err.Error()}

	var inputErr *inputs.ValidationError
	if errors.As(err, &inputErr) {
		resp.Details = inputErr.Fields
	}
	var schemaErr *schemas.ValidationError
	if errors.As(err, &schemaErr) {
		for _, fe := range schemaErr.Errors {
			resp.Details = append(resp.Details, inputs.FieldError{Field: fe.Field, Message: fe.Message})
		}
	}
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		resp.Hint = apiErr.Hint()
	}
	return resp
}
