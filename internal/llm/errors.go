package llm

import "fmt"

// CredentialsHint is appended to provider failures shown to users.
const CredentialsHint = "check that GEMINI_API_KEY is set and has access to the selected models, and that the model names are correct"

// APIError is a failed provider call.
type APIError struct {
	Provider Provider
	Model    string
	Role     Role
	Cause    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s call to %s failed: %v", e.Provider, e.Role, e.Model, e.Cause)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// Hint returns remediation advice for the failure.
func (e *APIError) Hint() string {
	if e.Provider == ProviderOllama {
		return "check that the ollama server is running (OLLAMA_HOST) and the model has been pulled"
	}
	return CredentialsHint
}
