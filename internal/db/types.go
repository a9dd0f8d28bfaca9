package db

import (
	"time"

	"github.com/google/uuid"
)

// Run status values
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// DefaultListLimit caps ListRuns when no limit is given.
const DefaultListLimit = 50

// Run represents an optimization run record
type Run struct {
	ID            uuid.UUID         `json:"id"`
	Name          string            `json:"name,omitempty"`
	Status        string            `json:"status"`
	Termination   *string           `json:"termination,omitempty"`
	MaxSteps      int               `json:"max_steps"`
	TargetScore   int               `json:"target_score"`
	InitialPrompt string            `json:"initial_prompt"`
	FinalPrompt   *string           `json:"final_prompt,omitempty"`
	UserQuery     string            `json:"user_query"`
	Inputs        map[string]string `json:"inputs,omitempty"`
	BestScore     *int              `json:"best_score,omitempty"`
	BestStep      *int              `json:"best_step,omitempty"`
	BestPrompt    *string           `json:"best_prompt,omitempty"`
	ErrorMessage  *string           `json:"error_message,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// RunInput holds the fields known when a run starts
type RunInput struct {
	ID            uuid.UUID
	Name          string
	MaxSteps      int
	TargetScore   int
	InitialPrompt string
	UserQuery     string
	Inputs        map[string]string
}

// RunCompletion holds the fields written when a run ends
type RunCompletion struct {
	Status      string
	Termination string
	FinalPrompt string
	BestScore   *int
	BestStep    *int
	BestPrompt  string
	Error       string
}

// Step represents one recorded optimization step
type Step struct {
	ID            uuid.UUID `json:"id"`
	RunID         uuid.UUID `json:"run_id"`
	Step          int       `json:"step"`
	PromptUsed    string    `json:"prompt_used"`
	Report        string    `json:"report"`
	Score         *int      `json:"score"`
	Rationale     string    `json:"rationale"`
	Feedback      string    `json:"feedback"`
	RawEvaluation string    `json:"raw_evaluation,omitempty"`
	Failed        bool      `json:"failed"`
	PromptUpdated bool      `json:"prompt_updated"`
	Warning       string    `json:"warning,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// StepInput represents input for saving a step
type StepInput struct {
	Step          int
	PromptUsed    string
	Report        string
	Score         *int
	Rationale     string
	Feedback      string
	RawEvaluation string
	Failed        bool
	PromptUpdated bool
	Warning       string
}

// RunFilters holds optional filters for listing runs
type RunFilters struct {
	Status      string
	Termination string
	Name        string
	Limit       int
}
