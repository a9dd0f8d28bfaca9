package optimization

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/prompt-workbench/internal/inputs"
	"github.com/jonathan/prompt-workbench/internal/scoring"
)

// Run parameter bounds and defaults.
const (
	MinSteps           = 1
	MaxSteps           = 20
	DefaultMaxSteps    = 3
	DefaultTargetScore = 90
)

// Placeholders recorded for a step that failed before an evaluation was parsed.
const (
	FailedReport   = "Error during this step."
	FailedFeedback = "Optimization step failed."
)

// Termination is how a run ended. None of these are error states.
type Termination string

const (
	TerminationTargetReached  Termination = "target_reached"
	TerminationStepsExhausted Termination = "steps_exhausted"
	TerminationCancelled      Termination = "cancelled"
)

// RunConfig is the immutable input to a run.
type RunConfig struct {
	InitialPrompt string              `json:"initial_prompt" validate:"required"`
	Inputs        inputs.UserInputSet `json:"inputs" validate:"-"`
	MaxSteps      int                 `json:"max_steps" validate:"min=1,max=20" jsonschema:"minimum=1,maximum=20"`
	TargetScore   int                 `json:"target_score" validate:"min=0,max=100" jsonschema:"minimum=0,maximum=100"`

	// Seed is the baseline result the run must beat. Nil means no baseline.
	Seed *BestResult `json:"seed,omitempty"`
}

// StepRecord is one appended history entry.
type StepRecord struct {
	Step       int                `json:"step"`
	PromptUsed string             `json:"prompt_used"`
	Report     string             `json:"report"`
	Evaluation scoring.Evaluation `json:"evaluation"`

	// Failed is set when generation or evaluation failed.
	Failed bool `json:"failed,omitempty"`

	// PromptUpdated is set when the optimizer produced the prompt for the next step.
	PromptUpdated bool `json:"prompt_updated,omitempty"`

	// Warning explains a skipped or failed update.
	Warning string `json:"warning,omitempty"`
}

// BestResult is the highest scoring state seen. Step 0 is the baseline.
type BestResult struct {
	Score     int    `json:"score" validate:"min=0,max=100" jsonschema:"minimum=0,maximum=100"`
	Prompt    string `json:"prompt"`
	Report    string `json:"report"`
	Rationale string `json:"rationale"`
	Feedback  string `json:"feedback"`
	Step      int    `json:"step"`
}

// RunResult is the output of a run.
type RunResult struct {
	RunID       uuid.UUID   `json:"run_id"`
	Termination Termination `json:"termination" jsonschema:"enum=target_reached,enum=steps_exhausted,enum=cancelled"`
	MaxSteps    int         `json:"max_steps"`
	TargetScore int         `json:"target_score"`
	UserQuery   string      `json:"user_query"`

	// InitialPrompt is the prompt entering step 1.
	InitialPrompt string `json:"initial_prompt"`

	// FinalPrompt is the active prompt at termination. On target_reached it is the prompt that
	// reached the target, otherwise it includes every applied update.
	FinalPrompt string `json:"final_prompt"`

	Best       *BestResult  `json:"best,omitempty"`
	History    []StepRecord `json:"history"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// HistoryNewestFirst returns a reversed copy of the history for display.
func (r *RunResult) HistoryNewestFirst() []StepRecord {
	out := make([]StepRecord, len(r.History))
	for i, rec := range r.History {
		out[len(r.History)-1-i] = rec
	}
	return out
}

// IsBest reports whether rec is the step that produced the best result.
func (r *RunResult) IsBest(rec StepRecord) bool {
	if r.Best == nil || r.Best.Step == 0 {
		return false
	}
	score, ok := rec.Evaluation.ScoreValue()
	return ok && rec.Step == r.Best.Step && score == r.Best.Score
}

// Stage is a point in a step reported through progress events.
type Stage string

const (
	StageGenerating Stage = "generating"
	StageEvaluating Stage = "evaluating"
	StageUpdating   Stage = "updating"
	StageRecorded   Stage = "recorded"
	StageFinished   Stage = "finished"
)

// ProgressEvent represents a progress update during a run
type ProgressEvent struct {
	RunID   string `json:"run_id,omitempty"`
	Step    int    `json:"step"`
	Total   int    `json:"total"`
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Content any    `json:"content,omitempty"`
}

// ProgressCallback is called when run progress occurs
type ProgressCallback func(event ProgressEvent)
