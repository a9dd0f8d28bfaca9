package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/prompt-workbench/internal/library"
	"github.com/jonathan/prompt-workbench/internal/llm"
	"github.com/jonathan/prompt-workbench/internal/optimization"
	"github.com/jonathan/prompt-workbench/internal/scoring"
)

func intPtr(i int) *int { return &i }

func TestPrintEvaluation(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintEvaluation(scoring.Evaluation{Score: intPtr(87), Rationale: "Good.", Feedback: "Add more detail."})
	output := buf.String()

	assert.Contains(t, output, "EVALUATION")
	assert.Contains(t, output, "87/100")
	assert.Contains(t, output, "Good.")
	assert.Contains(t, output, "Add more detail.")
}

func TestScoreLabel(t *testing.T) {
	assert.Equal(t, "0/100", ScoreLabel(scoring.Evaluation{Score: intPtr(0)}))
	assert.Equal(t, "N/A (Error or Parse Issue)", ScoreLabel(scoring.Evaluation{}))
}

func TestPrintRunResult(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	res := &optimization.RunResult{
		RunID:         uuid.New(),
		Termination:   optimization.TerminationTargetReached,
		MaxSteps:      3,
		TargetScore:   90,
		InitialPrompt: "line one\nline two",
		FinalPrompt:   "line one\nline two improved",
		Best:          &optimization.BestResult{Score: 92, Step: 2},
		History: []optimization.StepRecord{
			{Step: 1, PromptUsed: "line one\nline two", Evaluation: scoring.Evaluation{Score: intPtr(75)}, PromptUpdated: true},
			{Step: 2, PromptUsed: "line one\nline two improved", Evaluation: scoring.Evaluation{Score: intPtr(92)}},
		},
		StartedAt: time.Now(),
	}

	p.PrintRunResult(res)
	output := buf.String()

	assert.Contains(t, output, "OPTIMIZATION RESULT")
	assert.Contains(t, output, "target_reached")
	assert.Contains(t, output, "92/100 (step 2)")
	assert.Contains(t, output, "★")
	assert.Contains(t, output, "PROMPT CHANGE: step 1 → step 2")
	assert.Contains(t, output, "+ line two improved")
	assert.Contains(t, output, "- line two")

	// newest first
	history := output[strings.Index(output, "STEP"):]
	assert.Less(t, strings.Index(history, "92/100"), strings.Index(history, "75/100"))
}

func TestPrintRunResult_EmptyHistory(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintRunResult(&optimization.RunResult{Termination: optimization.TerminationCancelled})

	assert.Contains(t, buf.String(), "Best score:   none")
	assert.Contains(t, buf.String(), "No optimization steps recorded.")
}

func TestPromptDiff(t *testing.T) {
	assert.Equal(t, "(no changes)", PromptDiff("same", "same"))

	diff := PromptDiff("a\nb\nc\n", "a\nB\nc\nd\n")
	assert.Contains(t, diff, "2 line(s) added, 1 removed")
	assert.Contains(t, diff, "- b")
	assert.Contains(t, diff, "+ B")
	assert.Contains(t, diff, "+ d")
	assert.Contains(t, diff, "  a")
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintReport("Strategic Imperative\tDate\nElectrification\t2025-03")
	assert.Contains(t, buf.String(), "STRATEGIC IMPERATIVE")
	assert.Contains(t, buf.String(), "Electrification")
	assert.Contains(t, buf.String(), "2025-03")

	buf.Reset()
	p.PrintReport("not a table")
	assert.Contains(t, buf.String(), "Could not parse report as a table")
	assert.Contains(t, buf.String(), "not a table")
}

func TestPrintModelsAndLibrary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintModels(llm.Models())
	assert.Contains(t, buf.String(), "gemini-2.5-pro-preview-05-06")

	buf.Reset()
	p.PrintLibrary(nil)
	assert.Contains(t, buf.String(), "No saved prompts yet.")

	buf.Reset()
	p.PrintLibrary([]*library.Entry{{
		Name:    "Best_ run",
		Score:   intPtr(91),
		SavedAt: time.Date(2025, 5, 6, 14, 30, 0, 0, time.UTC),
		Context: map[string]string{"industry": "mobility", "region": "gcc"},
	}})
	out := buf.String()
	assert.Contains(t, out, "Best_ run")
	assert.Contains(t, out, "91")
	assert.Contains(t, out, "2025-05-06 14:30")
	assert.Contains(t, out, "mobility / gcc")
}
