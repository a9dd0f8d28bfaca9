package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/prompt-workbench/internal/db"
	"github.com/jonathan/prompt-workbench/internal/observability"
	"github.com/jonathan/prompt-workbench/internal/optimization"
	"github.com/jonathan/prompt-workbench/internal/schemas"
	"github.com/jonathan/prompt-workbench/internal/scoring"
)

var showCmd = &cobra.Command{
	Use:   "show <run.json | run-id>",
	Short: "Display a saved optimization run",
	Long: `Displays a run result written by "optimize --out", after validating it against the run-result schema.
Given a run id instead of a file, the run is read from the history database.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

// loadRunResult reads and schema-validates a run result file.
func loadRunResult(path string) (*optimization.RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}
	if err := schemas.ValidateRunResult(data); err != nil {
		return nil, err
	}

	var res optimization.RunResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run result: %w", err)
	}
	return &res, nil
}

func runShow(cmd *cobra.Command, args []string) error {
	p := observability.NewPrinter(cmd.OutOrStdout())

	if _, statErr := os.Stat(args[0]); statErr == nil {
		res, err := loadRunResult(args[0])
		if err != nil {
			return err
		}
		p.PrintRunResult(res)
		return nil
	}

	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("%s is neither a readable file nor a run id", args[0])
	}

	a, err := newApp(cmd, appOptions{history: true})
	if err != nil {
		return err
	}
	defer a.Close()

	detail, err := a.svc.Run(cmd.Context(), id)
	if err != nil {
		return err
	}
	p.PrintRunResult(runFromHistory(detail.Run, detail.Steps))
	return nil
}

// runFromHistory rebuilds a printable run result from stored rows.
func runFromHistory(run *db.Run, steps []db.Step) *optimization.RunResult {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}

	res := &optimization.RunResult{
		RunID:         run.ID,
		Termination:   optimization.Termination(deref(run.Termination)),
		MaxSteps:      run.MaxSteps,
		TargetScore:   run.TargetScore,
		UserQuery:     run.UserQuery,
		InitialPrompt: run.InitialPrompt,
		FinalPrompt:   deref(run.FinalPrompt),
		StartedAt:     run.CreatedAt,
	}
	if run.CompletedAt != nil {
		res.FinishedAt = *run.CompletedAt
	}
	if run.BestScore != nil {
		res.Best = &optimization.BestResult{Score: *run.BestScore, Prompt: deref(run.BestPrompt)}
		if run.BestStep != nil {
			res.Best.Step = *run.BestStep
		}
	}

	for _, s := range steps {
		res.History = append(res.History, optimization.StepRecord{
			Step:       s.Step,
			PromptUsed: s.PromptUsed,
			Report:     s.Report,
			Evaluation: scoring.Evaluation{
				Score:     s.Score,
				Rationale: s.Rationale,
				Feedback:  s.Feedback,
				Raw:       s.RawEvaluation,
			},
			Failed:        s.Failed,
			PromptUpdated: s.PromptUpdated,
			Warning:       s.Warning,
		})
	}
	return res
}
