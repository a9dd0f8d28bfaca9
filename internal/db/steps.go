package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const stepColumns = `id, run_id, step, prompt_used, report, score, rationale, feedback, raw_evaluation,
		failed, prompt_updated, warning, created_at`

// SaveStep stores one step of a run. Saving the same step number again replaces it.
func (db *DB) SaveStep(ctx context.Context, runID uuid.UUID, input *StepInput) (*Step, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO optimization_steps (run_id, step, prompt_used, report, score, rationale, feedback,
		                                 raw_evaluation, failed, prompt_updated, warning)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (run_id, step) DO UPDATE SET
		     prompt_used = EXCLUDED.prompt_used, report = EXCLUDED.report, score = EXCLUDED.score,
		     rationale = EXCLUDED.rationale, feedback = EXCLUDED.feedback,
		     raw_evaluation = EXCLUDED.raw_evaluation, failed = EXCLUDED.failed,
		     prompt_updated = EXCLUDED.prompt_updated, warning = EXCLUDED.warning, created_at = NOW()
		 RETURNING `+stepColumns,
		runID, input.Step, input.PromptUsed, input.Report, input.Score, input.Rationale, input.Feedback,
		input.RawEvaluation, input.Failed, input.PromptUpdated, input.Warning,
	)
	step, err := scanStep(row)
	if err != nil {
		return nil, fmt.Errorf("failed to save step %d: %w", input.Step, err)
	}
	return step, nil
}

// GetStep retrieves one step of a run. A missing step returns nil without error.
func (db *DB) GetStep(ctx context.Context, runID uuid.UUID, step int) (*Step, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+stepColumns+` FROM optimization_steps WHERE run_id = $1 AND step = $2`,
		runID, step,
	)
	s, err := scanStep(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get step %d: %w", step, err)
	}
	return s, nil
}

// ListSteps retrieves the steps of a run in step order
func (db *DB) ListSteps(ctx context.Context, runID uuid.UUID) ([]Step, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+stepColumns+` FROM optimization_steps WHERE run_id = $1 ORDER BY step`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	steps := []Step{}
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	return steps, nil
}

func scanStep(row pgx.Row) (*Step, error) {
	var s Step
	err := row.Scan(&s.ID, &s.RunID, &s.Step, &s.PromptUsed, &s.Report, &s.Score, &s.Rationale, &s.Feedback,
		&s.RawEvaluation, &s.Failed, &s.PromptUpdated, &s.Warning, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
