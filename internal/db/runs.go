package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const runColumns = `id, name, status, termination, max_steps, target_score, initial_prompt, final_prompt,
		user_query, inputs, best_score, best_step, best_prompt, error_message, created_at, completed_at`

// CreateRun inserts a running run record. A nil input ID gets a fresh one.
func (db *DB) CreateRun(ctx context.Context, input *RunInput) (uuid.UUID, error) {
	id := input.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	var inputsJSON []byte
	if len(input.Inputs) > 0 {
		var err error
		inputsJSON, err = json.Marshal(input.Inputs)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to marshal inputs: %w", err)
		}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO optimization_runs (id, name, status, max_steps, target_score, initial_prompt, user_query, inputs)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, input.Name, RunStatusRunning, input.MaxSteps, input.TargetScore, input.InitialPrompt, input.UserQuery, inputsJSON,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// CompleteRun records how a run ended
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID, c *RunCompletion) error {
	status := c.Status
	if status == "" {
		status = RunStatusCompleted
	}

	result, err := db.pool.Exec(ctx,
		`UPDATE optimization_runs
		 SET status = $1, termination = NULLIF($2, ''), final_prompt = $3, best_score = $4, best_step = $5,
		     best_prompt = NULLIF($6, ''), error_message = NULLIF($7, ''), completed_at = NOW()
		 WHERE id = $8`,
		status, c.Termination, c.FinalPrompt, c.BestScore, c.BestStep, c.BestPrompt, c.Error, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetRun retrieves a run by ID. A missing run returns nil without error.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM optimization_runs WHERE id = $1`, runID)
	run, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves recent runs, newest first
func (db *DB) ListRuns(ctx context.Context, filters RunFilters) ([]Run, error) {
	query, args := buildListRunsQuery(filters)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// DeleteRun deletes a run and its steps (via cascade)
func (db *DB) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	result, err := db.pool.Exec(ctx, `DELETE FROM optimization_runs WHERE id = $1`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

func buildListRunsQuery(filters RunFilters) (string, []any) {
	if filters.Limit <= 0 {
		filters.Limit = DefaultListLimit
	}

	query := `SELECT ` + runColumns + ` FROM optimization_runs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filters.Status)
		argNum++
	}
	if filters.Termination != "" {
		query += fmt.Sprintf(" AND termination = $%d", argNum)
		args = append(args, filters.Termination)
		argNum++
	}
	if filters.Name != "" {
		query += fmt.Sprintf(" AND name ILIKE $%d", argNum)
		args = append(args, "%"+filters.Name+"%")
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)
	return query, args
}

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	var inputsJSON []byte
	err := row.Scan(&run.ID, &run.Name, &run.Status, &run.Termination, &run.MaxSteps, &run.TargetScore,
		&run.InitialPrompt, &run.FinalPrompt, &run.UserQuery, &inputsJSON, &run.BestScore, &run.BestStep,
		&run.BestPrompt, &run.ErrorMessage, &run.CreatedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}
	if len(inputsJSON) > 0 {
		_ = json.Unmarshal(inputsJSON, &run.Inputs)
	}
	return &run, nil
}
