//go:build integration

package db

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests require a running PostgreSQL database.
// Set TEST_DATABASE_URL environment variable to run them.

func getTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	db, err := Connect(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	return db
}

func intPtr(i int) *int { return &i }

func TestIntegration_RunLifecycle(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	runID, err := db.CreateRun(ctx, &RunInput{
		ID:            uuid.New(),
		Name:          "integration",
		MaxSteps:      3,
		TargetScore:   90,
		InitialPrompt: "p0",
		UserQuery:     "q",
		Inputs:        map[string]string{"industry": "energy"},
	})
	require.NoError(t, err)
	defer func() { _ = db.DeleteRun(ctx, runID) }()

	_, err = db.SaveStep(ctx, runID, &StepInput{Step: 1, PromptUsed: "p0", Report: "r", Score: intPtr(70), PromptUpdated: true})
	require.NoError(t, err)
	_, err = db.SaveStep(ctx, runID, &StepInput{Step: 2, PromptUsed: "p1", Report: "Error during this step.", Failed: true})
	require.NoError(t, err)

	require.NoError(t, db.CompleteRun(ctx, runID, &RunCompletion{
		Termination: "steps_exhausted",
		FinalPrompt: "p1",
		BestScore:   intPtr(70),
		BestStep:    intPtr(1),
		BestPrompt:  "p0",
	}))

	run, err := db.GetRun(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, "steps_exhausted", *run.Termination)
	assert.Equal(t, 70, *run.BestScore)
	assert.Equal(t, "energy", run.Inputs["industry"])
	assert.NotNil(t, run.CompletedAt)

	steps, err := db.ListSteps(ctx, runID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 70, *steps[0].Score)
	assert.Nil(t, steps[1].Score)
	assert.True(t, steps[1].Failed)

	runs, err := db.ListRuns(ctx, RunFilters{Name: "integration", Limit: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, runs)
}

func TestIntegration_Missing(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	run, err := db.GetRun(ctx, uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, run)

	step, err := db.GetStep(ctx, uuid.New(), 1)
	assert.NoError(t, err)
	assert.Nil(t, step)

	assert.Error(t, db.CompleteRun(ctx, uuid.New(), &RunCompletion{}))
}
