package schemas

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/prompt-workbench/internal/optimization"
	"github.com/jonathan/prompt-workbench/internal/scoring"
)

func intPtr(i int) *int { return &i }

func sampleRun() *optimization.RunResult {
	started := time.Date(2025, 5, 6, 14, 0, 0, 0, time.UTC)
	return &optimization.RunResult{
		RunID:         uuid.New(),
		Termination:   optimization.TerminationStepsExhausted,
		MaxSteps:      2,
		TargetScore:   90,
		UserQuery:     "query",
		InitialPrompt: "p0",
		FinalPrompt:   "p1",
		Best:          &optimization.BestResult{Score: 70, Prompt: "p0", Step: 1},
		History: []optimization.StepRecord{
			{Step: 1, PromptUsed: "p0", Report: "r", Evaluation: scoring.Evaluation{Score: intPtr(70), Rationale: "ok", Feedback: "more"}, PromptUpdated: true},
			{Step: 2, PromptUsed: "p1", Report: "r", Evaluation: scoring.Evaluation{Rationale: "?", Feedback: "?"}, Warning: "no score"},
		},
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	}
}

func TestSchema_Names(t *testing.T) {
	assert.Equal(t, []string{NameBatch, NameInputs, NameRunResult}, Names())

	for _, name := range Names() {
		data, err := Schema(name)
		require.NoError(t, err, name)
		assert.True(t, json.Valid(data), name)
	}

	_, err := Schema("cover-letter")
	var loadErr *SchemaLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Contains(t, err.Error(), "unknown schema")
}

func TestRunResultSchema_Shape(t *testing.T) {
	data, err := RunResultSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))

	assert.NotContains(t, schema, "$schema")
	props := schema["properties"].(map[string]any)
	runID := props["run_id"].(map[string]any)
	assert.Equal(t, "string", runID["type"])
	assert.Equal(t, "uuid", runID["format"])
	assert.Contains(t, schema["required"], "history")
	assert.NotContains(t, schema["required"], "best")
}

func TestValidateRunResult(t *testing.T) {
	data, err := json.Marshal(sampleRun())
	require.NoError(t, err)
	assert.NoError(t, ValidateRunResult(data))
}

func TestValidateRunResult_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc map[string]any)
		field  string
	}{
		{
			name:   "unknown termination",
			mutate: func(doc map[string]any) { doc["termination"] = "crashed" },
			field:  "termination",
		},
		{
			name:   "best score out of range",
			mutate: func(doc map[string]any) { doc["best"].(map[string]any)["score"] = 140 },
			field:  "best.score",
		},
		{
			name:   "missing history",
			mutate: func(doc map[string]any) { delete(doc, "history") },
			field:  "(root)",
		},
		{
			name:   "score is a string",
			mutate: func(doc map[string]any) { doc["history"].([]any)[0].(map[string]any)["evaluation"].(map[string]any)["score"] = "70" },
			field:  "history.0.evaluation.score",
		},
		{
			name:   "unknown field",
			mutate: func(doc map[string]any) { doc["extra"] = true },
			field:  "(root)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(sampleRun())
			require.NoError(t, err)
			var doc map[string]any
			require.NoError(t, json.Unmarshal(data, &doc))
			tt.mutate(doc)
			data, err = json.Marshal(doc)
			require.NoError(t, err)

			err = ValidateRunResult(data)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, NameRunResult, verr.Schema)

			fields := make([]string, len(verr.Errors))
			for i, fe := range verr.Errors {
				fields[i] = fe.Field
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidateInputs(t *testing.T) {
	valid := `{"industry":"Energy","region":"GCC","transformational_journey":"Net zero","program_area":"Grid","web_content":"x"}`
	assert.NoError(t, ValidateInputs([]byte(valid)))

	err := ValidateInputs([]byte(`{"industry":"Energy","future_year":-3,"colour":"red"}`))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "inputs validation failed")
	assert.GreaterOrEqual(t, len(verr.Errors), 3)
}

func TestValidate_NotJSON(t *testing.T) {
	err := ValidateRunResult([]byte("{not json"))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Errors[0].Message, "not valid JSON")
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`

	assert.NoError(t, ValidateJSONString(schema, `{"name":"x"}`))

	err := ValidateJSONString(schema, `{"name":3}`)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Errors[0].Field)

	err = ValidateJSONString(`{"type": 12}`, `{}`)
	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}
