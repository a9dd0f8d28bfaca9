package optimization

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/prompt-workbench/internal/inputs"
	"github.com/jonathan/prompt-workbench/internal/scoring"
)

const seedPrompt = "P0 {company_name}"

func testInputs() inputs.UserInputSet {
	return inputs.UserInputSet{
		Industry:                "Automotive",
		Region:                  "Middle East",
		TransformationalJourney: "Electric mobility",
		ProgramArea:             "Charging",
		WebContent:              "Charging network expansion announced.",
	}
}

func evaluationText(score string) string {
	return fmt.Sprintf("## Scoring Description:\nrationale for %s\n## Overall Score:\nscore: %s\n## System Prompt Improvement Feedback:\nfeedback for %s", score, score, score)
}

// script is a fake provider stack. Scores are consumed one per evaluation; "" means the
// evaluator output carries no score, "gen-error" makes the generator fail for that step.
type script struct {
	mu          sync.Mutex
	scores      []string
	calls       int
	genPrompts  []string
	evalInputs  []string
	optimized   int
	optimizeErr error
}

func (s *script) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls >= len(s.scores) {
		return "0"
	}
	return s.scores[s.calls]
}

func (s *script) generator() Generator {
	return GeneratorFunc(func(ctx context.Context, systemPrompt, userQuery string) (string, error) {
		s.mu.Lock()
		s.genPrompts = append(s.genPrompts, systemPrompt)
		s.mu.Unlock()
		if s.next() == "gen-error" {
			s.mu.Lock()
			s.calls++
			s.mu.Unlock()
			return "", errors.New("provider unavailable")
		}
		return "report for " + systemPrompt, nil
	})
}

func (s *script) evaluator() Evaluator {
	return EvaluatorFunc(func(ctx context.Context, instruction string) (string, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.evalInputs = append(s.evalInputs, instruction)
		score := "0"
		if s.calls < len(s.scores) {
			score = s.scores[s.calls]
		}
		s.calls++
		if score == "eval-error" {
			return "", errors.New("evaluator timeout")
		}
		if score == "" {
			return "## Scoring Description:\nno number\n## Overall Score:\nscore: N/A\n## System Prompt Improvement Feedback:\nnone", nil
		}
		return evaluationText(score), nil
	})
}

func (s *script) optimizer() Optimizer {
	return OptimizerFunc(func(ctx context.Context, currentPrompt, feedback string) (string, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.optimizeErr != nil {
			return "", s.optimizeErr
		}
		s.optimized++
		return currentPrompt + " v" + strconv.Itoa(s.optimized), nil
	})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newScriptLoop(s *script, opts ...LoopOption) *Loop {
	opts = append([]LoopOption{WithLogger(quietLogger())}, opts...)
	return NewLoop(s.generator(), s.evaluator(), s.optimizer(), opts...)
}

func runConfig(steps, target int, seed *BestResult) RunConfig {
	return RunConfig{
		InitialPrompt: seedPrompt,
		Inputs:        testInputs(),
		MaxSteps:      steps,
		TargetScore:   target,
		Seed:          seed,
	}
}

func seedBest(score int) *BestResult {
	return &BestResult{Score: score, Prompt: seedPrompt, Report: "baseline report", Step: 0}
}

func TestRun_StopsWhenTargetReached(t *testing.T) {
	s := &script{scores: []string{"75", "92", "99"}}

	res, err := newScriptLoop(s).Run(context.Background(), runConfig(3, 90, seedBest(70)))
	require.NoError(t, err)

	assert.Equal(t, TerminationTargetReached, res.Termination)
	require.Len(t, res.History, 2)
	require.NotNil(t, res.Best)
	assert.Equal(t, 92, res.Best.Score)
	assert.Equal(t, 2, res.Best.Step)
	assert.Equal(t, seedPrompt+" v1", res.Best.Prompt)
	assert.Equal(t, "feedback for 92", res.Best.Feedback)

	// the prompt that reached the target is frozen; no update after step 2
	assert.Equal(t, res.History[1].PromptUsed, res.FinalPrompt)
	assert.False(t, res.History[1].PromptUpdated)
	assert.Equal(t, 1, s.optimized)
}

func TestRun_GeneratorFailureIsRecordedAndRunContinues(t *testing.T) {
	s := &script{scores: []string{"gen-error", "80"}}

	res, err := newScriptLoop(s).Run(context.Background(), runConfig(2, 90, seedBest(70)))
	require.NoError(t, err)
	require.Len(t, res.History, 2)

	failed := res.History[0]
	assert.True(t, failed.Failed)
	assert.Nil(t, failed.Evaluation.Score)
	assert.Equal(t, FailedReport, failed.Report)
	assert.Equal(t, FailedFeedback, failed.Evaluation.Feedback)
	assert.True(t, strings.HasPrefix(failed.Evaluation.Rationale, "Error: report generation failed: provider unavailable"))
	assert.Equal(t, failed.Evaluation.Rationale, failed.Evaluation.Raw)

	// no update without a score
	assert.Equal(t, seedPrompt, res.History[1].PromptUsed)
	assert.Equal(t, 80, *res.History[1].Evaluation.Score)
	assert.Equal(t, TerminationStepsExhausted, res.Termination)
}

func TestRun_EvaluatorFailureIsRecorded(t *testing.T) {
	s := &script{scores: []string{"eval-error", "50"}}

	res, err := newScriptLoop(s).Run(context.Background(), runConfig(2, 90, nil))
	require.NoError(t, err)

	assert.True(t, res.History[0].Failed)
	assert.Contains(t, res.History[0].Evaluation.Rationale, "evaluation failed: evaluator timeout")
	assert.Equal(t, seedPrompt, res.History[1].PromptUsed)
	require.NotNil(t, res.Best)
	assert.Equal(t, 50, res.Best.Score)
}

func TestRun_MissingScoreSkipsUpdate(t *testing.T) {
	s := &script{scores: []string{"", "60", "65"}}

	res, err := newScriptLoop(s).Run(context.Background(), runConfig(3, 90, seedBest(10)))
	require.NoError(t, err)
	require.Len(t, res.History, 3)

	assert.Equal(t, warnNoScore, res.History[0].Warning)
	assert.False(t, res.History[0].PromptUpdated)
	assert.Equal(t, res.History[0].PromptUsed, res.History[1].PromptUsed)
	assert.Equal(t, "no number", res.History[0].Evaluation.Rationale)

	assert.True(t, res.History[1].PromptUpdated)
	assert.Equal(t, seedPrompt+" v1", res.History[2].PromptUsed)
	assert.Equal(t, seedPrompt+" v1 v2", res.FinalPrompt)
}

func TestRun_BestRequiresStrictImprovement(t *testing.T) {
	s := &script{scores: []string{"70", "70"}}

	res, err := newScriptLoop(s).Run(context.Background(), runConfig(2, 90, seedBest(70)))
	require.NoError(t, err)

	assert.Equal(t, 0, res.Best.Step)
	assert.Equal(t, "baseline report", res.Best.Report)
	assert.False(t, res.IsBest(res.History[0]))
}

func TestRun_WithoutSeedFirstScoreBecomesBest(t *testing.T) {
	s := &script{scores: []string{"", "0", "0"}}

	res, err := newScriptLoop(s).Run(context.Background(), runConfig(3, 90, nil))
	require.NoError(t, err)

	require.NotNil(t, res.Best)
	assert.Equal(t, 0, res.Best.Score)
	assert.Equal(t, 2, res.Best.Step)
	assert.True(t, res.IsBest(res.History[1]))
}

func TestRun_HistoryIsOrderedAndComplete(t *testing.T) {
	s := &script{scores: []string{"10", "20", "30", "40", "50"}}

	res, err := newScriptLoop(s).Run(context.Background(), runConfig(5, 100, nil))
	require.NoError(t, err)

	require.Len(t, res.History, 5)
	for i, rec := range res.History {
		assert.Equal(t, i+1, rec.Step)
	}
	assert.Equal(t, TerminationStepsExhausted, res.Termination)
	assert.Equal(t, seedPrompt+" v1 v2 v3 v4 v5", res.FinalPrompt)

	display := res.HistoryNewestFirst()
	assert.Equal(t, 5, display[0].Step)
	assert.Equal(t, 1, res.History[0].Step)
}

func TestRun_OptimizerFailureKeepsPrompt(t *testing.T) {
	s := &script{scores: []string{"40", "45"}, optimizeErr: errors.New("rate limited")}

	res, err := newScriptLoop(s).Run(context.Background(), runConfig(2, 90, nil))
	require.NoError(t, err)
	require.Len(t, res.History, 2)

	assert.False(t, res.History[0].Failed)
	assert.Equal(t, "prompt update failed: rate limited", res.History[0].Warning)
	assert.Equal(t, seedPrompt, res.History[1].PromptUsed)
	assert.Equal(t, seedPrompt, res.FinalPrompt)
}

func TestRun_EvaluatorSeesCurrentPromptAndReport(t *testing.T) {
	s := &script{scores: []string{"10", "20"}}

	_, err := newScriptLoop(s).Run(context.Background(), runConfig(2, 90, nil))
	require.NoError(t, err)

	require.Len(t, s.evalInputs, 2)
	assert.Contains(t, s.evalInputs[1], seedPrompt+" v1")
	assert.Contains(t, s.evalInputs[1], "report for "+seedPrompt+" v1")
	assert.Contains(t, s.evalInputs[1], "Charging network expansion announced.")
	assert.Equal(t, []string{seedPrompt, seedPrompt + " v1"}, s.genPrompts)
}

func TestRun_CancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &script{scores: []string{"10", "20", "30"}}
	loop := newScriptLoop(s, WithProgress(func(ev ProgressEvent) {
		if ev.Stage == StageRecorded && ev.Step == 1 {
			cancel()
		}
	}))

	res, err := loop.Run(ctx, runConfig(3, 90, nil))
	require.NoError(t, err)

	assert.Equal(t, TerminationCancelled, res.Termination)
	require.Len(t, res.History, 1)
	assert.Equal(t, 10, res.Best.Score)
	assert.Equal(t, seedPrompt+" v1", res.FinalPrompt)
}

func TestRun_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &script{scores: []string{"10"}}
	res, err := newScriptLoop(s).Run(ctx, runConfig(3, 90, seedBest(5)))
	require.NoError(t, err)

	assert.Equal(t, TerminationCancelled, res.Termination)
	assert.Empty(t, res.History)
	assert.Equal(t, 5, res.Best.Score)
	assert.Equal(t, seedPrompt, res.FinalPrompt)
}

func TestRun_ProgressEvents(t *testing.T) {
	var stages []Stage
	s := &script{scores: []string{"95"}}
	loop := newScriptLoop(s, WithProgress(func(ev ProgressEvent) {
		stages = append(stages, ev.Stage)
		assert.NotEmpty(t, ev.RunID)
		assert.Equal(t, 2, ev.Total)
	}))

	_, err := loop.Run(context.Background(), runConfig(2, 90, nil))
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageGenerating, StageEvaluating, StageRecorded, StageFinished}, stages)
}

func TestRun_RejectsInvalidConfig(t *testing.T) {
	badInputs := runConfig(3, 90, nil)
	badInputs.Inputs.Region = " "

	tests := []struct {
		name      string
		cfg       RunConfig
		wantField string
	}{
		{"zero steps", runConfig(0, 90, nil), "max_steps"},
		{"too many steps", runConfig(21, 90, nil), "max_steps"},
		{"negative target", runConfig(3, -1, nil), "target_score"},
		{"target above 100", runConfig(3, 101, nil), "target_score"},
		{"seed above 100", runConfig(3, 90, seedBest(101)), "seed.score"},
		{"empty prompt", RunConfig{Inputs: testInputs(), MaxSteps: 1, TargetScore: 90}, "initial_prompt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &script{}
			_, err := newScriptLoop(s).Run(context.Background(), tt.cfg)

			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, tt.wantField, cerr.Field)
			assert.Empty(t, s.genPrompts)
		})
	}

	t.Run("invalid inputs", func(t *testing.T) {
		s := &script{}
		_, err := newScriptLoop(s).Run(context.Background(), badInputs)

		var verr *inputs.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.True(t, verr.Has("region"))
		assert.Empty(t, s.genPrompts)
	})
}

// Random score sequences, including missing scores and failures, must keep the loop invariants.
func TestRun_RandomSequencesKeepInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	choices := func() string {
		switch n := r.Intn(10); {
		case n == 0:
			return ""
		case n == 1:
			return "gen-error"
		case n == 2:
			return "eval-error"
		default:
			return strconv.Itoa(r.Intn(101))
		}
	}

	for iter := 0; iter < 200; iter++ {
		steps := 1 + r.Intn(8)
		target := r.Intn(101)
		scores := make([]string, steps)
		for i := range scores {
			scores[i] = choices()
		}
		var seed *BestResult
		if r.Intn(2) == 0 {
			seed = seedBest(r.Intn(101))
		}

		s := &script{scores: scores}
		res, err := newScriptLoop(s).Run(context.Background(), runConfig(steps, target, seed))
		require.NoError(t, err)

		// ordered, append-only history
		for i, rec := range res.History {
			require.Equal(t, i+1, rec.Step)
		}

		// best equals the max of seed and every present score, and never decreases
		maxScore, have := -1, false
		if seed != nil {
			maxScore, have = seed.Score, true
		}
		firstHit := 0
		for _, rec := range res.History {
			if sc, ok := rec.Evaluation.ScoreValue(); ok {
				if sc > maxScore {
					maxScore = sc
				}
				have = true
				require.LessOrEqual(t, sc, res.Best.Score)
				if firstHit == 0 && sc >= target {
					firstHit = rec.Step
				}
			}
		}
		if have {
			require.NotNil(t, res.Best)
			require.Equal(t, maxScore, res.Best.Score)
		} else {
			require.Nil(t, res.Best)
		}

		// early stop after the first step reaching the target, with the prompt frozen
		if firstHit > 0 {
			require.Equal(t, TerminationTargetReached, res.Termination)
			require.Len(t, res.History, firstHit)
			require.Equal(t, res.History[firstHit-1].PromptUsed, res.FinalPrompt)
		} else {
			require.Equal(t, TerminationStepsExhausted, res.Termination)
			require.Len(t, res.History, steps)
		}

		// a step without a score never changes the prompt
		for i := 0; i+1 < len(res.History); i++ {
			if !res.History[i].Evaluation.HasScore() {
				require.Equal(t, res.History[i].PromptUsed, res.History[i+1].PromptUsed)
			}
		}
	}
}

func TestBaseline(t *testing.T) {
	s := &script{scores: []string{"70"}}
	loop := newScriptLoop(s)

	rec, err := loop.Baseline(context.Background(), seedPrompt, testInputs())
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Step)
	assert.Equal(t, "report for "+seedPrompt, rec.Report)

	best, ok := rec.AsBest()
	require.True(t, ok)
	assert.Equal(t, 70, best.Score)
	assert.Equal(t, 0, best.Step)
	assert.Equal(t, seedPrompt, best.Prompt)

	unscored := StepRecord{Evaluation: scoring.Parse("nothing")}
	_, ok = unscored.AsBest()
	assert.False(t, ok)
}

func TestBaseline_Errors(t *testing.T) {
	s := &script{scores: []string{"gen-error"}}
	_, err := newScriptLoop(s).Baseline(context.Background(), seedPrompt, testInputs())
	var gerr *GenerationError
	assert.True(t, errors.As(err, &gerr))

	s = &script{scores: []string{"eval-error"}}
	_, err = newScriptLoop(s).Baseline(context.Background(), seedPrompt, testInputs())
	var eerr *EvaluationError
	assert.True(t, errors.As(err, &eerr))

	in := testInputs()
	in.WebContent = ""
	_, err = newScriptLoop(&script{}).Baseline(context.Background(), seedPrompt, in)
	var verr *inputs.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestEvaluateReport(t *testing.T) {
	s := &script{scores: []string{"66"}}
	eval, err := newScriptLoop(s).EvaluateReport(context.Background(), seedPrompt, testInputs(), "an existing report")
	require.NoError(t, err)
	assert.Equal(t, 66, *eval.Score)
	assert.Contains(t, s.evalInputs[0], "an existing report")
}

func TestRunBatch(t *testing.T) {
	evaluator := EvaluatorFunc(func(ctx context.Context, instruction string) (string, error) {
		return evaluationText("95"), nil
	})
	generator := GeneratorFunc(func(ctx context.Context, systemPrompt, userQuery string) (string, error) {
		return "report", nil
	})
	optimizer := OptimizerFunc(func(ctx context.Context, currentPrompt, feedback string) (string, error) {
		return currentPrompt, nil
	})
	loop := NewLoop(generator, evaluator, optimizer, WithLogger(quietLogger()))

	items := []BatchItem{
		{Name: "a", Config: runConfig(2, 90, nil)},
		{Name: "invalid", Config: runConfig(0, 90, nil)},
		{Name: "c", Config: runConfig(1, 90, nil)},
	}

	results := loop.RunBatch(context.Background(), items, BatchOptions{Concurrency: 2, Interval: time.Millisecond})
	require.Len(t, results, 3)

	assert.Equal(t, "a", results[0].Name)
	require.NoError(t, results[0].Err)
	assert.Equal(t, TerminationTargetReached, results[0].Result.Termination)

	assert.Equal(t, "invalid", results[1].Name)
	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Result)

	require.NoError(t, results[2].Err)
	assert.Equal(t, 95, results[2].Result.Best.Score)
	assert.NotEqual(t, results[0].Result.RunID, results[2].Result.RunID)
}

func TestRunBatch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop := newScriptLoop(&script{})
	results := loop.RunBatch(ctx, []BatchItem{{Name: "x", Config: runConfig(1, 90, nil)}}, BatchOptions{})
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}
