package optimization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/prompt-workbench/internal/inputs"
	"github.com/jonathan/prompt-workbench/internal/scoring"
)

const warnNoScore = "no score parsed from evaluation; prompt update skipped"

// Loop runs optimization over a generator, an evaluator and an optimizer. A Loop holds no run
// state and may serve concurrent runs if its progress callback is safe for concurrent use.
type Loop struct {
	generator  Generator
	evaluator  Evaluator
	optimizer  Optimizer
	logger     *slog.Logger
	now        func() time.Time
	onProgress ProgressCallback
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the logger for step warnings and run summaries.
func WithLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) LoopOption {
	return func(l *Loop) {
		l.now = now
	}
}

// WithProgress registers a progress callback.
func WithProgress(cb ProgressCallback) LoopOption {
	return func(l *Loop) {
		l.onProgress = cb
	}
}

// NewLoop creates a Loop over the three ports.
func NewLoop(g Generator, e Evaluator, o Optimizer, opts ...LoopOption) *Loop {
	l := &Loop{
		generator: g,
		evaluator: e,
		optimizer: o,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var (
	configValidator     *validator.Validate
	configValidatorOnce sync.Once
)

func getConfigValidator() *validator.Validate {
	configValidatorOnce.Do(func() {
		configValidator = validator.New()
		configValidator.RegisterTagNameFunc(func(fld reflect.StructField) string {
			return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		})
	})
	return configValidator
}

// Validate checks run parameters, then the inputs. Parameter problems are *ConfigError, input
// problems are *inputs.ValidationError.
func (c RunConfig) Validate() error {
	if err := getConfigValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigError{Field: fe.Namespace()[strings.Index(fe.Namespace(), ".")+1:], Message: describeConfig(fe)}
		}
		return &ConfigError{Field: "config", Message: err.Error()}
	}
	return c.Inputs.Validate()
}

func describeConfig(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// Generate renders the user query and produces one report.
func (l *Loop) Generate(ctx context.Context, prompt string, in inputs.UserInputSet) (report, userQuery string, err error) {
	userQuery, err = in.RenderUserQuery(l.now())
	if err != nil {
		return "", "", err
	}
	report, err = l.generator.Generate(ctx, prompt, userQuery)
	if err != nil {
		return "", userQuery, asGenerationError(err)
	}
	return report, userQuery, nil
}

// EvaluateReport scores a report produced by prompt for the given inputs.
func (l *Loop) EvaluateReport(ctx context.Context, prompt string, in inputs.UserInputSet, report string) (scoring.Evaluation, error) {
	now := l.now()
	userQuery, err := in.RenderUserQuery(now)
	if err != nil {
		return scoring.Evaluation{}, err
	}
	return l.evaluate(ctx, now, prompt, in, userQuery, report)
}

func (l *Loop) evaluate(ctx context.Context, now time.Time, prompt string, in inputs.UserInputSet, userQuery, report string) (scoring.Evaluation, error) {
	instruction, err := in.RenderEvaluation(now, prompt, userQuery, report)
	if err != nil {
		return scoring.Evaluation{}, asEvaluationError(err)
	}
	raw, err := l.evaluator.Evaluate(ctx, instruction)
	if err != nil {
		return scoring.Evaluation{}, asEvaluationError(err)
	}
	return scoring.Parse(raw), nil
}

// Baseline generates and evaluates once with prompt. The record is step 0.
func (l *Loop) Baseline(ctx context.Context, prompt string, in inputs.UserInputSet) (*StepRecord, error) {
	report, userQuery, err := l.Generate(ctx, prompt, in)
	if err != nil {
		return nil, err
	}
	eval, err := l.evaluate(ctx, l.now(), prompt, in, userQuery, report)
	if err != nil {
		return nil, err
	}
	return &StepRecord{Step: 0, PromptUsed: prompt, Report: report, Evaluation: eval}, nil
}

// AsBest converts a scored record into a BestResult. It reports false when no score was parsed.
func (r StepRecord) AsBest() (*BestResult, bool) {
	score, ok := r.Evaluation.ScoreValue()
	if !ok {
		return nil, false
	}
	return &BestResult{
		Score:     score,
		Prompt:    r.PromptUsed,
		Report:    r.Report,
		Rationale: r.Evaluation.Rationale,
		Feedback:  r.Evaluation.Feedback,
		Step:      r.Step,
	}, true
}

// Run executes up to cfg.MaxSteps steps. The only errors returned are configuration and input
// validation errors; failures inside a step are recorded in the history and the run continues.
// Cancellation is checked between steps.
func (l *Loop) Run(ctx context.Context, cfg RunConfig) (*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	started := l.now()
	userQuery, err := cfg.Inputs.RenderUserQuery(started)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:         uuid.New(),
		Termination:   TerminationStepsExhausted,
		MaxSteps:      cfg.MaxSteps,
		TargetScore:   cfg.TargetScore,
		UserQuery:     userQuery,
		InitialPrompt: cfg.InitialPrompt,
		History:       make([]StepRecord, 0, cfg.MaxSteps),
		StartedAt:     started,
	}
	if cfg.Seed != nil {
		seed := *cfg.Seed
		result.Best = &seed
	}

	logger := l.logger.With(slog.String("run_id", result.RunID.String()))
	emit := func(step int, stage Stage, message string, content any) {
		if l.onProgress != nil {
			l.onProgress(ProgressEvent{
				RunID:   result.RunID.String(),
				Step:    step,
				Total:   cfg.MaxSteps,
				Stage:   stage,
				Message: message,
				Content: content,
			})
		}
	}

	current := cfg.InitialPrompt
	for step := 1; step <= cfg.MaxSteps; step++ {
		if ctx.Err() != nil {
			result.Termination = TerminationCancelled
			logger.Info("run cancelled", slog.Int("completed_steps", step-1))
			break
		}

		rec := StepRecord{Step: step, PromptUsed: current}

		emit(step, StageGenerating, fmt.Sprintf("Step %d/%d: generating report", step, cfg.MaxSteps), nil)
		report, err := l.generator.Generate(ctx, current, userQuery)
		if err == nil {
			rec.Report = report
			emit(step, StageEvaluating, fmt.Sprintf("Step %d/%d: evaluating report", step, cfg.MaxSteps), nil)
			rec.Evaluation, err = l.evaluate(ctx, l.now(), current, cfg.Inputs, userQuery, report)
		} else {
			err = asGenerationError(err)
		}

		if err != nil {
			rec = failedRecord(step, current, err)
			logger.Warn("optimization step failed", slog.Int("step", step), slog.String("error", err.Error()))
			result.History = append(result.History, rec)
			emit(step, StageRecorded, fmt.Sprintf("Step %d failed: %v", step, err), rec)
			continue
		}

		score, scored := rec.Evaluation.ScoreValue()
		if scored && (result.Best == nil || score > result.Best.Score) {
			result.Best, _ = rec.AsBest()
			logger.Info("new best score", slog.Int("step", step), slog.Int("score", score))
		}

		if scored && score >= cfg.TargetScore {
			result.History = append(result.History, rec)
			result.Termination = TerminationTargetReached
			emit(step, StageRecorded, fmt.Sprintf("Target score reached at step %d: %d", step, score), rec)
			break
		}

		if !scored {
			rec.Warning = warnNoScore
			logger.Warn(warnNoScore, slog.Int("step", step))
		} else {
			emit(step, StageUpdating, fmt.Sprintf("Step %d/%d: score %d, updating prompt", step, cfg.MaxSteps, score), nil)
			revised, err := l.optimizer.Step(ctx, current, rec.Evaluation.Feedback)
			if err != nil {
				err = asOptimizationStepError(err)
				rec.Warning = err.Error()
				logger.Warn("prompt update failed", slog.Int("step", step), slog.String("error", err.Error()))
			} else {
				current = revised
				rec.PromptUpdated = true
			}
		}

		result.History = append(result.History, rec)
		emit(step, StageRecorded, stepSummary(rec), rec)
	}

	result.FinalPrompt = current
	result.FinishedAt = l.now()

	attrs := []any{
		slog.String("termination", string(result.Termination)),
		slog.Int("steps", len(result.History)),
		slog.Duration("duration", result.FinishedAt.Sub(started)),
	}
	if result.Best != nil {
		attrs = append(attrs, slog.Int("best_score", result.Best.Score), slog.Int("best_step", result.Best.Step))
	}
	logger.Info("optimization finished", attrs...)
	emit(len(result.History), StageFinished, "Optimization process finished.", nil)

	return result, nil
}

func failedRecord(step int, prompt string, err error) StepRecord {
	msg := "Error: " + err.Error()
	return StepRecord{
		Step:       step,
		PromptUsed: prompt,
		Report:     FailedReport,
		Evaluation: scoring.Evaluation{
			Rationale: msg,
			Feedback:  FailedFeedback,
			Raw:       msg,
		},
		Failed: true,
	}
}

func stepSummary(rec StepRecord) string {
	score, ok := rec.Evaluation.ScoreValue()
	if !ok {
		return fmt.Sprintf("Step %d: no score", rec.Step)
	}
	return fmt.Sprintf("Step %d: score %d", rec.Step, score)
}
