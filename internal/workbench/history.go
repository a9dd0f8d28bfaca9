package workbench

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jonathan/prompt-workbench/internal/db"
	"github.com/jonathan/prompt-workbench/internal/optimization"
)

// RunDetail is a stored run with its steps.
type RunDetail struct {
	Run   *db.Run   `json:"run"`
	Steps []db.Step `json:"steps"`
}

// Runs lists stored runs, newest first.
func (s *Service) Runs(ctx context.Context, filters db.RunFilters) ([]db.Run, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.ListRuns(ctx, filters)
}

// Run returns one stored run with its steps.
func (s *Service) Run(ctx context.Context, id uuid.UUID) (*RunDetail, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	steps, err := s.store.ListSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Run: run, Steps: steps}, nil
}

// recorder writes a run to the store as it progresses. Store failures are logged and never
// interrupt the run.
type recorder struct {
	store  RunStore
	logger *slog.Logger
	input  db.RunInput

	runID   uuid.UUID
	started bool
	broken  bool
}

func (s *Service) newRecorder(name string, cfg optimization.RunConfig) *recorder {
	r := &recorder{store: s.store, logger: s.logger}
	r.input = db.RunInput{
		Name:          name,
		MaxSteps:      cfg.MaxSteps,
		TargetScore:   cfg.TargetScore,
		InitialPrompt: cfg.InitialPrompt,
		Inputs:        cfg.Inputs.Context(),
	}
	if q, err := cfg.Inputs.RenderUserQuery(s.now()); err == nil {
		r.input.UserQuery = q
	}
	return r
}

func (r *recorder) active() bool {
	return r.store != nil && !r.broken
}

// observe handles one progress event. The loop emits events synchronously, so no locking is needed.
func (r *recorder) observe(ctx context.Context, ev optimization.ProgressEvent) {
	if !r.active() {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if !r.started {
		id, err := uuid.Parse(ev.RunID)
		if err != nil {
			r.fail("invalid run id in progress event", err)
			return
		}
		r.input.ID = id
		if _, err := r.store.CreateRun(ctx, &r.input); err != nil {
			r.fail("failed to record run", err)
			return
		}
		r.runID = id
		r.started = true
	}

	if ev.Stage != optimization.StageRecorded {
		return
	}
	rec, ok := ev.Content.(optimization.StepRecord)
	if !ok {
		return
	}
	if _, err := r.store.SaveStep(ctx, r.runID, stepInput(rec)); err != nil {
		r.logger.Warn("failed to record step", "run_id", r.runID, "step", rec.Step, "error", err)
	}
}

func (r *recorder) complete(ctx context.Context, res *optimization.RunResult) {
	if !r.active() || !r.started {
		return
	}
	if err := r.store.CompleteRun(context.WithoutCancel(ctx), r.runID, completion(res)); err != nil {
		r.logger.Warn("failed to complete run record", "run_id", r.runID, "error", err)
	}
}

func (r *recorder) fail(msg string, err error) {
	r.broken = true
	r.logger.Warn(msg, "error", err)
}

// persist writes a finished run in one pass.
func (s *Service) persist(ctx context.Context, name string, cfg optimization.RunConfig, res *optimization.RunResult) {
	if s.store == nil {
		return
	}
	r := s.newRecorder(name, cfg)
	r.input.UserQuery = res.UserQuery
	r.observe(ctx, optimization.ProgressEvent{RunID: res.RunID.String(), Stage: optimization.StageGenerating})
	for _, rec := range res.History {
		r.observe(ctx, optimization.ProgressEvent{RunID: res.RunID.String(), Stage: optimization.StageRecorded, Content: rec})
	}
	r.complete(ctx, res)
}

func stepInput(rec optimization.StepRecord) *db.StepInput {
	return &db.StepInput{
		Step:          rec.Step,
		PromptUsed:    rec.PromptUsed,
		Report:        rec.Report,
		Score:         rec.Evaluation.Score,
		Rationale:     rec.Evaluation.Rationale,
		Feedback:      rec.Evaluation.Feedback,
		RawEvaluation: rec.Evaluation.Raw,
		Failed:        rec.Failed,
		PromptUpdated: rec.PromptUpdated,
		Warning:       rec.Warning,
	}
}

func completion(res *optimization.RunResult) *db.RunCompletion {
	c := &db.RunCompletion{
		Status:      db.RunStatusCompleted,
		Termination: string(res.Termination),
		FinalPrompt: res.FinalPrompt,
	}
	if res.Best != nil {
		score, step := res.Best.Score, res.Best.Step
		c.BestScore = &score
		c.BestStep = &step
		c.BestPrompt = res.Best.Prompt
	}
	return c
}
