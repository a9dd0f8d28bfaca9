package workbench

import (
	"context"
	"strings"

	"github.com/jonathan/prompt-workbench/internal/fetch"
	"github.com/jonathan/prompt-workbench/internal/inputs"
	"github.com/jonathan/prompt-workbench/internal/library"
	"github.com/jonathan/prompt-workbench/internal/optimization"
	"github.com/jonathan/prompt-workbench/internal/prompts"
	"github.com/jonathan/prompt-workbench/internal/scoring"
)

// GenerateRequest asks for one report.
type GenerateRequest struct {
	Prompt string              `json:"prompt,omitempty"`
	Inputs inputs.UserInputSet `json:"inputs" validate:"-"`
}

// GenerateResult is a generated report with the user query that produced it.
type GenerateResult struct {
	Report    string `json:"report"`
	UserQuery string `json:"user_query"`
}

// EvaluateRequest asks for a report to be scored. An empty Report generates one first.
type EvaluateRequest struct {
	Prompt string              `json:"prompt,omitempty"`
	Inputs inputs.UserInputSet `json:"inputs" validate:"-"`
	Report string              `json:"report,omitempty"`
}

// EvaluateResult is a scored report.
type EvaluateResult struct {
	Report     string             `json:"report"`
	UserQuery  string             `json:"user_query,omitempty"`
	Evaluation scoring.Evaluation `json:"evaluation"`
}

// OptimizeRequest configures one optimization run.
type OptimizeRequest struct {
	Name   string              `json:"name,omitempty"`
	Prompt string              `json:"prompt,omitempty"`
	Inputs inputs.UserInputSet `json:"inputs" validate:"-"`

	// MaxSteps of zero uses the default.
	MaxSteps int `json:"max_steps,omitempty"`
	// TargetScore nil uses the default; zero is a valid target.
	TargetScore *int `json:"target_score,omitempty"`

	// Seed is a known baseline. When nil and SkipBaseline is false, a baseline evaluation
	// is run first and must produce a score.
	Seed         *optimization.BestResult `json:"seed,omitempty"`
	SkipBaseline bool                     `json:"skip_baseline,omitempty"`
}

func (s *Service) prompt(p string) string {
	if strings.TrimSpace(p) == "" {
		return prompts.InitialSystemPrompt()
	}
	return p
}

// Generate produces one report. An empty prompt uses the built-in initial system prompt.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	report, query, err := s.loop().Generate(ctx, s.prompt(req.Prompt), req.Inputs)
	if err != nil {
		return nil, err
	}
	return &GenerateResult{Report: report, UserQuery: query}, nil
}

// Evaluate scores a report, generating it first when none is given.
func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateResult, error) {
	prompt := s.prompt(req.Prompt)
	loop := s.loop()

	if strings.TrimSpace(req.Report) == "" {
		rec, err := loop.Baseline(ctx, prompt, req.Inputs)
		if err != nil {
			return nil, err
		}
		query, err := req.Inputs.RenderUserQuery(s.now())
		if err != nil {
			return nil, err
		}
		return &EvaluateResult{Report: rec.Report, UserQuery: query, Evaluation: rec.Evaluation}, nil
	}

	if err := req.Inputs.Validate(); err != nil {
		return nil, err
	}
	eval, err := loop.EvaluateReport(ctx, prompt, req.Inputs, req.Report)
	if err != nil {
		return nil, err
	}
	return &EvaluateResult{Report: req.Report, Evaluation: eval}, nil
}

// Optimize runs the loop, seeding it from a baseline evaluation unless a seed is supplied.
// Progress events are forwarded to onProgress, which may be nil.
func (s *Service) Optimize(ctx context.Context, req OptimizeRequest, onProgress optimization.ProgressCallback) (*optimization.RunResult, error) {
	cfg := s.runConfig(req)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Seed == nil && !req.SkipBaseline {
		seed, err := s.baseline(ctx, cfg.InitialPrompt, cfg.Inputs)
		if err != nil {
			return nil, err
		}
		cfg.Seed = seed
	}

	rec := s.newRecorder(req.Name, cfg)
	res, err := s.loop(optimization.WithProgress(func(ev optimization.ProgressEvent) {
		rec.observe(ctx, ev)
		if onProgress != nil {
			onProgress(ev)
		}
	})).Run(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rec.complete(ctx, res)
	return res, nil
}

func (s *Service) runConfig(req OptimizeRequest) optimization.RunConfig {
	cfg := optimization.RunConfig{
		InitialPrompt: s.prompt(req.Prompt),
		Inputs:        req.Inputs,
		MaxSteps:      req.MaxSteps,
		TargetScore:   optimization.DefaultTargetScore,
		Seed:          req.Seed,
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = optimization.DefaultMaxSteps
	}
	if req.TargetScore != nil {
		cfg.TargetScore = *req.TargetScore
	}
	if cfg.Seed != nil && cfg.Seed.Prompt == "" {
		seed := *cfg.Seed
		seed.Prompt = cfg.InitialPrompt
		cfg.Seed = &seed
	}
	return cfg
}

func (s *Service) baseline(ctx context.Context, prompt string, in inputs.UserInputSet) (*optimization.BestResult, error) {
	s.logger.Info("running baseline evaluation")
	rec, err := s.loop().Baseline(ctx, prompt, in)
	if err != nil {
		return nil, &BaselineError{Message: "could not generate and evaluate the initial prompt", Cause: err}
	}
	best, ok := rec.AsBest()
	if !ok {
		return nil, &BaselineError{Message: "no score could be parsed from the evaluation; supply a seed score or skip the baseline"}
	}
	s.logger.Info("baseline scored", "score", best.Score)
	return best, nil
}

// Batch runs independent optimizations. Items without a seed run without a baseline.
func (s *Service) Batch(ctx context.Context, items []optimization.BatchItem) []optimization.BatchResult {
	results := s.loop().RunBatch(ctx, items, s.batchOpts)
	for i, r := range results {
		if r.Result != nil {
			s.persist(ctx, r.Name, items[i].Config, r.Result)
		}
	}
	return results
}

// SaveBest stores the best prompt of a run in the library. An empty name uses the suggested
// name; the context comes from the run inputs.
func (s *Service) SaveBest(res *optimization.RunResult, in inputs.UserInputSet, name string) (string, error) {
	if res == nil || res.Best == nil {
		return "", ErrNoBest
	}
	if strings.TrimSpace(name) == "" {
		name = library.SuggestName(res.Best.Score, res.Best.Step, s.now())
	}
	score := res.Best.Score
	return s.library.SaveEntry(name, res.Best.Prompt, &score, in.Context())
}

// AttachURLs fetches pages and appends their text to the url_output field. Pages that fail are
// logged and skipped; an error is returned only when nothing could be read.
func (s *Service) AttachURLs(ctx context.Context, in *inputs.UserInputSet, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	text, failures, err := fetch.Collect(ctx, urls, s.fetchOpts)
	for _, f := range failures {
		s.logger.Warn("skipping unreadable URL", "error", f)
	}
	if err != nil {
		return err
	}
	if strings.TrimSpace(in.URLOutput) != "" {
		in.URLOutput += "\n\n"
	}
	in.URLOutput += text
	return nil
}
