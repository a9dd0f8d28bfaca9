// Package workbench composes the model ports, the prompt library and run history into the
// operations exposed by the CLI, the HTTP server and the MCP tools.
package workbench

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/prompt-workbench/internal/db"
	"github.com/jonathan/prompt-workbench/internal/fetch"
	"github.com/jonathan/prompt-workbench/internal/library"
	"github.com/jonathan/prompt-workbench/internal/llm"
	"github.com/jonathan/prompt-workbench/internal/optimization"
)

// RunStore persists run history. *db.DB implements it.
type RunStore interface {
	CreateRun(ctx context.Context, input *db.RunInput) (uuid.UUID, error)
	SaveStep(ctx context.Context, runID uuid.UUID, input *db.StepInput) (*db.Step, error)
	CompleteRun(ctx context.Context, runID uuid.UUID, c *db.RunCompletion) error
	GetRun(ctx context.Context, runID uuid.UUID) (*db.Run, error)
	ListRuns(ctx context.Context, filters db.RunFilters) ([]db.Run, error)
	ListSteps(ctx context.Context, runID uuid.UUID) ([]db.Step, error)
}

// Service is the workbench facade. It is safe for concurrent use.
type Service struct {
	generator optimization.Generator
	evaluator optimization.Evaluator
	optimizer optimization.Optimizer

	library   *library.Library
	store     RunStore
	fetchOpts *fetch.Options
	batchOpts optimization.BatchOptions
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithStore enables run history persistence.
func WithStore(store RunStore) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFetchOptions configures URL ingestion.
func WithFetchOptions(opts *fetch.Options) Option {
	return func(s *Service) {
		if opts != nil {
			s.fetchOpts = opts
		}
	}
}

// WithBatchOptions configures concurrency and pacing for batch runs.
func WithBatchOptions(opts optimization.BatchOptions) Option {
	return func(s *Service) {
		s.batchOpts = opts
	}
}

// New creates a Service over explicit ports.
func New(g optimization.Generator, e optimization.Evaluator, o optimization.Optimizer, lib *library.Library, opts ...Option) *Service {
	s := &Service{
		generator: g,
		evaluator: e,
		optimizer: o,
		library:   lib,
		fetchOpts: fetch.DefaultOptions(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fetchOpts.Logger == nil {
		s.fetchOpts.Logger = s.logger
	}
	return s
}

// NewFromClient creates a Service whose three ports share one model client.
func NewFromClient(client llm.Client, lib *library.Library, opts ...Option) *Service {
	return New(
		optimization.NewLLMGenerator(client),
		optimization.NewLLMEvaluator(client),
		optimization.NewLLMOptimizer(client),
		lib,
		opts...,
	)
}

// Library returns the prompt library.
func (s *Service) Library() *library.Library {
	return s.library
}

// HasStore reports whether run history is persisted.
func (s *Service) HasStore() bool {
	return s.store != nil
}

func (s *Service) loop(opts ...optimization.LoopOption) *optimization.Loop {
	base := []optimization.LoopOption{
		optimization.WithLogger(s.logger),
		optimization.WithClock(s.now),
	}
	return optimization.NewLoop(s.generator, s.evaluator, s.optimizer, append(base, opts...)...)
}
