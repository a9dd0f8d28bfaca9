package optimization

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Batch defaults.
const (
	DefaultBatchConcurrency = 2
	DefaultBatchInterval    = 3 * time.Second
)

// BatchItem is one named run in a batch.
type BatchItem struct {
	Name   string    `json:"name"`
	Config RunConfig `json:"config"`
}

// BatchResult pairs a batch item with its outcome. Err is set only when the run could not start.
type BatchResult struct {
	Name   string     `json:"name"`
	Result *RunResult `json:"result,omitempty"`
	Err    error      `json:"-"`
}

// BatchOptions bounds how a batch uses the providers.
type BatchOptions struct {
	// Concurrency is the number of runs in flight.
	Concurrency int
	// Interval is the minimum spacing between run starts.
	Interval time.Duration
}

func (o BatchOptions) withDefaults() BatchOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultBatchConcurrency
	}
	if o.Interval <= 0 {
		o.Interval = DefaultBatchInterval
	}
	return o
}

// RunBatch runs independent optimizations concurrently. Each run stays sequential; only
// separate runs overlap. Results are returned in item order.
func (l *Loop) RunBatch(ctx context.Context, items []BatchItem, opts BatchOptions) []BatchResult {
	opts = opts.withDefaults()
	results := make([]BatchResult, len(items))
	limiter := rate.NewLimiter(rate.Every(opts.Interval), 1)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, item := range items {
		results[i].Name = item.Name
		g.Go(func() error {
			if err := limiter.Wait(gCtx); err != nil {
				results[i].Err = err
				return nil
			}

			l.logger.Info("batch run starting", slog.String("name", item.Name), slog.Int("index", i))
			res, err := l.Run(gCtx, item.Config)
			results[i].Result = res
			results[i].Err = err
			if err != nil {
				l.logger.Warn("batch run rejected", slog.String("name", item.Name), slog.String("error", err.Error()))
			}
			return nil
		})
	}

	_ = g.Wait()
	return results
}
