package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"mediagen/internal/domain"
)

// JobProcessor drives one job to a terminal state.
type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID string) (ProcessResult, error)
}

// BatchResult summarizes a batch run. Success+Failed+Skipped equals the
// number of job ids handed in.
type BatchResult struct {
	Success int
	Failed  int
	Skipped int
}

// Runner executes the jobs of a batch with bounded provider concurrency.
// Admissions are staggered so a burst of submissions does not trip the
// provider's rate limiting.
type Runner struct {
	Jobs        domain.JobRepository
	Processor   JobProcessor
	Concurrency int64
	Stagger     time.Duration
	Logger      zerolog.Logger
}

// RunBatch processes jobIDs and blocks until every one of them has ended.
// Jobs that are already terminal (or unknown) are skipped without holding a
// concurrency slot. One job failing never aborts its siblings; context
// cancellation does.
func (r *Runner) RunBatch(ctx context.Context, jobIDs []string) BatchResult {
	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	sem := semaphore.NewWeighted(concurrency)

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result BatchResult
	)
	count := func(f func(*BatchResult)) {
		mu.Lock()
		f(&result)
		mu.Unlock()
	}

	admitted := 0
	for _, jobID := range jobIDs {
		job, err := r.Jobs.GetByID(ctx, jobID)
		if err != nil {
			r.Logger.Warn().Err(err).Str("job_id", jobID).Msg("batch job not loadable, skipping")
			count(func(b *BatchResult) { b.Skipped++ })
			continue
		}
		if job.Status.Terminal() {
			count(func(b *BatchResult) { b.Skipped++ })
			continue
		}

		if admitted > 0 && r.Stagger > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.Stagger):
			}
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			count(func(b *BatchResult) { b.Skipped++ })
			continue
		}
		admitted++

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer sem.Release(1)

			res, err := r.Processor.ProcessJob(ctx, id)
			switch {
			case err != nil:
				r.Logger.Error().Err(err).Str("job_id", id).Msg("batch job errored")
				count(func(b *BatchResult) { b.Failed++ })
			case res.Skipped:
				count(func(b *BatchResult) { b.Skipped++ })
			case res.Status == domain.JobStatusSuccess:
				count(func(b *BatchResult) { b.Success++ })
			default:
				count(func(b *BatchResult) { b.Failed++ })
			}
		}(jobID)
	}

	wg.Wait()
	r.Logger.Info().
		Int("success", result.Success).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("batch finished")
	return result
}
