package reaper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/notify"
)

const zombieReason = "submission lost"

// Report summarizes one sweep.
type Report struct {
	Ran            bool
	ZombiesFailed  int
	ZombiesRefunded int
	ArtifactsReset int
}

// Reaper cleans up after crashed workers: jobs that never reached the
// provider are failed and refunded, artifacts abandoned mid-processing are
// unlocked. It throttles itself so that triggering it from every request
// path stays cheap.
type Reaper struct {
	Jobs      domain.JobRepository
	Ledger    domain.CreditLedger
	Artifacts domain.ArtifactRepository
	Notifier  notify.Notifier
	Logger    zerolog.Logger

	Interval    time.Duration
	ZombieAge   time.Duration
	ArtifactAge time.Duration
	BatchSize   int

	mu      sync.Mutex
	lastRun time.Time
	now     func() time.Time
}

func (r *Reaper) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Run sweeps unless a sweep happened within the interval. The self-throttle
// makes it safe to call opportunistically.
func (r *Reaper) Run(ctx context.Context) (Report, error) {
	interval := r.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	r.mu.Lock()
	if now := r.clock(); now.Sub(r.lastRun) < interval {
		r.mu.Unlock()
		return Report{}, nil
	} else {
		r.lastRun = now
	}
	r.mu.Unlock()

	return r.sweep(ctx)
}

// RunNow sweeps immediately, bypassing the throttle. The operational
// trigger endpoint uses it.
func (r *Reaper) RunNow(ctx context.Context) (Report, error) {
	r.mu.Lock()
	r.lastRun = r.clock()
	r.mu.Unlock()
	return r.sweep(ctx)
}

func (r *Reaper) sweep(ctx context.Context) (Report, error) {
	report := Report{Ran: true}

	zombieAge := r.ZombieAge
	if zombieAge <= 0 {
		zombieAge = time.Hour
	}
	artifactAge := r.ArtifactAge
	if artifactAge <= 0 {
		artifactAge = 10 * time.Minute
	}
	batchSize := r.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	zombies, err := r.Jobs.FindZombies(ctx, r.clock().Add(-zombieAge), batchSize)
	if err != nil {
		return report, err
	}
	for i := range zombies {
		job := &zombies[i]
		reason := zombieReason
		if err := r.Jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, &reason); err != nil {
			r.Logger.Error().Err(err).Str("job_id", job.ID).Msg("fail zombie job")
			continue
		}
		report.ZombiesFailed++

		if job.CostCharged > 0 {
			err := r.Ledger.Refund(ctx, job.UserID, job.ID, job.CostCharged, zombieReason)
			switch {
			case err == nil:
				report.ZombiesRefunded++
			case errors.Is(err, domain.ErrAlreadyRefunded):
				// another process got there first
			default:
				r.Logger.Error().Err(err).Str("job_id", job.ID).Msg("refund zombie job")
			}
		}

		job.Status = domain.JobStatusFailed
		job.Error = zombieReason
		if r.Notifier != nil {
			r.Notifier.JobFinished(ctx, job)
		}
	}

	reset, err := r.Artifacts.ResetStuck(ctx, r.clock().Add(-artifactAge), batchSize)
	if err != nil {
		r.Logger.Error().Err(err).Msg("reset stuck artifacts")
	} else {
		report.ArtifactsReset = reset
	}

	if report.ZombiesFailed > 0 || report.ArtifactsReset > 0 {
		r.Logger.Info().
			Int("zombies_failed", report.ZombiesFailed).
			Int("zombies_refunded", report.ZombiesRefunded).
			Int("artifacts_reset", report.ArtifactsReset).
			Msg("reaper sweep finished")
	}
	return report, nil
}
