package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/notify"
	"mediagen/internal/providers/kie"
)

// TaskSubmitter submits a generation task to the provider.
type TaskSubmitter interface {
	CreateTask(ctx context.Context, spec kie.TaskSpec) (string, error)
}

// TaskPoller drives a submitted task to a terminal state.
type TaskPoller interface {
	Poll(ctx context.Context, taskID string) (kie.PollResult, error)
}

// SourceSigner turns a storage key into a URL the provider can fetch.
type SourceSigner interface {
	SignedURL(key string, ttl time.Duration) (string, error)
}

const sourceURLTTL = 30 * time.Minute

// Processor runs a single job through its full lifecycle: charge already
// happened at enqueue time, so the processor submits, polls, persists the
// outcome, and refunds on failure.
type Processor struct {
	Jobs     domain.JobRepository
	Ledger   domain.CreditLedger
	Provider TaskSubmitter
	Poller   TaskPoller
	Signer   SourceSigner
	Notifier notify.Notifier
	Logger   zerolog.Logger
}

// ProcessResult reports how a single job ended.
type ProcessResult struct {
	JobID   string
	Status  domain.JobStatus
	Skipped bool
}

// ProcessJob drives jobID to a terminal state. Calling it on a job that is
// already terminal is a no-op; the result reports Skipped so callers can
// retrigger safely. Refund failures are logged, never propagated: the job
// outcome stands regardless of ledger hiccups.
func (p *Processor) ProcessJob(ctx context.Context, jobID string) (ProcessResult, error) {
	job, err := p.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return ProcessResult{JobID: jobID}, fmt.Errorf("load job: %w", err)
	}
	if job.Status.Terminal() {
		p.Logger.Debug().Str("job_id", job.ID).Str("status", string(job.Status)).
			Msg("job already terminal, skipping")
		return ProcessResult{JobID: job.ID, Status: job.Status, Skipped: true}, nil
	}

	if err := p.Jobs.UpdateStatus(ctx, job.ID, domain.JobStatusProcessing, nil); err != nil {
		return ProcessResult{JobID: job.ID}, fmt.Errorf("mark processing: %w", err)
	}

	spec, err := p.buildSpec(job)
	if err != nil {
		return p.fail(ctx, job, "invalid job input: "+err.Error()), nil
	}

	taskID, err := p.Provider.CreateTask(ctx, spec)
	if err != nil {
		if ctx.Err() != nil {
			return ProcessResult{JobID: job.ID}, ctx.Err()
		}
		return p.fail(ctx, job, "submission failed: "+err.Error()), nil
	}
	if err := p.Jobs.SetTaskID(ctx, job.ID, taskID); err != nil {
		return ProcessResult{JobID: job.ID}, fmt.Errorf("store task id: %w", err)
	}

	result, err := p.Poller.Poll(ctx, taskID)
	if err != nil {
		return ProcessResult{JobID: job.ID}, err
	}

	switch result.Outcome {
	case kie.OutcomeSucceeded:
		assetURL := result.ResultURLs[0]
		if err := p.Jobs.SetResult(ctx, job.ID, result.ResultURLs, assetURL); err != nil {
			return ProcessResult{JobID: job.ID}, fmt.Errorf("store result: %w", err)
		}
		job.Status = domain.JobStatusSuccess
		job.ResultURLs = result.ResultURLs
		job.AssetURL = assetURL
		p.notify(ctx, job)
		p.Logger.Info().Str("job_id", job.ID).Int("attempts", result.Attempts).
			Msg("job succeeded")
		return ProcessResult{JobID: job.ID, Status: domain.JobStatusSuccess}, nil
	default:
		return p.fail(ctx, job, result.ErrorMessage), nil
	}
}

func (p *Processor) buildSpec(job *domain.Job) (kie.TaskSpec, error) {
	spec := kie.TaskSpec{Model: job.Model, Prompt: job.Prompt}
	ref, isPath := job.SourceRef()
	switch {
	case ref == "":
		// text-to-media job, no source asset
	case isPath:
		if p.Signer == nil {
			return kie.TaskSpec{}, errors.New("job has a stored source but no signer is configured")
		}
		signed, err := p.Signer.SignedURL(ref, sourceURLTTL)
		if err != nil {
			return kie.TaskSpec{}, fmt.Errorf("sign source url: %w", err)
		}
		spec.ImageURLs = []string{signed}
	default:
		spec.ImageURLs = []string{ref}
	}
	return spec, nil
}

func (p *Processor) fail(ctx context.Context, job *domain.Job, reason string) ProcessResult {
	if err := p.Jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, &reason); err != nil {
		p.Logger.Error().Err(err).Str("job_id", job.ID).Msg("mark job failed")
	}
	if job.CostCharged > 0 {
		err := p.Ledger.Refund(ctx, job.UserID, job.ID, job.CostCharged, reason)
		switch {
		case err == nil:
			p.Logger.Info().Str("job_id", job.ID).Int("amount", job.CostCharged).
				Msg("refunded failed job")
		case errors.Is(err, domain.ErrAlreadyRefunded):
			p.Logger.Debug().Str("job_id", job.ID).Msg("job already refunded")
		default:
			p.Logger.Error().Err(err).Str("job_id", job.ID).Msg("refund failed job")
		}
	}
	job.Status = domain.JobStatusFailed
	job.Error = reason
	p.notify(ctx, job)
	return ProcessResult{JobID: job.ID, Status: domain.JobStatusFailed}
}

func (p *Processor) notify(ctx context.Context, job *domain.Job) {
	if p.Notifier == nil {
		return
	}
	p.Notifier.JobFinished(ctx, job)
}
