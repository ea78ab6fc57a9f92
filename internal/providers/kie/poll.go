package kie

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// TaskQuerier reads the state of a submitted task.
type TaskQuerier interface {
	QueryTask(ctx context.Context, taskID string) (*TaskRecord, error)
}

// PollOutcome is the terminal classification of a polled task.
type PollOutcome int

const (
	OutcomeSucceeded PollOutcome = iota
	OutcomeFailed
	OutcomeTimedOut
)

// PollResult carries the final state of a bounded poll.
type PollResult struct {
	Outcome      PollOutcome
	ResultURLs   []string
	ErrorMessage string
	Attempts     int
}

// Poller drives a task to a terminal state with a bounded number of
// QueryTask calls. Transient query errors consume an attempt instead of
// aborting, so a flaky provider cannot keep a job spinning forever.
type Poller struct {
	Querier     TaskQuerier
	Interval    time.Duration
	MaxAttempts int
	Logger      zerolog.Logger
}

// Poll blocks until the task succeeds, fails, the attempt budget runs out,
// or ctx is cancelled. Only context cancellation is returned as an error;
// every provider-side ending is expressed through the PollResult.
func (p *Poller) Poll(ctx context.Context, taskID string) (PollResult, error) {
	if p.Querier == nil {
		return PollResult{}, errors.New("kie: poller requires a querier")
	}
	interval := p.Interval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 60
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return PollResult{Attempts: attempt - 1}, ctx.Err()
		case <-timer.C:
		}

		record, err := p.Querier.QueryTask(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return PollResult{Attempts: attempt}, ctx.Err()
			}
			p.Logger.Warn().Err(err).
				Str("task_id", taskID).
				Int("attempt", attempt).
				Msg("task query failed, will retry")
			timer.Reset(interval)
			continue
		}

		switch {
		case record.Flag == FlagGenerating:
			timer.Reset(interval)
		case record.Flag == FlagSucceeded:
			if len(record.ResultURLs) == 0 {
				return PollResult{
					Outcome:      OutcomeFailed,
					ErrorMessage: "provider reported success without result assets",
					Attempts:     attempt,
				}, nil
			}
			return PollResult{
				Outcome:    OutcomeSucceeded,
				ResultURLs: record.ResultURLs,
				Attempts:   attempt,
			}, nil
		default:
			msg := record.ErrorMessage
			if msg == "" {
				msg = "generation failed"
			}
			return PollResult{
				Outcome:      OutcomeFailed,
				ErrorMessage: msg,
				Attempts:     attempt,
			}, nil
		}
	}

	return PollResult{
		Outcome:      OutcomeTimedOut,
		ErrorMessage: "generation timed out",
		Attempts:     maxAttempts,
	}, nil
}
