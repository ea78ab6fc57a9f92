package kie

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type scriptedQuerier struct {
	records []*TaskRecord
	errs    []error
	calls   int
}

func (q *scriptedQuerier) QueryTask(_ context.Context, _ string) (*TaskRecord, error) {
	i := q.calls
	q.calls++
	var err error
	if i < len(q.errs) {
		err = q.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(q.records) {
		return q.records[i], nil
	}
	return &TaskRecord{Flag: FlagGenerating}, nil
}

func newTestPoller(q TaskQuerier, maxAttempts int) *Poller {
	return &Poller{
		Querier:     q,
		Interval:    time.Millisecond,
		MaxAttempts: maxAttempts,
		Logger:      zerolog.Nop(),
	}
}

func TestPollSucceedsAfterGenerating(t *testing.T) {
	q := &scriptedQuerier{records: []*TaskRecord{
		{Flag: FlagGenerating},
		{Flag: FlagGenerating},
		{Flag: FlagSucceeded, ResultURLs: []string{"https://cdn/out.png"}},
	}}

	result, err := newTestPoller(q, 10).Poll(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.Outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %d, want succeeded", result.Outcome)
	}
	if result.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", result.Attempts)
	}
	if len(result.ResultURLs) != 1 {
		t.Fatalf("result urls = %v", result.ResultURLs)
	}
}

func TestPollFailureCarriesProviderMessage(t *testing.T) {
	q := &scriptedQuerier{records: []*TaskRecord{
		{Flag: FlagFailed, ErrorMessage: "content policy violation"},
	}}

	result, err := newTestPoller(q, 10).Poll(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %d, want failed", result.Outcome)
	}
	if result.ErrorMessage != "content policy violation" {
		t.Fatalf("error message = %q", result.ErrorMessage)
	}
}

func TestPollSuccessWithoutAssetsIsFailure(t *testing.T) {
	q := &scriptedQuerier{records: []*TaskRecord{
		{Flag: FlagSucceeded},
	}}

	result, err := newTestPoller(q, 10).Poll(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %d, want failed", result.Outcome)
	}
}

func TestPollExhaustsAttemptBudget(t *testing.T) {
	q := &scriptedQuerier{}

	result, err := newTestPoller(q, 5).Poll(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.Outcome != OutcomeTimedOut {
		t.Fatalf("outcome = %d, want timed out", result.Outcome)
	}
	if q.calls != 5 {
		t.Fatalf("query calls = %d, want 5", q.calls)
	}
}

func TestPollQueryErrorsConsumeAttempts(t *testing.T) {
	boom := errors.New("connection reset")
	q := &scriptedQuerier{
		errs: []error{boom, boom},
		records: []*TaskRecord{
			nil, nil,
			{Flag: FlagSucceeded, ResultURLs: []string{"https://cdn/out.png"}},
		},
	}

	result, err := newTestPoller(q, 10).Poll(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.Outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %d, want succeeded", result.Outcome)
	}
	if result.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", result.Attempts)
	}
}

func TestPollHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPoller(&scriptedQuerier{}, 10).Poll(ctx, "task-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
