package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
)

type scriptedProcessor struct {
	mu       sync.Mutex
	statuses map[string]domain.JobStatus
	calls    []string
	block    time.Duration
}

func (p *scriptedProcessor) ProcessJob(_ context.Context, jobID string) (ProcessResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, jobID)
	status := p.statuses[jobID]
	p.mu.Unlock()
	if p.block > 0 {
		time.Sleep(p.block)
	}
	return ProcessResult{JobID: jobID, Status: status}, nil
}

func TestRunBatchPartialFailure(t *testing.T) {
	jobs := newFakeJobs(pendingJob("job-a"), pendingJob("job-b"), pendingJob("job-c"))
	proc := &scriptedProcessor{statuses: map[string]domain.JobStatus{
		"job-a": domain.JobStatusSuccess,
		"job-b": domain.JobStatusFailed,
		"job-c": domain.JobStatusFailed,
	}}
	runner := &Runner{Jobs: jobs, Processor: proc, Concurrency: 2, Logger: zerolog.Nop()}

	result := runner.RunBatch(context.Background(), []string{"job-a", "job-b", "job-c"})
	if result.Success != 1 || result.Failed != 2 || result.Skipped != 0 {
		t.Fatalf("result = %+v, want {1 2 0}", result)
	}
}

func TestRunBatchSkipsTerminalWithoutProcessing(t *testing.T) {
	done := pendingJob("job-done")
	done.Status = domain.JobStatusSuccess
	jobs := newFakeJobs(done, pendingJob("job-b"))
	proc := &scriptedProcessor{statuses: map[string]domain.JobStatus{
		"job-b": domain.JobStatusSuccess,
	}}
	runner := &Runner{Jobs: jobs, Processor: proc, Concurrency: 2, Logger: zerolog.Nop()}

	result := runner.RunBatch(context.Background(), []string{"job-done", "job-b", "job-missing"})
	if result.Success != 1 || result.Skipped != 2 {
		t.Fatalf("result = %+v, want 1 success and 2 skipped", result)
	}
	if len(proc.calls) != 1 || proc.calls[0] != "job-b" {
		t.Fatalf("processor calls = %v, want only job-b", proc.calls)
	}
	if got := result.Success + result.Failed + result.Skipped; got != 3 {
		t.Fatalf("accounted jobs = %d, want 3", got)
	}
}

type gaugedProcessor struct {
	current atomic.Int64
	peak    atomic.Int64
}

func (p *gaugedProcessor) ProcessJob(_ context.Context, jobID string) (ProcessResult, error) {
	cur := p.current.Add(1)
	for {
		peak := p.peak.Load()
		if cur <= peak || p.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	p.current.Add(-1)
	return ProcessResult{JobID: jobID, Status: domain.JobStatusSuccess}, nil
}

func TestRunBatchBoundsConcurrency(t *testing.T) {
	var seed []*domain.Job
	var ids []string
	for _, id := range []string{"j1", "j2", "j3", "j4", "j5", "j6"} {
		seed = append(seed, pendingJob(id))
		ids = append(ids, id)
	}
	jobs := newFakeJobs(seed...)
	proc := &gaugedProcessor{}
	runner := &Runner{Jobs: jobs, Processor: proc, Concurrency: 2, Logger: zerolog.Nop()}

	result := runner.RunBatch(context.Background(), ids)
	if result.Success != 6 {
		t.Fatalf("result = %+v, want 6 successes", result)
	}
	if peak := proc.peak.Load(); peak > 2 {
		t.Fatalf("peak concurrency = %d, want at most 2", peak)
	}
}

func TestRunBatchStaggersAdmissions(t *testing.T) {
	jobs := newFakeJobs(pendingJob("j1"), pendingJob("j2"), pendingJob("j3"))
	proc := &scriptedProcessor{statuses: map[string]domain.JobStatus{
		"j1": domain.JobStatusSuccess,
		"j2": domain.JobStatusSuccess,
		"j3": domain.JobStatusSuccess,
	}}
	runner := &Runner{
		Jobs:        jobs,
		Processor:   proc,
		Concurrency: 3,
		Stagger:     20 * time.Millisecond,
		Logger:      zerolog.Nop(),
	}

	start := time.Now()
	runner.RunBatch(context.Background(), []string{"j1", "j2", "j3"})
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("batch finished in %v, want at least two stagger delays", elapsed)
	}
}
