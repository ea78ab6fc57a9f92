package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"mediagen/internal/domain"
	"mediagen/internal/pipeline"
	"mediagen/internal/preview"
	"mediagen/internal/reaper"
)

type stubProcessor struct {
	result pipeline.ProcessResult
	err    error
}

func (s *stubProcessor) ProcessJob(context.Context, string) (pipeline.ProcessResult, error) {
	return s.result, s.err
}

func serveInternal(app *App, method, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/internal/jobs/{job_id}/process", app.JobProcess)
	r.Post("/internal/artifacts/{job_id}", app.ArtifactsProcess)
	r.Post("/internal/reaper/run", app.ReaperRun)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestJobProcessReturnsOutcome(t *testing.T) {
	app := newTestApp(newMemJobs(), &memLedger{}, &capturedRunner{})
	app.Processor = &stubProcessor{result: pipeline.ProcessResult{
		JobID:  "job-1",
		Status: domain.JobStatusSuccess,
	}}

	rec := serveInternal(app, http.MethodPost, "/internal/jobs/job-1/process")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp jobProcessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "success" || resp.Skipped {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestJobProcessTerminalIsSkipped(t *testing.T) {
	app := newTestApp(newMemJobs(), &memLedger{}, &capturedRunner{})
	app.Processor = &stubProcessor{result: pipeline.ProcessResult{
		JobID:   "job-1",
		Status:  domain.JobStatusSuccess,
		Skipped: true,
	}}

	rec := serveInternal(app, http.MethodPost, "/internal/jobs/job-1/process")
	var resp jobProcessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Skipped {
		t.Fatalf("resp = %+v, want skipped", resp)
	}
}

func TestJobProcessUnknownJob(t *testing.T) {
	app := newTestApp(newMemJobs(), &memLedger{}, &capturedRunner{})
	app.Processor = &stubProcessor{err: domain.ErrNotFound}

	rec := serveInternal(app, http.MethodPost, "/internal/jobs/nope/process")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestArtifactsProcessReportsStatuses(t *testing.T) {
	app := newTestApp(newMemJobs(), &memLedger{}, &capturedRunner{})
	app.Previews = &stubPreviews{result: preview.Result{
		domain.ArtifactKindPoster: domain.ArtifactStatusReady,
		domain.ArtifactKindClip:   domain.ArtifactStatusFailed,
	}}

	rec := serveInternal(app, http.MethodPost, "/internal/artifacts/job-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp artifactsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Artifacts["poster"] != "ready" || resp.Artifacts["clip"] != "failed" {
		t.Fatalf("artifacts = %v", resp.Artifacts)
	}
}

func TestArtifactsProcessUnfinishedJob(t *testing.T) {
	app := newTestApp(newMemJobs(), &memLedger{}, &capturedRunner{})
	app.Previews = &stubPreviews{err: domain.ErrNoSource}

	rec := serveInternal(app, http.MethodPost, "/internal/artifacts/job-1")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestReaperRunReportsSweep(t *testing.T) {
	app := newTestApp(newMemJobs(), &memLedger{}, &capturedRunner{})
	app.Reaper = &stubSweeper{report: reaper.Report{
		Ran:             true,
		ZombiesFailed:   2,
		ZombiesRefunded: 2,
		ArtifactsReset:  1,
	}}

	rec := serveInternal(app, http.MethodPost, "/internal/reaper/run")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp reaperResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ZombiesFailed != 2 || resp.ArtifactsReset != 1 {
		t.Fatalf("resp = %+v", resp)
	}
}
