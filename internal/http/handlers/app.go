package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/pipeline"
	"mediagen/internal/preview"
	"mediagen/internal/reaper"
	"mediagen/internal/storage"
)

// BatchRunner executes a set of jobs with bounded concurrency.
type BatchRunner interface {
	RunBatch(ctx context.Context, jobIDs []string) pipeline.BatchResult
}

// JobProcessor drives a single job to a terminal state.
type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID string) (pipeline.ProcessResult, error)
}

// ArtifactGenerator derives previews/posters/clips for a finished job.
type ArtifactGenerator interface {
	Run(ctx context.Context, jobID string) (preview.Result, error)
}

// Sweeper is the cleanup pass behind the operational trigger endpoint.
type Sweeper interface {
	RunNow(ctx context.Context) (reaper.Report, error)
}

// App bundles the dependencies of the HTTP handlers.
type App struct {
	Jobs        domain.JobRepository
	Ledger      domain.CreditLedger
	Provisioner domain.OwnerProvisioner
	Artifacts   domain.ArtifactRepository
	Runner      BatchRunner
	Processor   JobProcessor
	Previews    ArtifactGenerator
	Reaper      Sweeper
	Store       *storage.FileStore
	Logger      zerolog.Logger

	// BaseCtx outlives individual requests; background batch processing
	// launched from a handler is bound to it, not to the request.
	BaseCtx       context.Context
	BatchMaxItems int
}

func (a *App) background() context.Context {
	if a.BaseCtx != nil {
		return a.BaseCtx
	}
	return context.Background()
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}
