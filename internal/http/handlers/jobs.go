package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mediagen/internal/domain"
)

type jobProcessResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Skipped bool   `json:"skipped"`
}

// JobProcess synchronously drives one job to a terminal state. Jobs that
// already finished report skipped, so the trigger can be replayed.
func (a *App) JobProcess(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}

	result, err := a.Processor.ProcessJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("process job")
		a.error(w, http.StatusInternalServerError, "internal", "job processing failed")
		return
	}

	a.json(w, http.StatusOK, jobProcessResponse{
		JobID:   result.JobID,
		Status:  string(result.Status),
		Skipped: result.Skipped,
	})
}
