package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mediagen/internal/domain"
)

type artifactsResponse struct {
	JobID     string            `json:"job_id"`
	Artifacts map[string]string `json:"artifacts"`
}

// ArtifactsProcess derives the previews/posters for a finished job. The
// endpoint is idempotent: ready artifacts are reported as-is, only missing
// or failed ones are regenerated.
func (a *App) ArtifactsProcess(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}

	result, err := a.Previews.Run(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "job not found")
		case errors.Is(err, domain.ErrNoSource):
			a.error(w, http.StatusConflict, "not_ready", "job has no generated output yet")
		default:
			a.Logger.Error().Err(err).Str("job_id", jobID).Msg("process artifacts")
			a.error(w, http.StatusInternalServerError, "internal", "artifact processing failed")
		}
		return
	}

	resp := artifactsResponse{JobID: jobID, Artifacts: make(map[string]string, len(result))}
	for kind, status := range result {
		resp.Artifacts[string(kind)] = string(status)
	}
	a.json(w, http.StatusOK, resp)
}
