package handlers

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"mediagen/internal/domain"
	"mediagen/pkg/zip"
)

const maxDownloadJobs = 50

// BatchDownload bundles the ready preview artifacts for a set of jobs into a
// single zip. Jobs without a ready artifact are skipped; an archive is only
// refused when nothing at all could be collected.
func (a *App) BatchDownload(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("job_ids"))
	if raw == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_ids required")
		return
	}
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "job_ids required")
		return
	}
	if len(ids) > maxDownloadJobs {
		a.error(w, http.StatusBadRequest, "bad_request", "too many jobs requested")
		return
	}

	jobs, err := a.Jobs.ListByIDs(r.Context(), ids)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list download jobs")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load jobs")
		return
	}

	var entries []zip.Entry
	for _, job := range jobs {
		if job.Status != domain.JobStatusSuccess {
			continue
		}
		kind := domain.ArtifactKindPreview
		if job.Kind == domain.JobKindVideo {
			kind = domain.ArtifactKindPoster
		}
		artifact, err := a.Artifacts.Get(r.Context(), job.ID, kind)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("load artifact for download")
			continue
		}
		if artifact.Status != domain.ArtifactStatusReady || artifact.StoragePath == "" {
			continue
		}
		data, err := a.Store.Read(r.Context(), artifact.StoragePath)
		if err != nil {
			a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("read artifact for download")
			continue
		}
		entries = append(entries, zip.Entry{Name: path.Base(artifact.StoragePath), Data: data})
	}

	if len(entries) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no downloadable artifacts for the requested jobs")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="batch_assets.zip"`)
	w.WriteHeader(http.StatusOK)
	if err := zip.WriteBundle(w, entries); err != nil {
		a.Logger.Error().Err(err).Msg("stream download bundle")
	}
}
