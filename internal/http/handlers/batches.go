package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"mediagen/internal/domain"
	"mediagen/internal/pricing"
)

type batchItem struct {
	Kind         string `json:"kind"`
	Model        string `json:"model"`
	Prompt       string `json:"prompt"`
	SourcePath   string `json:"source_path,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

type batchCreateRequest struct {
	UserID string      `json:"user_id"`
	Items  []batchItem `json:"items"`
}

type batchCreateResponse struct {
	BatchID string   `json:"batch_id"`
	JobIDs  []string `json:"job_ids"`
	Charged int      `json:"charged"`
	Balance int      `json:"balance"`
}

// BatchCreate validates and prices a batch, charges the owner up front,
// persists the jobs and kicks off background processing. The response
// returns as soon as the jobs are queued.
func (a *App) BatchCreate(w http.ResponseWriter, r *http.Request) {
	var req batchCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "user_id required")
		return
	}
	maxItems := a.BatchMaxItems
	if maxItems <= 0 {
		maxItems = 10
	}
	if len(req.Items) == 0 || len(req.Items) > maxItems {
		a.error(w, http.StatusBadRequest, "bad_request",
			fmt.Sprintf("batch must contain between 1 and %d items", maxItems))
		return
	}

	kinds := make([]domain.JobKind, len(req.Items))
	for i, item := range req.Items {
		kind := domain.JobKind(item.Kind)
		if kind != domain.JobKindPhoto && kind != domain.JobKindVideo {
			a.error(w, http.StatusBadRequest, "bad_request",
				fmt.Sprintf("item %d: unknown kind %q", i, item.Kind))
			return
		}
		if strings.TrimSpace(item.Prompt) == "" {
			a.error(w, http.StatusBadRequest, "bad_request",
				fmt.Sprintf("item %d: prompt required", i))
			return
		}
		if strings.TrimSpace(item.Model) == "" {
			a.error(w, http.StatusBadRequest, "bad_request",
				fmt.Sprintf("item %d: model required", i))
			return
		}
		kinds[i] = kind
	}

	total, err := pricing.BatchCost(kinds)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if err := a.Provisioner.EnsureOwner(r.Context(), req.UserID); err != nil {
		a.Logger.Error().Err(err).Str("user_id", req.UserID).Msg("provision owner")
		a.error(w, http.StatusInternalServerError, "internal", "failed to prepare account")
		return
	}

	batchID := uuid.NewString()
	balance, err := a.Ledger.Charge(r.Context(), req.UserID, total,
		fmt.Sprintf("batch %s (%d jobs)", batchID, len(req.Items)))
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			a.error(w, http.StatusPaymentRequired, "insufficient_credits",
				fmt.Sprintf("batch costs %d credits", total))
			return
		}
		a.Logger.Error().Err(err).Str("user_id", req.UserID).Msg("charge batch")
		a.error(w, http.StatusInternalServerError, "internal", "failed to charge credits")
		return
	}

	jobIDs := make([]string, 0, len(req.Items))
	for i, item := range req.Items {
		cost, _ := pricing.Cost(kinds[i])
		job := &domain.Job{
			ID:           uuid.NewString(),
			UserID:       req.UserID,
			Kind:         kinds[i],
			Status:       domain.JobStatusPending,
			Model:        strings.TrimSpace(item.Model),
			Prompt:       strings.TrimSpace(item.Prompt),
			CostCharged:  cost,
			SourcePath:   strings.TrimSpace(item.SourcePath),
			ThumbnailURL: strings.TrimSpace(item.ThumbnailURL),
			BatchID:      batchID,
		}
		if err := a.Jobs.Create(r.Context(), job); err != nil {
			a.Logger.Error().Err(err).Str("batch_id", batchID).Int("item", i).
				Msg("create batch job")
			// Give the credits for the job that never existed back.
			if gerr := a.Ledger.Grant(r.Context(), req.UserID, cost,
				fmt.Sprintf("batch %s item %d not queued", batchID, i)); gerr != nil {
				a.Logger.Error().Err(gerr).Str("batch_id", batchID).Msg("return credits")
			}
			continue
		}
		jobIDs = append(jobIDs, job.ID)
	}
	if len(jobIDs) == 0 {
		a.error(w, http.StatusInternalServerError, "internal", "no jobs could be queued")
		return
	}

	go a.Runner.RunBatch(a.background(), jobIDs)

	a.json(w, http.StatusAccepted, batchCreateResponse{
		BatchID: batchID,
		JobIDs:  jobIDs,
		Charged: total,
		Balance: balance,
	})
}

type batchStatusJob struct {
	JobID      string   `json:"job_id"`
	Status     string   `json:"status"`
	AssetURL   string   `json:"asset_url,omitempty"`
	ResultURLs []string `json:"result_urls,omitempty"`
	Error      string   `json:"error,omitempty"`
}

type batchStatusSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type batchStatusResponse struct {
	Jobs       []batchStatusJob   `json:"jobs"`
	Summary    batchStatusSummary `json:"summary"`
	IsComplete bool               `json:"is_complete"`
}

// BatchStatus reports the state of a set of jobs, typically one batch.
// Unknown job ids are elided rather than erroring, so pollers survive
// replays of stale id lists.
func (a *App) BatchStatus(w http.ResponseWriter, r *http.Request) {
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

	jobs, err := a.Jobs.ListByIDs(r.Context(), ids)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list batch jobs")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load jobs")
		return
	}

	resp := batchStatusResponse{Jobs: make([]batchStatusJob, 0, len(jobs))}
	resp.Summary.Total = len(jobs)
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, batchStatusJob{
			JobID:      job.ID,
			Status:     string(job.Status),
			AssetURL:   job.AssetURL,
			ResultURLs: job.ResultURLs,
			Error:      job.Error,
		})
		switch {
		case job.Status == domain.JobStatusSuccess:
			resp.Summary.Completed++
		case job.Status == domain.JobStatusFailed:
			resp.Summary.Failed++
		default:
			resp.Summary.Pending++
		}
	}
	resp.IsComplete = resp.Summary.Total > 0 && resp.Summary.Pending == 0

	a.json(w, http.StatusOK, resp)
}
