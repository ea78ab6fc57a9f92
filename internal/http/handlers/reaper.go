package handlers

import "net/http"

type reaperResponse struct {
	ZombiesFailed   int `json:"zombies_failed"`
	ZombiesRefunded int `json:"zombies_refunded"`
	ArtifactsReset  int `json:"artifacts_reset"`
}

// ReaperRun triggers an immediate cleanup sweep.
func (a *App) ReaperRun(w http.ResponseWriter, r *http.Request) {
	report, err := a.Reaper.RunNow(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("reaper sweep")
		a.error(w, http.StatusInternalServerError, "internal", "sweep failed")
		return
	}
	a.json(w, http.StatusOK, reaperResponse{
		ZombiesFailed:   report.ZombiesFailed,
		ZombiesRefunded: report.ZombiesRefunded,
		ArtifactsReset:  report.ArtifactsReset,
	})
}
