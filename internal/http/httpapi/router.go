package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mediagen/internal/http/handlers"
	"mediagen/internal/infra"
	"mediagen/internal/infra/geoip"
	"mediagen/internal/middleware"
)

// NewRouter wires the public API, the secret-gated internal triggers and
// the file server.
func NewRouter(app *handlers.App, cfg *infra.Config, countries geoip.CountryResolver) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Logger(app.Logger, countries),
	)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/batches", func(r chi.Router) {
		if cfg.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))
		}
		r.Post("/", app.BatchCreate)
		r.Get("/status", app.BatchStatus)
		r.Get("/download", app.BatchDownload)
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(middleware.TriggerSecret(cfg.TriggerSecret))
		r.Post("/jobs/{job_id}/process", app.JobProcess)
		r.Post("/artifacts/{job_id}", app.ArtifactsProcess)
		r.Post("/reaper/run", app.ReaperRun)
	})

	r.Get("/files/*", app.FileServe)

	return r
}
