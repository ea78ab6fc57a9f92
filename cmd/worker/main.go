package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/infra"
	"mediagen/internal/notify"
	"mediagen/internal/preview"
	"mediagen/internal/reaper"
	"mediagen/internal/storage"
)

// The worker owns the background side of the system: it periodically sweeps
// for zombie jobs and stuck artifacts, and backfills artifacts for jobs that
// finished while no trigger fired.
const (
	artifactBackfillInterval = time.Minute
	artifactBackfillWindow   = 24 * time.Hour
	artifactBackfillLimit    = 50
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	provisioner := repo.NewOwnerProvisioner(runner)
	jobs := repo.NewJobRepository(runner, provisioner, logger)
	ledger := repo.NewCreditLedger(runner)
	artifacts := repo.NewArtifactRepository(runner)

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL, cfg.StorageSignSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	notifier := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	defer notifier.Close()

	previews := &preview.Generator{
		Jobs:         jobs,
		Artifacts:    artifacts,
		Store:        store,
		Frames:       &preview.FFmpeg{Path: cfg.FFmpegPath},
		HTTPClient:   &http.Client{Timeout: cfg.DownloadTimeout},
		MaxDim:       cfg.PreviewMaxDim,
		ClipsEnabled: cfg.PreviewClipsEnabled,
		Logger:       logger,
	}
	sweeper := &reaper.Reaper{
		Jobs:        jobs,
		Ledger:      ledger,
		Artifacts:   artifacts,
		Notifier:    notifier,
		Logger:      logger,
		Interval:    cfg.ReaperInterval,
		ZombieAge:   cfg.ReaperZombieAge,
		ArtifactAge: cfg.ReaperArtifactAge,
		BatchSize:   cfg.ReaperBatchSize,
	}

	logger.Info().
		Dur("reaper_interval", cfg.ReaperInterval).
		Msg("worker: started")

	reaperTicker := time.NewTicker(cfg.ReaperInterval)
	defer reaperTicker.Stop()
	backfillTicker := time.NewTicker(artifactBackfillInterval)
	defer backfillTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker: stopped")
			return
		case <-reaperTicker.C:
			// the ticker is the schedule here, no need for the self-throttle
			if _, err := sweeper.RunNow(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("worker: reaper sweep failed")
			}
		case <-backfillTicker.C:
			backfillArtifacts(ctx, jobs, previews, logger)
		}
	}
}

// backfillArtifacts regenerates artifacts for recently finished jobs whose
// trigger never arrived. The artifact pipeline is idempotent, so re-running
// it for jobs that already have their previews is a cheap no-op.
func backfillArtifacts(ctx context.Context, jobs *repo.JobRepositoryPG, previews *preview.Generator, logger infra.Logger) {
	recent, err := jobs.FindMissingArtifacts(ctx, time.Now().Add(-artifactBackfillWindow), artifactBackfillLimit)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("worker: list jobs for artifact backfill")
		}
		return
	}
	for i := range recent {
		if _, err := previews.Run(ctx, recent[i].ID); err != nil {
			logger.Warn().Err(err).Str("job_id", recent[i].ID).Msg("worker: artifact backfill")
		}
	}
}
