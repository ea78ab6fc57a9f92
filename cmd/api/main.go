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
	"mediagen/internal/http/handlers"
	"mediagen/internal/http/httpapi"
	"mediagen/internal/infra"
	"mediagen/internal/infra/credentials"
	"mediagen/internal/infra/geoip"
	"mediagen/internal/notify"
	"mediagen/internal/pipeline"
	"mediagen/internal/preview"
	"mediagen/internal/providers/kie"
	"mediagen/internal/reaper"
	"mediagen/internal/storage"
	"mediagen/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if err := infra.Migrate(cfg.DatabaseURL, migrations.FS); err != nil {
		logger.Fatal().Err(err).Msg("database migration failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	provisioner := repo.NewOwnerProvisioner(runner)
	jobs := repo.NewJobRepository(runner, provisioner, logger)
	ledger := repo.NewCreditLedger(runner)
	artifacts := repo.NewArtifactRepository(runner)

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL, cfg.StorageSignSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	providerKey := cfg.ProviderAPIKey
	if providerKey == "" {
		stored, err := credentials.NewStore(runner).ProviderAPIKey(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load provider credentials")
		}
		providerKey = stored
	}

	provider, err := kie.NewClient(kie.Options{
		APIKey:  providerKey,
		BaseURL: cfg.ProviderBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure provider client")
	}
	poller := &kie.Poller{
		Querier:     provider,
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.PollMaxAttempts,
		Logger:      logger,
	}

	notifier := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	defer notifier.Close()

	processor := &pipeline.Processor{
		Jobs:     jobs,
		Ledger:   ledger,
		Provider: provider,
		Poller:   poller,
		Signer:   store,
		Notifier: notifier,
		Logger:   logger,
	}
	batches := &pipeline.Runner{
		Jobs:        jobs,
		Processor:   processor,
		Concurrency: int64(cfg.BatchConcurrency),
		Stagger:     cfg.BatchStagger,
		Logger:      logger,
	}
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

	countries, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	app := &handlers.App{
		Jobs:          jobs,
		Ledger:        ledger,
		Provisioner:   provisioner,
		Artifacts:     artifacts,
		Runner:        batches,
		Processor:     processor,
		Previews:      previews,
		Reaper:        sweeper,
		Store:         store,
		Logger:        logger,
		BaseCtx:       ctx,
		BatchMaxItems: cfg.BatchMaxItems,
	}

	router := httpapi.NewRouter(app, cfg, countries)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
