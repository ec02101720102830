package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"promoforge/internal/adapter/repo"
	"promoforge/internal/http/handlers"
	"promoforge/internal/http/httpapi"
	"promoforge/internal/infra"
	"promoforge/internal/media"
	"promoforge/internal/pipeline"
	"promoforge/internal/providers/mediagen"
	"promoforge/internal/providers/tts"
	"promoforge/internal/storage"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	jobs := repo.NewJobRepository(pool)
	scenes := repo.NewSceneRepository(pool)
	assets := repo.NewAssetRepository(pool)
	usage := repo.NewUsageRepository(pool)

	tasks, err := mediagen.NewClient(mediagen.Options{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: cfg.ProviderBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build media client")
	}
	speech := tts.NewClient(tts.Options{
		APIKey:  cfg.TTSAPIKey,
		BaseURL: cfg.TTSBaseURL,
		Logger:  &logger,
	})
	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up object store")
	}

	compositor := media.New(tasks, speech, store, usage, logger, media.Config{
		WorkRoot:          cfg.WorkDir,
		FadeSeconds:       cfg.CrossfadeSeconds,
		MusicPollInterval: cfg.PollInterval,
		MusicBudget:       cfg.MusicPollBudget,
	})
	orchestrator := pipeline.NewOrchestrator(tasks, jobs, scenes, &pipeline.AssetImageResolver{Assets: assets}, logger, int64(cfg.SubmitConcurrency))
	poller := pipeline.NewPoller(tasks, scenes, usage, logger, cfg.PollInterval, cfg.VideoPollBudget)
	runner := pipeline.NewRunner(orchestrator, poller, compositor, jobs, scenes, logger)
	manager := pipeline.NewManager(runner, logger, cfg.MaxActiveJobs)

	app := handlers.NewApp(jobs, scenes, usage, manager, logger)
	router := httpapi.NewRouter(app, logger, cfg.AllowedOrigins, cfg.RateLimitPerMin)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to drain pipeline runs")
	}
	logger.Info().Msg("server stopped")
}

// newObjectStore picks MinIO when an endpoint is configured, otherwise the
// local filesystem store.
func newObjectStore(ctx context.Context, cfg *infra.Config) (storage.ObjectStore, error) {
	if cfg.MinioEndpoint != "" {
		return storage.NewMinioStore(ctx, storage.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	}
	return storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
}
