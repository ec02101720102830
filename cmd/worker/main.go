package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"promoforge/internal/adapter/repo"
	"promoforge/internal/domain"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	jobs := repo.NewJobRepository(pool)
	scenes := repo.NewSceneRepository(pool)
	usage := repo.NewUsageRepository(pool)

	tasks, err := mediagen.NewClient(mediagen.Options{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: cfg.ProviderBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build media client")
	}
	speech := tts.NewClient(tts.Options{
		APIKey:  cfg.TTSAPIKey,
		BaseURL: cfg.TTSBaseURL,
		Logger:  &logger,
	})
	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	compositor := media.New(tasks, speech, store, usage, logger, media.Config{
		WorkRoot:          cfg.WorkDir,
		FadeSeconds:       cfg.CrossfadeSeconds,
		MusicPollInterval: cfg.PollInterval,
		MusicBudget:       cfg.MusicPollBudget,
	})
	poller := pipeline.NewPoller(tasks, scenes, usage, logger, cfg.PollInterval, cfg.VideoPollBudget)
	runner := pipeline.NewRunner(nil, poller, compositor, jobs, scenes, logger)

	r := &reconciler{
		jobs:      jobs,
		scenes:    scenes,
		poller:    poller,
		runner:    runner,
		logger:    logger,
		interval:  cfg.ReconcileInterval,
		staleAge:  cfg.StaleJobAge,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}
	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("worker: reconciler stopped")
	}
	logger.Info().Msg("worker: stopped")
}

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

// reconciler recovers state the API process could not finish: scenes still
// waiting on the provider, generating jobs orphaned by a crash, and jobs
// past the retention window.
type reconciler struct {
	jobs      domain.JobRepository
	scenes    domain.SceneRepository
	poller    *pipeline.Poller
	runner    *pipeline.Runner
	logger    infra.Logger
	interval  time.Duration
	staleAge  time.Duration
	retention time.Duration
}

func (r *reconciler) Run(ctx context.Context) error {
	r.logger.Info().Dur("interval", r.interval).Msg("worker: started")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	sweep := time.NewTicker(24 * time.Hour)
	defer sweep.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		case <-sweep.C:
			r.sweepRetention(ctx)
		}
	}
}

// tick refreshes in-flight scenes from the provider, then finalizes jobs
// that have been generating past the stale budget.
func (r *reconciler) tick(ctx context.Context) {
	generating, err := r.scenes.ListGenerating(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("worker: list generating scenes failed")
		return
	}
	if len(generating) > 0 {
		r.logger.Info().Int("scenes", len(generating)).Msg("worker: refreshing scene statuses")
		r.poller.CheckAll(ctx, generating)
	}

	stale, err := r.jobs.ListStale(ctx, domain.JobStatusGenerating, r.staleAge)
	if err != nil {
		r.logger.Error().Err(err).Msg("worker: list stale jobs failed")
		return
	}
	for _, job := range stale {
		if err := r.finalizeStale(ctx, job); err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: finalize failed")
		}
	}
}

// finalizeStale fails scenes still pending after the stale budget, then
// drives the job to its terminal status.
func (r *reconciler) finalizeStale(ctx context.Context, job domain.Job) error {
	scenes, err := r.scenes.ListByJob(ctx, job.ID)
	if err != nil {
		return err
	}
	msg := "scene generation abandoned after " + r.staleAge.String()
	for _, s := range scenes {
		if s.Status.Terminal() {
			continue
		}
		if err := r.scenes.UpdateStatus(ctx, s.ID, domain.SceneStatusFailed, nil, nil, &msg); err != nil {
			return err
		}
	}
	r.logger.Info().Str("job_id", job.ID).Msg("worker: finalizing stale job")
	return r.runner.Finalize(ctx, &job)
}

func (r *reconciler) sweepRetention(ctx context.Context) {
	cutoff := time.Now().Add(-r.retention)
	deleted, err := r.jobs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		r.logger.Error().Err(err).Msg("worker: retention sweep failed")
		return
	}
	if deleted > 0 {
		r.logger.Info().Int64("jobs", deleted).Time("cutoff", cutoff).Msg("worker: retention sweep removed jobs")
	}
}
