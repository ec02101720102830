package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"promoforge/internal/domain"
	"promoforge/internal/infra"
	"promoforge/internal/providers/mediagen"
)

// ImageResolver turns a scene's image reference into a fetchable URL.
type ImageResolver interface {
	ResolveImage(ctx context.Context, scene domain.Scene) (string, error)
}

// AssetImageResolver resolves indirect asset references through the asset
// repository; direct URLs pass through untouched.
type AssetImageResolver struct {
	Assets domain.AssetRepository
}

func (r *AssetImageResolver) ResolveImage(ctx context.Context, scene domain.Scene) (string, error) {
	if scene.ImageURL != "" {
		return scene.ImageURL, nil
	}
	if scene.ImageAssetID == "" {
		return "", domain.ErrNoImageSource
	}
	asset, err := r.Assets.GetByID(ctx, scene.ImageAssetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("%w: asset %s", domain.ErrNoImageSource, scene.ImageAssetID)
		}
		return "", fmt.Errorf("resolve asset %s: %w", scene.ImageAssetID, err)
	}
	if asset.URL == "" {
		return "", fmt.Errorf("%w: asset %s has no url", domain.ErrNoImageSource, scene.ImageAssetID)
	}
	return asset.URL, nil
}

// Orchestrator submits one video task per scene. Submissions run
// concurrently under a small semaphore so the provider's rate limits are
// respected regardless of scene count.
type Orchestrator struct {
	tasks    mediagen.TaskService
	jobs     domain.JobRepository
	scenes   domain.SceneRepository
	resolver ImageResolver
	logger   infra.Logger
	sem      *semaphore.Weighted
}

// NewOrchestrator constructs an Orchestrator with the given submit
// concurrency (minimum 1).
func NewOrchestrator(tasks mediagen.TaskService, jobs domain.JobRepository, scenes domain.SceneRepository, resolver ImageResolver, logger infra.Logger, submitConcurrency int64) *Orchestrator {
	if submitConcurrency < 1 {
		submitConcurrency = 1
	}
	return &Orchestrator{
		tasks:    tasks,
		jobs:     jobs,
		scenes:   scenes,
		resolver: resolver,
		logger:   logger,
		sem:      semaphore.NewWeighted(submitConcurrency),
	}
}

// StartAll submits every scene of the job. A single failing scene never
// aborts its siblings; it is simply marked failed and the batch continues.
// After all submissions the job moves draft → generating.
func (o *Orchestrator) StartAll(ctx context.Context, job *domain.Job, scenes []domain.Scene) error {
	if len(scenes) == 0 {
		return domain.ErrNoScenes
	}

	var wg sync.WaitGroup
	for _, scene := range scenes {
		if scene.Status.Terminal() || scene.ProviderTaskID != "" {
			continue
		}
		scene := scene
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.submitScene(ctx, job, scene)
		}()
	}
	wg.Wait()

	if err := o.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusGenerating, nil, nil); err != nil {
		return fmt.Errorf("mark job generating: %w", err)
	}
	return nil
}

func (o *Orchestrator) submitScene(ctx context.Context, job *domain.Job, scene domain.Scene) {
	imageURL, err := o.resolver.ResolveImage(ctx, scene)
	if err != nil {
		o.failScene(ctx, scene, err)
		return
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.failScene(ctx, scene, err)
		return
	}
	defer o.sem.Release(1)

	taskID, err := o.tasks.SubmitVideoTask(ctx, mediagen.VideoTaskRequest{
		ImageURL:        imageURL,
		Prompt:          scene.Prompt,
		DurationSeconds: scene.DurationSeconds,
		Width:           job.Config.Width,
		Height:          job.Config.Height,
	})
	if err != nil {
		o.failScene(ctx, scene, err)
		return
	}

	if err := o.scenes.SetProviderTask(ctx, scene.ID, taskID); err != nil {
		o.failScene(ctx, scene, fmt.Errorf("persist task id: %w", err))
		return
	}
	if err := o.scenes.UpdateStatus(ctx, scene.ID, domain.SceneStatusGenerating, nil, nil, nil); err != nil {
		o.logger.Error().Err(err).Str("scene_id", scene.ID).Msg("orchestrator: mark generating failed")
	}
}

func (o *Orchestrator) failScene(ctx context.Context, scene domain.Scene, cause error) {
	o.logger.Warn().Err(cause).
		Str("job_id", scene.JobID).
		Int("scene_index", scene.Index).
		Msg("orchestrator: scene submission failed")
	msg := cause.Error()
	if err := o.scenes.UpdateStatus(ctx, scene.ID, domain.SceneStatusFailed, nil, nil, &msg); err != nil {
		o.logger.Error().Err(err).Str("scene_id", scene.ID).Msg("orchestrator: mark failed errored")
	}
}
