package pipeline

import (
	"context"
	"fmt"

	"promoforge/internal/domain"
	"promoforge/internal/infra"
)

// Compositor builds and publishes the final video once every scene of a
// job succeeded.
type Compositor interface {
	Compose(ctx context.Context, job *domain.Job, scenes []domain.Scene) (string, error)
}

// Runner drives one job through the full pipeline: submission, polling,
// compositing, terminal persistence.
type Runner struct {
	orch       *Orchestrator
	poller     *Poller
	compositor Compositor
	jobs       domain.JobRepository
	scenes     domain.SceneRepository
	logger     infra.Logger
}

// NewRunner wires the pipeline stages together.
func NewRunner(orch *Orchestrator, poller *Poller, compositor Compositor, jobs domain.JobRepository, scenes domain.SceneRepository, logger infra.Logger) *Runner {
	return &Runner{
		orch:       orch,
		poller:     poller,
		compositor: compositor,
		jobs:       jobs,
		scenes:     scenes,
		logger:     logger,
	}
}

// Run executes the pipeline for the job. It returns an error only for
// conditions the caller should surface (unknown job, no scenes, persistence
// failures); a job ending in failed status is a recorded outcome, not an
// error.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status.Terminal() {
		return domain.ErrJobTerminal
	}

	scenes, err := r.scenes.ListByJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load scenes: %w", err)
	}
	if len(scenes) == 0 {
		return domain.ErrNoScenes
	}

	r.logger.Info().Str("job_id", jobID).Int("scenes", len(scenes)).Msg("pipeline: starting generation")

	if err := r.orch.StartAll(ctx, job, scenes); err != nil {
		r.failJob(ctx, jobID, err)
		return err
	}

	if _, err := r.poller.WaitForScenes(ctx, jobID); err != nil {
		r.failJob(ctx, jobID, err)
		return err
	}

	return r.Finalize(ctx, job)
}

// Finalize inspects the terminal scene states and either composes the
// final video or records the job failure. It is also invoked by the
// reconciler for jobs whose original run was interrupted.
func (r *Runner) Finalize(ctx context.Context, job *domain.Job) error {
	scenes, err := r.scenes.ListByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load scenes: %w", err)
	}
	agg := domain.Aggregate(scenes)
	if !agg.AllComplete() {
		return fmt.Errorf("job %s has non-terminal scenes", job.ID)
	}

	if !agg.AllSuccess() {
		msg := firstSceneError(scenes)
		r.logger.Info().Str("job_id", job.ID).Int("failed", agg.Failed).Msg("pipeline: job failed, skipping composite")
		return r.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, nil, &msg)
	}

	url, err := r.compositor.Compose(ctx, job, scenes)
	if err != nil {
		r.failJob(ctx, job.ID, err)
		return err
	}

	r.logger.Info().Str("job_id", job.ID).Str("output_url", url).Msg("pipeline: job completed")
	return r.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusCompleted, &url, nil)
}

func (r *Runner) failJob(ctx context.Context, jobID string, cause error) {
	msg := cause.Error()
	if err := r.jobs.UpdateStatus(ctx, jobID, domain.JobStatusFailed, nil, &msg); err != nil {
		r.logger.Error().Err(err).Str("job_id", jobID).Msg("pipeline: persist job failure errored")
	}
}

func firstSceneError(scenes []domain.Scene) string {
	for _, s := range scenes {
		if s.Status == domain.SceneStatusFailed {
			if s.ErrorMessage != "" {
				return fmt.Sprintf("scene %d: %s", s.Index, s.ErrorMessage)
			}
			return fmt.Sprintf("scene %d failed", s.Index)
		}
	}
	return "one or more scenes failed"
}
