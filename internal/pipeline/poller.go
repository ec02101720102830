package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"promoforge/internal/domain"
	"promoforge/internal/infra"
	"promoforge/internal/providers/mediagen"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultVideoBudget  = 10 * time.Minute
)

// Poller advances scene state by querying the provider. It never retries a
// failed check itself; the wall-clock budget bounds how long transient
// errors can stall a job.
type Poller struct {
	tasks    mediagen.TaskService
	scenes   domain.SceneRepository
	usage    domain.UsageRepository
	logger   infra.Logger
	interval time.Duration
	budget   time.Duration
}

// NewPoller constructs a Poller. Zero interval/budget fall back to defaults.
func NewPoller(tasks mediagen.TaskService, scenes domain.SceneRepository, usage domain.UsageRepository, logger infra.Logger, interval, budget time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if budget <= 0 {
		budget = defaultVideoBudget
	}
	return &Poller{
		tasks:    tasks,
		scenes:   scenes,
		usage:    usage,
		logger:   logger,
		interval: interval,
		budget:   budget,
	}
}

// CheckScene issues one status check for the scene's provider task and
// persists the outcome. Scenes already terminal, or not yet submitted, are
// safe no-ops: no provider call is made and no cost is re-recorded. A
// credential failure is not retryable, so the scene is failed on the spot
// instead of burning the polling budget.
func (p *Poller) CheckScene(ctx context.Context, scene domain.Scene) error {
	if scene.Status.Terminal() || scene.ProviderTaskID == "" {
		return nil
	}

	result, err := p.tasks.TaskStatus(ctx, scene.ProviderTaskID)
	if err != nil {
		if errors.Is(err, domain.ErrProviderAuth) {
			msg := err.Error()
			if perr := p.scenes.UpdateStatus(ctx, scene.ID, domain.SceneStatusFailed, nil, nil, &msg); perr != nil {
				return fmt.Errorf("persist scene %d auth failure: %w", scene.Index, perr)
			}
		}
		return fmt.Errorf("check scene %d: %w", scene.Index, err)
	}

	switch result.State {
	case mediagen.TaskStateSuccess:
		p.recordCost(ctx, scene, result.Cost)
		url := result.ResultURL
		cost := result.Cost
		if err := p.scenes.UpdateStatus(ctx, scene.ID, domain.SceneStatusSuccess, &url, &cost, nil); err != nil {
			return fmt.Errorf("persist scene %d success: %w", scene.Index, err)
		}
	case mediagen.TaskStateFailed:
		p.recordCost(ctx, scene, result.Cost)
		msg := result.Error
		if msg == "" {
			msg = "provider reported failure"
		}
		if err := p.scenes.UpdateStatus(ctx, scene.ID, domain.SceneStatusFailed, nil, nil, &msg); err != nil {
			return fmt.Errorf("persist scene %d failure: %w", scene.Index, err)
		}
	}
	return nil
}

// CheckAll runs one status check per in-flight scene concurrently. A
// failing check is logged and never aborts checks for sibling scenes.
func (p *Poller) CheckAll(ctx context.Context, scenes []domain.Scene) {
	var wg sync.WaitGroup
	for _, scene := range scenes {
		if scene.Status.Terminal() || scene.ProviderTaskID == "" {
			continue
		}
		scene := scene
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.CheckScene(ctx, scene); err != nil {
				p.logger.Warn().Err(err).
					Str("job_id", scene.JobID).
					Int("scene_index", scene.Index).
					Msg("poller: status check failed")
			}
		}()
	}
	wg.Wait()
}

// WaitForScenes polls the job's scenes on a fixed interval until every one
// is terminal or the budget elapses. On budget exhaustion all remaining
// non-terminal scenes are forced failed with a timeout reason.
func (p *Poller) WaitForScenes(ctx context.Context, jobID string) (domain.AggregateStatus, error) {
	deadline := time.NewTimer(p.budget)
	defer deadline.Stop()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return domain.AggregateStatus{}, ctx.Err()
		case <-deadline.C:
			return p.forceTimeout(ctx, jobID)
		case <-ticker.C:
			scenes, err := p.scenes.ListByJob(ctx, jobID)
			if err != nil {
				p.logger.Warn().Err(err).Str("job_id", jobID).Msg("poller: list scenes failed")
				continue
			}
			p.CheckAll(ctx, scenes)

			agg, err := p.scenes.Aggregate(ctx, jobID)
			if err != nil {
				p.logger.Warn().Err(err).Str("job_id", jobID).Msg("poller: aggregate failed")
				continue
			}
			if agg.AllComplete() {
				return agg, nil
			}
		}
	}
}

// forceTimeout fails every scene that never reached a terminal state.
func (p *Poller) forceTimeout(ctx context.Context, jobID string) (domain.AggregateStatus, error) {
	scenes, err := p.scenes.ListByJob(ctx, jobID)
	if err != nil {
		return domain.AggregateStatus{}, fmt.Errorf("list scenes after budget: %w", err)
	}
	msg := fmt.Sprintf("scene generation timed out after %s", p.budget)
	for _, scene := range scenes {
		if scene.Status.Terminal() {
			continue
		}
		p.logger.Warn().Str("job_id", jobID).Int("scene_index", scene.Index).Msg("poller: forcing timeout failure")
		if err := p.scenes.UpdateStatus(ctx, scene.ID, domain.SceneStatusFailed, nil, nil, &msg); err != nil {
			return domain.AggregateStatus{}, fmt.Errorf("force scene %d timeout: %w", scene.Index, err)
		}
	}
	return p.scenes.Aggregate(ctx, jobID)
}

// recordCost stores provider billing as soon as it is observed, including
// for tasks that ultimately fail. The repository ignores duplicate task
// ids, so late or repeated observations never double-count.
func (p *Poller) recordCost(ctx context.Context, scene domain.Scene, cost float64) {
	if p.usage == nil || cost == 0 {
		return
	}
	if err := p.usage.Record(ctx, domain.UsageRecord{
		TaskID: scene.ProviderTaskID,
		JobID:  scene.JobID,
		Kind:   domain.UsageKindVideo,
		Cost:   cost,
	}); err != nil {
		p.logger.Warn().Err(err).Str("task_id", scene.ProviderTaskID).Msg("poller: usage record failed")
	}
}
