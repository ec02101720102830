package pipeline

import (
	"context"
	"sync"

	"promoforge/internal/domain"
	"promoforge/internal/infra"
)

// JobRunner is what the Manager executes per dispatched job.
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// Manager owns the background execution of pipeline runs. It replaces the
// original detached fire-and-forget continuation with task handles: a
// bounded set of concurrent runs, a per-job single-flight guard, and
// cancellation tied to process shutdown.
type Manager struct {
	runner JobRunner
	logger infra.Logger

	mu       sync.Mutex
	inflight map[string]struct{}

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a Manager allowing at most maxActive concurrent runs.
func NewManager(runner JobRunner, logger infra.Logger, maxActive int) *Manager {
	if maxActive < 1 {
		maxActive = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		runner:   runner,
		logger:   logger,
		inflight: make(map[string]struct{}),
		sem:      make(chan struct{}, maxActive),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Dispatch schedules a pipeline run for the job. A second dispatch while a
// run for the same job is still in flight returns ErrJobInFlight; nothing
// guards distinct jobs against each other beyond the concurrency bound.
func (m *Manager) Dispatch(jobID string) error {
	m.mu.Lock()
	if _, running := m.inflight[jobID]; running {
		m.mu.Unlock()
		return domain.ErrJobInFlight
	}
	m.inflight[jobID] = struct{}{}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.inflight, jobID)
			m.mu.Unlock()
		}()

		select {
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
		case <-m.ctx.Done():
			m.logger.Warn().Str("job_id", jobID).Msg("manager: shutdown before run started")
			return
		}

		if err := m.runner.Run(m.ctx, jobID); err != nil {
			m.logger.Error().Err(err).Str("job_id", jobID).Msg("manager: pipeline run failed")
		}
	}()
	return nil
}

// InFlight reports whether a run for the job is currently scheduled or
// executing.
func (m *Manager) InFlight(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[jobID]
	return ok
}

// Shutdown cancels all runs and waits for them to unwind, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
