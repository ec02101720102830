package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"promoforge/internal/domain"
	"promoforge/internal/infra"
	"promoforge/internal/providers/mediagen"
)

func testLogger() infra.Logger {
	return zerolog.Nop()
}

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newMemJobs(jobs ...*domain.Job) *memJobs {
	m := &memJobs{jobs: make(map[string]*domain.Job)}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memJobs) Create(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *memJobs) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memJobs) ListByProject(ctx context.Context, projectID string) ([]domain.Job, error) {
	return nil, nil
}

func (m *memJobs) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, outputURL, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = status
	if outputURL != nil {
		job.OutputURL = *outputURL
	}
	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	return nil
}

func (m *memJobs) ListStale(ctx context.Context, status domain.JobStatus, olderThan time.Duration) ([]domain.Job, error) {
	return nil, nil
}

func (m *memJobs) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *memJobs) status(jobID string) domain.JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[jobID].Status
}

type memScenes struct {
	mu     sync.Mutex
	scenes map[string]*domain.Scene
}

func newMemScenes(scenes ...*domain.Scene) *memScenes {
	m := &memScenes{scenes: make(map[string]*domain.Scene)}
	for _, s := range scenes {
		m.scenes[s.ID] = s
	}
	return m
}

func (m *memScenes) CreateBatch(ctx context.Context, scenes []*domain.Scene) error {
	if err := domain.ValidateSceneOrder(scenes); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range scenes {
		m.scenes[s.ID] = s
	}
	return nil
}

func (m *memScenes) ListByJob(ctx context.Context, jobID string) ([]domain.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Scene
	for _, s := range m.scenes {
		if s.JobID == jobID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *memScenes) ListGenerating(ctx context.Context) ([]domain.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Scene
	for _, s := range m.scenes {
		if s.Status == domain.SceneStatusGenerating {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memScenes) SetProviderTask(ctx context.Context, sceneID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scenes[sceneID]
	if !ok {
		return domain.ErrNotFound
	}
	s.ProviderTaskID = taskID
	return nil
}

func (m *memScenes) UpdateStatus(ctx context.Context, sceneID string, status domain.SceneStatus, videoURL *string, cost *float64, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scenes[sceneID]
	if !ok {
		return domain.ErrNotFound
	}
	// Mirror the SQL guard: terminal rows are never overwritten.
	if s.Status.Terminal() {
		return nil
	}
	s.Status = status
	if videoURL != nil {
		s.VideoURL = *videoURL
	}
	if cost != nil {
		s.Cost = *cost
	}
	if errMsg != nil {
		s.ErrorMessage = *errMsg
	}
	return nil
}

func (m *memScenes) Aggregate(ctx context.Context, jobID string) (domain.AggregateStatus, error) {
	scenes, _ := m.ListByJob(ctx, jobID)
	return domain.Aggregate(scenes), nil
}

func (m *memScenes) get(sceneID string) domain.Scene {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.scenes[sceneID]
}

type memUsage struct {
	mu      sync.Mutex
	records map[string]domain.UsageRecord
}

func newMemUsage() *memUsage {
	return &memUsage{records: make(map[string]domain.UsageRecord)}
}

func (m *memUsage) Record(ctx context.Context, rec domain.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.TaskID]; exists {
		return nil
	}
	m.records[rec.TaskID] = rec
	return nil
}

func (m *memUsage) TotalByJob(ctx context.Context, jobID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, r := range m.records {
		if r.JobID == jobID {
			total += r.Cost
		}
	}
	return total, nil
}

func (m *memUsage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// scriptedTasks returns canned results per task id, advancing through the
// sequence on each status call.
type scriptedTasks struct {
	mu          sync.Mutex
	nextTask    int
	submitErrs  map[int]error
	statusErrs  map[string]error
	results     map[string][]mediagen.TaskResult
	statusCalls map[string]int
}

func newScriptedTasks() *scriptedTasks {
	return &scriptedTasks{
		submitErrs:  make(map[int]error),
		statusErrs:  make(map[string]error),
		results:     make(map[string][]mediagen.TaskResult),
		statusCalls: make(map[string]int),
	}
}

func (s *scriptedTasks) SubmitVideoTask(ctx context.Context, req mediagen.VideoTaskRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.nextTask
	s.nextTask++
	if err, ok := s.submitErrs[n]; ok {
		return "", err
	}
	return fmt.Sprintf("task-%d", n), nil
}

func (s *scriptedTasks) SubmitMusicTask(ctx context.Context, req mediagen.MusicTaskRequest) (string, error) {
	return "music-task", nil
}

func (s *scriptedTasks) TaskStatus(ctx context.Context, taskID string) (mediagen.TaskResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.statusErrs[taskID]; ok {
		s.statusCalls[taskID]++
		return mediagen.TaskResult{}, err
	}
	seq, ok := s.results[taskID]
	if !ok {
		return mediagen.TaskResult{State: mediagen.TaskStateProcessing}, nil
	}
	idx := s.statusCalls[taskID]
	s.statusCalls[taskID]++
	if idx >= len(seq) {
		idx = len(seq) - 1
	}
	return seq[idx], nil
}

func (s *scriptedTasks) calls(taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCalls[taskID]
}

type staticResolver struct {
	urls map[string]string // scene ID -> URL; missing entries are unresolvable
}

func (r *staticResolver) ResolveImage(ctx context.Context, scene domain.Scene) (string, error) {
	if url, ok := r.urls[scene.ID]; ok {
		return url, nil
	}
	return "", domain.ErrNoImageSource
}

type fakeCompositor struct {
	mu     sync.Mutex
	called bool
	order  []int
	url    string
	err    error
}

func (f *fakeCompositor) Compose(ctx context.Context, job *domain.Job, scenes []domain.Scene) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = true
	f.order = nil
	for _, s := range scenes {
		f.order = append(f.order, s.Index)
	}
	if f.err != nil {
		return "", f.err
	}
	if f.url == "" {
		f.url = "https://cdn.example.com/final.mp4"
	}
	return f.url, nil
}
