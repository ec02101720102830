package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"promoforge/internal/domain"
	"promoforge/internal/providers/mediagen"
)

func newTestRunner(jobs *memJobs, scenes *memScenes, tasks *scriptedTasks, resolver ImageResolver, compositor Compositor) *Runner {
	usage := newMemUsage()
	orch := NewOrchestrator(tasks, jobs, scenes, resolver, testLogger(), 2)
	poller := NewPoller(tasks, scenes, usage, testLogger(), time.Millisecond, time.Second)
	return NewRunner(orch, poller, compositor, jobs, scenes, testLogger())
}

func TestRunThreeSceneSuccess(t *testing.T) {
	job := &domain.Job{ID: "j1", Status: domain.JobStatusDraft, Config: domain.JobConfig{Width: 1280, Height: 720}}
	jobs := newMemJobs(job)
	scenes := newMemScenes(
		&domain.Scene{ID: "s0", JobID: "j1", Index: 0, Prompt: "opening shot", DurationSeconds: 3, Status: domain.SceneStatusPending},
		&domain.Scene{ID: "s1", JobID: "j1", Index: 1, Prompt: "product detail", DurationSeconds: 3, Status: domain.SceneStatusPending},
		&domain.Scene{ID: "s2", JobID: "j1", Index: 2, Prompt: "call to action", DurationSeconds: 3, Status: domain.SceneStatusPending},
	)
	resolver := &staticResolver{urls: map[string]string{
		"s0": "https://cdn/i0.png", "s1": "https://cdn/i1.png", "s2": "https://cdn/i2.png",
	}}
	tasks := newScriptedTasks()
	// Scenes finish out of order: the last-submitted completes first.
	tasks.results["task-0"] = []mediagen.TaskResult{
		{State: mediagen.TaskStateProcessing},
		{State: mediagen.TaskStateProcessing},
		{State: mediagen.TaskStateSuccess, ResultURL: "https://cdn/v-task-0.mp4", Cost: 0.3},
	}
	tasks.results["task-1"] = []mediagen.TaskResult{
		{State: mediagen.TaskStateProcessing},
		{State: mediagen.TaskStateSuccess, ResultURL: "https://cdn/v-task-1.mp4", Cost: 0.3},
	}
	tasks.results["task-2"] = []mediagen.TaskResult{
		{State: mediagen.TaskStateSuccess, ResultURL: "https://cdn/v-task-2.mp4", Cost: 0.3},
	}
	compositor := &fakeCompositor{url: "https://cdn/final.mp4"}
	r := newTestRunner(jobs, scenes, tasks, resolver, compositor)

	if err := r.Run(context.Background(), "j1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := jobs.GetByID(context.Background(), "j1")
	if got.Status != domain.JobStatusCompleted {
		t.Fatalf("job = %s (%s), want completed", got.Status, got.ErrorMessage)
	}
	if got.OutputURL != "https://cdn/final.mp4" {
		t.Fatalf("output url = %q", got.OutputURL)
	}
	for _, id := range []string{"s0", "s1", "s2"} {
		if s := scenes.get(id); s.Status != domain.SceneStatusSuccess {
			t.Fatalf("%s = %s, want success", id, s.Status)
		}
	}
	// Composition receives scenes in index order regardless of completion order.
	if !reflect.DeepEqual(compositor.order, []int{0, 1, 2}) {
		t.Fatalf("compositor scene order = %v, want [0 1 2]", compositor.order)
	}
}

func TestRunBadImageFailsJobWithoutArtifact(t *testing.T) {
	job := &domain.Job{ID: "j1", Status: domain.JobStatusDraft, Config: domain.JobConfig{Width: 1280, Height: 720}}
	jobs := newMemJobs(job)
	scenes := newMemScenes(
		&domain.Scene{ID: "s0", JobID: "j1", Index: 0, Prompt: "opening shot", DurationSeconds: 3, Status: domain.SceneStatusPending},
		&domain.Scene{ID: "s1", JobID: "j1", Index: 1, Prompt: "broken reference", DurationSeconds: 3, Status: domain.SceneStatusPending},
	)
	resolver := &staticResolver{urls: map[string]string{"s0": "https://cdn/i0.png"}}
	tasks := newScriptedTasks()
	tasks.results["task-0"] = []mediagen.TaskResult{
		{State: mediagen.TaskStateSuccess, ResultURL: "https://cdn/v0.mp4", Cost: 0.3},
	}
	compositor := &fakeCompositor{}
	r := newTestRunner(jobs, scenes, tasks, resolver, compositor)

	if err := r.Run(context.Background(), "j1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if s := scenes.get("s0"); s.Status != domain.SceneStatusSuccess {
		t.Fatalf("s0 = %s, want success", s.Status)
	}
	if s := scenes.get("s1"); s.Status != domain.SceneStatusFailed {
		t.Fatalf("s1 = %s, want failed", s.Status)
	}
	got, _ := jobs.GetByID(context.Background(), "j1")
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("job = %s, want failed", got.Status)
	}
	if got.OutputURL != "" {
		t.Fatalf("failed job must have no artifact, got %q", got.OutputURL)
	}
	if got.ErrorMessage == "" {
		t.Fatal("failed job must carry an error message")
	}
	if compositor.called {
		t.Fatal("compositor must never run for a failed batch")
	}
}

func TestRunCompositorErrorFailsJob(t *testing.T) {
	job := &domain.Job{ID: "j1", Status: domain.JobStatusDraft, Config: domain.JobConfig{Width: 1280, Height: 720}}
	jobs := newMemJobs(job)
	scenes := newMemScenes(
		&domain.Scene{ID: "s0", JobID: "j1", Index: 0, Prompt: "only shot", DurationSeconds: 3, Status: domain.SceneStatusPending},
	)
	resolver := &staticResolver{urls: map[string]string{"s0": "https://cdn/i0.png"}}
	tasks := newScriptedTasks()
	tasks.results["task-0"] = []mediagen.TaskResult{
		{State: mediagen.TaskStateSuccess, ResultURL: "https://cdn/v0.mp4"},
	}
	compositor := &fakeCompositor{err: errors.New("mux exploded")}
	r := newTestRunner(jobs, scenes, tasks, resolver, compositor)

	if err := r.Run(context.Background(), "j1"); err == nil {
		t.Fatal("expected compositor error to propagate")
	}
	got, _ := jobs.GetByID(context.Background(), "j1")
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("job = %s, want failed", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Fatal("failure must be recorded on the job")
	}
}

func TestRunRejectsTerminalJob(t *testing.T) {
	job := &domain.Job{ID: "j1", Status: domain.JobStatusCompleted}
	r := newTestRunner(newMemJobs(job), newMemScenes(), newScriptedTasks(), &staticResolver{}, &fakeCompositor{})
	if err := r.Run(context.Background(), "j1"); !errors.Is(err, domain.ErrJobTerminal) {
		t.Fatalf("Run(terminal) = %v, want ErrJobTerminal", err)
	}
}

func TestRunRejectsJobWithoutScenes(t *testing.T) {
	job := &domain.Job{ID: "j1", Status: domain.JobStatusDraft}
	r := newTestRunner(newMemJobs(job), newMemScenes(), newScriptedTasks(), &staticResolver{}, &fakeCompositor{})
	if err := r.Run(context.Background(), "j1"); !errors.Is(err, domain.ErrNoScenes) {
		t.Fatalf("Run(no scenes) = %v, want ErrNoScenes", err)
	}
}

func TestFinalizeRequiresTerminalScenes(t *testing.T) {
	job := &domain.Job{ID: "j1", Status: domain.JobStatusGenerating}
	jobs := newMemJobs(job)
	scenes := newMemScenes(
		&domain.Scene{ID: "s0", JobID: "j1", Index: 0, Status: domain.SceneStatusGenerating},
	)
	r := newTestRunner(jobs, scenes, newScriptedTasks(), &staticResolver{}, &fakeCompositor{})
	if err := r.Finalize(context.Background(), job); err == nil {
		t.Fatal("Finalize must refuse jobs with non-terminal scenes")
	}
}
