package mediagen

import "context"

// VideoTaskRequest describes one scene animation submission.
type VideoTaskRequest struct {
	ImageURL        string
	Prompt          string
	DurationSeconds float64
	Width           int
	Height          int
}

// MusicTaskRequest describes a background-music submission.
type MusicTaskRequest struct {
	Prompt          string
	DurationSeconds float64
}

// TaskState is the provider-reported lifecycle state of a submitted task.
type TaskState string

const (
	TaskStateProcessing TaskState = "processing"
	TaskStateSuccess    TaskState = "success"
	TaskStateFailed     TaskState = "failed"
)

// TaskResult is the normalized response of a status poll.
type TaskResult struct {
	State     TaskState
	ResultURL string
	Cost      float64
	Error     string
}

// TaskService is the contract the pipeline depends on. Completion of a
// submitted task is discovered only by polling TaskStatus.
type TaskService interface {
	SubmitVideoTask(ctx context.Context, req VideoTaskRequest) (string, error)
	SubmitMusicTask(ctx context.Context, req MusicTaskRequest) (string, error)
	TaskStatus(ctx context.Context, taskID string) (TaskResult, error)
}
