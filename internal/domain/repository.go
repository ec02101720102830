package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for job entities.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	ListByProject(ctx context.Context, projectID string) ([]Job, error)
	// UpdateStatus sets the job status and optionally the output URL and
	// error message. Nil pointers leave the stored value untouched.
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, outputURL, errMsg *string) error
	// ListStale returns jobs that have sat in the given status longer than
	// the supplied age. Used by the reconciler to recover interrupted runs.
	ListStale(ctx context.Context, status JobStatus, olderThan time.Duration) ([]Job, error)
	// DeleteOlderThan removes jobs (and their scenes, by cascade) created
	// before the cutoff. Returns the number of jobs removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SceneRepository defines persistence for scenes.
type SceneRepository interface {
	// CreateBatch inserts all scenes for a job in one transaction after
	// validating that indices are unique and contiguous from zero.
	CreateBatch(ctx context.Context, scenes []*Scene) error
	// ListByJob returns the job's scenes ordered by index.
	ListByJob(ctx context.Context, jobID string) ([]Scene, error)
	// ListGenerating returns every scene currently awaiting a provider
	// result, across all jobs.
	ListGenerating(ctx context.Context) ([]Scene, error)
	SetProviderTask(ctx context.Context, sceneID, taskID string) error
	// UpdateStatus applies a status change with optional result fields.
	// Rows already in a terminal state are left untouched, which makes
	// repeated polls on a finished task safe no-ops.
	UpdateStatus(ctx context.Context, sceneID string, status SceneStatus, videoURL *string, cost *float64, errMsg *string) error
	Aggregate(ctx context.Context, jobID string) (AggregateStatus, error)
}

// AssetRepository resolves indirect image references on scenes.
type AssetRepository interface {
	GetByID(ctx context.Context, assetID string) (*Asset, error)
}

// UsageRepository records provider billing.
type UsageRepository interface {
	// Record inserts a usage record; inserting the same task id twice is a
	// no-op.
	Record(ctx context.Context, rec UsageRecord) error
	TotalByJob(ctx context.Context, jobID string) (float64, error)
}
