package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"promoforge/internal/domain"
)

// SceneRepositoryPG implements domain.SceneRepository.
type SceneRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewSceneRepository creates a new scene repository backed by PostgreSQL.
func NewSceneRepository(pool *pgxpool.Pool) *SceneRepositoryPG {
	return &SceneRepositoryPG{pool: pool}
}

// CreateBatch inserts all scenes of a job in one transaction. Indices must
// be unique and contiguous from zero.
func (r *SceneRepositoryPG) CreateBatch(ctx context.Context, scenes []*domain.Scene) error {
	if err := domain.ValidateSceneOrder(scenes); err != nil {
		return err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
INSERT INTO scenes (id, job_id, scene_index, image_url, image_asset_id, prompt, duration_seconds, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	for _, s := range scenes {
		if _, err := tx.Exec(ctx, query,
			s.ID,
			s.JobID,
			s.Index,
			s.ImageURL,
			nullableString(s.ImageAssetID),
			s.Prompt,
			s.DurationSeconds,
			s.Status,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListByJob returns the job's scenes ordered by index.
func (r *SceneRepositoryPG) ListByJob(ctx context.Context, jobID string) ([]domain.Scene, error) {
	query := sceneSelect + `
WHERE job_id = $1
ORDER BY scene_index ASC;
`
	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScenes(rows)
}

// ListGenerating returns every scene across all jobs that has been
// submitted to the provider and is still awaiting a result.
func (r *SceneRepositoryPG) ListGenerating(ctx context.Context) ([]domain.Scene, error) {
	query := sceneSelect + `
WHERE status = 'generating'
ORDER BY updated_at ASC;
`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScenes(rows)
}

// SetProviderTask stores the provider task id assigned at submission.
func (r *SceneRepositoryPG) SetProviderTask(ctx context.Context, sceneID, taskID string) error {
	query := `
UPDATE scenes
SET provider_task_id = $2,
    updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, sceneID, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatus applies a status change with optional result fields. Rows
// already in a terminal state are left untouched, so a repeated poll on a
// finished task is a safe no-op.
func (r *SceneRepositoryPG) UpdateStatus(ctx context.Context, sceneID string, status domain.SceneStatus, videoURL *string, cost *float64, errMsg *string) error {
	query := `
UPDATE scenes
SET status = $2,
    updated_at = NOW(),
    video_url = COALESCE($3, video_url),
    cost = COALESCE($4, cost),
    error_message = COALESCE($5, error_message)
WHERE id = $1 AND status NOT IN ('success', 'failed');
`
	_, err := r.pool.Exec(ctx, query, sceneID, status, videoURL, cost, errMsg)
	return err
}

// Aggregate computes the scene-state summary for a job in a single query.
func (r *SceneRepositoryPG) Aggregate(ctx context.Context, jobID string) (domain.AggregateStatus, error) {
	query := `
SELECT
    COUNT(*) FILTER (WHERE status = 'pending'),
    COUNT(*) FILTER (WHERE status = 'generating'),
    COUNT(*) FILTER (WHERE status = 'success'),
    COUNT(*) FILTER (WHERE status = 'failed'),
    COUNT(*)
FROM scenes
WHERE job_id = $1;
`
	var agg domain.AggregateStatus
	err := r.pool.QueryRow(ctx, query, jobID).Scan(
		&agg.Pending,
		&agg.Generating,
		&agg.Success,
		&agg.Failed,
		&agg.Total,
	)
	return agg, err
}

const sceneSelect = `
SELECT id, job_id, scene_index, image_url, COALESCE(image_asset_id, ''), prompt, duration_seconds, provider_task_id, status, video_url, cost, error_message, created_at, updated_at
FROM scenes`

func collectScenes(rows pgx.Rows) ([]domain.Scene, error) {
	var scenes []domain.Scene
	for rows.Next() {
		var s domain.Scene
		if err := rows.Scan(
			&s.ID,
			&s.JobID,
			&s.Index,
			&s.ImageURL,
			&s.ImageAssetID,
			&s.Prompt,
			&s.DurationSeconds,
			&s.ProviderTaskID,
			&s.Status,
			&s.VideoURL,
			&s.Cost,
			&s.ErrorMessage,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		scenes = append(scenes, s)
	}
	return scenes, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
