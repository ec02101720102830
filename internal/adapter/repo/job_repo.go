package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"promoforge/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	cfg, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("marshal job config: %w", err)
	}
	query := `
INSERT INTO jobs (id, project_id, title, status, config_json, output_url, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.ProjectID,
		job.Title,
		job.Status,
		cfg,
		job.OutputURL,
		job.ErrorMessage,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT id, project_id, title, status, config_json, output_url, error_message, created_at, updated_at
FROM jobs
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListByProject returns all jobs for a project, newest first.
func (r *JobRepositoryPG) ListByProject(ctx context.Context, projectID string) ([]domain.Job, error) {
	query := `
SELECT id, project_id, title, status, config_json, output_url, error_message, created_at, updated_at
FROM jobs
WHERE project_id = $1
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// UpdateStatus sets the job status; nil pointers leave the stored output
// URL and error message untouched.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, outputURL, errMsg *string) error {
	query := `
UPDATE jobs
SET status = $2,
    updated_at = NOW(),
    output_url = COALESCE($3, output_url),
    error_message = COALESCE($4, error_message)
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, jobID, status, outputURL, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListStale returns jobs stuck in the given status longer than olderThan.
func (r *JobRepositoryPG) ListStale(ctx context.Context, status domain.JobStatus, olderThan time.Duration) ([]domain.Job, error) {
	query := `
SELECT id, project_id, title, status, config_json, output_url, error_message, created_at, updated_at
FROM jobs
WHERE status = $1 AND updated_at < NOW() - $2::interval
ORDER BY updated_at ASC;
`
	interval := fmt.Sprintf("%d seconds", int64(olderThan.Seconds()))
	rows, err := r.pool.Query(ctx, query, status, interval)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// DeleteOlderThan removes jobs created before the cutoff. Scenes and usage
// rows go with them via ON DELETE CASCADE.
func (r *JobRepositoryPG) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE created_at < $1;`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var cfg []byte
	if err := row.Scan(
		&job.ID,
		&job.ProjectID,
		&job.Title,
		&job.Status,
		&cfg,
		&job.OutputURL,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &job.Config); err != nil {
			return nil, fmt.Errorf("unmarshal job config: %w", err)
		}
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]domain.Job, error) {
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}
