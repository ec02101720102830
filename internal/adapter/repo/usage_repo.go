package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"promoforge/internal/domain"
)

// UsageRepositoryPG implements domain.UsageRepository.
type UsageRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewUsageRepository creates a new usage repository backed by PostgreSQL.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepositoryPG {
	return &UsageRepositoryPG{pool: pool}
}

// Record inserts a usage row. The provider task id is the primary key, so
// recording the same task twice is a no-op rather than a double bill.
func (r *UsageRepositoryPG) Record(ctx context.Context, rec domain.UsageRecord) error {
	query := `
INSERT INTO usage_records (task_id, job_id, kind, cost)
VALUES ($1, $2, $3, $4)
ON CONFLICT (task_id) DO NOTHING;
`
	_, err := r.pool.Exec(ctx, query, rec.TaskID, rec.JobID, rec.Kind, rec.Cost)
	return err
}

// TotalByJob sums provider cost across every task billed to the job.
func (r *UsageRepositoryPG) TotalByJob(ctx context.Context, jobID string) (float64, error) {
	query := `
SELECT COALESCE(SUM(cost), 0)
FROM usage_records
WHERE job_id = $1;
`
	var total float64
	err := r.pool.QueryRow(ctx, query, jobID).Scan(&total)
	return total, err
}
