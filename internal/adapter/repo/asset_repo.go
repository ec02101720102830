package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"promoforge/internal/domain"
)

// AssetRepositoryPG implements domain.AssetRepository.
type AssetRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewAssetRepository creates a new asset repository backed by PostgreSQL.
func NewAssetRepository(pool *pgxpool.Pool) *AssetRepositoryPG {
	return &AssetRepositoryPG{pool: pool}
}

// GetByID fetches an asset by its identifier.
func (r *AssetRepositoryPG) GetByID(ctx context.Context, assetID string) (*domain.Asset, error) {
	query := `
SELECT id, project_id, kind, url, width, height, bytes, created_at
FROM assets
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, assetID)
	var a domain.Asset
	if err := row.Scan(
		&a.ID,
		&a.ProjectID,
		&a.Kind,
		&a.URL,
		&a.Width,
		&a.Height,
		&a.Bytes,
		&a.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
