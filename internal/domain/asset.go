package domain

import "time"

// AssetKind enumerates stored asset types.
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindVideo AssetKind = "video"
)

// Asset is a previously generated or uploaded artifact belonging to a
// project. Scenes may reference an image asset instead of carrying a direct
// URL; the orchestrator resolves the reference before submission.
type Asset struct {
	ID        string
	ProjectID string
	Kind      AssetKind
	URL       string
	Width     int
	Height    int
	Bytes     int64
	CreatedAt time.Time
}
