package domain

import (
	"fmt"
	"time"
)

// SceneStatus enumerates per-scene generation states.
type SceneStatus string

const (
	SceneStatusPending    SceneStatus = "pending"
	SceneStatusGenerating SceneStatus = "generating"
	SceneStatusSuccess    SceneStatus = "success"
	SceneStatusFailed     SceneStatus = "failed"
)

// Terminal reports whether the scene reached a final state.
func (s SceneStatus) Terminal() bool {
	return s == SceneStatusSuccess || s == SceneStatusFailed
}

// Scene is one image + animation prompt unit within a job, individually
// animated into a short clip by the video provider. Indices are unique and
// contiguous from zero within a job.
type Scene struct {
	ID              string
	JobID           string
	Index           int
	ImageURL        string
	ImageAssetID    string
	Prompt          string
	DurationSeconds float64
	ProviderTaskID  string
	Status          SceneStatus
	VideoURL        string
	Cost            float64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AggregateStatus summarizes a job's scenes. It is derived on demand and
// never stored.
type AggregateStatus struct {
	Pending    int `json:"pending"`
	Generating int `json:"generating"`
	Success    int `json:"success"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// AllComplete reports whether every scene reached a terminal state.
func (a AggregateStatus) AllComplete() bool {
	return a.Total > 0 && a.Success+a.Failed == a.Total
}

// AllSuccess reports whether every scene succeeded.
func (a AggregateStatus) AllSuccess() bool {
	return a.Total > 0 && a.Success == a.Total
}

// Aggregate computes the scene-state summary for a slice of scenes.
func Aggregate(scenes []Scene) AggregateStatus {
	agg := AggregateStatus{Total: len(scenes)}
	for _, s := range scenes {
		switch s.Status {
		case SceneStatusPending:
			agg.Pending++
		case SceneStatusGenerating:
			agg.Generating++
		case SceneStatusSuccess:
			agg.Success++
		case SceneStatusFailed:
			agg.Failed++
		}
	}
	return agg
}

// ValidateSceneOrder checks that scene indices are unique and contiguous
// from zero. Duplicate or gapped indices are rejected at creation time.
func ValidateSceneOrder(scenes []*Scene) error {
	seen := make(map[int]bool, len(scenes))
	for _, s := range scenes {
		if s.Index < 0 || s.Index >= len(scenes) {
			return fmt.Errorf("%w: index %d out of range for %d scenes", ErrInvalidScene, s.Index, len(scenes))
		}
		if seen[s.Index] {
			return fmt.Errorf("%w: duplicate index %d", ErrInvalidScene, s.Index)
		}
		seen[s.Index] = true
	}
	return nil
}
