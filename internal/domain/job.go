package domain

import "time"

// JobStatus enumerates promo-video job lifecycle states.
type JobStatus string

const (
	JobStatusDraft      JobStatus = "draft"
	JobStatusGenerating JobStatus = "generating"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status accepts no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobConfig carries the per-job generation settings supplied at creation.
type JobConfig struct {
	Language     string  `json:"language,omitempty"`
	VoiceID      string  `json:"voice_id,omitempty"`
	MusicStyle   string  `json:"music_style,omitempty"`
	MusicEnabled bool    `json:"music_enabled"`
	Narration    string  `json:"narration,omitempty"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	FadeSeconds  float64 `json:"fade_seconds,omitempty"`
}

// Job is one request to produce a composed promotional video from an
// ordered list of scenes. The pipeline owns all status transitions after
// generation starts; jobs are never completed unless every scene succeeded.
type Job struct {
	ID           string
	ProjectID    string
	Title        string
	Status       JobStatus
	Config       JobConfig
	OutputURL    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
