package domain

import "time"

// UsageKind distinguishes which provider endpoint was billed.
type UsageKind string

const (
	UsageKindVideo UsageKind = "video"
	UsageKindMusic UsageKind = "music"
)

// UsageRecord captures provider cost for one submitted task. Records are
// keyed by the provider task id so that repeated status polls on a finished
// task never double-bill.
type UsageRecord struct {
	TaskID     string
	JobID      string
	Kind       UsageKind
	Cost       float64
	RecordedAt time.Time
}
