package models

import "time"

// InspectionSummary is the persisted view of a finished or in-flight
// inspection, as stored in the history database.
type InspectionSummary struct {
	ID           string     `json:"id"`
	PartID       string     `json:"part_id"`
	PartFolder   string     `json:"part_folder"`
	StorageDir   string     `json:"storage_dir"`
	State        JobState   `json:"state"`
	Result       JobResult  `json:"result"`
	Attachments  int        `json:"attachments"`
	Error        string     `json:"error,omitempty"`
	CycleSeconds float64    `json:"cycle_seconds"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// FindingRow is one persisted defect finding.
type FindingRow struct {
	InspectionID    string      `json:"inspection_id"`
	AttachmentIndex int         `json:"attachment_index"`
	Class           string      `json:"class"`
	Score           float64     `json:"score"`
	Area            float64     `json:"area"`
	Box             BoundingBox `json:"box"`
}
