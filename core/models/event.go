package models

import "time"

// JobEvent represents a job lifecycle transition recorded for traceability.
type JobEvent struct {
	ID        int64
	JobID     string
	At        time.Time
	FromState *JobState
	ToState   JobState
	Reason    string
	MetaJSON  map[string]interface{}
}
