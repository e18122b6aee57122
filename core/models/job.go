package models

import (
	"sync"
	"time"
)

// JobContext represents one inspection cycle for a single part.
// It is owned exclusively by the workflow orchestrator while the job runs:
// the orchestrator mutates job-level fields, and per-record outcomes go
// through the AttachmentRecord commit methods, which serialize the cycle
// goroutine against the background worker. On completion the context is
// handed to the traceability writer and becomes immutable.
type JobContext struct {
	ID         string
	PartID     string // raw part label as entered
	PartFolder string // sanitized label used for the storage path
	StorageDir string
	State      JobState
	Result     JobResult
	Records    []*AttachmentRecord
	Err        error // recorded fault for Faulted/Aborted jobs
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// CycleTime returns the elapsed wall time of the cycle.
func (j *JobContext) CycleTime() time.Duration {
	if j.FinishedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

// JobState represents the workflow state machine state.
type JobState string

const (
	StateIdle          JobState = "idle"
	StateStage1Running JobState = "stage1_running"
	StateStage2Running JobState = "stage2_running"
	StateDraining      JobState = "draining"
	StateCompleted     JobState = "completed"
	StateAborted       JobState = "aborted"
	StateFaulted       JobState = "faulted"
)

// Running reports whether the state is one of the in-flight states.
func (s JobState) Running() bool {
	switch s {
	case StateStage1Running, StateStage2Running, StateDraining:
		return true
	}
	return false
}

// Terminal reports whether the state is an end state.
func (s JobState) Terminal() bool {
	switch s {
	case StateCompleted, StateAborted, StateFaulted:
		return true
	}
	return false
}

// JobResult represents the overall inspection outcome.
type JobResult string

const (
	ResultPending JobResult = "pending"
	ResultPass    JobResult = "pass"
	ResultFail    JobResult = "fail"
	ResultError   JobResult = "error"
)

// MotionTarget is the pose both axes must reach for one front capture.
type MotionTarget struct {
	AngleDeg float64 // turntable angle, normalized to [0,360)
	AxisMM   float64 // linear-axis position, clamped to calibrated travel
}

// FrontCapture holds the image artifacts of one front-view capture.
type FrontCapture struct {
	RawPath       string // initial front snapshot
	CorrectedPath string // post-alignment snapshot, empty when correction is off
	CropPath      string // final square crop fed to stage 3
	Crop          []byte // crop bytes handed to the background worker
}

// AttachmentRecord tracks one detected attachment end-to-end through the
// four stages. Detection, Target and Capture are written by the cycle
// goroutine before the background task is submitted. The outcome fields
// are guarded: the worker commits them through Complete, the cycle
// goroutine marks a skipped record through Fail and a drain timeout
// through Abandon. Whichever side finishes the record first wins; the
// losing write is discarded.
type AttachmentRecord struct {
	Detection Detection
	Target    MotionTarget
	Capture   *FrontCapture

	mu        sync.Mutex
	best      *Detection
	findings  []DefectFinding
	err       error
	done      bool
	abandoned bool
}

// Index returns the stable stage-1 index of the record.
func (r *AttachmentRecord) Index() int {
	return r.Detection.Index
}

// Fail marks the record finished with a per-record fault before any
// background task exists for it.
func (r *AttachmentRecord) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.done = true
}

// Abandon marks the record finished with the given error unless its
// background task already committed. Returns true when the record was
// abandoned; a late Complete is then discarded.
func (r *AttachmentRecord) Abandon(err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return false
	}
	r.abandoned = true
	r.err = err
	r.done = true
	return true
}

// Complete commits the background task outcome in one step. Returns false
// when the record was abandoned first; the result is then discarded.
func (r *AttachmentRecord) Complete(best *Detection, findings []DefectFinding, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.abandoned || r.done {
		return false
	}
	r.best = best
	r.findings = findings
	r.err = err
	r.done = true
	return true
}

// Finished reports whether the record reached an outcome, including
// abandonment.
func (r *AttachmentRecord) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Err returns the per-record fault; it does not abort the job.
func (r *AttachmentRecord) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// BestDetection returns the stage-3 selection, nil when nothing was found.
func (r *AttachmentRecord) BestDetection() *Detection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.best
}

// DefectFindings returns the stage-4 findings of the record.
func (r *AttachmentRecord) DefectFindings() []DefectFinding {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findings
}
