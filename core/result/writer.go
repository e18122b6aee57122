package result

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"inspection-orchestrator/core/fault"
	"inspection-orchestrator/core/models"
)

var partIDPattern = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizePartID reduces a raw part label to a filesystem-safe folder name.
func SanitizePartID(raw string) string {
	clean := strings.Trim(partIDPattern.ReplaceAllString(raw, "_"), "_")
	if clean == "" {
		clean = "part"
	}
	return clean
}

// Writer persists per-job artifacts under the legacy traceability layout:
//
//	<root>/captures/<part>/<yyyy-mm-dd>/<hhmmss>/step-0N/<stage files>
//	<root>/captures/<part>/<yyyy-mm-dd>/<hhmmss>/cycle_time.txt
//
// The per-file naming is a compatibility contract inherited from the
// legacy system and must not change.
type Writer struct {
	root string
}

// NewWriter creates a traceability writer rooted at the given directory.
func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

// Root returns the storage root.
func (w *Writer) Root() string {
	return w.root
}

// CheckWritable probes the storage root for the health gate.
func (w *Writer) CheckWritable() error {
	dir := filepath.Join(w.root, "captures")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".writable")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}

// CreateJobDir allocates the per-job directory keyed by part, date and
// time, and returns the sanitized folder name with the directory path.
func (w *Writer) CreateJobDir(partID string, at time.Time) (folder, dir string, err error) {
	folder = SanitizePartID(partID)
	dir = filepath.Join(w.root, "captures", folder, at.Format("2006-01-02"), at.Format("150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fault.Wrap(fault.KindStorage, "storage", err)
	}
	return folder, dir, nil
}

// StageFileName returns the contract file name for a stage artifact.
// Indexed names carry the zero-padded attachment index.
func StageFileName(stage int, kind string, index int) string {
	if index > 0 {
		return fmt.Sprintf("step-%02d_%s_%03d.png", stage, kind, index)
	}
	return fmt.Sprintf("step-%02d_%s.png", stage, kind)
}

// SaveStage writes one stage artifact into the job's stage subdirectory
// and returns its path. Failures are storage faults and escalate the job.
func (w *Writer) SaveStage(job *models.JobContext, stage int, kind string, index int, data []byte) (string, error) {
	if job.StorageDir == "" {
		return "", fault.New(fault.KindStorage, "storage", "job %s has no storage directory", job.ID)
	}
	dir := filepath.Join(job.StorageDir, fmt.Sprintf("step-%02d", stage))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fault.Wrap(fault.KindStorage, "storage", err)
	}
	path := filepath.Join(dir, StageFileName(stage, kind, index))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fault.Wrap(fault.KindStorage, "storage", err)
	}
	return path, nil
}

// WriteCycleTime appends the elapsed cycle seconds to the per-job
// cycle-time record. A cycle-time record is written for every job,
// including the zero-detection case.
func (w *Writer) WriteCycleTime(job *models.JobContext) error {
	if job.StorageDir == "" {
		return fault.New(fault.KindStorage, "storage", "job %s has no storage directory", job.ID)
	}
	path := filepath.Join(job.StorageDir, "cycle_time.txt")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fault.Wrap(fault.KindStorage, "storage", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%.2f\n", job.CycleTime().Seconds()); err != nil {
		return fault.Wrap(fault.KindStorage, "storage", err)
	}
	return nil
}
