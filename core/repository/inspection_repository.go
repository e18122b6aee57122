package repository

import (
	"database/sql"

	"inspection-orchestrator/core/models"
)

// InspectionRepository handles database operations for inspections.
// It satisfies the workflow's History interface.
type InspectionRepository struct {
	db *DB
}

// NewInspectionRepository creates a new inspection repository.
func NewInspectionRepository(db *DB) *InspectionRepository {
	return &InspectionRepository{db: db}
}

// CreateJob inserts the inspection row when the job starts.
func (r *InspectionRepository) CreateJob(job *models.JobContext) error {
	query := `
		INSERT INTO inspections (
			id, part_id, part_folder, storage_dir, state, result,
			attachments, created_at, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(query,
		job.ID,
		job.PartID,
		job.PartFolder,
		job.StorageDir,
		job.State,
		job.Result,
		len(job.Records),
		job.CreatedAt,
		job.StartedAt,
	)
	return err
}

// CompleteJob updates the inspection row with the terminal outcome and
// persists the per-attachment findings in one transaction.
func (r *InspectionRepository) CompleteJob(job *models.JobContext) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var errText *string
	if job.Err != nil {
		s := job.Err.Error()
		errText = &s
	}

	updateQuery := `
		UPDATE inspections
		SET state = $1, result = $2, attachments = $3, error = $4,
			cycle_seconds = $5, finished_at = $6
		WHERE id = $7
	`
	_, err = tx.Exec(updateQuery,
		job.State,
		job.Result,
		len(job.Records),
		errText,
		job.CycleTime().Seconds(),
		job.FinishedAt,
		job.ID,
	)
	if err != nil {
		return err
	}

	findingQuery := `
		INSERT INTO findings (inspection_id, attachment_index, class, score, area, x, y, width, height)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, rec := range job.Records {
		for _, f := range rec.DefectFindings() {
			_, err = tx.Exec(findingQuery,
				job.ID, rec.Index(), f.Class, f.Score, f.Area,
				f.Box.X, f.Box.Y, f.Box.Width, f.Box.Height,
			)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// RecordEvent appends a state transition to the event log.
func (r *InspectionRepository) RecordEvent(jobID string, from *models.JobState, to models.JobState, reason string) error {
	query := `
		INSERT INTO inspection_events (inspection_id, from_state, to_state, reason, meta_json)
		VALUES ($1, $2, $3, $4, $5)
	`
	var fromStr *string
	if from != nil {
		s := string(*from)
		fromStr = &s
	}
	_, err := r.db.Exec(query, jobID, fromStr, to, reason, "{}")
	return err
}

// GetInspection retrieves one inspection by ID.
func (r *InspectionRepository) GetInspection(id string) (*models.InspectionSummary, error) {
	query := `
		SELECT id, part_id, part_folder, storage_dir, state, result,
			attachments, error, cycle_seconds, created_at, started_at, finished_at
		FROM inspections
		WHERE id = $1
	`
	var s models.InspectionSummary
	var errText sql.NullString
	var cycleSeconds sql.NullFloat64
	var finishedAt sql.NullTime

	err := r.db.QueryRow(query, id).Scan(
		&s.ID,
		&s.PartID,
		&s.PartFolder,
		&s.StorageDir,
		&s.State,
		&s.Result,
		&s.Attachments,
		&errText,
		&cycleSeconds,
		&s.CreatedAt,
		&s.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if errText.Valid {
		s.Error = errText.String
	}
	if cycleSeconds.Valid {
		s.CycleSeconds = cycleSeconds.Float64
	}
	if finishedAt.Valid {
		s.FinishedAt = &finishedAt.Time
	}
	return &s, nil
}

// ListInspections lists recent inspections, newest first, optionally
// filtered by part ID.
func (r *InspectionRepository) ListInspections(partID string, limit int) ([]*models.InspectionSummary, error) {
	query := `
		SELECT id, part_id, state, result, attachments, cycle_seconds, created_at
		FROM inspections
	`
	args := []interface{}{}
	if partID != "" {
		query += ` WHERE part_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, partID, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.InspectionSummary
	for rows.Next() {
		var s models.InspectionSummary
		var cycleSeconds sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.PartID, &s.State, &s.Result, &s.Attachments, &cycleSeconds, &s.CreatedAt); err != nil {
			continue
		}
		if cycleSeconds.Valid {
			s.CycleSeconds = cycleSeconds.Float64
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// GetFindings retrieves the persisted findings of an inspection.
func (r *InspectionRepository) GetFindings(inspectionID string) ([]models.FindingRow, error) {
	query := `
		SELECT inspection_id, attachment_index, class, score, area, x, y, width, height
		FROM findings
		WHERE inspection_id = $1
		ORDER BY attachment_index
	`
	rows, err := r.db.Query(query, inspectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FindingRow
	for rows.Next() {
		var f models.FindingRow
		if err := rows.Scan(
			&f.InspectionID, &f.AttachmentIndex, &f.Class, &f.Score, &f.Area,
			&f.Box.X, &f.Box.Y, &f.Box.Width, &f.Box.Height,
		); err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
