package repository

import (
	"database/sql"
	"encoding/json"

	"inspection-orchestrator/core/models"
)

// EventRepository handles database operations for inspection events.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetEvents retrieves the state transitions of an inspection, newest first.
func (r *EventRepository) GetEvents(inspectionID string, limit int) ([]models.JobEvent, error) {
	query := `
		SELECT id, inspection_id, at, from_state, to_state, reason, meta_json
		FROM inspection_events
		WHERE inspection_id = $1
		ORDER BY at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(query, inspectionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.JobEvent
	for rows.Next() {
		var event models.JobEvent
		var fromState sql.NullString
		var metaJSON string

		err := rows.Scan(
			&event.ID,
			&event.JobID,
			&event.At,
			&fromState,
			&event.ToState,
			&event.Reason,
			&metaJSON,
		)
		if err != nil {
			continue
		}

		if fromState.Valid {
			state := models.JobState(fromState.String)
			event.FromState = &state
		}
		if metaJSON != "" {
			json.Unmarshal([]byte(metaJSON), &event.MetaJSON)
		}

		events = append(events, event)
	}

	return events, rows.Err()
}
