// Package repository persists the inspection history in PostgreSQL. The
// history is an optional subsystem: the cell runs fully without a
// database, and all repository calls from the workflow are best-effort.
package repository

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	*sql.DB
}

// NewDB opens and verifies the database connection.
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{db}, nil
}

// EnsureSchema creates the history tables when they do not exist yet.
func (d *DB) EnsureSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS inspections (
			id UUID PRIMARY KEY,
			part_id TEXT NOT NULL,
			part_folder TEXT NOT NULL,
			storage_dir TEXT NOT NULL,
			state TEXT NOT NULL,
			result TEXT NOT NULL,
			attachments INT NOT NULL DEFAULT 0,
			error TEXT,
			cycle_seconds DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS findings (
			id BIGSERIAL PRIMARY KEY,
			inspection_id UUID NOT NULL REFERENCES inspections(id),
			attachment_index INT NOT NULL,
			class TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			area DOUBLE PRECISION NOT NULL,
			x DOUBLE PRECISION NOT NULL,
			y DOUBLE PRECISION NOT NULL,
			width DOUBLE PRECISION NOT NULL,
			height DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS inspection_events (
			id BIGSERIAL PRIMARY KEY,
			inspection_id UUID NOT NULL,
			at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			from_state TEXT,
			to_state TEXT NOT NULL,
			reason TEXT,
			meta_json TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inspections_part ON inspections(part_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_inspection ON inspection_events(inspection_id, at DESC)`,
	}
	for _, stmt := range schema {
		if _, err := d.Exec(stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
