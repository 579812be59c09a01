package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ripandrun-ingest/internal/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rip_and_runs (
    incident_number INTEGER NOT NULL,
    unit_id         TEXT NOT NULL,
    content         TEXT NOT NULL,
    incident_date   TIMESTAMP,
    location        TEXT,
    incident_type   TEXT,
    updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (incident_number, unit_id)
);`

const sqliteUpsert = `
INSERT INTO rip_and_runs (
    incident_number, unit_id, content, incident_date, location, incident_type, updated_at
) VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (incident_number, unit_id) DO UPDATE SET
    content       = excluded.content,
    incident_date = excluded.incident_date,
    location      = excluded.location,
    incident_type = excluded.incident_type,
    updated_at    = CURRENT_TIMESTAMP`

// SQLiteStore persists incident records in an embedded SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dataSourceName and ensures the
// rip_and_runs table exists.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Upsert writes the record, replacing any prior row with the same
// (incident_number, unit_id).
func (s *SQLiteStore) Upsert(ctx context.Context, rec *models.IncidentRecord) error {
	r, err := rowFromRecord(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, sqliteUpsert,
		r.IncidentNumber, r.UnitID, r.Content, r.IncidentDate, r.Location, r.IncidentType)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: %v", ErrConstraintViolation, err)
		}
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isConstraintError detects SQLite constraint failures. modernc.org/sqlite
// surfaces them in the error text; anything else is treated as the store
// being unavailable.
func isConstraintError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "constraint")
}

var _ Store = (*SQLiteStore)(nil)
