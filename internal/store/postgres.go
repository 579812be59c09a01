package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ripandrun-ingest/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS rip_and_runs (
    incident_number BIGINT NOT NULL,
    unit_id         VARCHAR(50) NOT NULL,
    content         TEXT NOT NULL,
    incident_date   TIMESTAMP,
    location        VARCHAR(300),
    incident_type   VARCHAR(20),
    updated_at      TIMESTAMP NOT NULL DEFAULT now(),
    PRIMARY KEY (incident_number, unit_id)
);`

const postgresUpsert = `
INSERT INTO rip_and_runs (
    incident_number, unit_id, content, incident_date, location, incident_type, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (incident_number, unit_id) DO UPDATE SET
    content       = excluded.content,
    incident_date = excluded.incident_date,
    location      = excluded.location,
    incident_type = excluded.incident_type,
    updated_at    = now()`

// PostgresStore persists incident records in Postgres via a pgx pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at dsn and ensures the
// rip_and_runs table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Upsert writes the record, replacing any prior row with the same
// (incident_number, unit_id).
func (s *PostgresStore) Upsert(ctx context.Context, rec *models.IncidentRecord) error {
	r, err := rowFromRecord(rec)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, postgresUpsert,
		r.IncidentNumber, r.UnitID, r.Content, r.IncidentDate, r.Location, r.IncidentType)
	if err != nil {
		var pgErr *pgconn.PgError
		// Class 23 = integrity constraint violation
		if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
			return fmt.Errorf("%w: %v", ErrConstraintViolation, err)
		}
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
