// Package store persists incident records, keyed by
// (incident_number, unit_id). Upsert fully replaces any prior row with the
// same key; there is no field-level merge.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ripandrun-ingest/internal/models"
)

// Failure classes. StorageUnavailable is retryable without re-running
// recognition; ConstraintViolation is terminal for the document.
var (
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrConstraintViolation = errors.New("storage constraint violation")
)

// IsRetryable reports whether a persistence error is worth retrying
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// Store is the incident persistence interface
type Store interface {
	Upsert(ctx context.Context, rec *models.IncidentRecord) error
	Close() error
}

// Column width limits from the rip_and_runs schema
const (
	maxLocationLen     = 300
	maxIncidentTypeLen = 20
)

// row is the flattened form written to the rip_and_runs table. Content
// carries the whole record as JSON, so field errors ride along as data.
type row struct {
	IncidentNumber int
	UnitID         string
	Content        string
	IncidentDate   *time.Time
	Location       *string
	IncidentType   *string
}

// rowFromRecord validates the persistence identity and flattens the record.
// A missing key component is a constraint violation before the database is
// ever touched.
func rowFromRecord(rec *models.IncidentRecord) (*row, error) {
	if rec.IncidentNumber <= 0 {
		return nil, fmt.Errorf("%w: incident number %d", ErrConstraintViolation, rec.IncidentNumber)
	}
	if rec.UnitID == "" {
		return nil, fmt.Errorf("%w: empty unit id", ErrConstraintViolation)
	}

	content, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal record: %v", ErrConstraintViolation, err)
	}

	r := &row{
		IncidentNumber: rec.IncidentNumber,
		UnitID:         rec.UnitID,
		Content:        string(content),
	}

	if !rec.IncidentDateTime.IsZero() {
		t := rec.IncidentDateTime
		r.IncidentDate = &t
	}
	if loc := truncate(rec.Location.Raw, maxLocationLen); loc != "" {
		r.Location = &loc
	}
	if it := truncate(rec.IncidentType, maxIncidentTypeLen); it != "" {
		r.IncidentType = &it
	}

	return r, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
