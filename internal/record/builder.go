// Package record assembles normalized incident records from recognition
// output. Field-level problems are collected, not fatal; only a missing
// incident identifier aborts a build.
package record

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ripandrun-ingest/internal/locparse"
	"ripandrun-ingest/internal/models"
	"ripandrun-ingest/internal/recognition"
	"ripandrun-ingest/internal/timenorm"
)

// ErrMissingIdentifier means the CAD number could not be determined. The
// record has no persistence identity and must be quarantined.
var ErrMissingIdentifier = errors.New("missing incident identifier")

// statusMilestones maps CAD event-log status tokens to milestone names.
// First occurrence of a status wins; unknown tokens are ignored.
var statusMilestones = map[string]string{
	"RESP":    models.MilestoneEnRoute,
	"ONLOC":   models.MilestoneOnScene,
	"TO HOSP": models.MilestoneLeftScene,
	"AT HOSP": models.MilestonePtArrivedAtDestination,
	"CLEAR":   models.MilestoneBackInService,
}

// Derived-milestone offsets: crews reach the patient about two minutes after
// arriving on scene, and transfer of care happens about five minutes after
// arriving at the destination.
const (
	arrivedAtPatientOffsetMin = 2
	transferOfCareOffsetMin   = 5
)

// Builder turns recognition output into immutable IncidentRecords
type Builder struct {
	locations     *locparse.Parser
	defaultUnitID string
}

// NewBuilder creates a Builder. defaultUnitID fills in when the document
// does not name the responding unit.
func NewBuilder(locations *locparse.Parser, defaultUnitID string) *Builder {
	return &Builder{
		locations:     locations,
		defaultUnitID: defaultUnitID,
	}
}

// Build assembles an IncidentRecord in one pass. The returned record is
// complete: callers hand it straight to persistence and never mutate it.
func (b *Builder) Build(out *recognition.Output) (*models.IncidentRecord, error) {
	if !out.IncidentTimes.CAD.Set {
		return nil, ErrMissingIdentifier
	}

	rec := &models.IncidentRecord{
		IncidentNumber: out.IncidentTimes.CAD.Value,
		IncidentType:   out.IncidentTimes.IncidentType,
		Times:          make(map[string]models.DateTime),
		Errors:         []models.FieldError{},
		RawPayload:     out.Raw,
	}

	rec.UnitID = out.IncidentTimes.UnitDispatched
	if rec.UnitID == "" {
		rec.UnitID = b.defaultUnitID
	}
	if rec.UnitID == "" {
		b.addError(rec, "unitId", "unit not named in document and no default configured")
	}

	b.buildTimes(rec, out)
	b.deriveMilestones(rec)
	b.buildIncidentDateTime(rec)

	if raw := out.IncidentLocation.Raw; raw != "" {
		rec.Location = b.locations.Parse(raw)
	}

	return rec, nil
}

// buildTimes fills the milestone map from the notification time and the CAD
// event log rows.
func (b *Builder) buildTimes(rec *models.IncidentRecord, out *recognition.Output) {
	if entry := out.IncidentTimes.NotifiedByDispatch; entry != nil {
		dt, err := timenorm.Normalize(entry.Date, entry.Time)
		if err != nil {
			b.addError(rec, models.MilestoneNotifiedByDispatch, err.Error())
		} else {
			rec.Times[models.MilestoneNotifiedByDispatch] = dt
		}
	}

	for _, row := range out.IncidentTimes.StatusRows {
		milestone, ok := statusMilestones[strings.ToUpper(strings.TrimSpace(row.Status))]
		if !ok {
			continue
		}
		if _, assigned := rec.Times[milestone]; assigned {
			// first occurrence wins
			continue
		}

		dt, err := timenorm.Normalize(row.Date, row.Time)
		if err != nil {
			b.addError(rec, milestone, err.Error())
			continue
		}
		rec.Times[milestone] = dt
	}
}

// deriveMilestones synthesizes the milestones the sheets never print
func (b *Builder) deriveMilestones(rec *models.IncidentRecord) {
	derive := func(from, to string, minutes int) {
		src, haveSrc := rec.Times[from]
		if !haveSrc {
			return
		}
		if _, haveDst := rec.Times[to]; haveDst {
			return
		}
		dt, err := timenorm.AddMinutes(src, minutes)
		if err != nil {
			b.addError(rec, to, fmt.Sprintf("cannot derive from %s: %v", from, err))
			return
		}
		rec.Times[to] = dt
	}

	derive(models.MilestoneOnScene, models.MilestoneArrivedAtPatient, arrivedAtPatientOffsetMin)
	derive(models.MilestonePtArrivedAtDestination, models.MilestoneDestinationTransferOfCare, transferOfCareOffsetMin)
}

// buildIncidentDateTime sets the record timestamp from the dispatch
// notification time, falling back to the earliest milestone present.
func (b *Builder) buildIncidentDateTime(rec *models.IncidentRecord) {
	if dt, ok := rec.Times[models.MilestoneNotifiedByDispatch]; ok {
		if t, err := timenorm.ToTime(dt); err == nil {
			rec.IncidentDateTime = t
			return
		}
	}

	var earliest time.Time
	for _, name := range models.MilestoneOrder {
		dt, ok := rec.Times[name]
		if !ok || dt.Derived {
			continue
		}
		t, err := timenorm.ToTime(dt)
		if err != nil {
			continue
		}
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}

	if earliest.IsZero() {
		b.addError(rec, "incidentDateTime", "no usable dispatch notification time")
		return
	}
	rec.IncidentDateTime = earliest
}

func (b *Builder) addError(rec *models.IncidentRecord, field, description string) {
	rec.Errors = append(rec.Errors, models.FieldError{Field: field, Description: description})
}
