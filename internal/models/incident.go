package models

import (
	"encoding/json"
	"time"
)

// Milestone names, in document order. Absent milestones are simply omitted
// from IncidentRecord.Times, never defaulted.
const (
	MilestoneNotifiedByDispatch        = "notifiedByDispatch"
	MilestoneEnRoute                   = "enRoute"
	MilestoneOnScene                   = "onScene"
	MilestoneArrivedAtPatient          = "arrivedAtPatient"
	MilestoneLeftScene                 = "leftScene"
	MilestonePtArrivedAtDestination    = "ptArrivedAtDestination"
	MilestoneDestinationTransferOfCare = "destinationPatientTransferOfCare"
	MilestoneBackInService             = "backInService"
)

// MilestoneOrder fixes the persistence/reporting order of the milestone map
var MilestoneOrder = []string{
	MilestoneNotifiedByDispatch,
	MilestoneEnRoute,
	MilestoneOnScene,
	MilestoneArrivedAtPatient,
	MilestoneLeftScene,
	MilestonePtArrivedAtDestination,
	MilestoneDestinationTransferOfCare,
	MilestoneBackInService,
}

// DateTime is a canonical date/time pair: mm/dd/yyyy and hh:mm:ss.
// Derived marks values synthesized from another milestone rather than read
// from the source document.
type DateTime struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	Derived bool   `json:"-"`
}

// FieldError records a field-level problem found while building a record.
// Field errors are data, not failures: a record with errors is still persisted.
type FieldError struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

// LocationFields is the structured form of a raw dispatch location string.
// Empty string means absent; absent fields are never persisted as "".
type LocationFields struct {
	Raw           string `json:"raw"`
	Territory     string `json:"territory,omitempty"`
	LocationName  string `json:"locationName,omitempty"`
	StreetAddress string `json:"streetAddress,omitempty"`
	Apartment     string `json:"apartment,omitempty"`
}

// IncidentRecord is the unit of persistence, keyed by
// (IncidentNumber, UnitID). Built in one pass and never mutated afterwards;
// a later document with the same key fully replaces the stored row.
type IncidentRecord struct {
	IncidentNumber   int                 `json:"incidentNumber"`
	UnitID           string              `json:"unitId"`
	IncidentDateTime time.Time           `json:"incidentDateTime"`
	IncidentType     string              `json:"incidentType,omitempty"`
	Location         LocationFields      `json:"location"`
	Times            map[string]DateTime `json:"times"`
	Errors           []FieldError        `json:"errors"`
	RawPayload       json.RawMessage     `json:"rawPayload"`
}
