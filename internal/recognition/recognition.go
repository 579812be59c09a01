// Package recognition wraps the external document recognition service.
// The pipeline only depends on the Client interface; the HTTP implementation
// talks to an OpenAI-compatible vision endpoint.
package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Failure classes. Transient failures (rate limits, timeouts, 5xx) are
// retried by the file queue up to its bound; Illegible failures never are.
var (
	ErrIllegible = errors.New("document illegible")
	ErrTransient = errors.New("transient recognition failure")
)

// IsRetryable reports whether the error is a transient failure worth retrying
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Client is the capability interface for document recognition
type Client interface {
	Recognize(ctx context.Context, document []byte) (*Output, error)
}

// Output is the structured payload extracted from one rip-and-run sheet.
// Raw keeps the verbatim JSON for audit storage.
type Output struct {
	IncidentTimes    IncidentTimes `json:"incidentTimes"`
	IncidentLocation LocationText  `json:"incidentLocation"`
	Raw              []byte        `json:"-"`
}

// IncidentTimes carries the identifier fields, the dispatch notification
// time, and the raw CAD event log rows.
type IncidentTimes struct {
	CAD                CADNumber   `json:"cad"`
	UnitDispatched     string      `json:"unit_dispatched"`
	IncidentType       string      `json:"incident_type"`
	NotifiedByDispatch *TimeEntry  `json:"notifiedByDispatch"`
	StatusRows         []StatusRow `json:"statusRows"`
}

// StatusRow is one row of the CAD event log: a status token plus its stamp.
// Status tokens are mapped to milestones by the record builder; unknown
// tokens are ignored there.
type StatusRow struct {
	Status string `json:"status"`
	Date   string `json:"date"`
	Time   string `json:"time"`
}

// TimeEntry is a loose date/time pair as printed on the sheet
type TimeEntry struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// LocationText holds the raw location line from the sheet
type LocationText struct {
	Raw string `json:"raw"`
}

// CADNumber tolerates number, string, and null encodings of the CAD field.
// An unparseable value leaves Set false rather than failing the decode; the
// builder turns that into its missing-identifier error.
type CADNumber struct {
	Value int
	Set   bool
}

func (c *CADNumber) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		return nil
	}
	trimmed = strings.TrimSpace(strings.Trim(trimmed, `"`))
	if trimmed == "" {
		return nil
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil
	}
	c.Value = n
	c.Set = true
	return nil
}

func (c CADNumber) MarshalJSON() ([]byte, error) {
	if !c.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(c.Value)), nil
}

// decodeOutput parses the model reply into an Output, retaining the verbatim
// JSON. Markdown code fences around the JSON are stripped first.
func decodeOutput(reply string) (*Output, error) {
	cleaned := stripCodeFences(reply)

	var out Output
	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	if err := dec.Decode(&out); err != nil {
		return nil, errors.Join(ErrIllegible, err)
	}

	out.Raw = []byte(cleaned)
	return &out, nil
}

// stripCodeFences removes a surrounding ```json ... ``` block, which vision
// models occasionally add despite instructions.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
