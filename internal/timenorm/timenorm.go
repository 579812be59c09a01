// Package timenorm converts loose date/time text from recognized documents
// into the canonical mm/dd/yyyy + hh:mm:ss pair and synthesizes the derived
// milestones the source sheets never print.
package timenorm

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ripandrun-ingest/internal/models"
)

// ErrMalformedTimestamp is returned when date/time text cannot be parsed
// into a calendar date and a time of day. It is a field-level condition:
// callers record it and keep building.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

const (
	DateLayout = "01/02/2006"
	TimeLayout = "15:04:05"
)

// Layouts accepted on input, tried in order. Seconds default to 00 when the
// source prints hh:mm only.
var (
	dateLayouts = []string{"01/02/2006", "1/2/2006", "01/02/06", "1/2/06", "2006-01-02"}
	timeLayouts = []string{"15:04:05", "15:04", "3:04:05 PM", "3:04 PM"}
)

// Normalize parses loose date and time text into a canonical DateTime.
func Normalize(dateText, timeText string) (models.DateTime, error) {
	d, err := parseOne(strings.TrimSpace(dateText), dateLayouts)
	if err != nil {
		return models.DateTime{}, fmt.Errorf("%w: date %q", ErrMalformedTimestamp, dateText)
	}

	t, err := parseOne(strings.ToUpper(strings.TrimSpace(timeText)), timeLayouts)
	if err != nil {
		return models.DateTime{}, fmt.Errorf("%w: time %q", ErrMalformedTimestamp, timeText)
	}

	return models.DateTime{
		Date: d.Format(DateLayout),
		Time: t.Format(TimeLayout),
	}, nil
}

// ToTime combines a canonical DateTime back into a time.Time
func ToTime(dt models.DateTime) (time.Time, error) {
	parsed, err := time.Parse(DateLayout+" "+TimeLayout, dt.Date+" "+dt.Time)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q %q", ErrMalformedTimestamp, dt.Date, dt.Time)
	}
	return parsed, nil
}

// AddMinutes shifts a canonical DateTime forward, carrying date rollover,
// and marks the result as derived.
func AddMinutes(dt models.DateTime, minutes int) (models.DateTime, error) {
	base, err := ToTime(dt)
	if err != nil {
		return models.DateTime{}, err
	}

	shifted := base.Add(time.Duration(minutes) * time.Minute)
	return models.DateTime{
		Date:    shifted.Format(DateLayout),
		Time:    shifted.Format(TimeLayout),
		Derived: true,
	}, nil
}

func parseOne(text string, layouts []string) (time.Time, error) {
	if text == "" {
		return time.Time{}, errors.New("empty")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("no layout matched")
}
