// Package locparse splits raw CAD location strings into structured fields.
//
// Dispatch location strings follow a loose convention:
//
//	TERRITORY [SUFFIX] [NAME /] STREET [#APT]
//
// Three separators act as mutually exclusive signals, checked in fixed
// priority: "/" splits a named place from its address, "&" marks a street
// intersection (kept inside the street address), and a bare "#" splits an
// apartment/unit suffix off a bare address.
package locparse

import (
	"strings"

	"ripandrun-ingest/internal/models"
)

// DefaultSuffixes is the closed vocabulary of administrative suffix words.
// When the second token of a location string matches one of these, the
// territory spans two tokens (e.g. "BRIDGEWATER TWP"), otherwise one.
var DefaultSuffixes = []string{
	"TWP", "TOWNSHIP", "BORO", "BOROUGH", "CITY", "TOWN", "VILLAGE",
}

// Parser holds the suffix vocabulary used for territory detection
type Parser struct {
	suffixes map[string]bool
}

// New creates a Parser with the given administrative suffix vocabulary.
// An empty list falls back to DefaultSuffixes.
func New(suffixes []string) *Parser {
	if len(suffixes) == 0 {
		suffixes = DefaultSuffixes
	}
	set := make(map[string]bool, len(suffixes))
	for _, s := range suffixes {
		set[strings.ToUpper(s)] = true
	}
	return &Parser{suffixes: set}
}

// Parse converts a raw location string into LocationFields. It never fails;
// worst case only Raw is set. Fields that would be empty after trimming are
// left absent.
func (p *Parser) Parse(raw string) models.LocationFields {
	fields := models.LocationFields{Raw: raw}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fields
	}

	territory, remainder := p.splitTerritory(trimmed)
	fields.Territory = territory

	if remainder == "" {
		return fields
	}

	// Separator priority: "/" over "&" over "#"
	switch {
	case strings.Contains(remainder, "/"):
		name, addressPart, _ := strings.Cut(remainder, "/")
		fields.LocationName = strings.TrimSpace(name)
		addressPart = strings.TrimSpace(addressPart)
		if strings.Contains(addressPart, "#") {
			street, apt, _ := strings.Cut(addressPart, "#")
			fields.StreetAddress = strings.TrimSpace(street)
			fields.Apartment = strings.TrimSpace(apt)
		} else {
			fields.StreetAddress = addressPart
		}
	case strings.Contains(remainder, "&"):
		// Intersection: the "&" stays inside the street address
		fields.StreetAddress = remainder
	case strings.Contains(remainder, "#"):
		street, apt, _ := strings.Cut(remainder, "#")
		fields.StreetAddress = strings.TrimSpace(street)
		fields.Apartment = strings.TrimSpace(apt)
	default:
		fields.StreetAddress = remainder
	}

	return fields
}

// splitTerritory takes the first token, plus a second when it belongs to the
// suffix vocabulary, and returns the territory and the trimmed remainder.
func (p *Parser) splitTerritory(s string) (string, string) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return "", ""
	}

	n := 1
	if len(tokens) >= 2 && p.suffixes[strings.ToUpper(tokens[1])] {
		n = 2
	}

	territory := strings.Join(tokens[:n], " ")
	remainder := strings.TrimSpace(strings.Join(tokens[n:], " "))
	return territory, remainder
}
