package model

import (
	"strconv"
	"strings"
)

// Candidate is the subject whose record the pipeline tries to produce.
// Candidates are immutable once loaded from a roster.
type Candidate struct {
	ID               string `json:"id"`
	Name             string `json:"name" validate:"required_without=Document"`
	FirstName        string `json:"first_name,omitempty"`
	MiddleName       string `json:"middle_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	Suffix           string `json:"suffix,omitempty"`
	Office           string `json:"office,omitempty"`
	Year             int    `json:"year,omitempty" validate:"omitempty,gte=1900,lte=2100"`
	Jurisdiction     string `json:"jurisdiction,omitempty"`
	JurisdictionCode string `json:"jurisdiction_code,omitempty"`

	// Document carries inline case text for rosters that skip search.
	Document string `json:"document,omitempty"`
}

// Key returns a stable identity used to cache resolution results.
func (c Candidate) Key() string {
	if c.ID != "" {
		return c.ID
	}
	parts := []string{
		strings.ToLower(strings.Join(strings.Fields(c.Name), " ")),
		strings.ToLower(c.Office),
		strings.ToLower(c.Jurisdiction),
	}
	if c.Year > 0 {
		parts = append(parts, strconv.Itoa(c.Year))
	}
	return strings.Join(parts, "|")
}

// HasDocument reports whether the candidate carries inline text.
func (c Candidate) HasDocument() bool {
	return strings.TrimSpace(c.Document) != ""
}

// FocusTerms returns the name parts used to locate the candidate in long
// text, most specific first: last, first, then middle name.
func (c Candidate) FocusTerms() []string {
	var out []string
	for _, s := range []string{c.LastName, c.FirstName, c.MiddleName} {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		fields := strings.Fields(strings.ToLower(c.Name))
		for i := len(fields) - 1; i >= 0; i-- {
			out = append(out, fields[i])
		}
	}
	return out
}
