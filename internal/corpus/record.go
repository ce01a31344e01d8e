package corpus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// SampleLength is the number of characters of raw text used as a result
// snippet when a case has no summary.
const SampleLength = 200

var (
	// ErrMissingArtifact is returned when a required artifact file is absent
	// or unreadable.
	ErrMissingArtifact = errors.New("missing artifact")
	// ErrMalformedRecord marks a dataset line that could not be parsed.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrRowAlignment is returned when artifact row counts disagree.
	ErrRowAlignment = errors.New("artifact row counts disagree")
	// ErrNotFound is returned for out-of-range row lookups.
	ErrNotFound = errors.New("row not found")
)

// CaseRecord is one line of the raw case dataset. Several records may share
// a CaseID when a long case is split into chunks.
type CaseRecord struct {
	CaseID    string `json:"case_id"`
	Title     string `json:"title,omitempty"`
	Summary   string `json:"summary,omitempty"`
	RawText   string `json:"raw_text,omitempty"`
	Court     string `json:"court,omitempty"`
	Year      int    `json:"year,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	LegalArea string `json:"legal_area,omitempty"`
}

// TextSample returns the snippet shown with a retrieval result: the summary
// if present, otherwise the first SampleLength characters of the raw text.
func (c CaseRecord) TextSample() string {
	if c.Summary != "" {
		return c.Summary
	}
	if c.RawText == "" {
		return ""
	}
	if utf8.RuneCountInString(c.RawText) <= SampleLength {
		return c.RawText
	}
	return string([]rune(c.RawText)[:SampleLength])
}

// EmbeddingText is the text encoded for this record when building the index.
func (c CaseRecord) EmbeddingText() string {
	body := c.Summary
	if body == "" {
		body = c.RawText
	}
	switch {
	case c.Title == "":
		return body
	case body == "":
		return c.Title
	default:
		return c.Title + "\n\n" + body
	}
}

// UnmarshalJSON accepts "case_id" or "id" for the identifier and a year
// given either as a number or a numeric string.
func (c *CaseRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		CaseID    string          `json:"case_id"`
		ID        json.RawMessage `json:"id"`
		Title     string          `json:"title"`
		Summary   string          `json:"summary"`
		RawText   string          `json:"raw_text"`
		Court     string          `json:"court"`
		Year      json.RawMessage `json:"year"`
		Outcome   string          `json:"outcome"`
		LegalArea string          `json:"legal_area"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id := raw.CaseID
	if id == "" && len(raw.ID) > 0 {
		id = scalarString(raw.ID)
	}
	if id == "" {
		return fmt.Errorf("record has no case_id or id")
	}

	year, err := parseYear(raw.Year)
	if err != nil {
		return err
	}

	*c = CaseRecord{
		CaseID:    id,
		Title:     raw.Title,
		Summary:   raw.Summary,
		RawText:   raw.RawText,
		Court:     raw.Court,
		Year:      year,
		Outcome:   raw.Outcome,
		LegalArea: raw.LegalArea,
	}
	return nil
}

// scalarString renders a JSON string or number as text.
func scalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String()
	}
	return ""
}

func parseYear(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	s := strings.TrimSpace(scalarString(raw))
	if s == "" {
		return 0, nil
	}
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid year %s", raw)
	}
	return y, nil
}
