package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// CaseMetadata is one row of the case_metadata table.
type CaseMetadata struct {
	RowIndex  int
	CaseID    string
	Title     string
	Summary   string
	Court     string
	Year      int
	Outcome   string
	LegalArea string
}

// Build records one artifact build.
type Build struct {
	ID        string
	CreatedAt time.Time
	Encoder   string
	Model     string
	Dimension int
	Metric    string
	Rows      int
	Cases     int
	Skipped   int
}
