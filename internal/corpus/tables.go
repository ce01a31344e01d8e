package corpus

import (
	"context"
	"fmt"

	"github.com/advocadabra/scr/internal/storage"
)

// MetadataEntry describes the case behind one embedding row.
type MetadataEntry struct {
	RowIndex  int    `json:"row_index"`
	CaseID    string `json:"case_id"`
	Title     string `json:"title,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Court     string `json:"court,omitempty"`
	Year      int    `json:"year,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	LegalArea string `json:"legal_area,omitempty"`
}

// Metadata is the row-aligned metadata table. Entry i describes row i.
type Metadata []MetadataEntry

// Get returns the entry for row, or ErrNotFound when row is out of range.
func (m Metadata) Get(row int) (MetadataEntry, error) {
	if row < 0 || row >= len(m) {
		return MetadataEntry{}, fmt.Errorf("%w: metadata row %d of %d", ErrNotFound, row, len(m))
	}
	return m[row], nil
}

// DistinctCases counts distinct case IDs.
func (m Metadata) DistinctCases() int {
	seen := make(map[string]struct{}, len(m))
	for _, e := range m {
		seen[e.CaseID] = struct{}{}
	}
	return len(seen)
}

// Cases is the row-aligned case store built from the dataset.
type Cases []CaseRecord

// Get returns the record for row, or ErrNotFound when row is out of range.
func (c Cases) Get(row int) (CaseRecord, error) {
	if row < 0 || row >= len(c) {
		return CaseRecord{}, fmt.Errorf("%w: case row %d of %d", ErrNotFound, row, len(c))
	}
	return c[row], nil
}

// MetadataFromRecords derives the metadata table for records, in order.
func MetadataFromRecords(records []CaseRecord) Metadata {
	m := make(Metadata, len(records))
	for i, r := range records {
		m[i] = MetadataEntry{
			RowIndex:  i,
			CaseID:    r.CaseID,
			Title:     r.Title,
			Summary:   r.Summary,
			Court:     r.Court,
			Year:      r.Year,
			Outcome:   r.Outcome,
			LegalArea: r.LegalArea,
		}
	}
	return m
}

// SaveMetadata replaces the metadata table in store.
func SaveMetadata(ctx context.Context, store *storage.Store, m Metadata) error {
	rows := make([]storage.CaseMetadata, len(m))
	for i, e := range m {
		rows[i] = storage.CaseMetadata{
			RowIndex:  e.RowIndex,
			CaseID:    e.CaseID,
			Title:     e.Title,
			Summary:   e.Summary,
			Court:     e.Court,
			Year:      e.Year,
			Outcome:   e.Outcome,
			LegalArea: e.LegalArea,
		}
	}
	return store.ReplaceMetadata(ctx, rows)
}

// LoadMetadata reads the metadata table from store. Row indexes must be
// exactly 0..n-1; gaps are reported as ErrRowAlignment.
func LoadMetadata(ctx context.Context, store *storage.Store) (Metadata, error) {
	rows, err := store.ListMetadata(ctx)
	if err != nil {
		return nil, err
	}
	m := make(Metadata, len(rows))
	for i, r := range rows {
		if r.RowIndex != i {
			return nil, fmt.Errorf("%w: metadata row %d has row_index %d", ErrRowAlignment, i, r.RowIndex)
		}
		m[i] = MetadataEntry{
			RowIndex:  r.RowIndex,
			CaseID:    r.CaseID,
			Title:     r.Title,
			Summary:   r.Summary,
			Court:     r.Court,
			Year:      r.Year,
			Outcome:   r.Outcome,
			LegalArea: r.LegalArea,
		}
	}
	return m, nil
}
