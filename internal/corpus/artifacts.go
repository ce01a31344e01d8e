package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/advocadabra/scr/internal/index"
	"github.com/advocadabra/scr/internal/storage"
)

// Paths locates the four retrieval artifacts.
type Paths struct {
	Embeddings string
	Metadata   string
	Index      string
	Dataset    string
}

// DefaultNames returns the standard artifact file names.
func DefaultNames() Paths {
	return Paths{
		Embeddings: "embeddings.npy",
		Metadata:   "metadata.db",
		Index:      "cases.index",
		Dataset:    "dataset.jsonl",
	}
}

// In resolves relative names against dir. Absolute names are kept.
func (p Paths) In(dir string) Paths {
	join := func(name string) string {
		if filepath.IsAbs(name) {
			return name
		}
		return filepath.Join(dir, name)
	}
	return Paths{
		Embeddings: join(p.Embeddings),
		Metadata:   join(p.Metadata),
		Index:      join(p.Index),
		Dataset:    join(p.Dataset),
	}
}

// All returns the paths in a fixed order.
func (p Paths) All() []string {
	return []string{p.Embeddings, p.Metadata, p.Index, p.Dataset}
}

// Missing returns the paths that do not exist.
func (p Paths) Missing() []string {
	var missing []string
	for _, path := range p.All() {
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}
	return missing
}

// Remove deletes every artifact that exists.
func (p Paths) Remove() error {
	for _, path := range p.All() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}
	return nil
}

// Bundle is the loaded, row-aligned artifact set.
type Bundle struct {
	Index    *index.Flat
	Metadata Metadata
	Cases    Cases
	Stats    LoadStats
}

// Load reads and cross-checks all four artifacts. A missing or unreadable
// file is reported as ErrMissingArtifact, disagreeing row counts as
// ErrRowAlignment.
func Load(ctx context.Context, p Paths) (*Bundle, error) {
	if missing := p.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingArtifact, missing)
	}

	embRows, embDim, err := index.NpyShape(p.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingArtifact, err)
	}

	idx, err := index.Load(p.Index)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingArtifact, err)
	}

	store, err := storage.Open(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMissingArtifact, p.Metadata, err)
	}
	meta, err := LoadMetadata(ctx, store)
	store.Close()
	if err != nil {
		return nil, fmt.Errorf("loading metadata: %w", err)
	}

	records, stats, err := LoadDataset(p.Dataset)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMissingArtifact, p.Dataset, err)
	}

	if embRows != idx.Len() || embRows != len(meta) || embRows != len(records) {
		return nil, fmt.Errorf("%w: embeddings=%d index=%d metadata=%d dataset=%d",
			ErrRowAlignment, embRows, idx.Len(), len(meta), len(records))
	}
	if embDim != idx.Dim() {
		return nil, fmt.Errorf("%w: embeddings dim %d, index dim %d", ErrRowAlignment, embDim, idx.Dim())
	}

	slog.Info("artifacts loaded",
		"rows", idx.Len(),
		"cases", meta.DistinctCases(),
		"dim", idx.Dim(),
		"metric", idx.Metric().String(),
		"skipped_records", stats.Skipped,
	)

	return &Bundle{Index: idx, Metadata: meta, Cases: Cases(records), Stats: stats}, nil
}

// Write persists the embeddings, index and metadata for records and records
// the build in the metadata database. vectors must hold one row per record.
// The dataset file itself is left to the caller, since a build usually reads
// it in place.
func Write(ctx context.Context, p Paths, vectors index.Matrix, metric index.Metric, records []CaseRecord, build storage.Build) (storage.Build, error) {
	if vectors.Rows != len(records) {
		return storage.Build{}, fmt.Errorf("%w: %d vectors for %d records", ErrRowAlignment, vectors.Rows, len(records))
	}

	if err := index.SaveNpy(p.Embeddings, vectors); err != nil {
		return storage.Build{}, fmt.Errorf("writing embeddings: %w", err)
	}
	if err := index.FromMatrix(vectors, metric).Save(p.Index); err != nil {
		return storage.Build{}, fmt.Errorf("writing index: %w", err)
	}

	store, err := storage.Open(p.Metadata)
	if err != nil {
		return storage.Build{}, fmt.Errorf("opening metadata database: %w", err)
	}
	defer store.Close()

	meta := MetadataFromRecords(records)
	if err := SaveMetadata(ctx, store, meta); err != nil {
		return storage.Build{}, fmt.Errorf("writing metadata: %w", err)
	}

	if build.ID == "" {
		build.ID = uuid.New().String()
	}
	if build.CreatedAt.IsZero() {
		build.CreatedAt = time.Now().UTC()
	}
	build.Dimension = vectors.Dim
	build.Metric = metric.String()
	build.Rows = vectors.Rows
	build.Cases = meta.DistinctCases()
	if err := store.RecordBuild(ctx, build); err != nil {
		return storage.Build{}, fmt.Errorf("recording build: %w", err)
	}
	return build, nil
}

// Description summarizes a metadata database without loading the index.
type Description struct {
	Rows  int
	Cases int
	// Build is the most recent build; HasBuild is false when none was recorded.
	Build    storage.Build
	HasBuild bool
}

// Describe counts the metadata rows at path and reads the latest build.
func Describe(ctx context.Context, path string) (Description, error) {
	if _, err := os.Stat(path); err != nil {
		return Description{}, fmt.Errorf("%w: %s", ErrMissingArtifact, path)
	}
	store, err := storage.Open(path)
	if err != nil {
		return Description{}, err
	}
	defer store.Close()

	var d Description
	if d.Rows, d.Cases, err = store.CountMetadata(ctx); err != nil {
		return Description{}, fmt.Errorf("counting metadata: %w", err)
	}
	d.Build, err = store.LatestBuild(ctx)
	switch {
	case err == nil:
		d.HasBuild = true
	case !errors.Is(err, storage.ErrNotFound):
		return Description{}, err
	}
	return d, nil
}
