package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/advocadabra/scr/internal/corpus"
	"github.com/advocadabra/scr/internal/index"
	"github.com/advocadabra/scr/internal/storage"
)

// ErrEmptyDataset is returned when a dataset yields no usable records.
var ErrEmptyDataset = errors.New("dataset has no valid records")

// BatchEmbedder generates embeddings for many texts.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string, onProgress func(done, total int)) ([][]float32, error)
	Name() string
	Model() string
}

// Builder turns a dataset into the embeddings, index and metadata
// artifacts next to it.
type Builder struct {
	embedder BatchEmbedder
	metric   index.Metric
	logger   *slog.Logger
}

// NewBuilder creates a Builder with the given dependencies.
func NewBuilder(embedder BatchEmbedder, metric index.Metric) *Builder {
	return &Builder{
		embedder: embedder,
		metric:   metric,
		logger:   slog.Default(),
	}
}

// Build reads p.Dataset, embeds every well-formed record and writes the
// remaining artifacts at p. Malformed dataset lines are skipped and counted
// in the returned build record.
func (b *Builder) Build(ctx context.Context, p corpus.Paths, onProgress func(done, total int)) (storage.Build, error) {
	records, stats, err := corpus.LoadDataset(p.Dataset)
	if err != nil {
		return storage.Build{}, fmt.Errorf("%w: %w", corpus.ErrMissingArtifact, err)
	}
	if len(records) == 0 {
		return storage.Build{}, fmt.Errorf("%w: %s", ErrEmptyDataset, p.Dataset)
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.EmbeddingText()
	}
	b.logger.Info("embedding dataset", "records", len(records), "skipped", stats.Skipped, "encoder", b.embedder.Name())

	vecs, err := b.embedder.EmbedBatch(ctx, texts, onProgress)
	if err != nil {
		return storage.Build{}, fmt.Errorf("embedding dataset: %w", err)
	}
	m, err := index.NewMatrix(len(vecs[0]), vecs)
	if err != nil {
		return storage.Build{}, fmt.Errorf("assembling embeddings: %w", err)
	}

	build, err := corpus.Write(ctx, p, m, b.metric, records, storage.Build{
		Encoder: b.embedder.Name(),
		Model:   b.embedder.Model(),
		Skipped: stats.Skipped,
	})
	if err != nil {
		return storage.Build{}, err
	}
	b.logger.Info("artifacts built", "build_id", build.ID, "rows", build.Rows, "cases", build.Cases, "dim", build.Dimension)
	return build, nil
}
