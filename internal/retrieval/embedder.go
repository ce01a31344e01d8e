package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/advocadabra/scr/internal/engine"
	"github.com/advocadabra/scr/internal/index"
)

// ErrEncoding is returned when the encoder cannot produce a vector.
var ErrEncoding = errors.New("encoding failed")

// Embedder wraps an Engine to generate unit-length text embeddings.
type Embedder struct {
	engine engine.Engine
	model  string
}

// NewEmbedder creates an Embedder using the given Engine and model name.
func NewEmbedder(e engine.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model}
}

// Name returns the backing engine name.
func (e *Embedder) Name() string { return e.engine.Name() }

// Model returns the model passed to the engine.
func (e *Embedder) Model() string { return e.model }

// Close releases the backing engine.
func (e *Embedder) Close() error { return engine.Close(e.engine) }

// Embed returns the normalized embedding vector for a single text. A zero
// vector cannot be normalized; it is logged and returned as is.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty vector", ErrEncoding, e.engine.Name())
	}
	if index.Normalize(vec) == 0 {
		slog.Warn("degenerate embedding", "engine", e.engine.Name(), "text_len", len(text))
	}
	return vec, nil
}

// EmbedBatch returns normalized embedding vectors for multiple texts
// concurrently. onProgress, when set, is called with the number of texts
// done so far. Returns nil (not error) for empty/nil input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string, onProgress func(done, total int)) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the engine.

	var (
		mu   sync.Mutex
		done int
	)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			if onProgress != nil {
				mu.Lock()
				done++
				onProgress(done, len(texts))
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
