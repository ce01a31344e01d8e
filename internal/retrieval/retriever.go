package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/advocadabra/scr/internal/corpus"
	"github.com/advocadabra/scr/internal/engine"
	"github.com/advocadabra/scr/internal/index"
)

// Default over-fetch parameters. The index returns rows, not cases, so the
// pool is widened to leave room for rows sharing a case_id.
const (
	DefaultOverfetchFactor = 5
	DefaultMinFetch        = 50
)

// Options tunes the candidate pool size.
type Options struct {
	OverfetchFactor int
	MinFetch        int
}

// DefaultOptions returns the standard over-fetch settings.
func DefaultOptions() Options {
	return Options{OverfetchFactor: DefaultOverfetchFactor, MinFetch: DefaultMinFetch}
}

func (o Options) withDefaults() Options {
	if o.OverfetchFactor <= 0 {
		o.OverfetchFactor = DefaultOverfetchFactor
	}
	if o.MinFetch <= 0 {
		o.MinFetch = DefaultMinFetch
	}
	return o
}

// poolSize returns how many rows to request for k unique cases, capped at
// rows. A k too large to scale requests every row.
func (o Options) poolSize(k, rows int) int {
	if o.OverfetchFactor > 0 && k > math.MaxInt/o.OverfetchFactor {
		return rows
	}
	return min(max(k*o.OverfetchFactor, o.MinFetch), rows)
}

// Result is one retrieved case.
type Result struct {
	CaseID     string  `json:"case_id"`
	Score      float32 `json:"score"`
	TextSample string  `json:"text_sample"`
}

// RowDetail is everything known about one embedding row.
type RowDetail struct {
	Row      int                  `json:"row"`
	Metadata corpus.MetadataEntry `json:"metadata"`
	Record   corpus.CaseRecord    `json:"record"`
}

// Stats describes the loaded corpus.
type Stats struct {
	Rows           int    `json:"rows"`
	Cases          int    `json:"cases"`
	Dimension      int    `json:"dimension"`
	Metric         string `json:"metric"`
	Encoder        string `json:"encoder"`
	Model          string `json:"model"`
	SkippedRecords int    `json:"skipped_records"`
}

// Retriever answers similarity queries over a loaded, immutable corpus.
// It is safe for concurrent use.
type Retriever struct {
	embedder *Embedder
	index    *index.Flat
	metadata corpus.Metadata
	cases    corpus.Cases
	opts     Options
	skipped  int
	distinct int
}

// New creates a Retriever over an already loaded bundle.
func New(embedder *Embedder, b *corpus.Bundle, opts Options) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    b.Index,
		metadata: b.Metadata,
		cases:    b.Cases,
		opts:     opts.withDefaults(),
		skipped:  b.Stats.Skipped,
		distinct: b.Metadata.DistinctCases(),
	}
}

// OpenOptions configures Open.
type OpenOptions struct {
	Paths   corpus.Paths
	Engine  engine.Engine
	Model   string
	Options Options
}

// Open loads the artifacts at o.Paths and returns a ready Retriever. The
// engine is owned by the Retriever from here on and released by Close.
func Open(ctx context.Context, o OpenOptions) (*Retriever, error) {
	b, err := corpus.Load(ctx, o.Paths)
	if err != nil {
		return nil, err
	}
	return New(NewEmbedder(o.Engine, o.Model), b, o.Options), nil
}

// Close releases the encoder.
func (r *Retriever) Close() error {
	return r.embedder.Close()
}

// Retrieve returns up to k cases most similar to query, best first, with
// at most one result per case_id. Only a pool of the closest rows is
// examined, so when many top rows share a case_id fewer than k results may
// come back even if the corpus holds more cases; that is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.search(vec, k, r.opts.poolSize(k, r.index.Len()))
}

// RetrieveExhaustive behaves like Retrieve but, while fewer than k cases
// were found, doubles the pool and searches again. It stops once k cases
// are found, the pool covers the whole index, or maxRounds searches have
// run. maxRounds <= 0 means no round limit.
func (r *Retriever) RetrieveExhaustive(ctx context.Context, query string, k, maxRounds int) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	rows := r.index.Len()
	pool := r.opts.poolSize(k, rows)
	for round := 1; ; round++ {
		results, err := r.search(vec, k, pool)
		if err != nil {
			return nil, err
		}
		if len(results) >= k || pool >= rows || (maxRounds > 0 && round >= maxRounds) {
			return results, nil
		}
		slog.Debug("widening candidate pool", "round", round, "pool", pool, "found", len(results), "k", k)
		pool = min(pool*2, rows)
	}
}

func (r *Retriever) search(vec []float32, k, pool int) ([]Result, error) {
	hits, err := r.index.Search(vec, pool)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	results := make([]Result, 0, min(k, len(hits)))
	seen := make(map[string]struct{}, min(k, len(hits)))
	for _, h := range hits {
		meta, err := r.metadata.Get(h.Row)
		if err != nil {
			return nil, fmt.Errorf("resolving hit: %w", err)
		}
		if _, dup := seen[meta.CaseID]; dup {
			continue
		}
		rec, err := r.cases.Get(h.Row)
		if err != nil {
			return nil, fmt.Errorf("resolving hit: %w", err)
		}
		seen[meta.CaseID] = struct{}{}
		results = append(results, Result{
			CaseID:     meta.CaseID,
			Score:      h.Score,
			TextSample: rec.TextSample(),
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Row returns the metadata and case record stored for row.
func (r *Retriever) Row(row int) (RowDetail, error) {
	meta, err := r.metadata.Get(row)
	if err != nil {
		return RowDetail{}, err
	}
	rec, err := r.cases.Get(row)
	if err != nil {
		return RowDetail{}, err
	}
	return RowDetail{Row: row, Metadata: meta, Record: rec}, nil
}

// Stats reports corpus size and encoder settings.
func (r *Retriever) Stats() Stats {
	return Stats{
		Rows:           r.index.Len(),
		Cases:          r.distinct,
		Dimension:      r.index.Dim(),
		Metric:         r.index.Metric().String(),
		Encoder:        r.embedder.Name(),
		Model:          r.embedder.Model(),
		SkippedRecords: r.skipped,
	}
}
