// Package bootstrap writes a small placeholder corpus so the retriever can
// run before a real dataset is available.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/advocadabra/scr/internal/corpus"
	"github.com/advocadabra/scr/internal/index"
	"github.com/advocadabra/scr/internal/storage"
)

// Defaults for the placeholder corpus.
const (
	DefaultDimension = 768
	DefaultSeed      = 42
)

// MockCases returns the placeholder case records.
func MockCases() []corpus.CaseRecord {
	return []corpus.CaseRecord{
		{
			CaseID:    "case_001",
			Title:     "Contract Breach in Commercial Real Estate",
			Summary:   "Plaintiff sued for breach of commercial lease agreement involving failure to maintain property standards.",
			Court:     "Superior Court",
			Year:      2023,
			Outcome:   "Plaintiff awarded damages",
			LegalArea: "Contract Law",
		},
		{
			CaseID:    "case_002",
			Title:     "Employment Discrimination Case",
			Summary:   "Employee filed discrimination lawsuit alleging wrongful termination based on age discrimination.",
			Court:     "Federal District Court",
			Year:      2022,
			Outcome:   "Settlement reached",
			LegalArea: "Employment Law",
		},
		{
			CaseID:    "case_003",
			Title:     "Intellectual Property Infringement",
			Summary:   "Patent holder sued competitor for unauthorized use of patented technology in manufacturing process.",
			Court:     "Court of Appeals",
			Year:      2023,
			Outcome:   "Injunction granted",
			LegalArea: "Intellectual Property",
		},
		{
			CaseID:    "case_004",
			Title:     "Personal Injury - Medical Malpractice",
			Summary:   "Patient sued hospital for negligence during surgical procedure resulting in permanent injury.",
			Court:     "State Supreme Court",
			Year:      2021,
			Outcome:   "Jury verdict for plaintiff",
			LegalArea: "Medical Malpractice",
		},
		{
			CaseID:    "case_005",
			Title:     "Corporate Merger Dispute",
			Summary:   "Shareholders challenged merger terms alleging inadequate consideration and breach of fiduciary duty.",
			Court:     "Delaware Chancery Court",
			Year:      2023,
			Outcome:   "Merger blocked pending review",
			LegalArea: "Corporate Law",
		},
	}
}

// BatchEmbedder generates embeddings for many texts.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string, onProgress func(done, total int)) ([][]float32, error)
	Name() string
	Model() string
}

// Options controls Run.
type Options struct {
	Dimension int
	Seed      uint64
	// Force removes existing artifacts before writing.
	Force bool
	// Embedder, when set, embeds the mock cases instead of drawing random
	// vectors, so that real queries return meaningful rankings.
	Embedder BatchEmbedder
}

// Result reports what Run did.
type Result struct {
	// Exists is true when nothing was written because the artifacts were
	// already present and Force was not set.
	Exists  bool
	Removed []string
	Cases   int
	Build   storage.Build
}

// Run writes the placeholder artifacts at p.
func Run(ctx context.Context, p corpus.Paths, opts Options) (Result, error) {
	if opts.Dimension <= 0 {
		opts.Dimension = DefaultDimension
	}

	var res Result
	missing := p.Missing()
	if opts.Force {
		for _, path := range p.All() {
			if !slices.Contains(missing, path) {
				res.Removed = append(res.Removed, path)
			}
		}
		if err := p.Remove(); err != nil {
			return Result{}, err
		}
	} else if len(missing) == 0 {
		return Result{Exists: true}, nil
	}

	cases := MockCases()
	build := storage.Build{Encoder: "random", Model: fmt.Sprintf("seed-%d", opts.Seed)}
	var (
		vecs [][]float32
		err  error
	)
	if opts.Embedder != nil {
		texts := make([]string, len(cases))
		for i, c := range cases {
			texts[i] = c.EmbeddingText()
		}
		if vecs, err = opts.Embedder.EmbedBatch(ctx, texts, nil); err != nil {
			return Result{}, fmt.Errorf("embedding mock cases: %w", err)
		}
		build.Encoder, build.Model = opts.Embedder.Name(), opts.Embedder.Model()
	} else {
		vecs = RandomUnitVectors(len(cases), opts.Dimension, opts.Seed)
	}

	m, err := index.NewMatrix(len(vecs[0]), vecs)
	if err != nil {
		return Result{}, err
	}

	if err := corpus.SaveDataset(p.Dataset, cases); err != nil {
		return Result{}, fmt.Errorf("writing dataset: %w", err)
	}
	res.Build, err = corpus.Write(ctx, p, m, index.MetricInnerProduct, cases, build)
	if err != nil {
		return Result{}, err
	}
	res.Cases = len(cases)
	slog.Info("bootstrap corpus written", "cases", res.Cases, "dim", m.Dim, "encoder", build.Encoder)
	return res, nil
}

// RandomUnitVectors draws n Gaussian vectors of length dim from a PCG source
// seeded with seed and scales each to unit length.
func RandomUnitVectors(n, dim int, seed uint64) [][]float32 {
	rng := rand.New(rand.NewPCG(seed, 0))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		index.Normalize(v)
		out[i] = v
	}
	return out
}
