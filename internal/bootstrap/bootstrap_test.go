package bootstrap

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/advocadabra/scr/internal/corpus"
	"github.com/advocadabra/scr/internal/engine"
	"github.com/advocadabra/scr/internal/retrieval"
)

func TestRun_WritesLoadableCorpus(t *testing.T) {
	ctx := context.Background()
	p := corpus.DefaultNames().In(t.TempDir())

	res, err := Run(ctx, p, Options{Dimension: 32, Seed: DefaultSeed})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Exists || res.Cases != 5 {
		t.Errorf("result = %+v", res)
	}
	if res.Build.Rows != 5 || res.Build.Dimension != 32 || res.Build.Encoder != "random" {
		t.Errorf("build = %+v", res.Build)
	}

	b, err := corpus.Load(ctx, p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e, err := b.Metadata.Get(3)
	if err != nil {
		t.Fatalf("Metadata.Get: %v", err)
	}
	if e.CaseID != "case_004" || e.LegalArea != "Medical Malpractice" || e.Year != 2021 {
		t.Errorf("metadata row 3 = %+v", e)
	}
}

func TestRun_SkipsExistingWithoutForce(t *testing.T) {
	ctx := context.Background()
	p := corpus.DefaultNames().In(t.TempDir())
	if _, err := Run(ctx, p, Options{Dimension: 8}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	before, err := os.Stat(p.Index)
	if err != nil {
		t.Fatal(err)
	}

	res, err := Run(ctx, p, Options{Dimension: 16})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !res.Exists {
		t.Error("Exists = false, want true")
	}
	after, _ := os.Stat(p.Index)
	if !after.ModTime().Equal(before.ModTime()) || after.Size() != before.Size() {
		t.Error("index rewritten without Force")
	}
}

func TestRun_ForceRecreates(t *testing.T) {
	ctx := context.Background()
	p := corpus.DefaultNames().In(t.TempDir())
	if _, err := Run(ctx, p, Options{Dimension: 8}); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	res, err := Run(ctx, p, Options{Dimension: 16, Force: true})
	if err != nil {
		t.Fatalf("forced Run: %v", err)
	}
	if len(res.Removed) != 4 {
		t.Errorf("removed %v, want all 4 artifacts", res.Removed)
	}
	rows, dim, err := indexShape(p)
	if err != nil {
		t.Fatal(err)
	}
	if rows != 5 || dim != 16 {
		t.Errorf("embeddings shape = (%d, %d), want (5, 16)", rows, dim)
	}
}

func TestRun_WithEmbedderRanksByMeaning(t *testing.T) {
	ctx := context.Background()
	p := corpus.DefaultNames().In(t.TempDir())
	hash := engine.NewHashEngine(128)

	res, err := Run(ctx, p, Options{Embedder: retrieval.NewEmbedder(hash, "")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Build.Encoder != "hash" || res.Build.Dimension != 128 {
		t.Errorf("build = %+v", res.Build)
	}

	r, err := retrieval.Open(ctx, retrieval.OpenOptions{Paths: p, Engine: hash})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := r.Retrieve(ctx, "patented technology infringement", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 || got[0].CaseID != "case_003" {
		t.Errorf("got %+v, want case_003", got)
	}
}

type failingEmbedder struct{ err error }

func (f failingEmbedder) EmbedBatch(context.Context, []string, func(done, total int)) ([][]float32, error) {
	return nil, f.err
}
func (failingEmbedder) Name() string  { return "failing" }
func (failingEmbedder) Model() string { return "none" }

func TestRun_EmbedFailureWritesNothing(t *testing.T) {
	p := corpus.DefaultNames().In(t.TempDir())
	wantErr := errors.New("encoder offline")

	_, err := Run(context.Background(), p, Options{Embedder: failingEmbedder{err: wantErr}})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if missing := p.Missing(); len(missing) != 4 {
		t.Errorf("missing = %v, want all 4 artifacts absent", missing)
	}
}

func TestRandomUnitVectors(t *testing.T) {
	a := RandomUnitVectors(3, 64, DefaultSeed)
	b := RandomUnitVectors(3, 64, DefaultSeed)
	c := RandomUnitVectors(3, 64, DefaultSeed+1)

	for i := range a {
		var sum float64
		for j, x := range a[i] {
			sum += float64(x) * float64(x)
			if x != b[i][j] {
				t.Fatalf("same seed differs at [%d][%d]", i, j)
			}
		}
		if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
			t.Errorf("vector %d norm = %v, want 1", i, math.Sqrt(sum))
		}
	}
	if a[0][0] == c[0][0] && a[0][1] == c[0][1] {
		t.Error("different seeds produced the same vector")
	}
}

func indexShape(p corpus.Paths) (int, int, error) {
	b, err := corpus.Load(context.Background(), p)
	if err != nil {
		return 0, 0, err
	}
	return b.Index.Len(), b.Index.Dim(), nil
}
