package index

import (
	"container/heap"
	"errors"
	"fmt"
	"strings"

	"github.com/viant/vec/search"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Metric selects how rows are scored against a query.
type Metric uint8

const (
	// MetricInnerProduct scores by dot product. Rows and queries must be
	// unit-normalized for the score to equal cosine similarity.
	MetricInnerProduct Metric = iota
	// MetricL2 scores by Euclidean distance; lower is closer.
	MetricL2
)

func (m Metric) String() string {
	switch m {
	case MetricInnerProduct:
		return "ip"
	case MetricL2:
		return "l2"
	default:
		return fmt.Sprintf("metric(%d)", uint8(m))
	}
}

// ParseMetric maps a config value ("ip", "l2") to a Metric.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ip", "inner_product", "cosine":
		return MetricInnerProduct, nil
	case "l2", "euclidean":
		return MetricL2, nil
	default:
		return 0, fmt.Errorf("unknown metric %q (want ip or l2)", s)
	}
}

// better reports whether a ranks ahead of b. Equal scores fall back to the
// lower row, which keeps results stable across calls.
func (m Metric) better(a, b Hit) bool {
	if a.Score != b.Score {
		if m == MetricL2 {
			return a.Score < b.Score
		}
		return a.Score > b.Score
	}
	return a.Row < b.Row
}

// Hit is a single search result: the row position and its score. For
// MetricL2 the score is the distance.
type Hit struct {
	Row   int
	Score float32
}

// Flat is an exact-search index that scans every row. Rows are stored in a
// single contiguous slice. A Flat is not mutated by Search, so concurrent
// searches are safe once all rows have been added.
type Flat struct {
	dim    int
	metric Metric
	data   []float32
}

// NewFlat creates an empty index for vectors of the given dimension.
func NewFlat(dim int, metric Metric) *Flat {
	return &Flat{dim: dim, metric: metric}
}

// FromMatrix builds an index over every row of m.
func FromMatrix(m Matrix, metric Metric) *Flat {
	data := make([]float32, len(m.Data))
	copy(data, m.Data)
	return &Flat{dim: m.Dim, metric: metric, data: data}
}

// Dim returns the vector dimension.
func (f *Flat) Dim() int { return f.dim }

// Metric returns the scoring metric.
func (f *Flat) Metric() Metric { return f.metric }

// Len returns the number of stored rows.
func (f *Flat) Len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// Add appends vectors as new rows. Either all vectors are added or none.
func (f *Flat) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: vector %d has %d values, index has %d", ErrDimensionMismatch, i, len(v), f.dim)
		}
	}
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

// Row returns the stored vector at position row. The slice aliases index
// memory and must not be modified.
func (f *Flat) Row(row int) []float32 {
	return f.data[row*f.dim : (row+1)*f.dim]
}

// Search returns up to n rows closest to query, best first. When n exceeds
// the number of rows, every row is returned.
func (f *Flat) Search(query []float32, n int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d values, index has %d", ErrDimensionMismatch, len(query), f.dim)
	}
	rows := f.Len()
	if n <= 0 || rows == 0 {
		return nil, nil
	}
	if n > rows {
		n = rows
	}

	h := &hitHeap{metric: f.metric, items: make([]Hit, 0, n)}
	for row := 0; row < rows; row++ {
		hit := Hit{Row: row, Score: f.score(query, f.Row(row))}
		if h.Len() < n {
			heap.Push(h, hit)
		} else if f.metric.better(hit, h.items[0]) {
			h.items[0] = hit
			heap.Fix(h, 0)
		}
	}

	out := make([]Hit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Hit)
	}
	return out, nil
}

func (f *Flat) score(query, row []float32) float32 {
	if f.metric == MetricL2 {
		return search.Float32s(row).EuclideanDistance(query)
	}
	return dot(row, query)
}

// Normalize scales v in place to unit length and returns its original
// magnitude. Zero vectors are left untouched.
func Normalize(v []float32) float32 {
	m := search.Float32s(v).Magnitude()
	if m == 0 {
		return 0
	}
	for i := range v {
		v[i] /= m
	}
	return m
}

// hitHeap keeps the worst retained hit at the root so it can be replaced
// when a better candidate arrives.
type hitHeap struct {
	metric Metric
	items  []Hit
}

func (h *hitHeap) Len() int           { return len(h.items) }
func (h *hitHeap) Less(i, j int) bool { return h.metric.better(h.items[j], h.items[i]) }
func (h *hitHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *hitHeap) Push(x any)         { h.items = append(h.items, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
