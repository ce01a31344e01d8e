//go:build !arm64

package index

import "github.com/viant/vec/search"

// dot returns the inner product of a and b. The portable build of
// viant/vec exports the precomputed-magnitude distance under its NEON name.
func dot(a, b []float32) float32 {
	return 1 - search.Float32s(a).CosineDistanceWithMagnitudesNeon(b, 1, 1)
}
