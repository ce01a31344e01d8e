//go:build arm64

package index

import "github.com/viant/vec/search"

// dot returns the inner product of a and b. With both magnitudes fixed at 1
// the cosine distance is 1 - dot.
func dot(a, b []float32) float32 {
	return 1 - search.Float32s(a).CosineDistanceWithMagnitude(b, 1, 1)
}
