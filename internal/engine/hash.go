package engine

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEngine is an offline encoder based on feature hashing of lowercased
// word tokens. It is deterministic and needs no model, which makes it
// suitable for tests and air-gapped bootstraps. Texts sharing vocabulary
// land close together; meaning does not.
type HashEngine struct {
	dim int
}

// NewHashEngine creates a HashEngine producing vectors of length dim.
func NewHashEngine(dim int) *HashEngine {
	return &HashEngine{dim: dim}
}

func (e *HashEngine) Name() string { return ProviderHash }

// Dimension returns the output vector length.
func (e *HashEngine) Dimension() int { return e.dim }

// Embed ignores model. Text without any word characters yields the zero
// vector.
func (e *HashEngine) Embed(_ context.Context, _ string, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	if e.dim == 0 {
		return vec, nil
	}
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dim))
		// The top bit picks the sign so collisions tend to cancel.
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
