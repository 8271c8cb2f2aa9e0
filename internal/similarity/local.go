package similarity

import (
	"context"
	"math"
)

// LocalOracle scores semantic similarity as the cosine of word-count vectors.
// It needs no network and is deterministic.
type LocalOracle struct{}

// NewLocal returns the in-process backend.
func NewLocal() *LocalOracle {
	return &LocalOracle{}
}

func (LocalOracle) SemanticSimilarity(_ context.Context, a, b string) (float64, error) {
	va, vb := termVector(a), termVector(b)
	var dot float64
	for k, x := range va {
		dot += x * vb[k]
	}
	return clamp(dot), nil
}

func (LocalOracle) LexicalRatio(a, b string) float64 {
	return LexicalRatio(a, b)
}

// termVector returns the L2-normalised word counts of text.
func termVector(text string) map[string]float64 {
	v := map[string]float64{}
	for _, w := range words(text) {
		v[w]++
	}
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for k, x := range v {
		v[k] = x / norm
	}
	return v
}
