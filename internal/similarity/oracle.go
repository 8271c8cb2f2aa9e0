// Package similarity scores how close two short texts are. The matcher only
// sees the Oracle interface; the backends behind it are interchangeable.
package similarity

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"
)

// Blend weights.
const (
	SemanticWeight = 0.6
	LexicalWeight  = 0.4
)

// Oracle is the similarity backend. SemanticSimilarity returns a score in
// [0,1]; LexicalRatio returns a score in [0,100]. Both compare lower-cased text.
type Oracle interface {
	SemanticSimilarity(ctx context.Context, a, b string) (float64, error)
	LexicalRatio(a, b string) float64
}

// Blend combines the semantic and lexical scores of a and b into one score in [0,1].
func Blend(ctx context.Context, o Oracle, a, b string) (float64, error) {
	sem, err := o.SemanticSimilarity(ctx, a, b)
	if err != nil {
		return 0, fmt.Errorf("semantic similarity: %w", err)
	}
	return SemanticWeight*sem + LexicalWeight*(o.LexicalRatio(a, b)/100), nil
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
