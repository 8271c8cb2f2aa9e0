package similarity

import (
	"math"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// LexicalRatio is the character-level SequenceMatcher ratio of the
// lower-cased texts, scaled to [0,100] and rounded. Empty input scores 0.
func LexicalRatio(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == "" || b == "" {
		return 0
	}
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return math.Round(100 * m.Ratio())
}
