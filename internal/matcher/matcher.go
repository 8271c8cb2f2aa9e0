// Package matcher finds the ladder question in a parsed transcript and
// collects the answers around it.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/ladder/internal/similarity"
	"github.com/MikeSquared-Agency/ladder/internal/transcript"
)

// NoMatch is the Index of a Match that found nothing.
const NoMatch = -1

// Keyword weights. The rated word carries more weight than the framing words.
const (
	wordWeight    = 1.5
	framingWeight = 1.0
	candidateGate = 1.5
)

var framingKeywords = []string{"where", "ladder"}

// Template is the canonical wording of the ladder question for word.
func Template(word string) string {
	return fmt.Sprintf("Where do you think %s are on this ladder?", word)
}

// Match is the best ladder question found for one word.
type Match struct {
	Index     int        `json:"index"`
	Question  string     `json:"question,omitempty"`
	Score     float64    `json:"score"`
	Responses [][]string `json:"responses"`
}

// Found reports whether a candidate passed the gate.
func (m Match) Found() bool {
	return m.Index != NoMatch
}

// Matcher scores interviewer sentences against the ladder question.
type Matcher struct {
	oracle  similarity.Oracle
	lemmas  Lemmatizer
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Matcher. timeout bounds each oracle call; zero means no bound.
func New(oracle similarity.Oracle, lemmas Lemmatizer, timeout time.Duration, logger *slog.Logger) *Matcher {
	return &Matcher{
		oracle:  oracle,
		lemmas:  lemmas,
		timeout: timeout,
		logger:  logger,
	}
}

// FindRating returns the interviewer sentence that best matches the ladder
// question for word, with the respondent turns that immediately follow it.
// The whole transcript is scanned on every call.
func (m *Matcher) FindRating(ctx context.Context, t transcript.Transcript, word string) Match {
	best := m.best(ctx, t, word)
	if best.Found() {
		best.Responses, _ = CollectSpan(t, best.Index+1)
	}
	return best
}

// best scores every candidate sentence and keeps the first highest score.
func (m *Matcher) best(ctx context.Context, t transcript.Transcript, word string) Match {
	best := Match{Index: NoMatch, Score: -1}
	template := Template(word)

	for i, turn := range t {
		if ctx.Err() != nil {
			m.logger.Warn("rating scan interrupted", "word", word, "turn", i, "error", ctx.Err())
			break
		}
		if !turn.Speaker.IsInterviewer() {
			continue
		}
		for _, sentence := range turn.Text {
			count, ok := m.keywordCount(sentence, word)
			if !ok {
				continue
			}
			blended, err := m.blend(ctx, sentence, template)
			if err != nil {
				m.logger.Debug("skipping candidate", "word", word, "turn", i, "sentence", sentence, "error", err)
				continue
			}
			if score := count + blended; score > best.Score {
				best = Match{Index: i, Question: sentence, Score: score}
			}
		}
	}

	if !best.Found() {
		best.Score = 0
	}
	return best
}

// keywordCount weighs the keywords present in sentence. ok is false unless
// the sentence mentions word and the count reaches the candidate gate.
func (m *Matcher) keywordCount(sentence, word string) (float64, bool) {
	lemmas := lemmaSet(m.lemmas, sentence)
	if !keywordPresent(m.lemmas, word, lemmas) {
		return 0, false
	}
	count := wordWeight
	for _, kw := range framingKeywords {
		if strings.EqualFold(kw, word) {
			continue
		}
		if keywordPresent(m.lemmas, kw, lemmas) {
			count += framingWeight
		}
	}
	return count, count >= candidateGate
}

func (m *Matcher) blend(ctx context.Context, a, b string) (float64, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	return similarity.Blend(ctx, m.oracle, a, b)
}

// FindWhy returns the sentences of the first interviewer turn at or after
// from that asks "why", and the index just past it. When there is none it
// returns nil and len(t).
func FindWhy(t transcript.Transcript, from int) ([]string, int) {
	for i := max(from, 0); i < len(t); i++ {
		if !t[i].Speaker.IsInterviewer() {
			continue
		}
		for _, s := range t[i].Text {
			if strings.Contains(strings.ToLower(s), "why") {
				return t[i].Text, i + 1
			}
		}
	}
	return nil, len(t)
}

// CollectSpan returns the text of the consecutive non-interviewer turns
// starting at from, and the index of the first turn after them.
func CollectSpan(t transcript.Transcript, from int) ([][]string, int) {
	var span [][]string
	i := max(from, 0)
	for ; i < len(t) && !t[i].Speaker.IsInterviewer(); i++ {
		span = append(span, t[i].Text)
	}
	return span, i
}
