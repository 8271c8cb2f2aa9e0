package ladder

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/ladder/internal/matcher"
	"github.com/MikeSquared-Agency/ladder/internal/transcript"
)

// Result is a built row plus the questions it was read from.
type Result struct {
	Row            Row    `json:"row"`
	FamilyQuestion string `json:"family_question,omitempty"`
	WhyQuestion    string `json:"why_question,omitempty"`
	Turns          int    `json:"turns"`
}

// Builder runs the matcher over a transcript and assembles its row.
type Builder struct {
	matcher    *matcher.Matcher
	categories []string
	logger     *slog.Logger
}

// NewBuilder creates a Builder. A nil categories list uses DefaultCategories.
func NewBuilder(m *matcher.Matcher, categories []string, logger *slog.Logger) *Builder {
	if categories == nil {
		categories = DefaultCategories
	}
	return &Builder{matcher: m, categories: categories, logger: logger}
}

// Categories returns the configured category list.
func (b *Builder) Categories() []string {
	return b.categories
}

// Build parses text and extracts the family exchange and every category
// answer. filename supplies the session id and participant.
func (b *Builder) Build(ctx context.Context, filename, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyInput
	}
	turns := transcript.Parse(text)
	if len(turns) == 0 {
		return Result{}, ErrNoEntries
	}

	logger := b.logger.With("file", filename)
	row := Row{
		SessionID:   SessionID(filename),
		Participant: ParticipantFromFilename(filename),
	}
	res := Result{Turns: len(turns)}

	match, ex := b.matcher.FamilyExchange(ctx, turns)
	if match.Found() {
		row.FamilyResponse = Flatten(ex.Response)
		res.FamilyQuestion = match.Question
		logger.Debug("family question matched",
			"question", match.Question,
			"score", match.Score,
			"response", row.FamilyResponse,
		)
		if ex.WhyQuestion != nil && len(ex.Reason) > 0 {
			row.Reason = Flatten(ex.Reason)
			res.WhyQuestion = strings.Join(ex.WhyQuestion, " ")
			logger.Debug("reason extracted", "why_question", res.WhyQuestion, "reason", row.Reason)
		} else {
			logger.Debug("no reason exchange found")
		}
	} else {
		logger.Debug("no family question found")
	}

	row.Categories = make([]CategoryResponse, 0, len(b.categories))
	for _, category := range b.categories {
		m := b.matcher.FindRating(ctx, turns, category)
		cr := CategoryResponse{Category: category, Question: m.Question, Response: Flatten(m.Responses)}
		logger.Debug("category rated", "category", category, "question", m.Question, "response", cr.Response)
		row.Categories = append(row.Categories, cr)
	}

	res.Row = row
	return res, nil
}
