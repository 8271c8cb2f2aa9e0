package matcher

import (
	"context"

	"github.com/MikeSquared-Agency/ladder/internal/transcript"
)

// State is a step of the walk over a rating exchange.
type State int

const (
	ScanningResponse State = iota
	ScanningForWhy
	ScanningReason
	Done
)

func (s State) String() string {
	switch s {
	case ScanningResponse:
		return "scanning_response"
	case ScanningForWhy:
		return "scanning_for_why"
	case ScanningReason:
		return "scanning_reason"
	case Done:
		return "done"
	}
	return "unknown"
}

// Exchange is what follows a rating question: the respondent's answer, the
// interviewer's follow-up "why" question and the answer to it.
type Exchange struct {
	Response    [][]string `json:"response"`
	WhyQuestion []string   `json:"why_question,omitempty"`
	Reason      [][]string `json:"reason"`
}

// Walk collects the exchange after the question at questionIndex. Each span
// is read once.
func Walk(t transcript.Transcript, questionIndex int) Exchange {
	var ex Exchange
	cursor := questionIndex + 1

	for state := ScanningResponse; state != Done; {
		switch state {
		case ScanningResponse:
			ex.Response, cursor = CollectSpan(t, cursor)
			state = ScanningForWhy
		case ScanningForWhy:
			ex.WhyQuestion, cursor = FindWhy(t, cursor)
			if ex.WhyQuestion == nil {
				state = Done
				continue
			}
			state = ScanningReason
		case ScanningReason:
			ex.Reason, cursor = CollectSpan(t, cursor)
			state = Done
		}
	}
	return ex
}

// FamilyExchange finds the family rating question and walks the exchange
// after it. The exchange is empty when no question is found.
func (m *Matcher) FamilyExchange(ctx context.Context, t transcript.Transcript) (Match, Exchange) {
	match := m.best(ctx, t, "family")
	if !match.Found() {
		return match, Exchange{}
	}
	ex := Walk(t, match.Index)
	match.Responses = ex.Response
	return match, ex
}
