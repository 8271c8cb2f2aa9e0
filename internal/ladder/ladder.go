// Package ladder turns one interview transcript into one row of ladder
// question answers.
package ladder

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrEmptyInput means the transcript has no content.
	ErrEmptyInput = errors.New("empty transcript")
	// ErrNoEntries means the transcript has no parsable blocks.
	ErrNoEntries = errors.New("no valid transcript entries")
)

// DefaultCategories are the groups rated after the family question.
var DefaultCategories = []string{"black", "hispanic/latino", "white", "asian"}

type Participant string

const (
	ParticipantUnknown    Participant = "unknown"
	ParticipantJoint      Participant = "joint"
	ParticipantAdolescent Participant = "adolescent"
	ParticipantParent     Participant = "parent"
)

// participantOrder is checked in turn; the first name found in the file name wins.
var participantOrder = []Participant{ParticipantJoint, ParticipantAdolescent, ParticipantParent}

// ParticipantFromFilename classifies the interview by the words in its file name.
func ParticipantFromFilename(name string) Participant {
	lower := strings.ToLower(filepath.Base(name))
	for _, p := range participantOrder {
		if strings.Contains(lower, string(p)) {
			return p
		}
	}
	return ParticipantUnknown
}

var sessionPattern = regexp.MustCompile(`(?i)([ap]_?\d+[a-z]?\s*,\s*[ap]\d+)`)

// SessionID extracts a session id such as "a1011,p101" from the file name,
// falling back to the base file name.
func SessionID(name string) string {
	base := filepath.Base(name)
	if m := sessionPattern.FindStringSubmatch(base); m != nil {
		return m[1]
	}
	return base
}

// ColumnName is the CSV column for a category.
func ColumnName(category string) string {
	return "response_" + strings.ReplaceAll(category, "/", "_or_")
}

// Header is the CSV header for the given categories.
func Header(categories []string) []string {
	h := []string{"SessionId", "responseQ1_Family", "participant", "reason_Family"}
	for _, c := range categories {
		h = append(h, ColumnName(c))
	}
	return h
}

// CategoryResponse is the flattened answer to one category's ladder question.
type CategoryResponse struct {
	Category string `json:"category"`
	Question string `json:"question,omitempty"`
	Response string `json:"response"`
}

// Row is one transcript's line in the output table.
type Row struct {
	SessionID      string             `json:"session_id"`
	FamilyResponse string             `json:"family_response"`
	Participant    Participant        `json:"participant"`
	Reason         string             `json:"reason"`
	Categories     []CategoryResponse `json:"categories"`
}

// Record returns the row as CSV fields in Header order.
func (r Row) Record() []string {
	rec := []string{r.SessionID, r.FamilyResponse, string(r.Participant), r.Reason}
	for _, c := range r.Categories {
		rec = append(rec, c.Response)
	}
	return rec
}

// Flatten joins each turn's sentences, then the turns, with single spaces.
func Flatten(span [][]string) string {
	parts := make([]string, 0, len(span))
	for _, sentences := range span {
		parts = append(parts, strings.Join(sentences, " "))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
