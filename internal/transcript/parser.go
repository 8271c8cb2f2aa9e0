package transcript

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	idPattern        = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	timestampPattern = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}[.,]\d{3}\s*-->\s*\d{2}:\d{2}:\d{2}[.,]\d{3}$`)
	speakerPattern   = regexp.MustCompile(`(?is)^(interviewer|adolescent|parent|child)\b\s*:?\s*(.*)`)
	indirectQuestion = regexp.MustCompile(`(?i)could you tell\s+`)
)

// block is the raw material of one turn: its header and the lines up to the next header.
type block struct {
	id        string
	timestamp string
	lines     []string
}

// Parse turns the raw text of one transcript file into its ordered turns.
//
// Blocks are found by their header: a line holding only an identifier,
// followed by a timestamp-range line. Blank lines carry no meaning. A header
// whose range line is malformed still opens a block; the turn keeps
// DefaultTimestamp. Text with no header at all yields no turns.
func Parse(text string) Transcript {
	blocks := splitBlocks(text)

	var out Transcript
	last := SpeakerUnknown
	for _, b := range blocks {
		var turn Turn
		var ok bool
		turn, last, ok = buildTurn(b, last)
		if ok {
			out = append(out, turn)
		}
	}
	return out
}

func splitBlocks(text string) []block {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var blocks []block
	var cur *block
	for i := 0; i < len(lines); i++ {
		if id, ts, ok := header(lines, i); ok {
			if cur != nil {
				blocks = append(blocks, *cur)
			}
			cur = &block{id: id, timestamp: ts}
			i++ // skip the timestamp line
			continue
		}
		if cur != nil {
			cur.lines = append(cur.lines, lines[i])
		}
	}
	if cur != nil {
		blocks = append(blocks, *cur)
	}
	return blocks
}

// header reports whether lines[i] and lines[i+1] form a block header.
func header(lines []string, i int) (id, timestamp string, ok bool) {
	if i+1 >= len(lines) {
		return "", "", false
	}
	id = strings.TrimSpace(lines[i])
	if !idPattern.MatchString(id) {
		return "", "", false
	}
	rangeLine := strings.TrimSpace(lines[i+1])
	if !strings.Contains(rangeLine, "-->") {
		return "", "", false
	}
	if !timestampPattern.MatchString(rangeLine) {
		return id, DefaultTimestamp, true
	}
	return id, strings.ReplaceAll(rangeLine, ",", "."), true
}

// buildTurn resolves the speaker of a block and cleans its sentences. last is
// the speaker of the previous labelled block and is returned updated.
func buildTurn(b block, last Speaker) (Turn, Speaker, bool) {
	content := strings.TrimSpace(strings.Join(b.lines, "\n"))

	speaker := last
	if m := speakerPattern.FindStringSubmatch(content); m != nil {
		speaker = ParseSpeaker(m[1])
		content = strings.TrimSpace(m[2])
		last = speaker
	}
	if content == "" {
		return Turn{}, last, false
	}

	sentences := splitSentences(content)
	if speaker.IsInterviewer() {
		for i, s := range sentences {
			sentences[i] = directQuestion(s)
		}
	}

	text := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if s = strings.TrimSpace(s); s != "" {
			text = append(text, s)
		}
	}
	if len(text) == 0 {
		return Turn{}, last, false
	}

	id := b.id
	if id == "" {
		id = DefaultID
	}
	ts := b.timestamp
	if ts == "" {
		ts = DefaultTimestamp
	}
	return Turn{ID: id, Timestamp: ts, Speaker: speaker, Text: text}, last, true
}

// splitSentences splits on whitespace that follows '.', '?' or '!'.
func splitSentences(content string) []string {
	var out []string
	start := 0
	for i := 0; i < len(content); {
		r, size := utf8.DecodeRuneInString(content[i:])
		if unicode.IsSpace(r) && i > start && isTerminal(content[i-1]) {
			j := i
			for j < len(content) {
				r2, s2 := utf8.DecodeRuneInString(content[j:])
				if !unicode.IsSpace(r2) {
					break
				}
				j += s2
			}
			out = append(out, content[start:i])
			start, i = j, j
			continue
		}
		i += size
	}
	out = append(out, content[start:])

	sentences := out[:0]
	for _, s := range out {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func isTerminal(c byte) bool {
	return c == '.' || c == '?' || c == '!'
}

// directQuestion rewrites "could you tell me where ..." as "where ...".
func directQuestion(sentence string) string {
	loc := indirectQuestion.FindStringIndex(sentence)
	if loc == nil {
		return sentence
	}
	rest := strings.TrimSpace(sentence[loc[1]:])
	lower := strings.ToLower(rest)
	if strings.HasPrefix(lower, "me ") || strings.HasPrefix(lower, "us ") {
		rest = rest[3:]
	}
	return strings.TrimSpace(rest)
}
