package matcher

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
)

// Lemmatizer reduces a lower-cased word to its dictionary form.
type Lemmatizer interface {
	Lemma(word string) string
}

// GolemLemmatizer is a dictionary-backed English lemmatizer.
type GolemLemmatizer struct {
	lem *golem.Lemmatizer
}

// NewGolemLemmatizer loads the English dictionary.
func NewGolemLemmatizer() (*GolemLemmatizer, error) {
	lem, err := golem.New(en.New())
	if err != nil {
		return nil, fmt.Errorf("load english lemmas: %w", err)
	}
	return &GolemLemmatizer{lem: lem}, nil
}

// Lemma returns the dictionary lemma of word. Words the dictionary does not
// know, such as "hispanics" or "latinos", lose a regular plural suffix.
func (g *GolemLemmatizer) Lemma(word string) string {
	if !g.lem.InDict(word) {
		return singular(strings.ToLower(word))
	}
	return strings.ToLower(g.lem.Lemma(word))
}

// singular strips a regular English plural suffix.
func singular(word string) string {
	if len(word) <= 3 {
		return word
	}
	switch {
	case strings.HasSuffix(word, "ss"), strings.HasSuffix(word, "us"), strings.HasSuffix(word, "is"):
		return word
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "ches"), strings.HasSuffix(word, "shes"),
		strings.HasSuffix(word, "xes"), strings.HasSuffix(word, "zes"), strings.HasSuffix(word, "sses"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s"):
		return word[:len(word)-1]
	}
	return word
}

// lemmaSet returns the lemmas of every token in sentence. Tokens joined by
// '/' contribute both the whole token and each part.
func lemmaSet(l Lemmatizer, sentence string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokens(sentence) {
		set[l.Lemma(tok)] = true
		if strings.Contains(tok, "/") {
			for _, part := range strings.Split(tok, "/") {
				if part != "" {
					set[l.Lemma(part)] = true
				}
			}
		}
	}
	return set
}

func tokens(sentence string) []string {
	return strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '/'
	})
}

// keywordPresent reports whether keyword occurs in the lemma set. A keyword
// such as "hispanic/latino" names alternatives; any one of them is enough,
// and a multi-word alternative needs all of its words.
func keywordPresent(l Lemmatizer, keyword string, lemmas map[string]bool) bool {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if lemmas[kw] || lemmas[l.Lemma(kw)] {
		return true
	}
	for _, alt := range strings.Split(kw, "/") {
		ws := strings.Fields(alt)
		if len(ws) == 0 {
			continue
		}
		all := true
		for _, w := range ws {
			if !lemmas[l.Lemma(w)] {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}
