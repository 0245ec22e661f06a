package service

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bbureau12/echonet/internal/repository"
)

// Matcher holds the pure phrase-matching logic: cancel detection, trigger
// detection, and trigger stripping. It has no I/O and no mutable state.
type Matcher struct {
	cancelPhrases []string
	stripTrigger  bool
}

func NewMatcher(cancelPhrases []string, stripTrigger bool) *Matcher {
	var cleaned []string
	for _, p := range cancelPhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return &Matcher{cancelPhrases: cleaned, stripTrigger: stripTrigger}
}

// IsCancel reports whether text contains any configured cancel phrase,
// case-insensitively. An empty cancel list never matches.
func (m *Matcher) IsCancel(text string) bool {
	t := strings.ToLower(text)
	for _, p := range m.cancelPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// FindTrigger returns the first pair in phraseMap whose phrase is a
// case-insensitive substring of text. Iteration order of the map is
// authoritative: callers control priority by how they build it.
func (m *Matcher) FindTrigger(text string, phraseMap []repository.PhrasePair) (phrase, target string, ok bool) {
	t := strings.ToLower(text)
	for _, pair := range phraseMap {
		if pair.Phrase != "" && strings.Contains(t, pair.Phrase) {
			return pair.Phrase, pair.Target, true
		}
	}
	return "", "", false
}

// StripTrigger removes the first case-insensitive occurrence of
// matchedPhrase from text, joining the surrounding fragments with a space
// and trimming leading separators. Returns text unchanged if the phrase
// cannot be located or stripping leaves nothing.
func (m *Matcher) StripTrigger(text, matchedPhrase string) string {
	if !m.stripTrigger {
		return text
	}
	start, end := foldIndex(text, matchedPhrase)
	if start < 0 {
		return text
	}
	out := strings.TrimSpace(text[:start] + " " + text[end:])
	out = strings.TrimSpace(strings.TrimLeft(out, " ,:-"))
	if out == "" {
		return text
	}
	return out
}

// foldIndex reports the byte range of the first case-insensitive
// occurrence of substr in s, or (-1, -1) when there is none. Both
// offsets index into s, so slicing with them is safe even when case
// folding changes a rune's encoded length.
func foldIndex(s, substr string) (start, end int) {
	if substr == "" {
		return -1, -1
	}
	for i := range s {
		if n, ok := foldPrefixLen(s[i:], substr); ok {
			return i, i + n
		}
	}
	return -1, -1
}

func foldPrefixLen(s, substr string) (int, bool) {
	n := 0
	for _, pr := range substr {
		r, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 {
			return 0, false
		}
		if r != pr && unicode.ToLower(r) != unicode.ToLower(pr) {
			return 0, false
		}
		n += size
	}
	return n, true
}
