// Package textmatch provides normalized edit-distance string similarity and
// phrase matching for spoken-language triggers.
//
// Speech recognizers routinely mangle trigger phrases ("hey mayla" arrives as
// "hey mailer" or "a miler"), so matching proceeds in two stages:
//
//  1. Exact containment: the normalized hypothesis contains the normalized
//     phrase as a substring.
//  2. Fuzzy similarity: the best normalized Levenshtein ratio between the
//     phrase and any token window of the hypothesis (plus the full string and
//     a space-stripped variant) exceeds a configurable threshold.
//
// All functions operate on normalized text: lowercased, letters and spaces
// only, whitespace collapsed.
package textmatch

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// DefaultThreshold is the similarity floor used by [NewMatcher] when no
// explicit threshold is given. 0.8 suits multi-word phrase sets; shorter or
// more homophone-prone sets may want a lower value.
const DefaultThreshold = 0.8

// Normalize lowercases s, strips every rune that is not a letter or a space,
// and collapses runs of whitespace into single spaces.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Similarity returns the normalized Levenshtein similarity of a and b in
// [0, 1]: 1.0 for identical strings, 0.0 for entirely dissimilar ones.
// Inputs are normalized before comparison.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1.0
	}
	longest := max(len([]rune(na)), len([]rune(nb)))
	if longest == 0 {
		return 1.0
	}
	dist := matchr.Levenshtein(na, nb)
	if dist >= longest {
		return 0
	}
	return 1.0 - float64(dist)/float64(longest)
}

// Matcher tests hypotheses against a fixed phrase set. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phrases   []string // normalized
	original  []string // as supplied, index-aligned with phrases
	threshold float64
}

// NewMatcher builds a Matcher over the given phrases. Phrases that normalize
// to the empty string are dropped. threshold <= 0 selects [DefaultThreshold].
func NewMatcher(phrases []string, threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	m := &Matcher{threshold: threshold}
	for _, p := range phrases {
		n := Normalize(p)
		if n == "" {
			continue
		}
		m.phrases = append(m.phrases, n)
		m.original = append(m.original, p)
	}
	return m
}

// Threshold returns the similarity floor the matcher was built with.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Match reports whether text matches any phrase in the set, returning the
// matched phrase (as originally supplied) and the score that accepted it.
// A containment match scores 1.0.
func (m *Matcher) Match(text string) (phrase string, score float64, ok bool) {
	norm := Normalize(text)
	if norm == "" {
		return "", 0, false
	}

	var best struct {
		idx   int
		score float64
	}
	best.idx = -1

	for i, p := range m.phrases {
		if strings.Contains(norm, p) {
			return m.original[i], 1.0, true
		}
		if s := bestWindowScore(norm, p); s >= m.threshold && s > best.score {
			best.idx, best.score = i, s
		}
	}

	if best.idx < 0 {
		return "", 0, false
	}
	return m.original[best.idx], best.score, true
}

// bestWindowScore compares phrase against text as a whole, with spaces
// stripped, and against every token window of text whose width matches the
// phrase's token count, returning the highest similarity found.
func bestWindowScore(text, phrase string) float64 {
	score := levRatio(text, phrase)

	if s := levRatio(strings.ReplaceAll(text, " ", ""), strings.ReplaceAll(phrase, " ", "")); s > score {
		score = s
	}

	tokens := strings.Fields(text)
	width := len(strings.Fields(phrase))
	if width == 0 || len(tokens) <= width {
		return score
	}
	for i := 0; i+width <= len(tokens); i++ {
		window := strings.Join(tokens[i:i+width], " ")
		if s := levRatio(window, phrase); s > score {
			score = s
		}
	}
	return score
}

// levRatio is Similarity without re-normalization; inputs must already be
// normalized.
func levRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1.0
	}
	dist := matchr.Levenshtein(a, b)
	if dist >= longest {
		return 0
	}
	return 1.0 - float64(dist)/float64(longest)
}
