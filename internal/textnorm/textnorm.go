// Package textnorm prepares extracted page text for similarity scoring:
// printable ASCII only, no punctuation or digits, case-folded, stop words
// removed and, optionally, stemmed.
package textnorm

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// Normalizer turns raw section text into a space-joined token string.
type Normalizer struct {
	Stem bool
}

// New returns a Normalizer. With stem set, tokens are reduced with the
// Snowball English stemmer.
func New(stem bool) *Normalizer {
	return &Normalizer{Stem: stem}
}

// Normalize joins pages and returns the normalized token string.
func (n *Normalizer) Normalize(pages []string) string {
	return strings.Join(n.Tokens(strings.Join(pages, " ")), " ")
}

// Tokens cleans text and splits it into normalized tokens.
func (n *Normalizer) Tokens(text string) []string {
	words := strings.FieldsFunc(Clean(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || r == '_')
	})

	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(w)
		if _, stop := stopWords[w]; stop {
			continue
		}
		if n.Stem {
			w = english.Stem(w, false)
		}
		if w == "" {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Clean keeps printable ASCII letters and whitespace. Punctuation and digits
// are dropped without inserting a separator, so "U.S." becomes "US".
func Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n' || r == '\t' || r == '\r' || r == '\f':
			b.WriteByte(' ')
		case r < 32 || r > 126:
			// non-printable or non-ASCII
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsDigit(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
