// Package textnorm folds transcripts into a canonical comparable form:
// lower case, accents stripped, punctuation removed, whitespace collapsed.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s and strips combining accents ("Écoute" → "ecoute").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Normalize folds s and replaces every run of non-alphanumeric runes with a
// single space. Apostrophes inside words are dropped ("don't" → "dont").
func Normalize(s string) string {
	return strings.Join(Tokens(s), " ")
}

// Tokens returns the normalized words of s.
func Tokens(s string) []string {
	folded := strings.Map(func(r rune) rune {
		if r == '\'' || r == '’' {
			return -1
		}
		return r
	}, Fold(s))
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Word normalizes a single token; the empty string means it was punctuation.
func Word(s string) string {
	return strings.Join(Tokens(s), "")
}
