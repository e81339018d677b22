// Package wakeword detects a configured wake phrase at the start of a
// transcript.
//
// Matching is done on normalized tokens. An exact prefix match against the
// phrase or one of its configured variants wins; otherwise a phonetic match
// is tried so that transcription slips ("hey harken", "hey her ken") still
// trigger. The phonetic check pairs Double Metaphone codes with a
// Jaro-Winkler floor.
package wakeword

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/hearken/internal/textnorm"
)

const defaultPhoneticThreshold = 0.80

// Match is the result of Detect.
type Match struct {
	Found bool

	// Phrase is the configured phrase that matched.
	Phrase string

	// Remainder is the original text following the wake phrase, with
	// leading punctuation trimmed.
	Remainder string

	// Phonetic is true when only the phonetic matcher fired.
	Phonetic bool

	// Score is 1 for exact matches, else the Jaro-Winkler similarity.
	Score float64
}

// Option configures a [Detector].
type Option func(*Detector)

// WithVariants adds alternative spellings that count as exact matches.
func WithVariants(variants ...string) Option {
	return func(d *Detector) {
		for _, v := range variants {
			if toks := textnorm.Tokens(v); len(toks) > 0 {
				d.variants = append(d.variants, toks)
			}
		}
	}
}

// WithPhoneticThreshold sets the Jaro-Winkler floor for phonetic matches.
func WithPhoneticThreshold(threshold float64) Option {
	return func(d *Detector) { d.threshold = threshold }
}

// Detector finds wake phrases. Safe for concurrent use after construction.
type Detector struct {
	phrases   []phrase
	variants  [][]string
	threshold float64
}

type phrase struct {
	raw    string
	tokens []string
	codes  map[string]struct{}
	joined string
}

// New returns a detector for phrases.
func New(phrases []string, opts ...Option) *Detector {
	d := &Detector{threshold: defaultPhoneticThreshold}
	for _, p := range phrases {
		toks := textnorm.Tokens(p)
		if len(toks) == 0 {
			continue
		}
		joined := strings.Join(toks, "")
		d.phrases = append(d.phrases, phrase{raw: p, tokens: toks, codes: codes(joined), joined: joined})
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect reports whether text starts with a wake phrase.
func (d *Detector) Detect(text string) Match {
	words := strings.Fields(text)
	norm := make([]string, 0, len(words))
	index := make([]int, 0, len(words)) // norm position → words position
	for i, w := range words {
		for _, tok := range textnorm.Tokens(w) {
			norm = append(norm, tok)
			index = append(index, i)
		}
	}
	if len(norm) == 0 {
		return Match{}
	}

	for _, p := range d.phrases {
		if hasPrefix(norm, p.tokens) {
			return d.match(p.raw, words, norm, index, len(p.tokens), false, 1)
		}
	}
	for _, v := range d.variants {
		if hasPrefix(norm, v) {
			return d.match(d.primary(), words, norm, index, len(v), false, 1)
		}
	}

	var (
		best      Match
		bestWidth int
	)
	for _, p := range d.phrases {
		for _, n := range []int{len(p.tokens), len(p.tokens) + 1, len(p.tokens) - 1} {
			if n <= 0 || n > len(norm) {
				continue
			}
			cand := strings.Join(norm[:n], "")
			if !overlap(codes(cand), p.codes) {
				continue
			}
			if s := matchr.JaroWinkler(cand, p.joined, false); s >= d.threshold && s > best.Score {
				best = Match{Found: true, Phrase: p.raw, Phonetic: true, Score: s}
				bestWidth = n
			}
		}
	}
	if best.Found {
		return d.match(best.Phrase, words, norm, index, bestWidth, true, best.Score)
	}
	return Match{}
}

func (d *Detector) primary() string {
	if len(d.phrases) == 0 {
		return ""
	}
	return d.phrases[0].raw
}

// match builds the result for a prefix of width normalized tokens.
func (d *Detector) match(phrase string, words, norm []string, index []int, width int, phonetic bool, score float64) Match {
	var rest string
	if width < len(norm) {
		start := index[width]
		tail := words[start:]
		if start == index[width-1] {
			// "Hearken,remind" holds the end of the phrase and the start of
			// the command; keep the word from the first unmatched token on.
			used := 0
			for j := width - 1; j >= 0 && index[j] == start; j-- {
				used++
			}
			tail = append([]string{afterTokens(words[start], used)}, words[start+1:]...)
		}
		rest = strings.Join(tail, " ")
	}
	rest = strings.TrimLeftFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return Match{Found: true, Phrase: phrase, Remainder: rest, Phonetic: phonetic, Score: score}
}

// afterTokens returns word from the start of its (n+1)th token, using the
// same token boundaries as [textnorm.Tokens].
func afterTokens(word string, n int) string {
	inToken := false
	seen := 0
	for i, r := range word {
		tok := unicode.IsLetter(r) || unicode.IsDigit(r) ||
			inToken && (unicode.Is(unicode.Mn, r) || r == '\'' || r == '’')
		if tok && !inToken {
			if seen == n {
				return word[i:]
			}
			seen++
		}
		inToken = tok
	}
	return ""
}

func hasPrefix(toks, prefix []string) bool {
	if len(prefix) > len(toks) {
		return false
	}
	for i, p := range prefix {
		if toks[i] != p {
			return false
		}
	}
	return true
}

func codes(word string) map[string]struct{} {
	out := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		out[p] = struct{}{}
	}
	if s != "" {
		out[s] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) bool {
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// DetectPrefix is Detect reduced to the found flag and the remainder.
func (d *Detector) DetectPrefix(text string) (bool, string) {
	m := d.Detect(text)
	return m.Found, m.Remainder
}
