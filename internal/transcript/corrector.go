// Package transcript cleans up recognized speech before it is persisted or
// indexed.
//
// Speech recognition regularly mangles proper nouns the model has never
// seen, so a configured hotword vocabulary (product names, people, places)
// is aligned against each final transcript. Alignment is two-stage: Double
// Metaphone codes select phonetic candidates, Jaro-Winkler similarity on
// the raw strings ranks them. Words that sound like a hotword and score
// above the threshold are replaced with the canonical spelling.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.88
)

// Correction records one replaced word.
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
}

// Option configures a Corrector.
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a word that
// phonetically matches a hotword to be replaced.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a replacement
// when no phonetic code overlaps, catching near-exact spellings.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.fuzzyThreshold = threshold
	}
}

// Corrector aligns transcripts against a fixed hotword vocabulary.
// It is read-only after construction and safe for concurrent use.
type Corrector struct {
	hotwords          []hotword
	phoneticThreshold float64
	fuzzyThreshold    float64
}

type hotword struct {
	canonical string
	lower     string
	codes     map[string]struct{}
}

// New builds a Corrector for the given vocabulary. Blank entries are
// dropped. A Corrector with an empty vocabulary passes text through.
func New(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	for _, word := range vocabulary {
		canonical := strings.TrimSpace(word)
		if canonical == "" {
			continue
		}
		lower := strings.ToLower(canonical)
		c.hotwords = append(c.hotwords, hotword{
			canonical: canonical,
			lower:     lower,
			codes:     metaphoneCodes(strings.Fields(lower)),
		})
	}
	return c
}

// Correct returns text with misheard hotwords replaced by their canonical
// spelling, plus the list of replacements made. Tokens that already match
// a hotword exactly (ignoring case) are left alone.
func (c *Corrector) Correct(text string) (string, []Correction) {
	if len(c.hotwords) == 0 || strings.TrimSpace(text) == "" {
		return text, nil
	}

	tokens := strings.Fields(text)
	var corrections []Correction

	for i, token := range tokens {
		core, prefix, suffix := trimPunct(token)
		if core == "" {
			continue
		}
		replacement, confidence, ok := c.match(core)
		if !ok {
			continue
		}
		tokens[i] = prefix + replacement + suffix
		corrections = append(corrections, Correction{
			Original:   core,
			Corrected:  replacement,
			Confidence: confidence,
		})
	}

	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(tokens, " "), corrections
}

// match tests one token against the vocabulary and returns the best
// replacement above threshold, if any.
func (c *Corrector) match(token string) (string, float64, bool) {
	lower := strings.ToLower(token)
	codes := metaphoneCodes([]string{lower})

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)

	for _, hw := range c.hotwords {
		if lower == hw.lower {
			return "", 0, false
		}
		score := matchr.JaroWinkler(lower, hw.lower, false)
		if codesOverlap(codes, hw.codes) {
			if score >= c.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = hw.canonical, score, true
			}
		} else if !bestPhonetic && score >= c.fuzzyThreshold && score > bestScore {
			best, bestScore = hw.canonical, score
		}
	}
	return best, bestScore, best != ""
}

// metaphoneCodes returns the union of Double Metaphone codes for the tokens.
// Empty codes are excluded.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// trimPunct splits leading and trailing punctuation off a token so that
// "Xylos," still matches the hotword "Xylos".
func trimPunct(token string) (core, prefix, suffix string) {
	start := 0
	for start < len(token) && isPunct(token[start]) {
		start++
	}
	end := len(token)
	for end > start && isPunct(token[end-1]) {
		end--
	}
	return token[start:end], token[:start], token[end:]
}

func isPunct(b byte) bool {
	switch b {
	case '.', ',', '!', '?', ';', ':', '"', '\'', '(', ')':
		return true
	}
	return false
}
