package synth

import (
	"strings"
	"unicode"
)

// TextUnit is a single sentence-sized candidate extracted from source text.
// Index preserves source order; Text is the trimmed, whitespace-collapsed form.
type TextUnit struct {
	Raw   string
	Text  string
	Index int
}

const (
	minMeaningfulWords = 3
	maxUnitLength      = 240
)

// Segment splits raw document text into an ordered sequence of candidate units.
// Identical input always yields an identical sequence.
func Segment(text string) []TextUnit {
	cleaned := normalizeText(text)
	if cleaned == "" {
		return nil
	}

	var units []TextUnit
	for _, raw := range splitSentences(cleaned) {
		trimmed := strings.TrimSpace(raw)
		if !informative(trimmed) {
			continue
		}
		units = append(units, TextUnit{
			Raw:   raw,
			Text:  trimmed,
			Index: len(units),
		})
	}
	return units
}

// normalizeText repairs PDF extraction artifacts before splitting: hyphenation
// line breaks are rejoined and all whitespace runs collapse to single spaces.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(text))
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '-' && i+1 < len(runes) && runes[i+1] == '\n' &&
			i > 0 && unicode.IsLetter(runes[i-1]) {
			// "exam-\nple" -> "example"
			i++
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
			}
			continue
		}
		b.WriteRune(r)
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// splitSentences breaks normalized text at terminal punctuation followed by a
// space. Periods that end initials ("J. Smith") or sit between digits are not
// treated as boundaries.
func splitSentences(text string) []string {
	runes := []rune(text)
	var parts []string
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if runes[i+1] != ' ' {
			continue
		}
		if r == '.' && !periodEndsSentence(runes, i) {
			continue
		}
		parts = append(parts, string(runes[start:i+1]))
		start = i + 2
	}
	if start < len(runes) {
		parts = append(parts, string(runes[start:]))
	}
	return parts
}

func periodEndsSentence(runes []rune, i int) bool {
	// A period after a single uppercase letter is an initial or abbreviation.
	if i >= 1 && unicode.IsUpper(runes[i-1]) && (i == 1 || !unicode.IsLetter(runes[i-2])) {
		return false
	}
	// A digit on both sides means a number broken up by extraction artifacts.
	if i >= 1 && unicode.IsDigit(runes[i-1]) && i+2 < len(runes) && unicode.IsDigit(runes[i+2]) {
		return false
	}
	return true
}

// informative rejects units too short to yield a useful question.
func informative(s string) bool {
	if s == "" || len(s) > maxUnitLength {
		return false
	}
	words := 0
	for _, field := range strings.Fields(s) {
		letters := 0
		for _, r := range field {
			if unicode.IsLetter(r) {
				letters++
			}
		}
		if letters >= 4 {
			words++
		}
		if words >= minMeaningfulWords {
			return true
		}
	}
	return false
}
