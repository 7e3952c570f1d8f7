// Package grade scores a free-text quiz answer against the canonical answer.
// Matching is tolerant of case, whitespace, punctuation, leading articles, and
// minor typos, and compares numbers numerically. It is deterministic and never
// fails on malformed input.
package grade

import (
	"math"
	"strconv"
	"strings"
)

// Result is the verdict for a single submitted answer.
type Result struct {
	Correct bool    `json:"correct"`
	Partial bool    `json:"partial"`
	Score   float64 `json:"score"`
}

const (
	correctThreshold = 0.75
	partialThreshold = 0.5

	// Fuzzy (non-exact) credit requires a canonical of at least this many
	// normalized characters; very short answers must match exactly.
	minFuzzyLength = 5

	// Relative numeric tolerance, with an absolute floor so comparisons
	// against zero do not demand exact equality.
	numericTolerance = 1e-3
	numericFloor     = 1e-9
)

var articles = map[string]bool{"a": true, "an": true, "the": true}

// Match grades candidate against canonical. An empty or whitespace-only
// candidate is treated as unanswered and scores zero.
func Match(canonical, candidate string) Result {
	goldRaw := strings.TrimSpace(canonical)
	userRaw := strings.TrimSpace(candidate)

	// Numeric canonicals compare numerically so "3.0" never loses to "3".
	if goldNum, err := strconv.ParseFloat(goldRaw, 64); err == nil {
		if userRaw == "" {
			return Result{}
		}
		if userNum, err := strconv.ParseFloat(userRaw, 64); err == nil {
			if numbersEqual(goldNum, userNum) {
				return Result{Correct: true, Score: 1}
			}
			return Result{}
		}
		// Non-numeric candidate falls through to lexical comparison.
	}

	gold := normalize(canonical)
	user := normalize(candidate)
	if gold == "" || user == "" {
		return Result{}
	}
	if gold == user {
		return Result{Correct: true, Score: 1}
	}

	score := similarity(gold, user)
	switch {
	case score >= correctThreshold && len(gold) >= minFuzzyLength:
		return Result{Correct: true, Score: score}
	case score >= partialThreshold:
		return Result{Partial: true, Score: score}
	default:
		return Result{Score: score}
	}
}

// normalize lowercases, maps punctuation to spaces, collapses whitespace, and
// drops leading/trailing articles.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	fields := strings.Fields(b.String())
	for len(fields) > 0 && articles[fields[0]] {
		fields = fields[1:]
	}
	for len(fields) > 0 && articles[fields[len(fields)-1]] {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

func numbersEqual(a, b float64) bool {
	tolerance := math.Max(numericTolerance*math.Max(math.Abs(a), math.Abs(b)), numericFloor)
	return math.Abs(a-b) <= tolerance
}

// similarity is the better of token overlap and normalized edit distance,
// bounded to [0,1]. Token overlap credits paraphrases that reorder words;
// edit distance credits near-miss spellings.
func similarity(a, b string) float64 {
	overlap := tokenOverlap(strings.Fields(a), strings.Fields(b))
	edit := 1 - float64(levenshtein(a, b))/float64(maxInt(len(a), len(b)))
	return math.Max(overlap, math.Max(edit, 0))
}

// tokenOverlap is the Jaccard ratio of shared tokens to the token union.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, tok := range a {
		setA[tok] = true
	}
	union := len(setA)
	shared := 0
	seenB := make(map[string]bool, len(b))
	for _, tok := range b {
		if seenB[tok] {
			continue
		}
		seenB[tok] = true
		if setA[tok] {
			shared++
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}

// levenshtein computes edit distance over runes with a two-row table.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, minInt(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
