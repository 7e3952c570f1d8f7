package synth

import (
	"strings"
	"unicode"
)

// rule turns a text unit into a flashcard when its pattern applies. Rules are
// tried in an order determined by the generation parameters; the first rule
// that matches and applies wins the unit.
type rule interface {
	Match(u TextUnit) bool
	Apply(u TextUnit, p GenerationParams) (Flashcard, bool)
}

const blankMarker = "_____"

// stopwords are never selected as cloze terms.
var stopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true,
	"which": true, "their": true, "there": true, "these": true,
	"those": true, "where": true, "after": true, "before": true,
	"because": true, "while": true,
}

var copulas = []string{" is ", " are ", " refers to ", " means "}

// definitionRule handles "X is/refers to/means Y" and "X: Y" constructions.
// Highest priority; produces the most reliable cards.
type definitionRule struct{}

func (definitionRule) Match(u TextUnit) bool {
	_, _, ok := splitDefinition(u.Text)
	return ok
}

func (definitionRule) Apply(u TextUnit, p GenerationParams) (Flashcard, bool) {
	subject, answer, ok := splitDefinition(u.Text)
	if !ok {
		return Flashcard{}, false
	}
	answer = strings.TrimSpace(strings.TrimRight(answer, ".!?"))
	if p.Difficulty == DifficultyEasy {
		answer = firstClause(answer)
	}
	if answer == "" {
		return Flashcard{}, false
	}
	return Flashcard{
		Question: "What is " + questionSubject(subject) + "?",
		Answer:   answer,
	}, true
}

// splitDefinition returns the subject and remainder of a defining construction,
// preferring whichever separator occurs first.
func splitDefinition(text string) (subject, answer string, ok bool) {
	sepAt := -1
	sepLen := 0
	for _, cop := range copulas {
		if idx := strings.Index(text, cop); idx >= 0 && (sepAt < 0 || idx < sepAt) {
			sepAt, sepLen = idx, len(cop)
		}
	}
	if idx := strings.Index(text, ": "); idx >= 0 && (sepAt < 0 || idx < sepAt) {
		sepAt, sepLen = idx, 2
	}
	if sepAt < 0 {
		return "", "", false
	}

	subject = strings.TrimSpace(text[:sepAt])
	answer = strings.TrimSpace(text[sepAt+sepLen:])
	if subject == "" || answer == "" {
		return "", "", false
	}
	if n := len(strings.Fields(subject)); n > 8 {
		return "", "", false
	}
	return subject, answer, true
}

// questionSubject lowercases a sentence-initial capital so the subject reads
// naturally mid-question, leaving acronyms and proper-cased remainders alone.
func questionSubject(subject string) string {
	runes := []rune(subject)
	if len(runes) < 2 || !unicode.IsUpper(runes[0]) {
		return subject
	}
	first := strings.Fields(subject)[0]
	for _, r := range first[1:] {
		if unicode.IsUpper(r) {
			return subject
		}
	}
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

func firstClause(answer string) string {
	for _, sep := range []string{"; ", ", "} {
		if idx := strings.Index(answer, sep); idx > 0 {
			head := answer[:idx]
			if len(strings.Fields(head)) >= 3 {
				return head
			}
		}
	}
	return answer
}

// clozeRule blanks the most salient term in the unit.
type clozeRule struct{}

func (clozeRule) Match(u TextUnit) bool {
	_, pos := salientTerm(u.Text)
	return pos >= 0
}

func (clozeRule) Apply(u TextUnit, p GenerationParams) (Flashcard, bool) {
	term, pos := salientTerm(u.Text)
	if pos < 0 {
		return Flashcard{}, false
	}
	question := u.Text[:pos] + blankMarker + u.Text[pos+len(term):]
	return Flashcard{Question: question, Answer: term}, true
}

// salientTerm picks the word to blank: a capitalized term past the sentence
// start if one exists, otherwise the longest non-stopword token. Ties break
// toward the first occurrence. Returns pos -1 when nothing qualifies.
func salientTerm(text string) (string, int) {
	type candidate struct {
		word string
		pos  int
	}
	var all, proper []candidate
	for _, c := range wordTokens(text) {
		if stopwords[strings.ToLower(c.word)] {
			continue
		}
		cand := candidate{c.word, c.pos}
		all = append(all, cand)
		if c.pos > 0 && unicode.IsUpper([]rune(c.word)[0]) {
			proper = append(proper, cand)
		}
	}

	longest := func(cands []candidate) (string, int) {
		best := -1
		for i, c := range cands {
			if best < 0 || len(c.word) > len(cands[best].word) {
				best = i
			}
		}
		if best < 0 {
			return "", -1
		}
		return cands[best].word, cands[best].pos
	}

	if word, pos := longest(proper); pos >= 0 {
		return word, pos
	}
	return longest(all)
}

type wordToken struct {
	word string
	pos  int
}

// wordTokens finds maskable words: 4+ letters, allowing internal hyphens and
// apostrophes.
func wordTokens(text string) []wordToken {
	var tokens []wordToken
	i := 0
	for i < len(text) {
		r := rune(text[i])
		if !isASCIILetter(r) {
			i++
			continue
		}
		start := i
		i++
		for i < len(text) {
			r := rune(text[i])
			if isASCIILetter(r) || r == '\'' || r == '-' {
				i++
				continue
			}
			break
		}
		word := strings.TrimRight(text[start:i], "'-")
		if len(word) >= 4 {
			tokens = append(tokens, wordToken{word: word, pos: start})
		}
	}
	return tokens
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// recallRule is the last resort: it can always produce a card from a
// non-trivial unit, so synthesis never fails outright on unstructured text.
type recallRule struct{}

const recallPromptLimit = 80

func (recallRule) Match(u TextUnit) bool {
	return u.Text != ""
}

func (recallRule) Apply(u TextUnit, p GenerationParams) (Flashcard, bool) {
	answer := strings.TrimSpace(strings.TrimRight(u.Text, "."))
	if answer == "" {
		return Flashcard{}, false
	}
	prompt := clipWords(u.Text, recallPromptLimit)
	return Flashcard{
		Question: "What does the following describe: " + prompt + "?",
		Answer:   answer,
	}, true
}

// clipWords shortens s to at most limit runes, cutting on a word boundary.
func clipWords(s string, limit int) string {
	s = strings.TrimRight(s, ".!?")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	head := string(runes[:limit])
	if cut := strings.LastIndex(head, " "); cut > 0 {
		head = head[:cut]
	}
	return strings.TrimRight(head, " ,;:") + "..."
}
