// Package synth derives flashcards from raw document text with deterministic,
// rule-based heuristics. It is the generation path used when the AI
// integration is unavailable or skipped: same inputs, same cards, every time.
package synth

import (
	"fmt"
	"strings"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

type Style string

const (
	StyleDefinition Style = "definition"
	StyleCloze      Style = "cloze"
	StyleMixed      Style = "mixed"
)

// MaxCards caps how many cards a single request may ask for.
const MaxCards = 50

// GenerationParams controls how many cards to produce and which rules apply.
type GenerationParams struct {
	Count      int
	Difficulty Difficulty
	Style      Style
}

// Validate rejects structural parameter errors before synthesis begins.
// Out-of-range values are never silently defaulted.
func (p GenerationParams) Validate() error {
	if p.Count <= 0 {
		return fmt.Errorf("count must be positive, got %d", p.Count)
	}
	switch p.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return fmt.Errorf("unknown difficulty %q", p.Difficulty)
	}
	switch p.Style {
	case StyleDefinition, StyleCloze, StyleMixed:
	default:
		return fmt.Errorf("unknown style %q", p.Style)
	}
	return nil
}

func (p GenerationParams) clamped() GenerationParams {
	if p.Count > MaxCards {
		p.Count = MaxCards
	}
	return p
}

// Flashcard is a single question/answer pair. The JSON shape matches what the
// AI generation path produces, so consumers never care which path made it.
type Flashcard struct {
	Question string `json:"q"`
	Answer   string `json:"a"`
}

// Synthesize produces at most params.Count cards from the given units.
// Units that match no eligible rule are skipped; producing fewer cards than
// requested, or none at all, is a valid outcome rather than an error.
func Synthesize(units []TextUnit, params GenerationParams) ([]Flashcard, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	params = params.clamped()

	rules := rulesFor(params)
	seen := make(map[string]bool)
	var cards []Flashcard
	for _, unit := range units {
		if len(cards) >= params.Count {
			break
		}
		for _, r := range rules {
			if !r.Match(unit) {
				continue
			}
			card, ok := r.Apply(unit, params)
			if !ok || card.Question == "" || card.Answer == "" {
				continue
			}
			key := dedupKey(card)
			if !seen[key] {
				seen[key] = true
				cards = append(cards, card)
			}
			break
		}
	}
	return cards, nil
}

// rulesFor orders the candidate rules. Style narrows eligibility outright;
// difficulty reorders preference within the mixed style: easy sticks to
// definition-shaped cards, hard leads with cloze and recall.
func rulesFor(p GenerationParams) []rule {
	switch p.Style {
	case StyleDefinition:
		return []rule{definitionRule{}}
	case StyleCloze:
		return []rule{clozeRule{}}
	}
	switch p.Difficulty {
	case DifficultyEasy:
		return []rule{definitionRule{}, recallRule{}}
	case DifficultyHard:
		return []rule{clozeRule{}, recallRule{}, definitionRule{}}
	default:
		return []rule{definitionRule{}, clozeRule{}, recallRule{}}
	}
}

func dedupKey(card Flashcard) string {
	q := strings.Join(strings.Fields(strings.ToLower(card.Question)), " ")
	a := strings.Join(strings.Fields(strings.ToLower(card.Answer)), " ")
	return q + "\x00" + a
}
