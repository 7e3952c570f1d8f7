package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"flasharena/internal/models"
	"flasharena/internal/synth"
)

// ProgressCallback is called during document processing to report progress.
type ProgressCallback func(step, message string, current, total int)

// cardGenerator is the AI generation path. GenerationService falls back to the
// deterministic synthesizer whenever this path is unconfigured or fails.
type cardGenerator interface {
	GenerateFlashcards(ctx context.Context, text string, params synth.GenerationParams) ([]synth.Flashcard, error)
}

// GenerationService turns extracted text into a persisted deck of flashcards.
type GenerationService struct {
	ai    cardGenerator
	decks *DeckService
}

func NewGenerationService(ai cardGenerator, decks *DeckService) *GenerationService {
	return &GenerationService{ai: ai, decks: decks}
}

// GenerationResult reports the produced deck and which path produced it.
// Deck is nil when no cards could be generated; callers decide how to surface
// that, it is not an error here.
type GenerationResult struct {
	Deck   *models.Deck
	Cards  []synth.Flashcard
	Source string
}

// Generate validates params, runs the AI path with heuristic fallback, and
// persists any resulting cards as a new deck.
func (s *GenerationService) Generate(ctx context.Context, name, text string, params synth.GenerationParams, progress ProgressCallback) (*GenerationResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)

	if progress != nil {
		progress("generate", "Generating flashcards", 10, 100)
	}

	source := models.DeckSourceAI
	cards, err := s.ai.GenerateFlashcards(ctx, text, params)
	if err != nil {
		if !errors.Is(err, ErrAIUnavailable) {
			log.Printf("ai generation failed, using heuristic synthesizer: %v", err)
		}
		source = models.DeckSourceHeuristic
		cards, err = synth.Synthesize(synth.Segment(text), params)
		if err != nil {
			return nil, err
		}
	}

	if len(cards) == 0 {
		return &GenerationResult{Source: source}, nil
	}

	if progress != nil {
		progress("save", "Saving deck", 80, 100)
	}

	deck, err := s.decks.CreateDeck(ctx, name, source, cards)
	if err != nil {
		return nil, err
	}

	if progress != nil {
		progress("complete", "Processing complete", 100, 100)
	}

	return &GenerationResult{Deck: deck, Cards: cards, Source: source}, nil
}
