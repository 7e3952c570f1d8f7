package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"flasharena/internal/synth"
)

var (
	// ErrAIUnavailable is returned when the OpenAI integration is not configured.
	ErrAIUnavailable = errors.New("openai integration is not configured")
)

// maxPromptChars bounds how much document text a single request carries.
const maxPromptChars = 24000

type AIService struct {
	client *openai.Client
	model  string
}

func NewAIService(apiKey, model, apiEndpoint string) *AIService {
	if apiKey == "" {
		return &AIService{}
	}
	cfg := openai.DefaultConfig(apiKey)
	if apiEndpoint != "" {
		cfg.BaseURL = apiEndpoint
	}
	return &AIService{client: openai.NewClientWithConfig(cfg), model: model}
}

func (s *AIService) disabled() bool {
	return s.client == nil || s.model == ""
}

type cardExtraction struct {
	Cards []synth.Flashcard `json:"cards"`
}

// GenerateFlashcards asks the model for question/answer pairs over the given
// text. Output uses the same card shape as the heuristic synthesizer so
// callers never care which path produced a deck.
func (s *AIService) GenerateFlashcards(ctx context.Context, text string, params synth.GenerationParams) ([]synth.Flashcard, error) {
	if s.disabled() {
		return nil, ErrAIUnavailable
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	instruction := fmt.Sprintf(`Strictly respond with a JSON object {"cards":[{"q":"","a":""}]}. `+
		`Create at most %d flashcards at %s difficulty in the %s style from the text below. `+
		`Ensure flashcards are atomic, unambiguous, and use active recall. `+
		`Answers must be concise enough to type in a quiz.`,
		params.Count, params.Difficulty, params.Style)

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert educator who turns study material into precise quiz flashcards.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: instruction + "\n\nText:\n" + clipForPrompt(text, maxPromptChars),
			},
		},
		Temperature: 0.4,
		MaxTokens:   4096,
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("request openai flashcards: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	var extraction cardExtraction
	jsonStr := extractJSON(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(jsonStr), &extraction); err != nil {
		// Log the raw response for debugging
		fmt.Fprintf(os.Stderr, "Failed to unmarshal flashcards. Raw response:\n%s\n", resp.Choices[0].Message.Content)
		return nil, fmt.Errorf("unmarshal flashcard json: %w", err)
	}

	cards := make([]synth.Flashcard, 0, len(extraction.Cards))
	for _, card := range extraction.Cards {
		card.Question = strings.TrimSpace(card.Question)
		card.Answer = strings.TrimSpace(card.Answer)
		if card.Question == "" || card.Answer == "" {
			continue
		}
		cards = append(cards, card)
		if len(cards) >= params.Count {
			break
		}
	}
	return cards, nil
}

// extractJSON removes markdown code block formatting if present and extracts the JSON
func extractJSON(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		start := 3
		if newlineIdx := strings.Index(content[start:], "\n"); newlineIdx != -1 {
			start += newlineIdx + 1
		}
		if endIdx := strings.Index(content[start:], "```"); endIdx != -1 {
			content = content[start : start+endIdx]
		} else {
			content = content[start:]
		}
	}

	content = strings.TrimSpace(content)

	// Additional safety: find the first { and last } to extract just the JSON object
	if startIdx := strings.Index(content, "{"); startIdx != -1 {
		if endIdx := strings.LastIndex(content, "}"); endIdx != -1 && endIdx > startIdx {
			content = content[startIdx : endIdx+1]
		}
	}

	return strings.TrimSpace(content)
}

func clipForPrompt(text string, limit int) string {
	collapsed := strings.TrimSpace(text)
	runes := []rune(collapsed)
	if len(runes) <= limit {
		return collapsed
	}
	return string(runes[:limit])
}
