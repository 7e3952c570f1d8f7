package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"flasharena/internal/models"
	"flasharena/internal/synth"
)

func seedDeck(t *testing.T, conn *sql.DB) *models.Deck {
	t.Helper()
	deck, err := NewDeckService(conn).CreateDeck(context.Background(), "test", models.DeckSourceHeuristic, []synth.Flashcard{
		{Question: "What is photosynthesis?", Answer: "the process by which plants convert light into energy"},
		{Question: "Water boils at 100 degrees _____.", Answer: "Celsius"},
	})
	if err != nil {
		t.Fatalf("create deck: %v", err)
	}
	return deck
}

func TestNextCardReturnsDueCard(t *testing.T) {
	conn := newTestDB(t)
	deck := seedDeck(t, conn)
	quiz := NewQuizService(conn)

	card, err := quiz.NextCard(context.Background(), deck.ID)
	if err != nil {
		t.Fatalf("next card: %v", err)
	}
	if card.DeckID != deck.ID {
		t.Errorf("card from wrong deck: %+v", card)
	}
}

func TestNextCardEmptyDeck(t *testing.T) {
	conn := newTestDB(t)
	quiz := NewQuizService(conn)

	_, err := quiz.NextCard(context.Background(), 9999)
	if err != ErrNoDueCards {
		t.Errorf("expected ErrNoDueCards, got %v", err)
	}
}

func TestSubmitAnswerCorrect(t *testing.T) {
	conn := newTestDB(t)
	deck := seedDeck(t, conn)
	quiz := NewQuizService(conn)

	card, err := quiz.NextCard(context.Background(), deck.ID)
	if err != nil {
		t.Fatalf("next card: %v", err)
	}

	attempt, updated, err := quiz.SubmitAnswer(context.Background(), card.ID, card.Answer)
	if err != nil {
		t.Fatalf("submit answer: %v", err)
	}
	if !attempt.Correct || attempt.Score != 1 {
		t.Errorf("expected full credit, got %+v", attempt)
	}
	if attempt.Rating != int(fsrs.Good) {
		t.Errorf("expected Good rating, got %d", attempt.Rating)
	}
	if updated.Reps != 1 {
		t.Errorf("expected one rep recorded, got %d", updated.Reps)
	}
	if !updated.Due.Valid || !updated.Due.Time.After(time.Now().UTC()) {
		t.Errorf("expected future due date, got %+v", updated.Due)
	}
}

func TestSubmitAnswerIncorrect(t *testing.T) {
	conn := newTestDB(t)
	deck := seedDeck(t, conn)
	quiz := NewQuizService(conn)

	card, err := quiz.NextCard(context.Background(), deck.ID)
	if err != nil {
		t.Fatalf("next card: %v", err)
	}

	attempt, _, err := quiz.SubmitAnswer(context.Background(), card.ID, "something else entirely")
	if err != nil {
		t.Fatalf("submit answer: %v", err)
	}
	if attempt.Correct {
		t.Errorf("expected incorrect verdict: %+v", attempt)
	}
	if attempt.Rating != int(fsrs.Again) {
		t.Errorf("expected Again rating, got %d", attempt.Rating)
	}
}

func TestSubmitAnswerBlankIsSkipped(t *testing.T) {
	conn := newTestDB(t)
	deck := seedDeck(t, conn)
	quiz := NewQuizService(conn)

	card, err := quiz.NextCard(context.Background(), deck.ID)
	if err != nil {
		t.Fatalf("next card: %v", err)
	}

	attempt, updated, err := quiz.SubmitAnswer(context.Background(), card.ID, "   ")
	if err != nil {
		t.Fatalf("submit answer: %v", err)
	}
	if !attempt.Skipped || attempt.Correct || attempt.Score != 0 {
		t.Errorf("expected skipped zero-score attempt, got %+v", attempt)
	}
	if updated.Reps != 0 {
		t.Errorf("skip should not touch the schedule, got %d reps", updated.Reps)
	}
}

func TestSubmitAnswerUnknownCard(t *testing.T) {
	conn := newTestDB(t)
	quiz := NewQuizService(conn)

	_, _, err := quiz.SubmitAnswer(context.Background(), 424242, "answer")
	if err != ErrCardNotFound {
		t.Errorf("expected ErrCardNotFound, got %v", err)
	}
}

func TestDeckStats(t *testing.T) {
	conn := newTestDB(t)
	deck := seedDeck(t, conn)
	quiz := NewQuizService(conn)
	ctx := context.Background()

	_, cards, err := NewDeckService(conn).GetDeck(ctx, deck.ID)
	if err != nil {
		t.Fatalf("get deck: %v", err)
	}

	if _, _, err := quiz.SubmitAnswer(ctx, cards[0].ID, cards[0].Answer); err != nil {
		t.Fatalf("submit correct answer: %v", err)
	}
	if _, _, err := quiz.SubmitAnswer(ctx, cards[1].ID, "wrong"); err != nil {
		t.Fatalf("submit wrong answer: %v", err)
	}
	if _, _, err := quiz.SubmitAnswer(ctx, cards[1].ID, ""); err != nil {
		t.Fatalf("submit skip: %v", err)
	}

	stats, err := quiz.DeckStats(ctx, deck.ID)
	if err != nil {
		t.Fatalf("deck stats: %v", err)
	}
	if stats.Cards != 2 {
		t.Errorf("expected 2 cards, got %d", stats.Cards)
	}
	if stats.Attempts != 2 {
		t.Errorf("skipped attempts should not count, got %d", stats.Attempts)
	}
	if stats.Correct != 1 {
		t.Errorf("expected 1 correct, got %d", stats.Correct)
	}
	if stats.Accuracy != 0.5 {
		t.Errorf("expected accuracy 0.5, got %v", stats.Accuracy)
	}
}
