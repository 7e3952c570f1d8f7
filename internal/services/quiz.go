package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"flasharena/internal/grade"
	"flasharena/internal/models"
)

var (
	// ErrNoDueCards indicates that the deck has no cards ready to quiz.
	ErrNoDueCards = errors.New("no due cards")
	// ErrCardNotFound indicates the card does not exist.
	ErrCardNotFound = errors.New("card not found")
)

// QuizService grades submitted answers and schedules reviews with FSRS.
// Correct answers rate Good, partial credit rates Hard, misses rate Again.
type QuizService struct {
	db     *sql.DB
	params fsrs.Parameters
}

func NewQuizService(db *sql.DB) *QuizService {
	return &QuizService{db: db, params: fsrs.DefaultParam()}
}

const cardColumns = `id, deck_id, question, answer, due, stability, difficulty, elapsed_days,
		scheduled_days, reps, lapses, state, last_review, created_at, updated_at`

// NextCard returns the next card to quiz in a deck: the earliest due card, or
// the oldest card overall when nothing is due yet.
func (s *QuizService) NextCard(ctx context.Context, deckID int64) (*models.Card, error) {
	now := time.Now().UTC()

	card, err := s.fetchCard(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE deck_id = ? AND due IS NOT NULL AND due <= ?
		ORDER BY due ASC, id ASC
		LIMIT 1;
	`, deckID, now)
	if err == nil {
		return card, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	card, err = s.fetchCard(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE deck_id = ?
		ORDER BY due IS NULL DESC, due ASC, id ASC
		LIMIT 1;
	`, deckID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoDueCards
		}
		return nil, err
	}
	return card, nil
}

func (s *QuizService) fetchCard(ctx context.Context, query string, args ...any) (*models.Card, error) {
	return scanCard(s.db.QueryRowContext(ctx, query, args...))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.Card, error) {
	card := &models.Card{}
	if err := row.Scan(
		&card.ID,
		&card.DeckID,
		&card.Question,
		&card.Answer,
		&card.Due,
		&card.Stability,
		&card.Difficulty,
		&card.ElapsedDays,
		&card.ScheduledDays,
		&card.Reps,
		&card.Lapses,
		&card.State,
		&card.LastReview,
		&card.CreatedAt,
		&card.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return card, nil
}

// SubmitAnswer grades the answer against the card's canonical answer, records
// the attempt, and reschedules the card. A blank answer counts as skipped: it
// is recorded but the card's schedule is left untouched.
func (s *QuizService) SubmitAnswer(ctx context.Context, cardID int64, answer string) (*models.QuizAttempt, *models.Card, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	card, err := scanCard(tx.QueryRowContext(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE id = ?;
	`, cardID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrCardNotFound
		}
		return nil, nil, fmt.Errorf("load card %d: %w", cardID, err)
	}

	now := time.Now().UTC()
	skipped := strings.TrimSpace(answer) == ""
	result := grade.Match(card.Answer, answer)

	attempt := &models.QuizAttempt{
		CardID:    card.ID,
		Answer:    answer,
		Correct:   result.Correct,
		Partial:   result.Partial,
		Score:     result.Score,
		Skipped:   skipped,
		CreatedAt: now,
	}

	if !skipped {
		rating := ratingFor(result)
		attempt.Rating = int(rating)

		scheduling := s.params.Repeat(card.ToFSRSCard(), now)
		info, ok := scheduling[rating]
		if !ok {
			return nil, nil, fmt.Errorf("rating %d not supported", rating)
		}
		card.ApplyFSRSCard(info.Card)
		card.UpdatedAt = now

		if _, err = tx.ExecContext(ctx, `
			UPDATE cards
			SET due = ?, stability = ?, difficulty = ?, elapsed_days = ?, scheduled_days = ?,
			    reps = ?, lapses = ?, state = ?, last_review = ?, updated_at = ?
			WHERE id = ?;
		`,
			nullTimePtr(card.Due),
			card.Stability,
			card.Difficulty,
			card.ElapsedDays,
			card.ScheduledDays,
			card.Reps,
			card.Lapses,
			card.State,
			nullTimePtr(card.LastReview),
			card.UpdatedAt,
			card.ID,
		); err != nil {
			return nil, nil, fmt.Errorf("update card %d: %w", card.ID, err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO quiz_attempts (card_id, answer, correct, partial, score, rating, skipped, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?);
	`, attempt.CardID, attempt.Answer, attempt.Correct, attempt.Partial, attempt.Score, attempt.Rating, attempt.Skipped, now)
	if err != nil {
		return nil, nil, fmt.Errorf("insert quiz attempt: %w", err)
	}
	attempt.ID, _ = res.LastInsertId()

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit attempt: %w", err)
	}

	return attempt, card, nil
}

func ratingFor(result grade.Result) fsrs.Rating {
	switch {
	case result.Correct:
		return fsrs.Good
	case result.Partial:
		return fsrs.Hard
	default:
		return fsrs.Again
	}
}

// DeckStats reports quiz progress for a deck.
func (s *QuizService) DeckStats(ctx context.Context, deckID int64) (*models.DeckStats, error) {
	stats := &models.DeckStats{}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cards WHERE deck_id = ?;", deckID).Scan(&stats.Cards); err != nil {
		return nil, fmt.Errorf("count cards: %w", err)
	}

	now := time.Now().UTC()
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cards WHERE deck_id = ? AND due IS NOT NULL AND due <= ?;",
		deckID, now).Scan(&stats.Due); err != nil {
		return nil, fmt.Errorf("count due cards: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(a.correct), 0)
		FROM quiz_attempts a
		JOIN cards c ON c.id = a.card_id
		WHERE c.deck_id = ? AND a.skipped = 0;
	`, deckID).Scan(&stats.Attempts, &stats.Correct); err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}

	if stats.Attempts > 0 {
		stats.Accuracy = float64(stats.Correct) / float64(stats.Attempts)
	}
	return stats, nil
}

func nullTimePtr(t sql.NullTime) any {
	if t.Valid {
		return t.Time
	}
	return nil
}
