package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"flasharena/internal/models"
	"flasharena/internal/synth"
)

// ErrDeckNotFound indicates the requested deck does not exist.
var ErrDeckNotFound = errors.New("deck not found")

type DeckService struct {
	db *sql.DB
}

func NewDeckService(db *sql.DB) *DeckService {
	return &DeckService{db: db}
}

// CreateDeck persists a generated deck and its cards in one transaction.
// Cards start in the FSRS "new" state, due immediately.
func (s *DeckService) CreateDeck(ctx context.Context, name, source string, cards []synth.Flashcard) (_ *models.Deck, err error) {
	if len(cards) == 0 {
		return nil, errors.New("no cards to save")
	}
	name = strings.TrimSpace(name)
	now := time.Now().UTC()
	if name == "" {
		name = now.Format("deck_20060102_150405")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO decks (name, source, created_at) VALUES (?, ?, ?);
	`, name, source, now)
	if err != nil {
		return nil, fmt.Errorf("insert deck: %w", err)
	}
	deckID, _ := res.LastInsertId()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cards (deck_id, question, answer, due, stability, difficulty, elapsed_days,
		                   scheduled_days, reps, lapses, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, 0, 0, 0, 0, 0, ?, ?, ?);
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare card insert: %w", err)
	}
	defer stmt.Close()

	for _, card := range cards {
		if _, err = stmt.ExecContext(ctx, deckID, card.Question, card.Answer, now, int(fsrs.New), now, now); err != nil {
			return nil, fmt.Errorf("insert card %q: %w", card.Question, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit deck: %w", err)
	}

	return &models.Deck{
		ID:        deckID,
		Name:      name,
		Source:    source,
		CardCount: len(cards),
		CreatedAt: now,
	}, nil
}

// ListDecks returns all decks, newest first.
func (s *DeckService) ListDecks(ctx context.Context) ([]models.Deck, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.name, d.source, d.created_at, COUNT(c.id)
		FROM decks d
		LEFT JOIN cards c ON c.deck_id = d.id
		GROUP BY d.id
		ORDER BY d.created_at DESC, d.id DESC;
	`)
	if err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	defer rows.Close()

	var decks []models.Deck
	for rows.Next() {
		var deck models.Deck
		if err := rows.Scan(&deck.ID, &deck.Name, &deck.Source, &deck.CreatedAt, &deck.CardCount); err != nil {
			return nil, fmt.Errorf("scan deck: %w", err)
		}
		decks = append(decks, deck)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decks: %w", err)
	}
	return decks, nil
}

// GetDeck returns a deck and its cards in insertion order.
func (s *DeckService) GetDeck(ctx context.Context, id int64) (*models.Deck, []models.Card, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, source, created_at FROM decks WHERE id = ?;
	`, id)
	var deck models.Deck
	if err := row.Scan(&deck.ID, &deck.Name, &deck.Source, &deck.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, ErrDeckNotFound
		}
		return nil, nil, fmt.Errorf("scan deck: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, deck_id, question, answer, due, stability, difficulty, elapsed_days,
		       scheduled_days, reps, lapses, state, last_review, created_at, updated_at
		FROM cards WHERE deck_id = ? ORDER BY id ASC;
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("list deck cards: %w", err)
	}
	defer rows.Close()

	var cards []models.Card
	for rows.Next() {
		var card models.Card
		if err := rows.Scan(
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
			return nil, nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate cards: %w", err)
	}

	deck.CardCount = len(cards)
	return &deck, cards, nil
}
