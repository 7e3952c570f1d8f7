package models

import (
	"database/sql"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"
)

// Document is an uploaded source file after text extraction.
type Document struct {
	ID           int64
	OriginalName string
	StoredPath   string
	PageCount    int
	CharCount    int
	UploadedAt   time.Time
}

// Deck sources record which generation path produced the cards.
const (
	DeckSourceAI        = "ai"
	DeckSourceHeuristic = "heuristic"
)

type Deck struct {
	ID        int64
	Name      string
	Source    string
	CardCount int
	CreatedAt time.Time
}

// Card is a persisted flashcard with its FSRS scheduling state.
type Card struct {
	ID            int64
	DeckID        int64
	Question      string
	Answer        string
	Due           sql.NullTime
	Stability     float64
	Difficulty    float64
	ElapsedDays   int
	ScheduledDays int
	Reps          int
	Lapses        int
	State         int
	LastReview    sql.NullTime
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// QuizAttempt records one graded answer submission.
type QuizAttempt struct {
	ID        int64
	CardID    int64
	Answer    string
	Correct   bool
	Partial   bool
	Score     float64
	Rating    int
	Skipped   bool
	CreatedAt time.Time
}

// DeckStats summarizes quiz progress for a deck.
type DeckStats struct {
	Cards    int     `json:"cards"`
	Due      int     `json:"due"`
	Attempts int     `json:"attempts"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

func (c *Card) ToFSRSCard() fsrs.Card {
	card := fsrs.Card{
		Stability:     c.Stability,
		Difficulty:    c.Difficulty,
		ElapsedDays:   uint64(max(c.ElapsedDays, 0)),
		ScheduledDays: uint64(max(c.ScheduledDays, 0)),
		Reps:          uint64(max(c.Reps, 0)),
		Lapses:        uint64(max(c.Lapses, 0)),
		State:         fsrs.State(max(c.State, 0)),
	}
	if c.Due.Valid {
		card.Due = c.Due.Time
	}
	if c.LastReview.Valid {
		card.LastReview = c.LastReview.Time
	}
	return card
}

func (c *Card) ApplyFSRSCard(f fsrs.Card) {
	c.Due = sql.NullTime{Time: f.Due, Valid: !f.Due.IsZero()}
	c.Stability = f.Stability
	c.Difficulty = f.Difficulty
	c.ElapsedDays = int(f.ElapsedDays)
	c.ScheduledDays = int(f.ScheduledDays)
	c.Reps = int(f.Reps)
	c.Lapses = int(f.Lapses)
	c.State = int(f.State)
	c.LastReview = sql.NullTime{Time: f.LastReview, Valid: !f.LastReview.IsZero()}
}

func max[T ~int | ~int32 | ~int64](a, b T) T {
	if a > b {
		return a
	}
	return b
}
