package spacedrep

import (
	"fmt"
	"strings"
	"time"
)

// Rating is the learner's self-assessed recall quality for a card.
type Rating string

const (
	RatingAgain Rating = "again"
	RatingHard  Rating = "hard"
	RatingGood  Rating = "good"
	RatingEasy  Rating = "easy"
)

// Valid reports whether r is one of the four ratings.
func (r Rating) Valid() bool {
	switch r {
	case RatingAgain, RatingHard, RatingGood, RatingEasy:
		return true
	}
	return false
}

// Success reports whether the rating counts as a successful recall.
func (r Rating) Success() bool {
	return r != RatingAgain
}

// ParseRating accepts a rating name or its 1-4 shortcut.
func ParseRating(s string) (Rating, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "again":
		return RatingAgain, nil
	case "2", "hard":
		return RatingHard, nil
	case "3", "good":
		return RatingGood, nil
	case "4", "easy":
		return RatingEasy, nil
	}
	return "", fmt.Errorf("unknown rating %q", s)
}

// State is a card's position in the review lifecycle.
type State string

const (
	StateNew        State = "new"
	StateLearning   State = "learning"
	StateReview     State = "review"
	StateRelearning State = "relearning"
	StateMastered   State = "mastered"
)

// InLadder reports whether a card in this state is still climbing the
// learning steps.
func (s State) InLadder() bool {
	return s == StateNew || s == StateLearning || s == StateRelearning
}

// Data holds the spaced repetition state owned by a single card.
type Data struct {
	Interval     int        `json:"interval"`
	EaseFactor   float64    `json:"easeFactor"`
	Repetitions  int        `json:"repetitions"`
	State        State      `json:"state"`
	Step         int        `json:"step"`
	DueDate      *time.Time `json:"dueDate"`
	LastReviewed *time.Time `json:"lastReviewed,omitempty"`
	ReviewCount  int        `json:"reviewCount"`
	SuccessCount int        `json:"successCount"`
	FailureCount int        `json:"failureCount"`
	SuccessRate  float64    `json:"successRate"`
}

// NewData returns the state of a card that has never been reviewed.
func NewData() Data {
	return Data{
		EaseFactor: DefaultEaseFactor,
		State:      StateNew,
	}
}

// IsDue returns true if the card has a due date at or before now.
// New cards have no due date and are never due.
func (d Data) IsDue(now time.Time) bool {
	return d.DueDate != nil && !d.DueDate.After(now)
}

// OverdueBy returns how long past due the card is. Returns 0 if not due.
func (d Data) OverdueBy(now time.Time) time.Duration {
	if !d.IsDue(now) {
		return 0
	}
	return now.Sub(*d.DueDate)
}

// IsMastered reports whether the card satisfies the mastery condition
// under cfg, independent of its current State.
func (d Data) IsMastered(cfg Config) bool {
	return d.Interval >= cfg.MasteryIntervalDays && d.SuccessRate >= cfg.MasterySuccessRate
}

// Clone returns a deep copy.
func (d Data) Clone() Data {
	out := d
	if d.DueDate != nil {
		t := *d.DueDate
		out.DueDate = &t
	}
	if d.LastReviewed != nil {
		t := *d.LastReviewed
		out.LastReviewed = &t
	}
	return out
}
