package queue

import (
	"math/rand/v2"
	"sort"
	"time"

	"github.com/abhisek/examdrill/internal/card"
	"github.com/abhisek/examdrill/internal/spacedrep"
)

// Default limits for a review session.
const (
	DefaultMaxNewCards    = 10
	DefaultMaxReviewCards = 50
)

// Config bounds and orders a review queue.
type Config struct {
	MaxNewCards    int  `yaml:"max_new_cards" env:"QUEUE_MAX_NEW_CARDS" env-default:"10"`
	MaxReviewCards int  `yaml:"max_review_cards" env:"QUEUE_MAX_REVIEW_CARDS" env-default:"50"`
	LearningFirst  bool `yaml:"learning_first" env:"QUEUE_LEARNING_FIRST" env-default:"true"`
	Randomize      bool `yaml:"randomize" env:"QUEUE_RANDOMIZE" env-default:"false"`
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxNewCards:    DefaultMaxNewCards,
		MaxReviewCards: DefaultMaxReviewCards,
		LearningFirst:  true,
	}
}

// Limit is the largest queue cfg can produce.
func (c Config) Limit() int {
	return max(0, c.MaxNewCards) + max(0, c.MaxReviewCards)
}

// Builder selects and orders the cards for one session.
type Builder interface {
	// Build returns the session queue. The result never aliases pool.
	Build(pool []card.Card, cfg Config, now time.Time) []card.Card
}

// DefaultBuilder takes due cards oldest-first, then new cards in pool
// order, optionally putting cards still in the learning ladder first.
type DefaultBuilder struct {
	// Rand drives Randomize. A nil Rand uses the global source.
	Rand *rand.Rand
}

// NewBuilder creates a DefaultBuilder with the given random source.
func NewBuilder(rng *rand.Rand) *DefaultBuilder {
	return &DefaultBuilder{Rand: rng}
}

// Build implements Builder.
func (b *DefaultBuilder) Build(pool []card.Card, cfg Config, now time.Time) []card.Card {
	var due, fresh []card.Card
	for _, c := range pool {
		switch {
		case c.SRS.IsDue(now):
			due = append(due, c)
		case c.SRS.State == spacedrep.StateNew:
			fresh = append(fresh, c)
		}
	}

	// Oldest due first; ties keep pool order.
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].SRS.DueDate.Before(*due[j].SRS.DueDate)
	})
	due = take(due, cfg.MaxReviewCards)
	fresh = take(fresh, cfg.MaxNewCards)

	var bands [][]card.Card
	if cfg.LearningFirst {
		var learning, rest []card.Card
		for _, c := range due {
			if c.SRS.State == spacedrep.StateLearning || c.SRS.State == spacedrep.StateRelearning {
				learning = append(learning, c)
			} else {
				rest = append(rest, c)
			}
		}
		bands = [][]card.Card{learning, rest, fresh}
	} else {
		bands = [][]card.Card{due, fresh}
	}

	out := make([]card.Card, 0, len(due)+len(fresh))
	for _, band := range bands {
		if cfg.Randomize {
			b.shuffle(band)
		}
		for _, c := range band {
			out = append(out, c.Clone())
		}
	}
	return out
}

func (b *DefaultBuilder) shuffle(cards []card.Card) {
	swap := func(i, j int) { cards[i], cards[j] = cards[j], cards[i] }
	if b.Rand != nil {
		b.Rand.Shuffle(len(cards), swap)
		return
	}
	rand.Shuffle(len(cards), swap)
}

func take(cards []card.Card, n int) []card.Card {
	if n <= 0 {
		return nil
	}
	if len(cards) > n {
		return cards[:n]
	}
	return cards
}
