package queue

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/examdrill/internal/card"
	"github.com/abhisek/examdrill/internal/spacedrep"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newCard(id string) card.Card {
	return card.New(id, "greek", card.Meaning{Word: id, Translation: id})
}

func dueCard(id string, state spacedrep.State, ago time.Duration) card.Card {
	c := newCard(id)
	due := now.Add(-ago)
	c.SRS.State = state
	c.SRS.DueDate = &due
	c.SRS.ReviewCount = 1
	return c
}

func futureCard(id string) card.Card {
	c := newCard(id)
	due := now.Add(48 * time.Hour)
	c.SRS.State = spacedrep.StateReview
	c.SRS.DueDate = &due
	return c
}

func ids(cards []card.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

func TestBuild_DueOldestFirstThenNew(t *testing.T) {
	pool := []card.Card{
		newCard("n1"),
		dueCard("d-recent", spacedrep.StateReview, time.Hour),
		futureCard("f1"),
		dueCard("d-old", spacedrep.StateReview, 72*time.Hour),
		newCard("n2"),
	}
	got := NewBuilder(nil).Build(pool, Config{MaxNewCards: 5, MaxReviewCards: 5}, now)
	assert.Equal(t, []string{"d-old", "d-recent", "n1", "n2"}, ids(got))
}

func TestBuild_LearningFirst(t *testing.T) {
	pool := []card.Card{
		dueCard("review-old", spacedrep.StateReview, 10*time.Hour),
		dueCard("relearn", spacedrep.StateRelearning, time.Minute),
		newCard("new"),
		dueCard("learn", spacedrep.StateLearning, 2*time.Hour),
	}
	cfg := Config{MaxNewCards: 5, MaxReviewCards: 5, LearningFirst: true}
	got := NewBuilder(nil).Build(pool, cfg, now)
	assert.Equal(t, []string{"learn", "relearn", "review-old", "new"}, ids(got))
}

func TestBuild_RespectsLimits(t *testing.T) {
	for _, size := range []int{0, 1, 7, 40, 200} {
		t.Run(fmt.Sprintf("pool=%d", size), func(t *testing.T) {
			var pool []card.Card
			for i := range size {
				if i%2 == 0 {
					pool = append(pool, newCard(fmt.Sprintf("n%d", i)))
				} else {
					pool = append(pool, dueCard(fmt.Sprintf("d%d", i), spacedrep.StateReview, time.Duration(i)*time.Minute))
				}
			}
			cfg := Config{MaxNewCards: 3, MaxReviewCards: 4, LearningFirst: true, Randomize: true}
			got := NewBuilder(rand.New(rand.NewPCG(1, 2))).Build(pool, cfg, now)

			var fresh, due int
			for _, c := range got {
				if c.SRS.State == spacedrep.StateNew {
					fresh++
				} else if c.SRS.IsDue(now) {
					due++
				}
			}
			assert.LessOrEqual(t, fresh, cfg.MaxNewCards)
			assert.LessOrEqual(t, due, cfg.MaxReviewCards)
			assert.LessOrEqual(t, len(got), cfg.Limit())
		})
	}
}

func TestBuild_MasteredOnlyWhenDue(t *testing.T) {
	dueMastered := dueCard("m-due", spacedrep.StateMastered, time.Hour)
	notDue := futureCard("m-later")
	notDue.SRS.State = spacedrep.StateMastered

	got := NewBuilder(nil).Build([]card.Card{dueMastered, notDue}, DefaultConfig(), now)
	assert.Equal(t, []string{"m-due"}, ids(got))
}

func TestBuild_ZeroLimits(t *testing.T) {
	pool := []card.Card{newCard("n"), dueCard("d", spacedrep.StateReview, time.Hour)}
	assert.Empty(t, NewBuilder(nil).Build(pool, Config{}, now))
	assert.Empty(t, NewBuilder(nil).Build(pool, Config{MaxNewCards: -1, MaxReviewCards: -3}, now))
}

func TestBuild_RandomizeStaysWithinBands(t *testing.T) {
	var pool []card.Card
	for i := range 6 {
		pool = append(pool, dueCard(fmt.Sprintf("l%d", i), spacedrep.StateLearning, time.Duration(i+1)*time.Minute))
		pool = append(pool, dueCard(fmt.Sprintf("r%d", i), spacedrep.StateReview, time.Duration(i+1)*time.Hour))
		pool = append(pool, newCard(fmt.Sprintf("n%d", i)))
	}
	cfg := Config{MaxNewCards: 6, MaxReviewCards: 12, LearningFirst: true, Randomize: true}
	got := NewBuilder(rand.New(rand.NewPCG(42, 7))).Build(pool, cfg, now)
	require.Len(t, got, 18)

	for i, c := range got {
		switch {
		case i < 6:
			assert.Equal(t, spacedrep.StateLearning, c.SRS.State, "position %d", i)
		case i < 12:
			assert.Equal(t, spacedrep.StateReview, c.SRS.State, "position %d", i)
		default:
			assert.Equal(t, spacedrep.StateNew, c.SRS.State, "position %d", i)
		}
	}
}

func TestBuild_DoesNotAliasPool(t *testing.T) {
	pool := []card.Card{dueCard("d", spacedrep.StateReview, time.Hour)}
	got := NewBuilder(nil).Build(pool, DefaultConfig(), now)
	require.Len(t, got, 1)

	moved := now.Add(time.Hour)
	*got[0].SRS.DueDate = moved
	assert.True(t, pool[0].SRS.DueDate.Before(now))
}

func TestBuild_Deterministic(t *testing.T) {
	var pool []card.Card
	for i := range 20 {
		pool = append(pool, newCard(fmt.Sprintf("n%d", i)))
	}
	cfg := Config{MaxNewCards: 20, Randomize: true}
	a := NewBuilder(rand.New(rand.NewPCG(9, 9))).Build(pool, cfg, now)
	b := NewBuilder(rand.New(rand.NewPCG(9, 9))).Build(pool, cfg, now)
	assert.Equal(t, ids(a), ids(b))
	assert.ElementsMatch(t, ids(pool), ids(a))
}
