package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/examdrill/internal/card"
	"github.com/abhisek/examdrill/internal/session"
	"github.com/abhisek/examdrill/internal/spacedrep"
)

// ErrCardNotFound is returned when updating a card that does not exist.
var ErrCardNotFound = errors.New("card not found")

var cardColumns = []string{"id", "subject_id", "kind", "content", "srs"}

// CardRepo stores cards in the cards table. It implements session.CardRepo.
type CardRepo struct {
	db *sql.DB
}

var _ session.CardRepo = (*CardRepo)(nil)

// Import upserts cards. New cards start with fresh review state; existing
// cards keep their progress and only take the new content.
func (r *CardRepo) Import(ctx context.Context, cards []card.Card) (int, error) {
	for i, c := range cards {
		if err := c.Validate(); err != nil {
			return 0, fmt.Errorf("card %d (%s): %w", i, c.ID, err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, c := range cards {
		content, err := json.Marshal(c.Content)
		if err != nil {
			return 0, fmt.Errorf("marshal card %s content: %w", c.ID, err)
		}
		srs, err := json.Marshal(c.SRS)
		if err != nil {
			return 0, fmt.Errorf("marshal card %s srs: %w", c.ID, err)
		}
		query, args := entsql.Dialect(dialect.SQLite).
			Insert(tableCards).
			Columns("id", "subject_id", "kind", "content", "srs", "state", "due_at", "updated_at").
			Values(c.ID, c.SubjectID, string(c.Kind()), string(content), string(srs), string(c.SRS.State), dueAt(c.SRS), now).
			OnConflict(
				entsql.ConflictColumns("id"),
				entsql.ResolveWith(func(u *entsql.UpdateSet) {
					u.SetExcluded("subject_id")
					u.SetExcluded("kind")
					u.SetExcluded("content")
					u.SetExcluded("updated_at")
				}),
			).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("upsert card %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(cards), nil
}

// Pool returns every card of the subject ordered by id.
func (r *CardRepo) Pool(ctx context.Context, subjectID string) ([]card.Card, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select(cardColumns...).
		From(entsql.Table(tableCards)).
		Where(entsql.EQ("subject_id", subjectID)).
		OrderBy("id").
		Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()

	var cards []card.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return cards, nil
}

// Get returns one card, or ErrCardNotFound.
func (r *CardRepo) Get(ctx context.Context, id string) (card.Card, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select(cardColumns...).
		From(entsql.Table(tableCards)).
		Where(entsql.EQ("id", id)).
		Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return card.Card{}, fmt.Errorf("query card: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return card.Card{}, fmt.Errorf("query card: %w", err)
		}
		return card.Card{}, fmt.Errorf("%s: %w", id, ErrCardNotFound)
	}
	return scanCard(rows)
}

// UpdateSRS stores a card's new review state.
func (r *CardRepo) UpdateSRS(ctx context.Context, cardID string, data spacedrep.Data) error {
	srs, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal srs: %w", err)
	}
	query, args := entsql.Dialect(dialect.SQLite).
		Update(tableCards).
		Set("srs", string(srs)).
		Set("state", string(data.State)).
		Set("due_at", dueAt(data)).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", cardID)).
		Query()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update card %s: %w", cardID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", cardID, ErrCardNotFound)
	}
	return nil
}

// SubjectCount is the number of cards in one subject.
type SubjectCount struct {
	SubjectID string
	Cards     int
}

// Subjects lists every subject with its card count.
func (r *CardRepo) Subjects(ctx context.Context) ([]SubjectCount, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select("subject_id", entsql.Count("*")).
		From(entsql.Table(tableCards)).
		GroupBy("subject_id").
		OrderBy("subject_id").
		Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	var out []SubjectCount
	for rows.Next() {
		var sc SubjectCount
		if err := rows.Scan(&sc.SubjectID, &sc.Cards); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// DeckStats summarizes the review state of a subject's cards.
type DeckStats struct {
	Total    int
	New      int
	Learning int
	Review   int
	Mastered int
	Due      int
}

// Stats computes DeckStats for subjectID as of now.
func (r *CardRepo) Stats(ctx context.Context, subjectID string, now time.Time) (DeckStats, error) {
	cards, err := r.Pool(ctx, subjectID)
	if err != nil {
		return DeckStats{}, err
	}
	var st DeckStats
	for _, c := range cards {
		st.Total++
		switch c.SRS.State {
		case spacedrep.StateNew:
			st.New++
		case spacedrep.StateLearning, spacedrep.StateRelearning:
			st.Learning++
		case spacedrep.StateReview:
			st.Review++
		case spacedrep.StateMastered:
			st.Mastered++
		}
		if c.SRS.State != spacedrep.StateNew && c.SRS.IsDue(now) {
			st.Due++
		}
	}
	return st, nil
}

// dueAt returns the due_at column value; nil for unscheduled cards.
func dueAt(d spacedrep.Data) any {
	if d.DueDate == nil {
		return nil
	}
	return d.DueDate.UTC()
}

func scanCard(rows *sql.Rows) (card.Card, error) {
	var (
		c            card.Card
		kind         string
		content, srs []byte
	)
	if err := rows.Scan(&c.ID, &c.SubjectID, &kind, &content, &srs); err != nil {
		return card.Card{}, fmt.Errorf("scan card: %w", err)
	}
	var err error
	c.Content, err = card.DecodeContent(card.Kind(kind), content)
	if err != nil {
		return card.Card{}, fmt.Errorf("card %s: %w", c.ID, err)
	}
	c.SRS = spacedrep.NewData()
	if len(srs) > 0 {
		if err := json.Unmarshal(srs, &c.SRS); err != nil {
			return card.Card{}, fmt.Errorf("card %s srs: %w", c.ID, err)
		}
	}
	return c, nil
}
