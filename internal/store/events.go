package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/examdrill/internal/session"
)

var eventColumns = []string{
	"sequence", "timestamp", "session_id", "subject_id", "variant", "event", "status",
	"question_id", "correct", "elapsed_seconds", "questions_answered", "correct_count",
	"accuracy", "xp_earned",
}

// EventRecord is one row of the session event log.
type EventRecord struct {
	Sequence          int64
	Timestamp         time.Time
	SessionID         string
	SubjectID         string
	Variant           session.Variant
	Event             session.EventType
	Status            session.Status
	QuestionID        string
	Correct           bool
	ElapsedSeconds    float64
	QuestionsAnswered int
	CorrectCount      int
	Accuracy          float64
	XPEarned          int
}

// EventLog appends session events to the session_events table. It
// implements session.Observer.
type EventLog struct {
	db     *sql.DB
	seq    *sequenceCounter
	logger *slog.Logger
}

var _ session.Observer = (*EventLog)(nil)

// OnEvent appends ev. Write failures are logged, never returned.
func (l *EventLog) OnEvent(ctx context.Context, ev session.Event) {
	if err := l.Append(context.WithoutCancel(ctx), ev); err != nil {
		l.logger.Warn("failed to log session event",
			"session_id", ev.SessionID, "event", ev.Type, "error", err)
	}
}

// Append stores ev with the next global sequence number.
func (l *EventLog) Append(ctx context.Context, ev session.Event) error {
	seq, err := l.seq.Next(ctx)
	if err != nil {
		return err
	}
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now()
	}
	var question any
	if ev.QuestionID != "" {
		question = ev.QuestionID
	}
	query, args := entsql.Dialect(dialect.SQLite).
		Insert(tableSessionEvents).
		Columns(eventColumns...).
		Values(
			seq, ts.UTC(), ev.SessionID, ev.SubjectID, string(ev.Variant), string(ev.Type), string(ev.Status),
			question, ev.Correct, ev.Elapsed, ev.Stats.QuestionsAnswered, ev.Stats.CorrectCount,
			ev.Stats.Accuracy, ev.Stats.XPEarned,
		).
		Query()
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save session event: %w", err)
	}
	return nil
}

// Session returns the events of one session in sequence order.
func (l *EventLog) Session(ctx context.Context, sessionID string) ([]EventRecord, error) {
	sel := entsql.Dialect(dialect.SQLite).
		Select(eventColumns...).
		From(entsql.Table(tableSessionEvents)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy("sequence")
	return l.query(ctx, sel)
}

// Finished returns the most recent completed or expired session events,
// newest first. A limit of zero returns all of them.
func (l *EventLog) Finished(ctx context.Context, limit int) ([]EventRecord, error) {
	sel := entsql.Dialect(dialect.SQLite).
		Select(eventColumns...).
		From(entsql.Table(tableSessionEvents)).
		Where(entsql.In("event", string(session.EventCompleted), string(session.EventExpired))).
		OrderBy(entsql.Desc("sequence"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	return l.query(ctx, sel)
}

func (l *EventLog) query(ctx context.Context, sel *entsql.Selector) ([]EventRecord, error) {
	query, args := sel.Query()
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			r                      EventRecord
			variant, event, status string
			question               sql.NullString
		)
		err := rows.Scan(
			&r.Sequence, &r.Timestamp, &r.SessionID, &r.SubjectID, &variant, &event, &status,
			&question, &r.Correct, &r.ElapsedSeconds, &r.QuestionsAnswered, &r.CorrectCount,
			&r.Accuracy, &r.XPEarned,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		r.Variant = session.Variant(variant)
		r.Event = session.EventType(event)
		r.Status = session.Status(status)
		r.QuestionID = question.String
		out = append(out, r)
	}
	return out, rows.Err()
}
