package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/examdrill/internal/recovery"
)

// RecoveryKV keeps recovery snapshots in the recovery_records table so
// they survive alongside the card deck.
type RecoveryKV struct {
	db *sql.DB
}

var _ recovery.KV = (*RecoveryKV)(nil)

func (r *RecoveryKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select("value").
		From(entsql.Table(tableRecoveryRecords)).
		Where(entsql.EQ("id", key)).
		Query()
	var value []byte
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read recovery record %s: %w", key, err)
	}
	return value, true, nil
}

func (r *RecoveryKV) Set(ctx context.Context, key string, value []byte) error {
	query, args := entsql.Dialect(dialect.SQLite).
		Insert(tableRecoveryRecords).
		Columns("id", "value", "updated_at").
		Values(key, value, time.Now().UTC()).
		OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues()).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("write recovery record %s: %w", key, err)
	}
	return nil
}

func (r *RecoveryKV) Delete(ctx context.Context, key string) error {
	query, args := entsql.Dialect(dialect.SQLite).
		Delete(tableRecoveryRecords).
		Where(entsql.EQ("id", key)).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete recovery record %s: %w", key, err)
	}
	return nil
}
