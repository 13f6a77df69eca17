package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/abhisek/examdrill/internal/clock"
)

// Version is the snapshot format version. Bumping it invalidates every
// previously saved snapshot.
const Version = 3

// KeyPrefix namespaces all recovery keys.
const KeyPrefix = "examdrill:recovery:"

// Storage keys, one per session kind.
const (
	KeyMockExam    = KeyPrefix + "mock_exam"
	KeyCultureQuiz = KeyPrefix + "culture_quiz"
	KeyReview      = KeyPrefix + "review"
)

// KV is the storage capability a Store needs. Get reports found=false
// for a missing key rather than an error.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Snapshot is the stored record for one in-progress session.
type Snapshot[T any] struct {
	Session T         `json:"session"`
	SavedAt time.Time `json:"savedAt"`
	Version int       `json:"version"`
}

// Age returns how long ago the snapshot was saved.
func (s *Snapshot[T]) Age(now time.Time) time.Duration {
	return now.Sub(s.SavedAt)
}

// Store persists versioned snapshots of T. It does not judge staleness;
// callers compare Snapshot.Age against their own limit.
type Store[T any] struct {
	kv     KV
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Store over kv.
func New[T any](kv KV, clk clock.Clock, logger *slog.Logger) *Store[T] {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store[T]{kv: kv, clock: clk, logger: logger}
}

// Save overwrites the snapshot under key.
func (s *Store[T]) Save(ctx context.Context, key string, session T) error {
	raw, err := json.Marshal(Snapshot[T]{
		Session: session,
		SavedAt: s.clock.Now().UTC(),
		Version: Version,
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

// Load returns the snapshot under key, or nil if there is none. A
// snapshot that does not parse, fails validation, or carries another
// version is reported as nil without an error. Only storage failures
// are returned as errors.
func (s *Store[T]) Load(ctx context.Context, key string) (*Snapshot[T], error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}

	if err := validateEnvelope(raw); err != nil {
		s.logger.Warn("discarding unreadable recovery snapshot", "key", key, "error", err)
		return nil, nil
	}

	var snap Snapshot[T]
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.logger.Warn("discarding unreadable recovery snapshot", "key", key, "error", err)
		return nil, nil
	}
	if snap.Version != Version {
		s.logger.Info("discarding recovery snapshot from another version",
			"key", key, "version", snap.Version, "want", Version)
		return nil, nil
	}
	return &snap, nil
}

// Clear removes the snapshot under key. Clearing a missing key is not
// an error.
func (s *Store[T]) Clear(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("clear snapshot %s: %w", key, err)
	}
	return nil
}
