package session

import (
	"time"

	"github.com/abhisek/examdrill/internal/queue"
	"github.com/abhisek/examdrill/internal/recovery"
)

// Variant is the kind of practice session.
type Variant string

const (
	// VariantReview is an untimed spaced-repetition review, scored locally.
	VariantReview Variant = "review"
	// VariantMockExam is a timed exam scored by the server.
	VariantMockExam Variant = "mock_exam"
	// VariantCultureQuiz is a fixed-length quiz scored by the server.
	VariantCultureQuiz Variant = "culture_quiz"
)

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	switch v {
	case VariantReview, VariantMockExam, VariantCultureQuiz:
		return true
	}
	return false
}

// Timed reports whether the variant runs against a countdown.
func (v Variant) Timed() bool { return v == VariantMockExam }

// ServerScored reports whether answers are scored by the server.
func (v Variant) ServerScored() bool { return v != VariantReview }

// RecoveryKey is the storage key for the variant's snapshot.
func (v Variant) RecoveryKey() string {
	switch v {
	case VariantMockExam:
		return recovery.KeyMockExam
	case VariantCultureQuiz:
		return recovery.KeyCultureQuiz
	}
	return recovery.KeyReview
}

// Variant defaults.
const (
	DefaultExamQuestions   = 25
	DefaultExamSeconds     = 45 * 60
	DefaultExamPassPercent = 60.0
	DefaultQuizQuestions   = 10
	DefaultQuizPassPercent = 70.0

	DefaultExamSnapshotAge   = 3 * time.Hour
	DefaultQuizSnapshotAge   = time.Hour
	DefaultReviewSnapshotAge = 24 * time.Hour
)

// Config describes the session to start.
type Config struct {
	Variant   Variant
	SubjectID string
	Language  string

	// QuestionCount is the number of questions requested from the server.
	// For reviews a positive value caps the queue.
	QuestionCount int

	// TotalSeconds is the countdown length for timed variants.
	TotalSeconds int

	// QuestionTimeLimit flags answers that took longer. Zero disables it.
	QuestionTimeLimit time.Duration

	Randomize bool

	// Queue bounds a review session.
	Queue queue.Config

	// PassPercent is the local pass mark used until the server confirms.
	PassPercent float64

	// MaxSnapshotAge is how old a snapshot may be and still resume.
	MaxSnapshotAge time.Duration

	// DiscardExisting replaces another subject's in-progress snapshot
	// instead of failing with a RecoveryConflictError.
	DiscardExisting bool
}

// withDefaults fills zero values with the variant's defaults.
func (c Config) withDefaults() Config {
	switch c.Variant {
	case VariantMockExam:
		if c.QuestionCount == 0 {
			c.QuestionCount = DefaultExamQuestions
		}
		if c.TotalSeconds == 0 {
			c.TotalSeconds = DefaultExamSeconds
		}
		if c.PassPercent == 0 {
			c.PassPercent = DefaultExamPassPercent
		}
		if c.MaxSnapshotAge == 0 {
			c.MaxSnapshotAge = DefaultExamSnapshotAge
		}
	case VariantCultureQuiz:
		if c.QuestionCount == 0 {
			c.QuestionCount = DefaultQuizQuestions
		}
		if c.PassPercent == 0 {
			c.PassPercent = DefaultQuizPassPercent
		}
		if c.MaxSnapshotAge == 0 {
			c.MaxSnapshotAge = DefaultQuizSnapshotAge
		}
	case VariantReview:
		if c.Queue == (queue.Config{}) {
			c.Queue = queue.DefaultConfig()
		}
		if c.MaxSnapshotAge == 0 {
			c.MaxSnapshotAge = DefaultReviewSnapshotAge
		}
	}
	return c
}

// Validate checks the config after defaults are applied.
func (c Config) Validate() error {
	switch {
	case !c.Variant.Valid():
		return &ValidationError{Field: "variant", Message: "unknown variant " + string(c.Variant)}
	case c.SubjectID == "":
		return &ValidationError{Field: "subject", Message: "subject id is required"}
	case c.QuestionCount < 0:
		return &ValidationError{Field: "question_count", Message: "must not be negative"}
	case c.Variant.Timed() && c.TotalSeconds <= 0:
		return &ValidationError{Field: "total_seconds", Message: "timed sessions need a positive duration"}
	case c.PassPercent < 0 || c.PassPercent > 100:
		return &ValidationError{Field: "pass_percent", Message: "must be between 0 and 100"}
	case c.QuestionTimeLimit < 0:
		return &ValidationError{Field: "question_time_limit", Message: "must not be negative"}
	}
	return nil
}
