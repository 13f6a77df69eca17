package session

import (
	"context"
	"time"

	"github.com/abhisek/examdrill/internal/card"
	"github.com/abhisek/examdrill/internal/spacedrep"
)

// CardRepo loads and stores review cards.
type CardRepo interface {
	// Pool returns every card of the subject.
	Pool(ctx context.Context, subjectID string) ([]card.Card, error)
	// UpdateSRS stores a card's new scheduling state.
	UpdateSRS(ctx context.Context, cardID string, data spacedrep.Data) error
}

// CreateRequest asks the server for a session and its question set.
type CreateRequest struct {
	SubjectID     string  `json:"subjectId"`
	Variant       Variant `json:"variant"`
	Language      string  `json:"language,omitempty"`
	QuestionCount int     `json:"questionCount"`
	Randomize     bool    `json:"randomize"`
}

// RecordedAnswer is an answer the server already holds for a resumed
// session.
type RecordedAnswer struct {
	QuestionID     string  `json:"questionId"`
	Selection      int     `json:"selection"`
	IsCorrect      bool    `json:"isCorrect"`
	CorrectOption  int     `json:"correctOption"`
	XPEarned       int     `json:"xpEarned"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

// CreateResponse is the server's session record.
type CreateResponse struct {
	SessionID      string           `json:"sessionId"`
	Questions      []Question       `json:"questions"`
	IsResumed      bool             `json:"isResumed"`
	Answers        []RecordedAnswer `json:"answers,omitempty"`
	ElapsedSeconds float64          `json:"elapsedSeconds"`
}

// AnswerRequest submits one answer.
type AnswerRequest struct {
	SessionID      string  `json:"sessionId"`
	QuestionID     string  `json:"questionId"`
	Selection      int     `json:"selection"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

// AnswerResponse is the server's verdict on one answer. Duplicate is set
// when the server had already recorded it.
type AnswerResponse struct {
	IsCorrect     bool `json:"isCorrect"`
	CorrectOption int  `json:"correctOption"`
	XPEarned      int  `json:"xpEarned"`
	Duplicate     bool `json:"duplicate"`
}

// Server is the authoritative session backend for exams and quizzes.
// Implementations return *NetworkError for transient failures; any other
// error is treated as permanent.
type Server interface {
	CreateOrResumeSession(ctx context.Context, req CreateRequest) (*CreateResponse, error)
	SubmitAnswer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error)
	CompleteSession(ctx context.Context, sessionID string, totalElapsedSeconds float64) (*ServerResult, error)
	AbandonSession(ctx context.Context, sessionID string) error
}

// XPEvent is sent to the gamification collaborator after an answer.
type XPEvent struct {
	SessionID  string    `json:"sessionId"`
	SubjectID  string    `json:"subjectId"`
	Variant    Variant   `json:"variant"`
	QuestionID string    `json:"questionId"`
	Correct    bool      `json:"correct"`
	XPEarned   int       `json:"xpEarned"`
	At         time.Time `json:"at"`
}

// Notifier receives fire-and-forget answer notifications. Failures are
// logged and never affect the session.
type Notifier interface {
	AnswerRecorded(ctx context.Context, ev XPEvent) error
}

// EventType names a session lifecycle event.
type EventType string

const (
	EventStarted    EventType = "started"
	EventRecovered  EventType = "recovered"
	EventAnswered   EventType = "answered"
	EventPaused     EventType = "paused"
	EventResumed    EventType = "resumed"
	EventCompleted  EventType = "completed"
	EventExpired    EventType = "expired"
	EventAbandoned  EventType = "abandoned"
	EventSynced     EventType = "synced"
	EventSyncFailed EventType = "sync_failed"
)

// Event is emitted to observers after each transition.
type Event struct {
	Type       EventType
	SessionID  string
	SubjectID  string
	Variant    Variant
	Status     Status
	QuestionID string
	Correct    bool
	Elapsed    float64
	Stats      Stats
	At         time.Time
}

// Observer is notified synchronously after each transition, outside the
// machine's lock. Implementations must not block.
type Observer interface {
	OnEvent(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) OnEvent(ctx context.Context, ev Event) { f(ctx, ev) }
