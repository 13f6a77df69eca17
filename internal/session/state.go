package session

import (
	"slices"
	"time"

	"github.com/abhisek/examdrill/internal/card"
	"github.com/abhisek/examdrill/internal/spacedrep"
	"github.com/abhisek/examdrill/internal/timer"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned || s == StatusExpired
}

// Question is one item presented to the learner.
type Question struct {
	ID      string   `json:"id"`
	CardID  string   `json:"cardId,omitempty"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
	Hint    string   `json:"hint,omitempty"`
}

// Selection is the learner's answer. Review sessions use Rating; exam and
// quiz sessions use Option, an index into Question.Options.
type Selection struct {
	Option int              `json:"option"`
	Rating spacedrep.Rating `json:"rating,omitempty"`
}

// QuestionState is a question plus everything recorded about answering it.
type QuestionState struct {
	Question Question `json:"question"`

	// Card is set for review sessions only.
	Card *card.Card `json:"card,omitempty"`

	Answered  bool       `json:"answered"`
	Selection *Selection `json:"selection,omitempty"`
	Correct   bool       `json:"correct"`

	// CorrectKnown is false while a server-scored answer awaits sync.
	CorrectKnown  bool `json:"correctKnown"`
	CorrectOption *int `json:"correctOption,omitempty"`

	OverTime       bool       `json:"overTime"`
	ShownAt        *time.Time `json:"shownAt,omitempty"`
	AnsweredAt     *time.Time `json:"answeredAt,omitempty"`
	ElapsedSeconds float64    `json:"elapsedSeconds"`
	XPEarned       int        `json:"xpEarned"`
	Synced         bool       `json:"synced"`
}

func (q QuestionState) clone() QuestionState {
	out := q
	out.Question.Options = slices.Clone(q.Question.Options)
	if q.Card != nil {
		c := q.Card.Clone()
		out.Card = &c
	}
	if q.Selection != nil {
		s := *q.Selection
		out.Selection = &s
	}
	if q.CorrectOption != nil {
		o := *q.CorrectOption
		out.CorrectOption = &o
	}
	out.ShownAt = cloneTime(q.ShownAt)
	out.AnsweredAt = cloneTime(q.AnsweredAt)
	return out
}

// Session is the live state of one practice session. Callers only ever
// see copies; the Machine owns the original.
type Session struct {
	ID        string  `json:"id"`
	SubjectID string  `json:"subjectId"`
	Variant   Variant `json:"variant"`
	Language  string  `json:"language,omitempty"`

	Questions    []QuestionState `json:"questions"`
	CurrentIndex int             `json:"currentIndex"`
	Status       Status          `json:"status"`
	Timer        *timer.State    `json:"timer,omitempty"`
	Stats        Stats           `json:"stats"`

	PassPercent       float64 `json:"passPercent"`
	QuestionTimeLimit float64 `json:"questionTimeLimitSeconds,omitempty"`

	IsResumed     bool       `json:"isResumed"`
	StartedAt     time.Time  `json:"startedAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	PausedAt      *time.Time `json:"pausedAt,omitempty"`
	PausedSeconds float64    `json:"pausedSeconds"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
	TimerExpired  bool       `json:"timerExpired"`
	SyncPending   bool       `json:"syncPending"`
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Questions = make([]QuestionState, len(s.Questions))
	for i, q := range s.Questions {
		out.Questions[i] = q.clone()
	}
	if s.Timer != nil {
		t := s.Timer.Clone()
		out.Timer = &t
	}
	out.PausedAt = cloneTime(s.PausedAt)
	out.EndedAt = cloneTime(s.EndedAt)
	return &out
}

// Current returns the question at CurrentIndex, or nil if there is none.
func (s *Session) Current() *QuestionState {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return nil
	}
	return &s.Questions[s.CurrentIndex]
}

// Unanswered counts questions without an answer.
func (s *Session) Unanswered() int {
	n := 0
	for _, q := range s.Questions {
		if !q.Answered {
			n++
		}
	}
	return n
}

func (s *Session) question(id string) *QuestionState {
	for i := range s.Questions {
		if s.Questions[i].Question.ID == id {
			return &s.Questions[i]
		}
	}
	return nil
}

// refresh recomputes everything derived from the question list.
func (s *Session) refresh(now time.Time) {
	s.Stats = ComputeStats(s.Questions)
	s.SyncPending = false
	for _, q := range s.Questions {
		if q.Answered && !q.Synced {
			s.SyncPending = true
			break
		}
	}
	s.UpdatedAt = now
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
