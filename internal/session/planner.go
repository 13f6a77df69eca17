package session

import (
	"time"

	"github.com/abhisek/examdrill/internal/card"
)

// newSession creates an active session over questions, showing the first
// unanswered one.
func newSession(id string, cfg Config, questions []QuestionState, now time.Time) *Session {
	s := &Session{
		ID:                id,
		SubjectID:         cfg.SubjectID,
		Variant:           cfg.Variant,
		Language:          cfg.Language,
		Questions:         questions,
		Status:            StatusActive,
		PassPercent:       cfg.PassPercent,
		QuestionTimeLimit: cfg.QuestionTimeLimit.Seconds(),
		StartedAt:         now,
	}
	s.CurrentIndex = firstUnanswered(s)
	if q := s.Current(); q != nil && !q.Answered {
		q.ShownAt = &now
	}
	s.refresh(now)
	return s
}

// reviewQuestions turns a review queue into questions. Each question
// carries its own copy of the card.
func reviewQuestions(cards []card.Card) []QuestionState {
	out := make([]QuestionState, 0, len(cards))
	for _, c := range cards {
		c := c.Clone()
		face := card.Faces(c.Content)
		out = append(out, QuestionState{
			Question: Question{
				ID:     c.ID,
				CardID: c.ID,
				Prompt: face.Front,
				Hint:   face.Hint,
			},
			Card: &c,
		})
	}
	return out
}

// serverQuestions wraps a server-provided question set.
func serverQuestions(qs []Question) []QuestionState {
	out := make([]QuestionState, len(qs))
	for i, q := range qs {
		out[i] = QuestionState{Question: q}
		out[i].Question.Options = append([]string(nil), q.Options...)
	}
	return out
}

// applyRecorded merges answers the server already holds. The server is
// authoritative: a local answer still waiting for sync takes the server's
// verdict and is marked synced.
func applyRecorded(s *Session, answers []RecordedAnswer) {
	for _, a := range answers {
		q := s.question(a.QuestionID)
		if q == nil || (q.Answered && q.Synced) {
			continue
		}
		if !q.Answered {
			q.Answered = true
			q.Selection = &Selection{Option: a.Selection}
			q.ElapsedSeconds = a.ElapsedSeconds
		}
		applyVerdict(q, &AnswerResponse{
			IsCorrect:     a.IsCorrect,
			CorrectOption: a.CorrectOption,
			XPEarned:      a.XPEarned,
		})
	}
}

// firstUnanswered returns the index of the first unanswered question, or
// the last index if all are answered.
func firstUnanswered(s *Session) int {
	for i, q := range s.Questions {
		if !q.Answered {
			return i
		}
	}
	return max(0, len(s.Questions)-1)
}
