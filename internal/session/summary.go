package session

import "time"

// Result is one question's line in a Summary.
type Result struct {
	QuestionID     string     `json:"questionId"`
	Prompt         string     `json:"prompt"`
	Unanswered     bool       `json:"unanswered"`
	Selection      *Selection `json:"selection,omitempty"`
	Correct        bool       `json:"correct"`
	CorrectKnown   bool       `json:"correctKnown"`
	CorrectOption  *int       `json:"correctOption,omitempty"`
	ElapsedSeconds float64    `json:"elapsedSeconds"`
	OverTime       bool       `json:"overTime"`
}

// Summary is the immutable outcome of a finished session.
type Summary struct {
	SessionID    string    `json:"sessionId"`
	SubjectID    string    `json:"subjectId"`
	Variant      Variant   `json:"variant"`
	Status       Status    `json:"status"`
	TimerExpired bool      `json:"timerExpired"`
	Stats        Stats     `json:"stats"`
	Results      []Result  `json:"results"`
	Unanswered   int       `json:"unanswered"`
	Score        float64   `json:"score"` // percent of all questions
	Passed       bool      `json:"passed"`
	Verified     bool      `json:"verified"` // score confirmed by the server
	SyncPending  bool      `json:"syncPending"`
	Duration     float64   `json:"durationSeconds"`
	CompletedAt  time.Time `json:"completedAt"`
}

// ServerResult is the server's verdict on a completed session.
type ServerResult struct {
	Score          float64 `json:"score"`
	Passed         bool    `json:"passed"`
	CorrectCount   int     `json:"correctCount"`
	TotalQuestions int     `json:"totalQuestions"`
	XPEarned       int     `json:"xpEarned"`
}

// BuildSummary creates a Summary from a session that has just ended.
func BuildSummary(s *Session) *Summary {
	sum := &Summary{
		SessionID:    s.ID,
		SubjectID:    s.SubjectID,
		Variant:      s.Variant,
		Status:       s.Status,
		TimerExpired: s.TimerExpired,
		Stats:        s.Stats,
		Results:      make([]Result, 0, len(s.Questions)),
		SyncPending:  s.SyncPending,
	}
	for _, q := range s.Questions {
		q = q.clone()
		sum.Results = append(sum.Results, Result{
			QuestionID:     q.Question.ID,
			Prompt:         q.Question.Prompt,
			Unanswered:     !q.Answered,
			Selection:      q.Selection,
			Correct:        q.Correct,
			CorrectKnown:   q.CorrectKnown,
			CorrectOption:  q.CorrectOption,
			ElapsedSeconds: q.ElapsedSeconds,
			OverTime:       q.OverTime,
		})
		if !q.Answered {
			sum.Unanswered++
		}
	}
	if n := len(s.Questions); n > 0 {
		sum.Score = float64(s.Stats.CorrectCount) / float64(n) * 100
	}
	sum.Passed = s.PassPercent > 0 && sum.Score >= s.PassPercent
	if s.EndedAt != nil {
		sum.CompletedAt = *s.EndedAt
		sum.Duration = s.EndedAt.Sub(s.StartedAt).Seconds() - s.PausedSeconds
	}
	return sum
}

func (sum *Summary) clone() *Summary {
	out := *sum
	out.Results = make([]Result, len(sum.Results))
	for i, r := range sum.Results {
		if r.Selection != nil {
			sel := *r.Selection
			r.Selection = &sel
		}
		r.CorrectOption = cloneInt(r.CorrectOption)
		out.Results[i] = r
	}
	return &out
}

// apply merges the server's verdict.
func (sum *Summary) apply(r *ServerResult) {
	sum.Score = r.Score
	sum.Passed = r.Passed
	sum.Verified = true
	if r.XPEarned > sum.Stats.XPEarned {
		sum.Stats.XPEarned = r.XPEarned
	}
}
