package session

// Stats are the cumulative results of a session. They are always derived
// from the question list by ComputeStats and never updated in place, so a
// resubmitted answer cannot be counted twice.
type Stats struct {
	QuestionsAnswered  int     `json:"questionsAnswered"`
	CorrectCount       int     `json:"correctCount"`
	Accuracy           float64 `json:"accuracy"` // percent, 0 when nothing answered
	TotalTimeSeconds   float64 `json:"totalTimeSeconds"`
	AverageTimeSeconds float64 `json:"averageTimeSeconds"`
	XPEarned           int     `json:"xpEarned"`
}

// ComputeStats derives Stats from questions. Answers still waiting for
// the server's verdict count as answered but not correct.
func ComputeStats(questions []QuestionState) Stats {
	var s Stats
	for _, q := range questions {
		if !q.Answered {
			continue
		}
		s.QuestionsAnswered++
		if q.CorrectKnown && q.Correct {
			s.CorrectCount++
		}
		s.TotalTimeSeconds += q.ElapsedSeconds
		s.XPEarned += q.XPEarned
	}
	if s.QuestionsAnswered > 0 {
		s.Accuracy = float64(s.CorrectCount) / float64(s.QuestionsAnswered) * 100
		s.AverageTimeSeconds = s.TotalTimeSeconds / float64(s.QuestionsAnswered)
	}
	return s
}
