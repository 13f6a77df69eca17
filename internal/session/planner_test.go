package session

import (
	"testing"

	"github.com/abhisek/examdrill/internal/card"
)

func TestReviewQuestions(t *testing.T) {
	cards := []card.Card{
		card.New("c1", "s", card.Meaning{Direction: card.EnglishToGreek, Word: "νερό", Translation: "water"}),
		card.New("c2", "s", card.CultureFact{Question: "Capital?", Answer: "Athens", Topic: "geo"}),
	}
	qs := reviewQuestions(cards)

	if len(qs) != 2 {
		t.Fatalf("len = %d, want 2", len(qs))
	}
	if qs[0].Question.Prompt != "water" {
		t.Errorf("prompt = %q, want %q", qs[0].Question.Prompt, "water")
	}
	if qs[1].Question.Hint != "geo" {
		t.Errorf("hint = %q, want %q", qs[1].Question.Hint, "geo")
	}
	if qs[0].Card == nil || qs[0].Question.CardID != "c1" {
		t.Errorf("question 0 not linked to card c1")
	}

	qs[0].Card.SRS.Repetitions = 9
	if cards[0].SRS.Repetitions != 0 {
		t.Error("question card aliases the queue card")
	}
}

func TestNewSession_ShowsFirstQuestion(t *testing.T) {
	cfg := Config{Variant: VariantCultureQuiz, SubjectID: "culture"}.withDefaults()
	s := newSession("id", cfg, serverQuestions(newFakeServer(3).questions), t0)

	if s.Status != StatusActive {
		t.Errorf("Status = %s, want active", s.Status)
	}
	if s.CurrentIndex != 0 {
		t.Errorf("CurrentIndex = %d, want 0", s.CurrentIndex)
	}
	if s.Questions[0].ShownAt == nil || !s.Questions[0].ShownAt.Equal(t0) {
		t.Errorf("first question ShownAt = %v, want %v", s.Questions[0].ShownAt, t0)
	}
	if s.Questions[1].ShownAt != nil {
		t.Error("second question should not be shown yet")
	}
	if s.PassPercent != DefaultQuizPassPercent {
		t.Errorf("PassPercent = %v, want %v", s.PassPercent, DefaultQuizPassPercent)
	}
}

func TestApplyRecorded(t *testing.T) {
	s := &Session{Questions: serverQuestions(newFakeServer(3).questions)}
	// q02 was answered locally but never synced.
	s.Questions[1].Answered = true
	s.Questions[1].Selection = &Selection{Option: 2}

	applyRecorded(s, []RecordedAnswer{
		{QuestionID: "q01", Selection: 0, IsCorrect: true, XPEarned: 5},
		{QuestionID: "q02", Selection: 2, IsCorrect: false, CorrectOption: 1},
		{QuestionID: "unknown"},
	})

	q1, q2, q3 := s.Questions[0], s.Questions[1], s.Questions[2]
	if !q1.Answered || !q1.Synced || !q1.Correct || q1.XPEarned != 5 {
		t.Errorf("q01 = %+v, want answered, synced, correct, 5 xp", q1)
	}
	if !q2.Synced || !q2.CorrectKnown || q2.Correct || q2.CorrectOption == nil || *q2.CorrectOption != 1 {
		t.Errorf("q02 = %+v, want server verdict applied", q2)
	}
	if q3.Answered {
		t.Error("q03 should stay unanswered")
	}
	if got := firstUnanswered(s); got != 2 {
		t.Errorf("firstUnanswered = %d, want 2", got)
	}
}

func TestFirstUnanswered_AllAnswered(t *testing.T) {
	s := &Session{Questions: []QuestionState{{Answered: true}, {Answered: true}}}
	if got := firstUnanswered(s); got != 1 {
		t.Errorf("firstUnanswered = %d, want 1", got)
	}
	if got := firstUnanswered(&Session{}); got != 0 {
		t.Errorf("firstUnanswered(empty) = %d, want 0", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"review defaults", Config{Variant: VariantReview, SubjectID: "s"}, false},
		{"exam defaults", Config{Variant: VariantMockExam, SubjectID: "s"}, false},
		{"unknown variant", Config{Variant: "flash", SubjectID: "s"}, true},
		{"missing subject", Config{Variant: VariantReview}, true},
		{"negative timer", Config{Variant: VariantMockExam, SubjectID: "s", TotalSeconds: -5}, true},
		{"pass mark over 100", Config{Variant: VariantCultureQuiz, SubjectID: "s", PassPercent: 120}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.withDefaults().Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
