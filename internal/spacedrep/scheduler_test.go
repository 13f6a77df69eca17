package spacedrep

import (
	"math"
	"testing"
	"time"
)

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func reviewCard(interval int, ease float64, reps int) Data {
	due := testNow
	return Data{
		Interval:     interval,
		EaseFactor:   ease,
		Repetitions:  reps,
		State:        StateReview,
		DueDate:      &due,
		ReviewCount:  reps,
		SuccessCount: reps,
		SuccessRate:  100,
	}
}

func TestSchedule_GoodOnReviewCard(t *testing.T) {
	got := Schedule(reviewCard(6, 2.5, 2), RatingGood, testNow)

	if got.Interval != 15 {
		t.Errorf("Interval = %d, want 15", got.Interval)
	}
	if got.Repetitions != 3 {
		t.Errorf("Repetitions = %d, want 3", got.Repetitions)
	}
	if !approx(got.EaseFactor, 2.5) {
		t.Errorf("EaseFactor = %v, want 2.5", got.EaseFactor)
	}
	if got.State != StateReview {
		t.Errorf("State = %q, want review", got.State)
	}
	wantDue := testNow.AddDate(0, 0, 15)
	if got.DueDate == nil || !got.DueDate.Equal(wantDue) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, wantDue)
	}
}

func TestSchedule_AgainAfterGood(t *testing.T) {
	afterGood := Schedule(reviewCard(6, 2.5, 2), RatingGood, testNow)
	got := Schedule(afterGood, RatingAgain, testNow.AddDate(0, 0, 15))

	if got.Interval != 0 {
		t.Errorf("Interval = %d, want 0", got.Interval)
	}
	if got.Repetitions != 0 {
		t.Errorf("Repetitions = %d, want 0", got.Repetitions)
	}
	if !approx(got.EaseFactor, 2.3) {
		t.Errorf("EaseFactor = %v, want 2.3", got.EaseFactor)
	}
	if got.State != StateRelearning {
		t.Errorf("State = %q, want relearning", got.State)
	}
	wantDue := testNow.AddDate(0, 0, 15).Add(10 * time.Minute)
	if !got.DueDate.Equal(wantDue) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, wantDue)
	}
}

func TestSchedule_EaseNeverBelowFloor(t *testing.T) {
	d := reviewCard(30, 2.5, 5)
	now := testNow
	for i := 0; i < 50; i++ {
		d = Schedule(d, RatingAgain, now)
		if d.EaseFactor < MinEaseFactor {
			t.Fatalf("iteration %d: EaseFactor = %v, below floor", i, d.EaseFactor)
		}
		now = now.Add(time.Hour)
	}
	if !approx(d.EaseFactor, MinEaseFactor) {
		t.Errorf("EaseFactor = %v, want floor %v", d.EaseFactor, MinEaseFactor)
	}

	for i := 0; i < 20; i++ {
		d = Schedule(d, RatingHard, now)
		if d.EaseFactor < MinEaseFactor {
			t.Fatalf("hard iteration %d: EaseFactor = %v, below floor", i, d.EaseFactor)
		}
	}
}

func TestSchedule_AgainResetsFromEveryState(t *testing.T) {
	states := []State{StateNew, StateLearning, StateReview, StateRelearning, StateMastered}
	for _, st := range states {
		t.Run(string(st), func(t *testing.T) {
			d := reviewCard(25, 2.5, 7)
			d.State = st
			d.Step = 1
			got := Schedule(d, RatingAgain, testNow)
			if got.Repetitions != 0 {
				t.Errorf("Repetitions = %d, want 0", got.Repetitions)
			}
			if got.Step != 0 {
				t.Errorf("Step = %d, want 0", got.Step)
			}
			want := StateRelearning
			if st == StateNew {
				want = StateLearning
			}
			if got.State != want {
				t.Errorf("State = %q, want %q", got.State, want)
			}
		})
	}
}

func TestSchedule_NewCardClimbsLadder(t *testing.T) {
	d := NewData()

	d = Schedule(d, RatingGood, testNow)
	if d.State != StateLearning || d.Step != 1 {
		t.Fatalf("after first good: state=%q step=%d, want learning/1", d.State, d.Step)
	}
	if d.Interval != 0 {
		t.Errorf("Interval = %d, want 0 while in ladder", d.Interval)
	}
	if !approx(d.EaseFactor, DefaultEaseFactor) {
		t.Errorf("EaseFactor changed in ladder: %v", d.EaseFactor)
	}
	if !d.DueDate.Equal(testNow.Add(24 * time.Hour)) {
		t.Errorf("DueDate = %v, want +24h", d.DueDate)
	}

	next := testNow.Add(24 * time.Hour)
	d = Schedule(d, RatingGood, next)
	if d.State != StateReview {
		t.Fatalf("State = %q, want review after graduating", d.State)
	}
	if d.Interval != 3 {
		t.Errorf("Interval = %d, want 3 (round(1*2.5))", d.Interval)
	}
	if d.Repetitions != 1 {
		t.Errorf("Repetitions = %d, want 1", d.Repetitions)
	}
	if d.Step != 0 {
		t.Errorf("Step = %d, want 0", d.Step)
	}
}

func TestSchedule_EasyGraduatesImmediately(t *testing.T) {
	got := Schedule(NewData(), RatingEasy, testNow)

	if got.State != StateReview {
		t.Errorf("State = %q, want review", got.State)
	}
	// round(1 * 2.5 * 1.3) = round(3.25) = 3
	if got.Interval != 3 {
		t.Errorf("Interval = %d, want 3", got.Interval)
	}
	if !approx(got.EaseFactor, 2.65) {
		t.Errorf("EaseFactor = %v, want 2.65", got.EaseFactor)
	}
	if got.Repetitions != 1 {
		t.Errorf("Repetitions = %d, want 1", got.Repetitions)
	}
}

func TestSchedule_EasyBeatsGood(t *testing.T) {
	base := reviewCard(10, 2.5, 3)
	good := Schedule(base, RatingGood, testNow)
	easy := Schedule(base, RatingEasy, testNow)
	if easy.Interval <= good.Interval {
		t.Errorf("easy interval %d should exceed good interval %d", easy.Interval, good.Interval)
	}
}

func TestSchedule_HardOnReviewCard(t *testing.T) {
	got := Schedule(reviewCard(10, 2.5, 3), RatingHard, testNow)
	if got.Interval != 12 {
		t.Errorf("Interval = %d, want 12", got.Interval)
	}
	if !approx(got.EaseFactor, 2.35) {
		t.Errorf("EaseFactor = %v, want 2.35", got.EaseFactor)
	}
	if got.Repetitions != 3 {
		t.Errorf("Repetitions = %d, want unchanged 3", got.Repetitions)
	}
	if got.State != StateReview {
		t.Errorf("State = %q, want review", got.State)
	}
}

func TestSchedule_HardFloorsIntervalAtOne(t *testing.T) {
	d := reviewCard(0, 2.5, 1)
	got := Schedule(d, RatingHard, testNow)
	if got.Interval != 1 {
		t.Errorf("Interval = %d, want 1", got.Interval)
	}
}

func TestSchedule_HardInLadderRepeatsStep(t *testing.T) {
	d := Schedule(NewData(), RatingGood, testNow) // learning, step 1
	got := Schedule(d, RatingHard, testNow.Add(24*time.Hour))

	if got.State != StateLearning {
		t.Errorf("State = %q, want learning", got.State)
	}
	if got.Step != 1 {
		t.Errorf("Step = %d, want 1", got.Step)
	}
	if got.Interval != 0 {
		t.Errorf("Interval = %d, want 0", got.Interval)
	}
	want := testNow.Add(48 * time.Hour)
	if !got.DueDate.Equal(want) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, want)
	}
}

func TestSchedule_HardOnNewCardEntersLearning(t *testing.T) {
	got := Schedule(NewData(), RatingHard, testNow)
	if got.State != StateLearning {
		t.Errorf("State = %q, want learning", got.State)
	}
	if got.ReviewCount != 1 {
		t.Errorf("ReviewCount = %d, want 1", got.ReviewCount)
	}
}

func TestSchedule_Counters(t *testing.T) {
	d := NewData()
	ratings := []Rating{RatingGood, RatingAgain, RatingGood, RatingGood, RatingEasy}
	now := testNow
	for _, r := range ratings {
		d = Schedule(d, r, now)
		now = now.Add(48 * time.Hour)
	}
	if d.ReviewCount != 5 {
		t.Errorf("ReviewCount = %d, want 5", d.ReviewCount)
	}
	if d.SuccessCount != 4 || d.FailureCount != 1 {
		t.Errorf("Success/Failure = %d/%d, want 4/1", d.SuccessCount, d.FailureCount)
	}
	if !approx(d.SuccessRate, 80) {
		t.Errorf("SuccessRate = %v, want 80", d.SuccessRate)
	}
	if d.LastReviewed == nil || !d.LastReviewed.Equal(now.Add(-48*time.Hour)) {
		t.Errorf("LastReviewed = %v", d.LastReviewed)
	}
}

func TestSchedule_MasteryPromotionAndDemotion(t *testing.T) {
	d := reviewCard(10, 2.5, 4)
	d = Schedule(d, RatingGood, testNow) // interval 25, rate 100
	if d.Interval < MasteryIntervalDays {
		t.Fatalf("Interval = %d, expected >= %d", d.Interval, MasteryIntervalDays)
	}
	if d.State != StateMastered {
		t.Fatalf("State = %q, want mastered", d.State)
	}

	d = Schedule(d, RatingAgain, testNow.AddDate(0, 0, 25))
	if d.State != StateRelearning {
		t.Errorf("State = %q, want relearning after lapse", d.State)
	}
}

func TestSchedule_NoMasteryWithLowSuccessRate(t *testing.T) {
	d := reviewCard(10, 2.5, 4)
	d.ReviewCount = 10
	d.SuccessCount = 6
	d.FailureCount = 4
	got := Schedule(d, RatingGood, testNow)
	if got.Interval < MasteryIntervalDays {
		t.Fatalf("Interval = %d, expected >= %d", got.Interval, MasteryIntervalDays)
	}
	// 7/11 = 63.6%
	if got.State != StateReview {
		t.Errorf("State = %q, want review (success rate too low)", got.State)
	}
}

func TestSchedule_MasteryIffCondition(t *testing.T) {
	ratings := []Rating{RatingGood, RatingEasy, RatingHard, RatingAgain}
	d := NewData()
	now := testNow
	for i := 0; i < 60; i++ {
		r := ratings[i%len(ratings)]
		if i%7 == 0 {
			r = RatingEasy
		}
		d = Schedule(d, r, now)
		mastered := d.Interval >= MasteryIntervalDays && d.SuccessRate >= MasterySuccessRate && r.Success()
		if (d.State == StateMastered) != mastered {
			t.Fatalf("step %d (%s): state=%q interval=%d rate=%.1f", i, r, d.State, d.Interval, d.SuccessRate)
		}
		now = now.Add(time.Duration(d.Interval+1) * 24 * time.Hour)
	}
}

func TestSchedule_DoesNotMutateInput(t *testing.T) {
	in := reviewCard(6, 2.5, 2)
	due := *in.DueDate
	_ = Schedule(in, RatingEasy, testNow.Add(time.Hour))
	if in.Interval != 6 || in.Repetitions != 2 || !in.DueDate.Equal(due) {
		t.Error("Schedule mutated its input")
	}
}

func TestSchedule_UnknownRatingIsAgain(t *testing.T) {
	got := Schedule(reviewCard(6, 2.5, 2), Rating("bogus"), testNow)
	if got.State != StateRelearning || got.FailureCount != 1 {
		t.Errorf("unknown rating should behave as again, got state=%q failures=%d", got.State, got.FailureCount)
	}
}

func TestNewScheduler_CustomSteps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LearningSteps = []time.Duration{time.Minute, 10 * time.Minute, time.Hour}
	s := NewScheduler(cfg)

	d := s.Schedule(NewData(), RatingGood, testNow)
	d = s.Schedule(d, RatingGood, testNow)
	if d.Step != 2 || d.State != StateLearning {
		t.Fatalf("state=%q step=%d, want learning/2", d.State, d.Step)
	}
	if !d.DueDate.Equal(testNow.Add(time.Hour)) {
		t.Errorf("DueDate = %v, want +1h", d.DueDate)
	}
	d = s.Schedule(d, RatingGood, testNow)
	if d.State != StateReview {
		t.Errorf("State = %q, want review after last step", d.State)
	}
}
