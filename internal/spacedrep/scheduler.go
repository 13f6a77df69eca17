package spacedrep

import (
	"math"
	"time"
)

// Scheduler computes the next review state of a card. It holds no
// per-card state and is safe for concurrent use.
type Scheduler struct {
	cfg Config
}

// NewScheduler creates a scheduler with the given configuration.
func NewScheduler(cfg Config) *Scheduler {
	if len(cfg.LearningSteps) == 0 {
		cfg.LearningSteps = DefaultConfig().LearningSteps
	}
	if cfg.MinEaseFactor <= 0 {
		cfg.MinEaseFactor = MinEaseFactor
	}
	if cfg.DefaultEaseFactor < cfg.MinEaseFactor {
		cfg.DefaultEaseFactor = DefaultEaseFactor
	}
	return &Scheduler{cfg: cfg}
}

// Config returns the scheduler configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Schedule is the package-level form of Scheduler.Schedule using DefaultConfig.
func Schedule(d Data, r Rating, now time.Time) Data {
	return NewScheduler(DefaultConfig()).Schedule(d, r, now)
}

// Schedule returns the card state after a review with rating r at now.
// The input is not modified. An unknown rating is treated as again.
func (s *Scheduler) Schedule(d Data, r Rating, now time.Time) Data {
	next := d.Clone()
	if next.EaseFactor == 0 {
		next.EaseFactor = s.cfg.DefaultEaseFactor
	}
	if next.State == "" {
		next.State = StateNew
	}

	switch r {
	case RatingHard:
		s.hard(&next, now)
	case RatingGood:
		s.good(&next, now)
	case RatingEasy:
		s.easy(&next, now)
	default:
		r = RatingAgain
		s.again(&next, now)
	}

	next.ReviewCount++
	if r.Success() {
		next.SuccessCount++
	} else {
		next.FailureCount++
	}
	next.SuccessRate = successRate(next.SuccessCount, next.ReviewCount)
	reviewed := now
	next.LastReviewed = &reviewed

	if r.Success() {
		switch {
		case next.IsMastered(s.cfg):
			next.State = StateMastered
		case next.State == StateMastered:
			next.State = StateReview
		}
	}
	return next
}

func (s *Scheduler) again(d *Data, now time.Time) {
	d.Repetitions = 0
	d.Step = 0
	if d.State == StateNew {
		d.State = StateLearning
	} else {
		d.State = StateRelearning
	}
	d.Interval = 0
	d.EaseFactor = s.floorEase(d.EaseFactor - againEasePenalty)
	d.DueDate = dueAt(now.Add(s.cfg.step(0)))
}

func (s *Scheduler) hard(d *Data, now time.Time) {
	d.EaseFactor = s.floorEase(d.EaseFactor - hardEasePenalty)

	if d.State.InLadder() {
		// Repeat the current step.
		if d.State == StateNew {
			d.State = StateLearning
			d.Step = 0
		}
		d.DueDate = dueAt(now.Add(s.cfg.step(d.Step)))
		return
	}

	d.Interval = max(1, roundDays(float64(d.Interval)*hardMultiplier))
	d.DueDate = dueAt(now.AddDate(0, 0, d.Interval))
}

func (s *Scheduler) good(d *Data, now time.Time) {
	if d.State.InLadder() && d.Step+1 < len(s.cfg.LearningSteps) {
		if d.State == StateNew {
			d.State = StateLearning
		}
		d.Step++
		d.DueDate = dueAt(now.Add(s.cfg.step(d.Step)))
		return
	}
	s.graduate(d, now, float64(max(1, d.Interval))*d.EaseFactor)
}

func (s *Scheduler) easy(d *Data, now time.Time) {
	s.graduate(d, now, float64(max(1, d.Interval))*d.EaseFactor*easyMultiplier)
	d.EaseFactor = roundEase(d.EaseFactor + easyEaseBonus)
}

func (s *Scheduler) graduate(d *Data, now time.Time, rawInterval float64) {
	d.Interval = max(1, roundDays(rawInterval))
	d.Repetitions++
	d.State = StateReview
	d.Step = 0
	d.DueDate = dueAt(now.AddDate(0, 0, d.Interval))
}

func (s *Scheduler) floorEase(e float64) float64 {
	return math.Max(s.cfg.MinEaseFactor, roundEase(e))
}

// roundEase strips float noise from repeated ±0.15/0.2 steps.
func roundEase(e float64) float64 {
	return math.Round(e*1000) / 1000
}

func roundDays(v float64) int {
	return int(math.Round(v))
}

func successRate(success, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(success) / float64(total) * 100
}

func dueAt(t time.Time) *time.Time {
	return &t
}
