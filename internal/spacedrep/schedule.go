package spacedrep

import "time"

// DefaultLearningSteps is the fixed ladder a new or lapsed card climbs
// before it graduates to interval-based scheduling.
var DefaultLearningSteps = []time.Duration{10 * time.Minute, 24 * time.Hour}

const (
	// DefaultEaseFactor is the ease assigned to a card that has never been reviewed.
	DefaultEaseFactor = 2.5

	// MinEaseFactor is the floor for the ease factor.
	MinEaseFactor = 1.3

	// MasteryIntervalDays is the minimum interval for a card to count as mastered.
	MasteryIntervalDays = 21

	// MasterySuccessRate is the minimum success rate (percent) for mastery.
	MasterySuccessRate = 80.0

	againEasePenalty = 0.2
	hardEasePenalty  = 0.15
	easyEaseBonus    = 0.15
	hardMultiplier   = 1.2
	easyMultiplier   = 1.3
)

// Config tunes the scheduler. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	LearningSteps       []time.Duration
	DefaultEaseFactor   float64
	MinEaseFactor       float64
	MasteryIntervalDays int
	MasterySuccessRate  float64
}

// DefaultConfig returns the standard SM-2 parameters.
func DefaultConfig() Config {
	steps := make([]time.Duration, len(DefaultLearningSteps))
	copy(steps, DefaultLearningSteps)
	return Config{
		LearningSteps:       steps,
		DefaultEaseFactor:   DefaultEaseFactor,
		MinEaseFactor:       MinEaseFactor,
		MasteryIntervalDays: MasteryIntervalDays,
		MasterySuccessRate:  MasterySuccessRate,
	}
}

func (c Config) step(i int) time.Duration {
	if len(c.LearningSteps) == 0 {
		return DefaultLearningSteps[0]
	}
	if i < 0 {
		i = 0
	}
	if i >= len(c.LearningSteps) {
		i = len(c.LearningSteps) - 1
	}
	return c.LearningSteps[i]
}
