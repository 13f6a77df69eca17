package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks the loaded configuration and parses derived fields.
// Load calls it automatically.
func (c *Config) Validate() error {
	if err := c.SRS.validate(); err != nil {
		return fmt.Errorf("srs: %w", err)
	}
	if c.Queue.MaxNewCards < 0 || c.Queue.MaxReviewCards < 0 {
		return fmt.Errorf("queue: limits must be >= 0 (got new %d, review %d)", c.Queue.MaxNewCards, c.Queue.MaxReviewCards)
	}
	if c.Exam.Questions <= 0 {
		return fmt.Errorf("exam.questions must be > 0 (got %d)", c.Exam.Questions)
	}
	if c.Exam.Duration < time.Second {
		return fmt.Errorf("exam.duration must be at least 1s (got %s)", c.Exam.Duration)
	}
	if c.Quiz.Questions <= 0 {
		return fmt.Errorf("quiz.questions must be > 0 (got %d)", c.Quiz.Questions)
	}
	for name, p := range map[string]float64{"exam.pass_percent": c.Exam.PassPercent, "quiz.pass_percent": c.Quiz.PassPercent} {
		if p < 0 || p > 100 {
			return fmt.Errorf("%s must be between 0 and 100 (got %v)", name, p)
		}
	}
	switch c.Recovery.Backend {
	case RecoverySQLite, RecoveryMemory, RecoveryRedis:
	case RecoveryFile:
		if c.Recovery.Dir == "" {
			return fmt.Errorf("recovery.dir is required for the file backend")
		}
	default:
		return fmt.Errorf("recovery.backend %q is not one of sqlite, file, redis, memory", c.Recovery.Backend)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q is not text or json", c.Log.Format)
	}
	return nil
}

func (s *SRSConfig) validate() error {
	if s.MinEaseFactor <= 0 {
		return fmt.Errorf("min_ease_factor must be > 0 (got %v)", s.MinEaseFactor)
	}
	if s.DefaultEaseFactor < s.MinEaseFactor {
		return fmt.Errorf("default_ease_factor must be >= min_ease_factor (got %v < %v)", s.DefaultEaseFactor, s.MinEaseFactor)
	}

	steps, err := ParseLearningSteps(s.LearningStepsRaw)
	if err != nil {
		return fmt.Errorf("learning_steps: %w", err)
	}
	s.LearningSteps = steps
	return nil
}

// ParseLearningSteps parses a comma-separated list of durations such as
// "10m,24h". An empty string returns nil.
func ParseLearningSteps(raw string) ([]time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	steps := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := time.ParseDuration(p)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", p, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("step %q must be positive", p)
		}
		steps = append(steps, d)
	}
	return steps, nil
}
