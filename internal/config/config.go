// Package config loads examdrill settings from YAML and the environment.
package config

import (
	"time"

	"github.com/abhisek/examdrill/internal/examapi"
	"github.com/abhisek/examdrill/internal/notify"
	"github.com/abhisek/examdrill/internal/queue"
	"github.com/abhisek/examdrill/internal/session"
	"github.com/abhisek/examdrill/internal/spacedrep"
)

// Config is the root configuration.
type Config struct {
	// Language is sent to the exam server when a session starts.
	Language string `yaml:"language" env:"EXAMDRILL_LANGUAGE" env-default:"en"`

	DB       DBConfig       `yaml:"db"`
	Log      LogConfig      `yaml:"log"`
	SRS      SRSConfig      `yaml:"srs"`
	Queue    queue.Config   `yaml:"queue"`
	Review   ReviewConfig   `yaml:"review"`
	Exam     ExamConfig     `yaml:"exam"`
	Quiz     QuizConfig     `yaml:"quiz"`
	Sync     SyncConfig     `yaml:"sync"`
	API      examapi.Config `yaml:"api"`
	AMQP     notify.Config  `yaml:"amqp"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DBConfig locates the SQLite database. An empty path resolves to the
// XDG data directory.
type DBConfig struct {
	Path string `yaml:"path" env:"EXAMDRILL_DB"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// SRSConfig holds spaced repetition parameters.
type SRSConfig struct {
	LearningStepsRaw    string  `yaml:"learning_steps"        env:"SRS_LEARNING_STEPS"        env-default:"10m,24h"`
	DefaultEaseFactor   float64 `yaml:"default_ease_factor"   env:"SRS_DEFAULT_EASE"          env-default:"2.5"`
	MinEaseFactor       float64 `yaml:"min_ease_factor"       env:"SRS_MIN_EASE"              env-default:"1.3"`
	MasteryIntervalDays int     `yaml:"mastery_interval_days" env:"SRS_MASTERY_INTERVAL_DAYS" env-default:"21"`
	MasterySuccessRate  float64 `yaml:"mastery_success_rate"  env:"SRS_MASTERY_SUCCESS_RATE"  env-default:"80"`

	// LearningSteps is parsed from LearningStepsRaw during validation.
	LearningSteps []time.Duration `yaml:"-" env:"-"`
}

// ReviewConfig holds review session settings.
type ReviewConfig struct {
	MaxCards       int           `yaml:"max_cards"        env:"REVIEW_MAX_CARDS"        env-default:"0"`
	MaxSnapshotAge time.Duration `yaml:"max_snapshot_age" env:"REVIEW_MAX_SNAPSHOT_AGE" env-default:"24h"`
}

// ExamConfig holds mock exam settings.
type ExamConfig struct {
	Questions         int           `yaml:"questions"           env:"EXAM_QUESTIONS"           env-default:"25"`
	Duration          time.Duration `yaml:"duration"            env:"EXAM_DURATION"            env-default:"45m"`
	PassPercent       float64       `yaml:"pass_percent"        env:"EXAM_PASS_PERCENT"        env-default:"60"`
	QuestionTimeLimit time.Duration `yaml:"question_time_limit" env:"EXAM_QUESTION_TIME_LIMIT" env-default:"0s"`
	MaxSnapshotAge    time.Duration `yaml:"max_snapshot_age"    env:"EXAM_MAX_SNAPSHOT_AGE"    env-default:"3h"`
}

// QuizConfig holds culture quiz settings.
type QuizConfig struct {
	Questions         int           `yaml:"questions"           env:"QUIZ_QUESTIONS"           env-default:"10"`
	PassPercent       float64       `yaml:"pass_percent"        env:"QUIZ_PASS_PERCENT"        env-default:"70"`
	QuestionTimeLimit time.Duration `yaml:"question_time_limit" env:"QUIZ_QUESTION_TIME_LIMIT" env-default:"0s"`
	Randomize         bool          `yaml:"randomize"           env:"QUIZ_RANDOMIZE"           env-default:"true"`
	MaxSnapshotAge    time.Duration `yaml:"max_snapshot_age"    env:"QUIZ_MAX_SNAPSHOT_AGE"    env-default:"1h"`
}

// SyncConfig controls background retries of server calls.
type SyncConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval" env:"SYNC_INITIAL_INTERVAL" env-default:"500ms"`
	MaxInterval     time.Duration `yaml:"max_interval"     env:"SYNC_MAX_INTERVAL"     env-default:"30s"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time" env:"SYNC_MAX_ELAPSED"      env-default:"5m"`
	MaxRetries      uint64        `yaml:"max_retries"      env:"SYNC_MAX_RETRIES"      env-default:"8"`
	AttemptTimeout  time.Duration `yaml:"attempt_timeout"  env:"SYNC_ATTEMPT_TIMEOUT"  env-default:"10s"`
}

// Recovery backends.
const (
	RecoverySQLite = "sqlite"
	RecoveryFile   = "file"
	RecoveryRedis  = "redis"
	RecoveryMemory = "memory"
)

// RecoveryConfig selects where in-progress snapshots are kept.
type RecoveryConfig struct {
	Backend       string        `yaml:"backend"        env:"RECOVERY_BACKEND"        env-default:"sqlite"`
	Dir           string        `yaml:"dir"            env:"RECOVERY_DIR"`
	RedisAddr     string        `yaml:"redis_addr"     env:"RECOVERY_REDIS_ADDR"     env-default:"localhost:6379"`
	RedisPassword string        `yaml:"redis_password" env:"RECOVERY_REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db"       env:"RECOVERY_REDIS_DB"       env-default:"0"`
	TTL           time.Duration `yaml:"ttl"            env:"RECOVERY_TTL"            env-default:"24h"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"METRICS_ADDR"`
}

// Scheduler returns the scheduler parameters. Call after Validate.
func (c SRSConfig) Scheduler() spacedrep.Config {
	cfg := spacedrep.DefaultConfig()
	if len(c.LearningSteps) > 0 {
		cfg.LearningSteps = append([]time.Duration(nil), c.LearningSteps...)
	}
	if c.DefaultEaseFactor > 0 {
		cfg.DefaultEaseFactor = c.DefaultEaseFactor
	}
	if c.MinEaseFactor > 0 {
		cfg.MinEaseFactor = c.MinEaseFactor
	}
	if c.MasteryIntervalDays > 0 {
		cfg.MasteryIntervalDays = c.MasteryIntervalDays
	}
	if c.MasterySuccessRate > 0 {
		cfg.MasterySuccessRate = c.MasterySuccessRate
	}
	return cfg
}

// Policy returns the outbox retry policy.
func (c SyncConfig) Policy() session.SyncPolicy {
	return session.SyncPolicy{
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
		MaxElapsedTime:  c.MaxElapsedTime,
		MaxRetries:      c.MaxRetries,
		AttemptTimeout:  c.AttemptTimeout,
	}
}

// Session builds the session config for variant and subject.
func (c *Config) Session(v session.Variant, subjectID string) session.Config {
	sc := session.Config{Variant: v, SubjectID: subjectID, Language: c.Language}
	switch v {
	case session.VariantReview:
		sc.Queue = c.Queue
		sc.Randomize = c.Queue.Randomize
		sc.QuestionCount = c.Review.MaxCards
		sc.MaxSnapshotAge = c.Review.MaxSnapshotAge
	case session.VariantMockExam:
		sc.QuestionCount = c.Exam.Questions
		sc.TotalSeconds = int(c.Exam.Duration / time.Second)
		sc.PassPercent = c.Exam.PassPercent
		sc.QuestionTimeLimit = c.Exam.QuestionTimeLimit
		sc.MaxSnapshotAge = c.Exam.MaxSnapshotAge
	case session.VariantCultureQuiz:
		sc.QuestionCount = c.Quiz.Questions
		sc.PassPercent = c.Quiz.PassPercent
		sc.QuestionTimeLimit = c.Quiz.QuestionTimeLimit
		sc.Randomize = c.Quiz.Randomize
		sc.MaxSnapshotAge = c.Quiz.MaxSnapshotAge
	}
	return sc
}
