package timer

import (
	"log/slog"
	"math"
	"time"

	"github.com/abhisek/examdrill/internal/clock"
)

// Warning thresholds in seconds.
const (
	WarnFiveMinutes = 300
	WarnOneMinute   = 60
)

// WarningLevel escalates as the countdown approaches zero.
type WarningLevel string

const (
	WarningNone    WarningLevel = "none"
	Warning5Min    WarningLevel = "warning_5min"
	Warning1Min    WarningLevel = "warning_1min"
	warningUnknown WarningLevel = ""
)

func (w WarningLevel) rank() int {
	switch w {
	case Warning5Min:
		return 1
	case Warning1Min:
		return 2
	}
	return 0
}

// LevelFor maps remaining seconds to a warning level.
func LevelFor(remaining float64) WarningLevel {
	switch {
	case remaining <= WarnOneMinute:
		return Warning1Min
	case remaining <= WarnFiveMinutes:
		return Warning5Min
	}
	return WarningNone
}

// State is the serializable countdown state.
type State struct {
	TotalSeconds     int          `json:"totalSeconds"`
	RemainingSeconds float64      `json:"remainingSeconds"`
	IsRunning        bool         `json:"isRunning"`
	WarningLevel     WarningLevel `json:"warningLevel"`
	LastTickAt       time.Time    `json:"lastTickAt"`
	PausedAt         *time.Time   `json:"pausedAt,omitempty"`
	Expired          bool         `json:"expired"`
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.PausedAt != nil {
		t := *s.PausedAt
		out.PausedAt = &t
	}
	return out
}

// Whole returns the remaining time rounded up to whole seconds.
func (s State) Whole() int {
	return int(math.Ceil(s.RemainingSeconds))
}

// Option configures a Controller.
type Option func(*Controller)

// WithOnExpire registers the callback run once when the countdown hits zero.
func WithOnExpire(fn func()) Option {
	return func(c *Controller) { c.onExpire = fn }
}

// WithOnWarning registers a callback run whenever the warning level rises.
func WithOnWarning(fn func(WarningLevel)) Option {
	return func(c *Controller) { c.onWarning = fn }
}

// WithLogger sets the logger used to report clock jumps.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller is a wall-clock countdown. Remaining time is always derived
// from the real time elapsed since the last tick, so a throttled or late
// tick loop loses no time.
//
// Controller is not safe for concurrent use; the owner serializes calls.
// Callbacks run synchronously inside Tick and must not call back into the
// controller.
type Controller struct {
	clock     clock.Clock
	logger    *slog.Logger
	onExpire  func()
	onWarning func(WarningLevel)
	state     State
	fired     bool
}

// New creates a stopped controller.
func New(clk clock.Clock, opts ...Option) *Controller {
	if clk == nil {
		clk = clock.Real{}
	}
	c := &Controller{clock: clk, state: State{WarningLevel: WarningNone}}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Restore creates a controller from a saved state. A running countdown is
// charged for the time since its last tick on the next Tick; a paused one
// is not.
func Restore(st State, clk clock.Clock, opts ...Option) *Controller {
	c := New(clk, opts...)
	c.state = st.Clone()
	if c.state.WarningLevel == warningUnknown {
		c.state.WarningLevel = WarningNone
	}
	c.fired = st.Expired
	return c
}

// Start begins a fresh countdown, resetting warnings and expiry.
func (c *Controller) Start(totalSeconds int) {
	c.state = State{
		TotalSeconds:     totalSeconds,
		RemainingSeconds: float64(totalSeconds),
		IsRunning:        totalSeconds > 0,
		WarningLevel:     WarningNone,
		LastTickAt:       c.clock.Now(),
	}
	c.fired = false
	if totalSeconds <= 0 {
		c.expire()
	}
}

// Tick charges the wall-clock time since the previous tick against the
// remaining time and returns the new state.
func (c *Controller) Tick() State {
	if !c.state.IsRunning {
		return c.State()
	}
	now := c.clock.Now()
	elapsed := now.Sub(c.state.LastTickAt).Seconds()
	total := float64(c.state.TotalSeconds)

	switch {
	case elapsed < 0:
		c.logger.Warn("timer clock moved backwards",
			"elapsed_seconds", elapsed,
			"remaining_seconds", c.state.RemainingSeconds)
		elapsed = 0
	case elapsed > total:
		c.logger.Warn("timer clock jumped forward",
			"elapsed_seconds", elapsed,
			"total_seconds", c.state.TotalSeconds)
	}

	c.state.RemainingSeconds = clamp(c.state.RemainingSeconds-elapsed, 0, total)
	c.state.LastTickAt = now

	if lvl := LevelFor(c.state.RemainingSeconds); lvl.rank() > c.state.WarningLevel.rank() {
		c.state.WarningLevel = lvl
		if c.onWarning != nil {
			c.onWarning(lvl)
		}
	}
	if c.state.RemainingSeconds <= 0 {
		c.expire()
	}
	return c.State()
}

// Pause charges elapsed time and freezes the countdown in one step.
func (c *Controller) Pause() State {
	if !c.state.IsRunning {
		return c.State()
	}
	c.Tick()
	if c.state.Expired {
		return c.State()
	}
	now := c.state.LastTickAt
	c.state.IsRunning = false
	c.state.PausedAt = &now
	return c.State()
}

// Resume restarts a paused countdown. The pause itself is not charged.
func (c *Controller) Resume() State {
	if c.state.IsRunning || c.state.Expired || c.state.TotalSeconds <= 0 {
		return c.State()
	}
	c.state.IsRunning = true
	c.state.PausedAt = nil
	c.state.LastTickAt = c.clock.Now()
	return c.State()
}

// Stop halts the countdown without firing expiry.
func (c *Controller) Stop() {
	c.state.IsRunning = false
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	return c.state.Clone()
}

// Remaining returns the remaining seconds as of the last tick.
func (c *Controller) Remaining() float64 {
	return c.state.RemainingSeconds
}

// Expired reports whether the countdown reached zero.
func (c *Controller) Expired() bool {
	return c.state.Expired
}

func (c *Controller) expire() {
	c.state.RemainingSeconds = 0
	c.state.IsRunning = false
	c.state.Expired = true
	if c.fired {
		return
	}
	c.fired = true
	if c.onExpire != nil {
		c.onExpire()
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
