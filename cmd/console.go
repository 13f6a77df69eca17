package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/abhisek/examdrill/internal/card"
	"github.com/abhisek/examdrill/internal/session"
	"github.com/abhisek/examdrill/internal/spacedrep"
	"github.com/abhisek/examdrill/internal/timer"
)

const consoleHelp = `Commands: p pause, r resume, x save and exit, q abandon, t time left, ? help`

// console drives a Machine from line-based input.
type console struct {
	m     *session.Machine
	out   io.Writer
	lines <-chan string

	stop     chan struct{}
	stopOnce sync.Once

	// tickEvery is the countdown refresh period for timed sessions.
	tickEvery time.Duration

	revealed bool
	warnings chan timer.WarningLevel
}

func newConsole(m *session.Machine, in io.Reader, out io.Writer) *console {
	stop := make(chan struct{})
	return &console{
		m:         m,
		out:       out,
		lines:     readLines(in, stop),
		stop:      stop,
		tickEvery: timer.DefaultPeriod,
		warnings:  make(chan timer.WarningLevel, 4),
	}
}

// readLines streams trimmed input lines until EOF or until stop is
// closed.
func readLines(r io.Reader, stop <-chan struct{}) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case ch <- strings.TrimSpace(sc.Text()):
			case <-stop:
				return
			}
		}
	}()
	return ch
}

func (c *console) stopInput() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// run plays s until it ends, the input closes or ctx is cancelled. It
// returns the summary of a completed or expired session, nil otherwise.
func (c *console) run(ctx context.Context, s *session.Session) (*session.Summary, error) {
	defer c.stopInput()
	if s.Timer != nil {
		tk := timer.StartTicker(ctx, c.tickEvery, func(time.Time) { c.tick(ctx) })
		defer tk.Stop()
	}

	if s.IsResumed {
		fmt.Fprintf(c.out, "Resuming session %s (%d/%d answered).\n", s.ID, len(s.Questions)-s.Unanswered(), len(s.Questions))
	}
	if s.Status == session.StatusPaused {
		fmt.Fprintln(c.out, "Session is paused. Enter r to resume.")
	} else {
		c.show()
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out, "\nInterrupted. Progress is saved; run the command again to resume.")
			return nil, ctx.Err()
		case <-c.m.Done():
			return c.finish(), nil
		case w := <-c.warnings:
			c.warn(w)
		case line, ok := <-c.lines:
			if !ok {
				fmt.Fprintln(c.out, "Progress is saved; run the command again to resume.")
				return nil, nil
			}
			done, err := c.handle(ctx, line)
			if err != nil {
				return nil, err
			}
			if done {
				return c.finish(), nil
			}
		}
	}
}

func (c *console) tick(ctx context.Context) {
	prev := timer.WarningNone
	if s := c.m.Session(); s != nil && s.Timer != nil {
		prev = s.Timer.WarningLevel
	}
	st, err := c.m.Tick(ctx)
	if err != nil || st == nil || st.WarningLevel == prev || st.WarningLevel == timer.WarningNone {
		return
	}
	select {
	case c.warnings <- st.WarningLevel:
	default:
	}
}

func (c *console) warn(w timer.WarningLevel) {
	switch w {
	case timer.Warning5Min:
		fmt.Fprintln(c.out, "\n*** 5 minutes left ***")
	case timer.Warning1Min:
		fmt.Fprintln(c.out, "\n*** 1 minute left ***")
	}
}

// handle applies one input line and reports whether the session is over.
func (c *console) handle(ctx context.Context, line string) (bool, error) {
	switch strings.ToLower(line) {
	case "?", "h", "help":
		fmt.Fprintln(c.out, consoleHelp)
		return false, nil
	case "p":
		if err := c.m.Pause(ctx); err != nil {
			return c.report(err)
		}
		fmt.Fprintln(c.out, "Paused. Enter r to resume.")
		return false, nil
	case "r":
		if err := c.m.Resume(ctx); err != nil {
			return c.report(err)
		}
		c.show()
		return false, nil
	case "t":
		c.showTime()
		return false, nil
	case "x":
		fmt.Fprintln(c.out, "Progress is saved; run the command again to resume.")
		return true, nil
	case "q":
		if err := c.m.Abandon(ctx); err != nil {
			return c.report(err)
		}
		fmt.Fprintln(c.out, "Session abandoned.")
		return true, nil
	}

	s := c.m.Session()
	if s == nil || s.Current() == nil {
		return false, nil
	}
	if s.Variant == session.VariantReview {
		return c.handleReview(ctx, s, line)
	}
	return c.handleChoice(ctx, s, line)
}

func (c *console) handleReview(ctx context.Context, s *session.Session, line string) (bool, error) {
	q := s.Current()
	if line == "" && !c.revealed {
		c.revealed = true
		if q.Card != nil {
			face := card.Faces(q.Card.Content)
			fmt.Fprintf(c.out, "  → %s\n", face.Back)
		}
		fmt.Fprintln(c.out, "Rate: 1 again, 2 hard, 3 good, 4 easy")
		return false, nil
	}
	rating, err := spacedrep.ParseRating(line)
	if err != nil {
		fmt.Fprintln(c.out, "Press Enter to reveal, then rate 1-4.")
		return false, nil
	}
	out, err := c.m.Answer(ctx, session.Selection{Rating: rating})
	if err != nil {
		return c.report(err)
	}
	if out.SRS != nil && out.SRS.DueDate != nil {
		fmt.Fprintf(c.out, "  %s, next review %s\n", out.SRS.State, out.SRS.DueDate.Local().Format("Jan 2 15:04"))
	}
	return c.advance(ctx)
}

func (c *console) handleChoice(ctx context.Context, s *session.Session, line string) (bool, error) {
	q := s.Current()
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(q.Question.Options) {
		fmt.Fprintf(c.out, "Enter an option between 1 and %d.\n", len(q.Question.Options))
		return false, nil
	}
	out, err := c.m.Answer(ctx, session.Selection{Option: n - 1})
	if err != nil {
		return c.report(err)
	}
	switch {
	case out.Ignored:
		return false, nil
	case out.Queued:
		fmt.Fprintln(c.out, "  Saved offline; it will be sent when the server is reachable.")
	case out.CorrectKnown && out.Correct:
		fmt.Fprintf(c.out, "  Correct! +%d XP\n", out.XPEarned)
	case out.CorrectKnown && out.CorrectOption != nil:
		fmt.Fprintf(c.out, "  Incorrect. The answer was %d.\n", *out.CorrectOption+1)
	case out.CorrectKnown:
		fmt.Fprintln(c.out, "  Incorrect.")
	}
	return c.advance(ctx)
}

func (c *console) advance(ctx context.Context) (bool, error) {
	more, err := c.m.Next(ctx)
	if err != nil {
		return c.report(err)
	}
	if more {
		c.show()
		return false, nil
	}
	if _, err := c.m.Complete(ctx, false); err != nil {
		return c.report(err)
	}
	return true, nil
}

// report prints recoverable errors. A session that ended meanwhile (for
// example the timer ran out) finishes the loop.
func (c *console) report(err error) (bool, error) {
	var ve *session.ValidationError
	switch {
	case errors.As(err, &ve):
		fmt.Fprintln(c.out, " ", ve.Message)
		return false, nil
	case errors.Is(err, session.ErrSessionClosed):
		return true, nil
	case errors.Is(err, session.ErrInvalidTransition):
		fmt.Fprintln(c.out, " ", err)
		return false, nil
	}
	return false, err
}

func (c *console) show() {
	s := c.m.Session()
	if s == nil {
		return
	}
	q := s.Current()
	if q == nil {
		return
	}
	c.revealed = false
	fmt.Fprintf(c.out, "\n[%d/%d] %s\n", s.CurrentIndex+1, len(s.Questions), q.Question.Prompt)
	if q.Question.Hint != "" {
		fmt.Fprintf(c.out, "  (%s)\n", q.Question.Hint)
	}
	for i, opt := range q.Question.Options {
		fmt.Fprintf(c.out, "  %d) %s\n", i+1, opt)
	}
	if s.Variant == session.VariantReview {
		fmt.Fprintln(c.out, "Press Enter to reveal.")
	}
}

func (c *console) showTime() {
	s := c.m.Session()
	if s == nil || s.Timer == nil {
		fmt.Fprintln(c.out, "  Untimed session.")
		return
	}
	fmt.Fprintf(c.out, "  %s left\n", formatSeconds(s.Timer.Whole()))
}

func (c *console) finish() *session.Summary {
	sum := c.m.Summary()
	if sum != nil {
		printSummary(c.out, sum)
	}
	return sum
}

func printSummary(w io.Writer, sum *session.Summary) {
	fmt.Fprintln(w)
	if sum.TimerExpired {
		fmt.Fprintln(w, "Time is up!")
	}
	fmt.Fprintf(w, "Session %s (%s) %s\n", sum.SessionID, sum.Variant, sum.Status)
	fmt.Fprintf(w, "  Answered:  %d/%d", sum.Stats.QuestionsAnswered, len(sum.Results))
	if sum.Unanswered > 0 {
		fmt.Fprintf(w, " (%d unanswered)", sum.Unanswered)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Correct:   %d (%.0f%% accuracy)\n", sum.Stats.CorrectCount, sum.Stats.Accuracy)
	if sum.Variant != session.VariantReview {
		verdict := "not passed"
		if sum.Passed {
			verdict = "passed"
		}
		note := ""
		if !sum.Verified {
			note = " (unverified)"
		}
		fmt.Fprintf(w, "  Score:     %.1f%% %s%s\n", sum.Score, verdict, note)
	}
	fmt.Fprintf(w, "  Time:      %s\n", formatSeconds(int(sum.Duration)))
	fmt.Fprintf(w, "  XP:        %d\n", sum.Stats.XPEarned)
	for _, r := range sum.Results {
		if r.OverTime {
			fmt.Fprintf(w, "  slow: %s\n", r.Prompt)
		}
	}
	if sum.SyncPending {
		fmt.Fprintln(w, "  Some results are still waiting to reach the server.")
	}
}

func formatSeconds(sec int) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%02d:%02d", sec/60, sec%60)
}
