package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/examdrill/internal/session"
)

// DefaultQuizSubject is used when quiz is run without a subject.
const DefaultQuizSubject = "culture"

// syncGrace bounds how long a finished session waits for background sync
// before the process exits.
const syncGrace = 10 * time.Second

var reviewCmd = &cobra.Command{
	Use:   "review <subject>",
	Short: "Review due cards with spaced repetition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPractice(cmd, session.VariantReview, args[0])
	},
}

var examCmd = &cobra.Command{
	Use:   "exam <subject>",
	Short: "Take a timed mock exam",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPractice(cmd, session.VariantMockExam, args[0])
	},
}

var quizCmd = &cobra.Command{
	Use:   "quiz [subject]",
	Short: "Take a culture quiz",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subject := DefaultQuizSubject
		if len(args) == 1 {
			subject = args[0]
		}
		return runPractice(cmd, session.VariantCultureQuiz, subject)
	},
}

func init() {
	for _, c := range []*cobra.Command{reviewCmd, examCmd, quizCmd} {
		c.Flags().Bool("discard", false, "Discard an in-progress session for another subject")
		c.Flags().Int("questions", 0, "Number of questions (0 uses the configured default)")
	}
}

func runPractice(cmd *cobra.Command, v session.Variant, subject string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	d, err := openDeps(cmd)
	if err != nil {
		return err
	}
	defer d.close()
	if v.ServerScored() && d.server == nil {
		return fmt.Errorf("%s needs the exam server: set EXAM_API_URL or api.base_url", v)
	}

	m := d.machine()
	defer m.Close()

	sc := cfg.Session(v, subject)
	sc.DiscardExisting, _ = cmd.Flags().GetBool("discard")
	if n, _ := cmd.Flags().GetInt("questions"); n > 0 {
		sc.QuestionCount = n
	}

	s, err := m.Start(ctx, sc)
	var conflict *session.RecoveryConflictError
	switch {
	case errors.As(err, &conflict):
		return fmt.Errorf("%w\nFinish it first, or rerun with --discard", err)
	case errors.Is(err, session.ErrEmptyQueue):
		fmt.Fprintf(cmd.OutOrStdout(), "Nothing to study in %s right now.\n", subject)
		return nil
	case err != nil:
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, consoleHelp)
	con := newConsole(m, cmd.InOrStdin(), out)
	if _, err := con.run(ctx, s); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return flushSync(m, out)
}

// flushSync gives background sync a short grace period, then replays
// anything that gave up.
func flushSync(m *session.Machine, out io.Writer) error {
	if !m.SyncPending() {
		return nil
	}
	fmt.Fprintln(out, "Syncing with the server...")
	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(syncGrace):
	}

	ctx, cancel := context.WithTimeout(context.Background(), syncGrace)
	defer cancel()
	if err := m.SubmitPending(ctx); err != nil {
		logger.Warn("sync incomplete", "error", err)
	}
	if n := m.PendingSync(); n > 0 {
		fmt.Fprintf(out, "%d server updates could not be delivered.\n", n)
	}
	return nil
}
