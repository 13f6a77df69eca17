package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/examdrill/internal/session"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Show or discard in-progress sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		discard, _ := cmd.Flags().GetBool("discard")

		d, err := openDeps(cmd)
		if err != nil {
			return err
		}
		defer d.close()
		m := d.machine()
		defer m.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		found := 0
		for _, v := range []session.Variant{session.VariantReview, session.VariantMockExam, session.VariantCultureQuiz} {
			info, err := m.CheckRecovery(ctx, cfg.Session(v, ""))
			if err != nil {
				return fmt.Errorf("check %s: %w", v, err)
			}
			if info == nil {
				continue
			}
			found++
			stale := ""
			if info.Stale {
				stale = " (stale)"
			}
			fmt.Fprintf(out, "%-13s %-12s %s  %d/%d answered  saved %s%s\n",
				info.Variant, info.SubjectID, info.Status, info.Answered, info.Total,
				info.SavedAt.Local().Format("2006-01-02 15:04"), stale)
			if discard {
				if err := m.DiscardRecovery(ctx, v); err != nil {
					return fmt.Errorf("discard %s: %w", v, err)
				}
				fmt.Fprintln(out, "  discarded")
			}
		}
		if found == 0 {
			fmt.Fprintln(out, "No sessions in progress.")
		}
		m.Wait()
		return nil
	},
}

func init() {
	recoverCmd.Flags().Bool("discard", false, "Discard every in-progress session")
}
