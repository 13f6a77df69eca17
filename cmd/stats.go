package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show deck and session statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		subjects, err := st.Cards().Subjects(ctx)
		if err != nil {
			return err
		}
		if len(subjects) == 0 {
			fmt.Fprintln(out, "No cards imported yet.")
		} else {
			fmt.Fprintf(out, "%-16s  %6s  %6s  %8s  %6s  %8s  %6s\n",
				"Subject", "Cards", "New", "Learning", "Review", "Mastered", "Due")
			fmt.Fprintln(out, strings.Repeat("─", 70))
			now := time.Now()
			for _, sc := range subjects {
				ds, err := st.Cards().Stats(ctx, sc.SubjectID, now)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-16s  %6d  %6d  %8d  %6d  %8d  %6d\n",
					sc.SubjectID, ds.Total, ds.New, ds.Learning, ds.Review, ds.Mastered, ds.Due)
			}
		}

		finished, err := st.Events().Finished(ctx, limit)
		if err != nil {
			return err
		}
		if len(finished) == 0 {
			return nil
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%-19s  %-13s  %-16s  %-9s  %8s  %6s\n",
			"Finished", "Variant", "Subject", "Status", "Accuracy", "XP")
		fmt.Fprintln(out, strings.Repeat("─", 80))
		for _, e := range finished {
			fmt.Fprintf(out, "%-19s  %-13s  %-16s  %-9s  %7.0f%%  %6d\n",
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				e.Variant, e.SubjectID, e.Status, e.Accuracy, e.XPEarned)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().Int("limit", 10, "Number of recent sessions to show")
}
