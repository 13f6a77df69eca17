package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/examdrill/internal/card"
)

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import cards from a JSON array",
	Long: `Import cards from a JSON array of card objects. Cards that already
exist take the new content and keep their review progress.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read cards: %w", err)
		}
		var cards []card.Card
		if err := json.Unmarshal(raw, &cards); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.Cards().Import(cmd.Context(), cards)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d cards.\n", n)
		return nil
	},
}
