package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/abhisek/examdrill/internal/config"
	"github.com/abhisek/examdrill/internal/store"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "examdrill",
	Short: "Greek exam trainer",
	Long:  "examdrill: spaced-repetition vocabulary review, timed mock exams and culture quizzes for the Greek citizenship exam.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if p, _ := cmd.Flags().GetString("config"); p != "" {
			c, err := config.LoadFile(p, true)
			if err != nil {
				return err
			}
			cfg = c
		} else {
			c, err := config.Load()
			if err != nil {
				return err
			}
			cfg = c
		}
		logger = config.NewLogger(cfg.Log)
		return nil
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides EXAMDRILL_DB env var)")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (overrides EXAMDRILL_CONFIG env var)")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(examCmd)
	rootCmd.AddCommand(quizCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(updateCmd)
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then the configured path (EXAMDRILL_DB), then the default XDG path.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	if cfg != nil && cfg.DB.Path != "" {
		return cfg.DB.Path, store.EnsureDir(cfg.DB.Path)
	}
	return store.DefaultDBPath()
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve DB path: %w", err)
	}
	st, err := store.Open(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}
