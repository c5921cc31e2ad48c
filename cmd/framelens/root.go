package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/framelens/framelens/internal/config"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "framelens",
		Short:         "Video frame analysis and transcript correlation",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newAnalyzeCommand())
	rootCmd.AddCommand(newWorkerCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newEnqueueCommand())
	rootCmd.AddCommand(newSearchCommand())
	rootCmd.AddCommand(newCorrelationsCommand())
	rootCmd.AddCommand(newInitDBCommand())

	return rootCmd
}

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: "15:04:05",
		}),
	)
}
