// Package cmd holds the promptsched CLI: the serve loop plus operator
// commands for inspecting and triggering scheduled prompts.
package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "promptsched",
	Short: "Scheduled prompt execution engine",
	Long: `promptsched runs scheduled prompts against a chat completion API:
it polls for due jobs, executes them with tool support, repairs malformed
model output, persists results into chats, and notifies job owners.`,
}

func init() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(cronCheckCmd())
	rootCmd.AddCommand(seedCmd())
}

// Execute runs the CLI.
func Execute() {
	setupLogging()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
