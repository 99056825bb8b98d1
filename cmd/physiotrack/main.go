// Package main provides the PhysioTrack CLI entrypoint.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/claude/physiotrack/internal/config"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "physiotrack",
		Short: "Live exercise session orchestrator",
		Long: `PhysioTrack runs a guided exercise session against a webcam: it samples
frames, sends them to the pose analysis service, counts reps and sets, and
saves each completed set.

Usage:
  physiotrack run                   Run a session with the configured exercise
  physiotrack run --ailment knee    Pick the first exercise from a fetched plan
  physiotrack plan --ailment knee   Print the plan for an ailment
  physiotrack history               Show locally recorded sets
  physiotrack mcp --remote URL      Serve MCP over stdio for a running session`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "path to config file")

	rootCmd.AddCommand(
		runCmd(),
		planCmd(),
		historyCmd(),
		mcpCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "physiotrack", Version)
		},
	}
}

// loadConfig reads the file named by --config. A missing default file falls
// back to built-in defaults plus environment overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if _, err := os.Stat(path); os.IsNotExist(err) && !cmd.Flags().Changed("config") {
		return config.FromEnv()
	}
	return config.Load(path)
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
