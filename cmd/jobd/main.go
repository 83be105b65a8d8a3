package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/jobd/am"
	"github.com/teranos/jobd/cmd/jobd/commands"
	"github.com/teranos/jobd/logger"
)

var rootCmd = &cobra.Command{
	Use:   "jobd",
	Short: "jobd - in-memory async job orchestrator",
	Long: `jobd - in-memory async job orchestrator with an object detection task.

Jobs are submitted over HTTP, run in the background and kept in memory for a
bounded time. Nothing survives a restart.

Available commands:
  server  - Start the HTTP API
  jobs    - Submit, inspect and cancel jobs on a running server
  detect  - Run object detection synchronously
  am      - Manage jobd configuration ("I am")
  version - Show version information

Examples:
  jobd server                          # Start the API on the configured port
  jobd jobs submit photo.png           # Submit a detect-objects job
  jobd jobs ls --status running        # List running jobs
  jobd am show --format json           # Show effective configuration`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 'am' subcommands must work even when the config is broken
		levelName := "info"
		jsonOutput := false
		if cmd.Parent() == nil || cmd.Parent().Name() != "am" {
			if cfg, err := am.Load(); err == nil {
				levelName = cfg.Log.Level
				jsonOutput = cfg.Log.JSON
			}
		}

		verbosity, _ := cmd.Flags().GetCount("verbose")
		if verbosity > 0 {
			levelName = "debug"
		}

		if err := logger.Initialize(jsonOutput, levelName); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (-v enables debug logs)")
	rootCmd.PersistentFlags().String("server", "", "jobd server URL (default: derived from server.host/server.port)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DetectCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
