package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/innoscope/innoscope/cmd/innoscope/commands"
	"github.com/innoscope/innoscope/logger"
)

var rootCmd = &cobra.Command{
	Use:   "innoscope",
	Short: "innoscope - AI innovation intelligence pipelines",
	Long: `innoscope - pipeline run registry and timer-driven enrichment scheduler.

innoscope ingests AI-innovation records from academic, news, and web-search
pipelines, tracks every pipeline run in a shared registry, and periodically
enriches stored records through a configurable provider.

Available commands:
  daemon   - Run the enrichment scheduler daemon
  ingest   - Run the data-collection pipelines once
  status   - Show unified pipeline and system status
  schedule - Show or update the enrichment schedule
  version  - Show version information

Examples:
  innoscope daemon                   # Run scheduler in foreground
  innoscope ingest                   # Collect from all sources once
  innoscope status --json            # Machine-readable status
  innoscope schedule set --interval 60`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.DaemonCmd)
	rootCmd.AddCommand(commands.IngestCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.ScheduleCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
