package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/innoscope/innoscope/config"
	"github.com/innoscope/innoscope/logger"
	"github.com/innoscope/innoscope/monitor"
	"github.com/innoscope/innoscope/storage"
)

// StatusCmd shows the unified pipeline and system status.
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show unified pipeline and system status",
	Long: `Show the unified status record: per-pipeline activity and last-run
timestamps, today's processed and error totals, and system health.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		registry := monitor.NewRegistry(monitorConfig(cfg), logger.Logger)

		// Dependency pingers are only meaningful with the database open;
		// skip them so a broken database still yields a status report.
		if database, err := openDatabase(cfg); err == nil {
			defer database.Close()
			vectors := storage.NewVectorStore(database, logger.Logger)
			registry.SetDependencyPingers(monitor.DBPinger(database), vectors)
		}

		status := registry.GetUnifiedStatus()

		if jsonOutput {
			output, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to format status: %w", err)
			}
			fmt.Println(string(output))
			return nil
		}

		printStatus(status)
		return nil
	},
}

func printStatus(status monitor.UnifiedStatus) {
	pterm.DefaultHeader.Println("innoscope status")

	rows := pterm.TableData{
		{"Pipeline", "Active", "Last run"},
		{"academic", activeMark(status.AcademicPipelineActive), lastRun(status.LastAcademicPipelineRun)},
		{"news", activeMark(status.NewsPipelineActive), lastRun(status.LastNewsPipelineRun)},
		{"serper", activeMark(status.SerperPipelineActive), lastRun(status.LastSerperPipelineRun)},
		{"enrichment", activeMark(status.EnrichmentPipelineActive), lastRun(status.LastEnrichmentPipelineRun)},
	}
	pterm.DefaultTable.WithHasHeader().WithData(rows).Render()

	pterm.Println()
	pterm.Printf("Processed today: %d\n", status.TotalProcessedToday)
	pterm.Printf("Errors today:    %d\n", status.ErrorsToday)
	pterm.Println()

	if status.SystemHealth == monitor.HealthHealthy {
		pterm.Success.Printf("System health: %s\n", status.SystemHealth)
	} else {
		pterm.Warning.Printf("System health: %s\n", status.SystemHealth)
	}
	pterm.Printf("As of %s\n", status.LastUpdated)
}

func activeMark(active bool) string {
	if active {
		return "yes"
	}
	return "no"
}

func lastRun(ts *string) string {
	if ts == nil {
		return "never"
	}
	return *ts
}

func init() {
	StatusCmd.Flags().BoolP("json", "j", false, "Output status as JSON")
}
