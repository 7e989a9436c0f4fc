package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/innoscope/innoscope/config"
	"github.com/innoscope/innoscope/logger"
	"github.com/innoscope/innoscope/monitor"
	"github.com/innoscope/innoscope/pipeline"
	"github.com/innoscope/innoscope/storage"
)

// IngestCmd runs the data-collection pipelines once.
var IngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the data-collection pipelines once",
	Long: `Run the academic, news, and serper collection pipelines one time
and exit. Each run is recorded in the shared run registry; a failed source
never blocks the others.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		innovations := storage.NewInnovationStore(database, logger.Logger)
		registry := monitor.NewRegistry(monitorConfig(cfg), logger.Logger)

		runners := []pipeline.Runner{
			pipeline.NewAcademicRunner(innovations, cfg.Pipelines, logger.Logger),
			pipeline.NewNewsRunner(innovations, cfg.Pipelines, logger.Logger),
			pipeline.NewSerperRunner(innovations, cfg.Pipelines, logger.Logger),
		}

		spinner, _ := pterm.DefaultSpinner.Start("Collecting from all sources...")
		pipeline.RunAll(cmd.Context(), registry, logger.Logger, runners...)
		spinner.Stop()

		printIngestSummary(registry)
		return nil
	},
}

func printIngestSummary(registry *monitor.Registry) {
	rows := pterm.TableData{{"Pipeline", "State", "Items", "Error"}}
	for _, name := range []string{monitor.PipelineAcademic, monitor.PipelineNews, monitor.PipelineSerper} {
		status := registry.JobStatusSnapshot(name)
		if status == nil {
			continue
		}
		errMsg := status.LastErrorMessage
		if errMsg == "" {
			errMsg = "-"
		}
		rows = append(rows, []string{
			name,
			string(status.CurrentState),
			fmt.Sprintf("%d", status.Metrics.ItemsProcessed),
			errMsg,
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
