package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/innoscope/innoscope/config"
	"github.com/innoscope/innoscope/internal/util"
)

// ScheduleCmd manages the enrichment schedule.
var ScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show or update the enrichment schedule",
	Long: `Show or update the enrichment schedule.

Updates are written to the user config file; a running daemon picks them up
through its config watcher without a restart.

Examples:
  innoscope schedule show
  innoscope schedule set --interval 60
  innoscope schedule set --disable
  innoscope schedule set --provider openrouter --types technical,market`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configured enrichment schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		enabled := "disabled"
		if cfg.Enrichment.Enabled {
			enabled = "enabled"
		}

		pterm.DefaultHeader.Println("Enrichment schedule")
		pterm.Printf("State:              %s\n", enabled)
		pterm.Printf("Provider:           %s\n", cfg.Enrichment.Provider)
		pterm.Printf("Interval:           %s\n", time.Duration(cfg.Enrichment.IntervalMinutes)*time.Minute)
		pterm.Printf("Intelligence types: %v\n", cfg.Enrichment.IntelligenceTypes)
		pterm.Printf("Geographic focus:   %v\n", cfg.Enrichment.GeographicFocus)
		pterm.Printf("Poll interval:      %ds\n", cfg.Enrichment.PollIntervalSeconds)

		return nil
	},
}

var scheduleSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update the enrichment schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		var override config.ScheduleOverride

		if cmd.Flags().Changed("interval") {
			interval, _ := cmd.Flags().GetInt("interval")
			if interval <= 0 {
				return fmt.Errorf("interval must be a positive number of minutes")
			}
			override.IntervalMinutes = util.Ptr(interval)
		}
		if cmd.Flags().Changed("provider") {
			provider, _ := cmd.Flags().GetString("provider")
			override.Provider = util.Ptr(provider)
		}
		if cmd.Flags().Changed("types") {
			override.IntelligenceTypes, _ = cmd.Flags().GetStringSlice("types")
		}
		if cmd.Flags().Changed("focus") {
			override.GeographicFocus, _ = cmd.Flags().GetStringSlice("focus")
		}

		enable, _ := cmd.Flags().GetBool("enable")
		disable, _ := cmd.Flags().GetBool("disable")
		if enable && disable {
			return fmt.Errorf("--enable and --disable are mutually exclusive")
		}
		if enable {
			override.Enabled = util.Ptr(true)
		}
		if disable {
			override.Enabled = util.Ptr(false)
		}

		if err := config.UpdateEnrichmentSchedule(override); err != nil {
			return fmt.Errorf("failed to update schedule: %w", err)
		}

		pterm.Success.Println("Enrichment schedule updated")

		// Re-read so the printed schedule reflects the write.
		config.Reset()
		return scheduleShowCmd.RunE(cmd, args)
	},
}

func init() {
	scheduleSetCmd.Flags().Int("interval", 0, "Minutes between enrichment runs")
	scheduleSetCmd.Flags().String("provider", "", "Enrichment provider name")
	scheduleSetCmd.Flags().StringSlice("types", nil, "Intelligence types to request")
	scheduleSetCmd.Flags().StringSlice("focus", nil, "Geographic focus areas")
	scheduleSetCmd.Flags().Bool("enable", false, "Enable scheduled enrichment")
	scheduleSetCmd.Flags().Bool("disable", false, "Disable scheduled enrichment")

	ScheduleCmd.AddCommand(scheduleShowCmd)
	ScheduleCmd.AddCommand(scheduleSetCmd)
}
