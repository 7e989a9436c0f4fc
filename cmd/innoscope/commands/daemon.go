package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/innoscope/innoscope/config"
	"github.com/innoscope/innoscope/logger"
	"github.com/innoscope/innoscope/monitor"
	"github.com/innoscope/innoscope/pipeline"
	"github.com/innoscope/innoscope/scheduler"
	"github.com/innoscope/innoscope/storage"
)

// DaemonCmd runs the collection and enrichment daemon in the foreground.
var DaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the innoscope daemon",
	Long: `Run the innoscope daemon in foreground mode.

The daemon will:
- Run the data-collection pipelines on a fixed cadence
- Trigger scheduled enrichment runs when they come due
- Record every pipeline run in the shared run registry
- Reload the enrichment schedule when the config file changes
- Run until interrupted (Ctrl+C) with graceful shutdown`,
	RunE: func(cmd *cobra.Command, args []string) error {
		collectMinutes, _ := cmd.Flags().GetInt("collect-interval")
		if collectMinutes < 1 {
			collectMinutes = 1
		}

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
		vectors := storage.NewVectorStore(database, logger.Logger)

		registry := monitor.NewRegistry(monitorConfig(cfg), logger.Logger)
		registry.SetDependencyPingers(monitor.DBPinger(database), vectors)

		runners := []pipeline.Runner{
			pipeline.NewAcademicRunner(innovations, cfg.Pipelines, logger.Logger),
			pipeline.NewNewsRunner(innovations, cfg.Pipelines, logger.Logger),
			pipeline.NewSerperRunner(innovations, cfg.Pipelines, logger.Logger),
		}

		enricher := pipeline.NewEnrichmentRunner(innovations, vectors, cfg.Pipelines, cfg.Enrichment, logger.Logger)
		history := scheduler.NewExecutionStore(database)

		interval := time.Duration(cfg.Enrichment.IntervalMinutes) * time.Minute
		sched := scheduler.NewScheduler(
			scheduler.NewSchedule(
				cfg.Enrichment.Provider,
				cfg.Enrichment.IntelligenceTypes,
				cfg.Enrichment.GeographicFocus,
				interval,
				cfg.Enrichment.Enabled,
				time.Now(),
			),
			registry, enricher, history, logger.Logger,
		)
		if cfg.Enrichment.PollIntervalSeconds > 0 {
			sched.SetPollInterval(time.Duration(cfg.Enrichment.PollIntervalSeconds) * time.Second)
		}
		sched.Start()

		// Collection loop: one pass at startup, then on a fixed cadence.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go collectLoop(ctx, registry, runners, time.Duration(collectMinutes)*time.Minute)

		watcher := startConfigWatcher(sched)
		if watcher != nil {
			defer watcher.Stop()
		}

		info := sched.GetScheduleInfo()
		fmt.Println("innoscope daemon started")
		fmt.Printf("  Database: %s\n", cfg.Database.Path)
		fmt.Printf("  Enrichment provider: %s\n", cfg.Enrichment.Provider)
		fmt.Printf("  Enrichment interval: %s\n", info.Interval)
		fmt.Printf("  Collection interval: %dm\n", collectMinutes)
		fmt.Println("\nPress Ctrl+C for graceful shutdown")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		fmt.Println("\nShutting down...")

		sched.Stop()
		cancel()

		fmt.Println("innoscope daemon stopped")
		return nil
	},
}

// collectLoop runs all collection pipelines immediately and then on every
// tick until the context is cancelled. Intervals below one minute are
// clamped; time.NewTicker panics on a non-positive duration.
func collectLoop(ctx context.Context, registry *monitor.Registry, runners []pipeline.Runner, interval time.Duration) {
	if interval < time.Minute {
		interval = time.Minute
	}

	pipeline.RunAll(ctx, registry, logger.Logger, runners...)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pipeline.RunAll(ctx, registry, logger.Logger, runners...)
		}
	}
}

// startConfigWatcher wires config-file changes into the running scheduler.
// A watcher failure is logged, not fatal: the daemon is functional without
// live reload.
func startConfigWatcher(sched *scheduler.Scheduler) *config.Watcher {
	watcher, err := config.NewWatcher(config.UserConfigPath())
	if err != nil {
		logger.Warnw("Config watcher unavailable, live reload disabled", "error", err)
		return nil
	}

	watcher.OnReload(func(cfg *config.Config) error {
		interval := time.Duration(cfg.Enrichment.IntervalMinutes) * time.Minute
		sched.UpdateSchedule(scheduler.ScheduleUpdate{
			Provider:          &cfg.Enrichment.Provider,
			IntelligenceTypes: cfg.Enrichment.IntelligenceTypes,
			GeographicFocus:   cfg.Enrichment.GeographicFocus,
			Interval:          &interval,
			Enabled:           &cfg.Enrichment.Enabled,
		})
		return nil
	})
	watcher.Start()
	config.SetGlobalWatcher(watcher)

	return watcher
}

// openDatabase opens and migrates the configured SQLite database, creating
// its parent directory if needed.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	database, err := storage.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, err
	}

	if err := storage.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, err
	}

	return database, nil
}

func monitorConfig(cfg *config.Config) monitor.Config {
	return monitor.Config{
		StatusFilePath:         cfg.Monitor.StatusFilePath,
		CPUThresholdPercent:    cfg.Monitor.CPUThresholdPercent,
		MemoryThresholdPercent: cfg.Monitor.MemoryThresholdPercent,
		HealthDebounce:         cfg.Monitor.HealthDebounce,
	}
}

func init() {
	DaemonCmd.Flags().Int("collect-interval", 60, "Minutes between collection pipeline passes")
}
