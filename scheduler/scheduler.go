package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/innoscope/innoscope/errors"
	"github.com/innoscope/innoscope/monitor"
)

// DefaultPollInterval is how often the loop checks whether a run is due.
const DefaultPollInterval = 60 * time.Second

// EnrichmentRunner executes one enrichment pass, reporting progress on run.
type EnrichmentRunner interface {
	Run(ctx context.Context, run *monitor.Run) error
}

// Scheduler owns a Schedule and triggers enrichment runs when they come due.
// A single goroutine polls the schedule; enrichment run failures are absorbed
// and logged, while a failure of the loop itself stops the scheduler and
// requires an explicit Start to resume.
type Scheduler struct {
	mu       sync.Mutex
	schedule Schedule
	running  bool

	registry *monitor.Registry
	runner   EnrichmentRunner
	history  *ExecutionStore

	pollInterval time.Duration
	clock        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *zap.SugaredLogger
}

// NewScheduler builds a scheduler for the given schedule. history may be nil
// to disable execution records.
func NewScheduler(schedule Schedule, registry *monitor.Registry, runner EnrichmentRunner, history *ExecutionStore, log *zap.SugaredLogger) *Scheduler {
	return NewSchedulerWithClock(schedule, registry, runner, history, log, time.Now)
}

// NewSchedulerWithClock is NewScheduler with an injectable clock for tests.
func NewSchedulerWithClock(schedule Schedule, registry *monitor.Registry, runner EnrichmentRunner, history *ExecutionStore, log *zap.SugaredLogger, clock func() time.Time) *Scheduler {
	return &Scheduler{
		schedule:     schedule.clone(),
		registry:     registry,
		runner:       runner,
		history:      history,
		pollInterval: DefaultPollInterval,
		clock:        clock,
		log:          log,
	}
}

// SetPollInterval overrides the polling cadence. Must be called before Start.
func (s *Scheduler) SetPollInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollInterval = d
}

// Start launches the polling loop. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Infow("Enrichment scheduler already running")
		return
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true
	interval := s.schedule.Interval
	nextRun := s.schedule.NextRun
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()

	s.log.Infow("Enrichment scheduler started",
		"interval", interval,
		"next_run_at", nextRun.Format(time.RFC3339))
}

// Stop cancels the polling loop and waits for it to exit. Safe to call on a
// stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.log.Infow("Enrichment scheduler stopped")
}

// IsRunning reports whether the polling loop is alive.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			// The loop itself failed; mark the scheduler stopped so the
			// condition is visible and recoverable via Start.
			s.mu.Lock()
			s.running = false
			cancel := s.cancel
			s.mu.Unlock()
			cancel()
			s.log.Errorw("Enrichment scheduler loop failed, scheduler stopped",
				"panic", p)
		}
	}()

	s.mu.Lock()
	poll := s.pollInterval
	s.mu.Unlock()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkDue()
		}
	}
}

func (s *Scheduler) checkDue() {
	s.mu.Lock()
	due := s.schedule.Enabled && !s.clock().Before(s.schedule.NextRun)
	s.mu.Unlock()

	if due {
		s.triggerEnrichment()
	}
}

// triggerEnrichment executes one enrichment run. The run's own failure is
// recorded and absorbed; only a failure of the surrounding machinery
// propagates as a panic to the loop.
func (s *Scheduler) triggerEnrichment() {
	triggeredAt := s.clock()

	s.mu.Lock()
	provider := s.schedule.Provider
	interval := s.schedule.Interval
	s.mu.Unlock()

	exec := NewExecution(provider, triggeredAt)
	if s.history != nil {
		if err := s.history.CreateExecution(exec); err != nil {
			s.log.Warnw("Failed to record enrichment execution",
				"execution_id", exec.ID, "error", err)
		}
	}

	s.log.Infow("Scheduled enrichment triggered",
		"execution_id", exec.ID,
		"provider", provider)

	items, err := s.executeRun()

	completedAt := s.clock()
	if err != nil {
		exec.Fail(completedAt, items, err.Error())
		s.log.Errorw("Scheduled enrichment failed",
			"execution_id", exec.ID,
			"error", err)
	} else {
		exec.Complete(completedAt, items)
		s.log.Infow("Scheduled enrichment completed",
			"execution_id", exec.ID,
			"items_processed", items,
			"duration_ms", exec.DurationMS())
	}

	// The schedule advances from the trigger time whether or not the run
	// succeeded; a failed run is retried one interval later, not immediately.
	s.mu.Lock()
	s.schedule.LastRun = &triggeredAt
	s.schedule.NextRun = triggeredAt.Add(interval)
	nextRun := s.schedule.NextRun
	s.mu.Unlock()

	s.log.Infow("Next enrichment run scheduled",
		"next_run_at", nextRun.Format(time.RFC3339))

	if s.history != nil {
		if uerr := s.history.UpdateExecution(exec); uerr != nil {
			s.log.Warnw("Failed to update enrichment execution",
				"execution_id", exec.ID, "error", uerr)
		}
	}
}

// executeRun runs the enrichment pipeline under a fresh run context.
// A panic inside the runner has already been recorded as a failed run by the
// registry; convert it to an error so the polling loop survives.
func (s *Scheduler) executeRun() (items int64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("enrichment run panicked: %v", p)
		}
	}()

	// Cancellation is cooperative between ticks, never mid-run: a run in
	// flight when Stop is called finishes before the loop goroutine exits,
	// so the run does not inherit the loop's context.
	err = s.registry.RunPipeline(context.Background(), monitor.PipelineEnrichment, func(ctx context.Context, run *monitor.Run) error {
		runErr := s.runner.Run(ctx, run)
		items = int64(run.ItemsProcessed())
		return runErr
	})
	return items, err
}

// ScheduleUpdate is a partial update applied by UpdateSchedule. Nil fields are
// left unchanged.
type ScheduleUpdate struct {
	Provider          *string
	IntelligenceTypes []string
	GeographicFocus   []string
	Interval          *time.Duration
	Enabled           *bool
}

// UpdateSchedule applies a partial update and returns the resulting schedule.
// When the interval changes, the next run is re-anchored to the last run plus
// the new interval; a next run landing in the past makes the schedule
// immediately due on the following poll.
func (s *Scheduler) UpdateSchedule(u ScheduleUpdate) Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Provider != nil {
		s.schedule.Provider = *u.Provider
	}
	if u.IntelligenceTypes != nil {
		s.schedule.IntelligenceTypes = append([]string(nil), u.IntelligenceTypes...)
	}
	if u.GeographicFocus != nil {
		s.schedule.GeographicFocus = append([]string(nil), u.GeographicFocus...)
	}
	if u.Enabled != nil {
		s.schedule.Enabled = *u.Enabled
	}
	if u.Interval != nil && *u.Interval != s.schedule.Interval {
		s.schedule.Interval = *u.Interval
		if s.schedule.LastRun != nil {
			s.schedule.NextRun = s.schedule.LastRun.Add(*u.Interval)
		} else {
			s.schedule.NextRun = s.clock().Add(*u.Interval)
		}
	}

	s.log.Infow("Enrichment schedule updated",
		"provider", s.schedule.Provider,
		"interval", s.schedule.Interval,
		"enabled", s.schedule.Enabled,
		"next_run_at", s.schedule.NextRun.Format(time.RFC3339))

	return s.schedule.clone()
}

// GetSchedule returns a copy of the current schedule.
func (s *Scheduler) GetSchedule() Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule.clone()
}

// GetScheduleInfo returns the operator-facing view of the schedule, including
// a human-readable countdown to the next run. The countdown is null while the
// schedule is disabled.
func (s *Scheduler) GetScheduleInfo() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		Enabled:           s.schedule.Enabled,
		Provider:          s.schedule.Provider,
		Interval:          s.schedule.Interval.String(),
		IntelligenceTypes: append([]string(nil), s.schedule.IntelligenceTypes...),
		GeographicFocus:   append([]string(nil), s.schedule.GeographicFocus...),
		NextRun:           s.schedule.NextRun.Format(time.RFC3339),
		Running:           s.running,
	}
	if s.schedule.LastRun != nil {
		lr := s.schedule.LastRun.Format(time.RFC3339)
		info.LastRun = &lr
	}
	if s.schedule.Enabled {
		until := humanizeDuration(s.schedule.NextRun.Sub(s.clock()))
		info.TimeUntilNextRun = &until
	}
	return info
}
