package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/innoscope/innoscope/errors"
	"github.com/innoscope/innoscope/monitor"
)

type stubRunner struct {
	mu    sync.Mutex
	calls int
	items int
	err   error
	panic interface{}
}

func (r *stubRunner) Run(ctx context.Context, run *monitor.Run) error {
	r.mu.Lock()
	r.calls++
	items, err, p := r.items, r.err, r.panic
	r.mu.Unlock()

	if p != nil {
		panic(p)
	}
	run.AddProcessedItems(items)
	return err
}

func (r *stubRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testScheduler(t *testing.T, schedule Schedule, runner EnrichmentRunner, clock func() time.Time) (*Scheduler, *monitor.Registry) {
	t.Helper()

	log := zaptest.NewLogger(t).Sugar()
	registry := monitor.NewRegistry(monitor.Config{}, log)
	s := NewSchedulerWithClock(schedule, registry, runner, nil, log, clock)

	return s, registry
}

func TestNewScheduleFirstRunOneIntervalOut(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	sched := NewSchedule("openrouter", []string{"technical"}, []string{"global"}, 6*time.Hour, true, now)

	assert.Equal(t, now.Add(6*time.Hour), sched.NextRun)
	assert.Nil(t, sched.LastRun)
	assert.True(t, sched.Enabled)
}

func TestTriggerAdvancesScheduleByExactInterval(t *testing.T) {
	start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: start}
	runner := &stubRunner{items: 7}

	sched := NewSchedule("openrouter", nil, nil, time.Hour, true, start)
	s, registry := testScheduler(t, sched, runner, clock.Now)

	// One interval later the schedule is due.
	clock.Advance(time.Hour)
	s.checkDue()

	assert.Equal(t, 1, runner.callCount())

	got := s.GetSchedule()
	require.NotNil(t, got.LastRun)
	assert.Equal(t, clock.Now(), *got.LastRun)
	assert.Equal(t, time.Hour, got.NextRun.Sub(*got.LastRun))

	status := registry.JobStatusSnapshot(monitor.PipelineEnrichment)
	require.NotNil(t, status)
	assert.Equal(t, monitor.StateSuccess, status.CurrentState)
	assert.Equal(t, 7, status.Metrics.ItemsProcessed)
}

func TestNotDueBeforeNextRun(t *testing.T) {
	start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: start}
	runner := &stubRunner{}

	sched := NewSchedule("openrouter", nil, nil, time.Hour, true, start)
	s, _ := testScheduler(t, sched, runner, clock.Now)

	clock.Advance(59 * time.Minute)
	s.checkDue()

	assert.Equal(t, 0, runner.callCount())
}

func TestDisabledScheduleNeverTriggers(t *testing.T) {
	start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: start}
	runner := &stubRunner{}

	sched := NewSchedule("openrouter", nil, nil, time.Hour, false, start)
	s, _ := testScheduler(t, sched, runner, clock.Now)

	clock.Advance(48 * time.Hour)
	s.checkDue()

	assert.Equal(t, 0, runner.callCount())
}

func TestFailedRunStillAdvancesSchedule(t *testing.T) {
	start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: start}
	runner := &stubRunner{err: errors.New("provider unavailable")}

	sched := NewSchedule("openrouter", nil, nil, time.Hour, true, start)
	s, registry := testScheduler(t, sched, runner, clock.Now)

	clock.Advance(time.Hour)
	s.checkDue()

	got := s.GetSchedule()
	require.NotNil(t, got.LastRun)
	assert.Equal(t, clock.Now().Add(time.Hour), got.NextRun)

	status := registry.JobStatusSnapshot(monitor.PipelineEnrichment)
	require.NotNil(t, status)
	assert.Equal(t, monitor.StateFailed, status.CurrentState)

	// A failure is retried one interval later, not immediately.
	s.checkDue()
	assert.Equal(t, 1, runner.callCount())
}

func TestPanickingRunDoesNotKillScheduler(t *testing.T) {
	start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: start}
	runner := &stubRunner{panic: "provider exploded"}

	sched := NewSchedule("openrouter", nil, nil, time.Hour, true, start)
	s, registry := testScheduler(t, sched, runner, clock.Now)

	clock.Advance(time.Hour)
	assert.NotPanics(t, func() { s.checkDue() })

	// The run was recorded as failed and the schedule advanced.
	status := registry.JobStatusSnapshot(monitor.PipelineEnrichment)
	require.NotNil(t, status)
	assert.Equal(t, monitor.StateFailed, status.CurrentState)

	got := s.GetSchedule()
	assert.Equal(t, clock.Now().Add(time.Hour), got.NextRun)
}

func TestUpdateScheduleReanchorsNextRunToLastRun(t *testing.T) {
	start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: start}
	runner := &stubRunner{}

	sched := NewSchedule("openrouter", nil, nil, 6*time.Hour, true, start)
	s, _ := testScheduler(t, sched, runner, clock.Now)

	// Trigger once so last_run exists.
	clock.Advance(6 * time.Hour)
	s.checkDue()
	require.Equal(t, 1, runner.callCount())
	lastRun := clock.Now()

	// Three hours later, shorten the interval to one hour: next_run lands in
	// the past and the schedule is due on the next poll.
	clock.Advance(3 * time.Hour)
	interval := time.Hour
	updated := s.UpdateSchedule(ScheduleUpdate{Interval: &interval})

	assert.Equal(t, lastRun.Add(time.Hour), updated.NextRun)
	assert.True(t, updated.NextRun.Before(clock.Now()))

	s.checkDue()
	assert.Equal(t, 2, runner.callCount())
}

func TestUpdateScheduleWithoutLastRunAnchorsToNow(t *testing.T) {
	start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: start}

	sched := NewSchedule("openrouter", nil, nil, 6*time.Hour, true, start)
	s, _ := testScheduler(t, sched, &stubRunner{}, clock.Now)

	interval := 2 * time.Hour
	updated := s.UpdateSchedule(ScheduleUpdate{Interval: &interval})

	assert.Equal(t, clock.Now().Add(2*time.Hour), updated.NextRun)
}

func TestUpdateSchedulePartialFields(t *testing.T) {
	start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: start}

	sched := NewSchedule("openrouter", []string{"technical"}, []string{"global"}, 6*time.Hour, true, start)
	s, _ := testScheduler(t, sched, &stubRunner{}, clock.Now)

	provider := "anthropic"
	enabled := false
	updated := s.UpdateSchedule(ScheduleUpdate{
		Provider:          &provider,
		Enabled:           &enabled,
		IntelligenceTypes: []string{"market", "regulatory"},
	})

	assert.Equal(t, "anthropic", updated.Provider)
	assert.False(t, updated.Enabled)
	assert.Equal(t, []string{"market", "regulatory"}, updated.IntelligenceTypes)
	// Untouched fields survive.
	assert.Equal(t, []string{"global"}, updated.GeographicFocus)
	assert.Equal(t, 6*time.Hour, updated.Interval)
	assert.Equal(t, start.Add(6*time.Hour), updated.NextRun)
}

func TestUpdateScheduleSameIntervalKeepsNextRun(t *testing.T) {
	start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: start}

	sched := NewSchedule("openrouter", nil, nil, 6*time.Hour, true, start)
	s, _ := testScheduler(t, sched, &stubRunner{}, clock.Now)

	clock.Advance(time.Hour)
	interval := 6 * time.Hour
	updated := s.UpdateSchedule(ScheduleUpdate{Interval: &interval})

	assert.Equal(t, start.Add(6*time.Hour), updated.NextRun)
}

func TestStartStopLifecycle(t *testing.T) {
	start := time.Now()
	clock := &fixedClock{now: start}
	runner := &stubRunner{items: 3}

	sched := NewSchedule("openrouter", nil, nil, time.Hour, true, start)
	s, _ := testScheduler(t, sched, runner, clock.Now)
	s.SetPollInterval(5 * time.Millisecond)

	clock.Advance(2 * time.Hour)

	s.Start()
	assert.True(t, s.IsRunning())

	// Start on a running scheduler is a no-op.
	s.Start()
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool {
		return runner.callCount() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())

	// Stop on a stopped scheduler is safe.
	s.Stop()
}

func TestSchedulerRestartsAfterStop(t *testing.T) {
	start := time.Now()
	clock := &fixedClock{now: start}
	runner := &stubRunner{}

	sched := NewSchedule("openrouter", nil, nil, time.Hour, true, start)
	s, _ := testScheduler(t, sched, runner, clock.Now)
	s.SetPollInterval(5 * time.Millisecond)

	s.Start()
	s.Stop()

	clock.Advance(2 * time.Hour)
	s.Start()
	require.Eventually(t, func() bool {
		return runner.callCount() >= 1
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop()
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, run *monitor.Run) error {
	close(r.started)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.release:
		run.AddProcessedItems(3)
		return nil
	}
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	start := time.Now()
	clock := &fixedClock{now: start}
	runner := &blockingRunner{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}

	sched := NewSchedule("openrouter", nil, nil, time.Hour, true, start)
	s, registry := testScheduler(t, sched, runner, clock.Now)
	s.SetPollInterval(5 * time.Millisecond)

	clock.Advance(2 * time.Hour)
	s.Start()

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("enrichment run never started")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	// Stop must block on the in-flight run rather than cancel it.
	select {
	case <-stopped:
		t.Fatal("Stop returned while a run was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the run finished")
	}

	status := registry.JobStatusSnapshot(monitor.PipelineEnrichment)
	require.NotNil(t, status)
	assert.Equal(t, monitor.StateSuccess, status.CurrentState)
	assert.Equal(t, 3, status.Metrics.ItemsProcessed)
	assert.False(t, s.IsRunning())
}

func TestGetScheduleInfo(t *testing.T) {
	start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: start}

	sched := NewSchedule("openrouter", []string{"technical"}, nil, 6*time.Hour, true, start)
	s, _ := testScheduler(t, sched, &stubRunner{}, clock.Now)

	info := s.GetScheduleInfo()
	assert.True(t, info.Enabled)
	assert.Equal(t, "openrouter", info.Provider)
	assert.Equal(t, "6h0m0s", info.Interval)
	assert.Nil(t, info.LastRun)
	assert.False(t, info.Running)
	require.NotNil(t, info.TimeUntilNextRun)
	assert.Equal(t, "6h 0m", *info.TimeUntilNextRun)

	// Past due reads as "Due now".
	clock.Advance(7 * time.Hour)
	info = s.GetScheduleInfo()
	require.NotNil(t, info.TimeUntilNextRun)
	assert.Equal(t, "Due now", *info.TimeUntilNextRun)
}

func TestGetScheduleInfoDisabledHasNoCountdown(t *testing.T) {
	start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: start}

	sched := NewSchedule("openrouter", nil, nil, 6*time.Hour, false, start)
	s, _ := testScheduler(t, sched, &stubRunner{}, clock.Now)

	info := s.GetScheduleInfo()
	assert.False(t, info.Enabled)
	assert.Nil(t, info.TimeUntilNextRun)
}

func TestHumanizeDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Minute, "Due now"},
		{0, "Due now"},
		{400 * time.Millisecond, "1s"},
		{45 * time.Second, "45s"},
		{5*time.Minute + 30*time.Second, "5m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
		{26 * time.Hour, "26h 0m"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, humanizeDuration(tt.d), "duration %s", tt.d)
	}
}

func TestConcurrentScheduleAccess(t *testing.T) {
	start := time.Now()
	clock := &fixedClock{now: start}
	runner := &stubRunner{items: 1}

	sched := NewSchedule("openrouter", nil, nil, time.Millisecond, true, start)
	s, _ := testScheduler(t, sched, runner, clock.Now)
	s.SetPollInterval(time.Millisecond)

	clock.Advance(time.Hour)
	s.Start()
	defer s.Stop()

	var done atomic.Bool
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !done.Load() {
				_ = s.GetScheduleInfo()
				interval := time.Minute
				_ = s.UpdateSchedule(ScheduleUpdate{Interval: &interval})
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	done.Store(true)
	wg.Wait()
}
