package monitor

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// RecencyPolicy decides whether a timestamp counts as "today" for the
// processed-items aggregate. Versioned behind a named type so the policy can
// be swapped by composition without touching the registry.
type RecencyPolicy func(now, t time.Time) bool

// CalendarDayOrRollingWindow counts a timestamp when it falls on the same
// local calendar date as now OR lies within the trailing 24 hours. The union
// is redundant on purpose: narrowing it to either half changes observable
// totals around midnight and must not be "simplified".
func CalendarDayOrRollingWindow(now, t time.Time) bool {
	return sameCalendarDay(now, t) || (now.Sub(t) >= 0 && now.Sub(t) <= 24*time.Hour)
}

// sameCalendarDay reports whether two instants share a local calendar date.
func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Config holds registry tuning knobs.
type Config struct {
	// StatusFilePath is the JSON state file. Empty disables persistence
	// (useful for tests).
	StatusFilePath string

	// Resource thresholds above which health reports degraded
	CPUThresholdPercent    float64
	MemoryThresholdPercent float64

	// Consecutive degraded samples required before health flips to
	// degraded. 1 means a single reading flips it (and a single healthy
	// reading clears it).
	HealthDebounce int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		CPUThresholdPercent:    90,
		MemoryThresholdPercent: 90,
		HealthDebounce:         1,
	}
}

// Registry owns the mapping of pipeline name to JobStatus. It is shared
// mutable state: pipeline goroutines and the scheduler all report through it,
// and the status endpoint reads from it. A single RWMutex guards the map;
// critical sections are short and the post-mutation save happens inside the
// write lock so the on-disk file never holds a half-applied transition.
type Registry struct {
	mu       sync.RWMutex
	statuses map[string]*JobStatus

	cfg     Config
	recency RecencyPolicy
	clock   func() time.Time

	db     Pinger
	vector Pinger

	sampleResources func() (cpuPercent, memPercent float64, err error)
	degradedStreak  int

	log *zap.SugaredLogger
}

// NewRegistry creates a registry and restores any previously persisted state.
func NewRegistry(cfg Config, log *zap.SugaredLogger) *Registry {
	return NewRegistryWithClock(cfg, log, time.Now)
}

// NewRegistryWithClock creates a registry with an injectable clock (for testing)
func NewRegistryWithClock(cfg Config, log *zap.SugaredLogger, clock func() time.Time) *Registry {
	if cfg.HealthDebounce < 1 {
		cfg.HealthDebounce = 1
	}
	r := &Registry{
		statuses:        make(map[string]*JobStatus),
		cfg:             cfg,
		recency:         CalendarDayOrRollingWindow,
		clock:           clock,
		sampleResources: sampleSystemResources,
		log:             log,
	}
	r.LoadStatus()
	return r
}

// SetRecencyPolicy swaps the processed-today policy. The errors-today test is
// strict calendar-date and is not affected; the asymmetry is intentional.
func (r *Registry) SetRecencyPolicy(p RecencyPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recency = p
}

// SetDependencyPingers wires the database and vector-index liveness checks.
// A nil pinger reports healthy (dependency not configured).
func (r *Registry) SetDependencyPingers(db, vector Pinger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.db = db
	r.vector = vector
}

// StartJob marks the named pipeline as running. The entry is created with
// defaults the first time a name is seen. Re-entrant and concurrent starts
// overwrite; last writer wins.
func (r *Registry) StartJob(name string) {
	now := r.clock()

	r.mu.Lock()
	st := r.statusLocked(name)
	st.start(now)
	r.saveLocked()
	r.mu.Unlock()

	r.log.Infow("Pipeline run started", "pipeline", name)
}

// CompleteJob records the outcome of a run. It is the single state-transition
// point and never fails for an unknown name.
func (r *Registry) CompleteJob(name string, success bool, runtimeSeconds float64, itemsProcessed int, errorMessage string) {
	now := r.clock()

	r.mu.Lock()
	st := r.statusLocked(name)
	st.complete(now, success, runtimeSeconds, itemsProcessed, errorMessage)
	r.saveLocked()
	r.mu.Unlock()

	if success {
		r.log.Infow("Pipeline run completed",
			"pipeline", name,
			"items", itemsProcessed,
			"runtime_seconds", runtimeSeconds)
	} else {
		r.log.Warnw("Pipeline run failed",
			"pipeline", name,
			"runtime_seconds", runtimeSeconds,
			"error", errorMessage)
	}
}

// JobStatusSnapshot returns a copy of the status for one pipeline, or nil if
// the name has never been seen.
func (r *Registry) JobStatusSnapshot(name string) *JobStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.statuses[name]
	if !ok {
		return nil
	}
	return st.clone()
}

// statusLocked returns the entry for name, creating it lazily with defaults.
// Caller must hold the write lock.
func (r *Registry) statusLocked(name string) *JobStatus {
	st, ok := r.statuses[name]
	if !ok {
		st = newJobStatus()
		r.statuses[name] = st
	}
	return st
}

// UnifiedStatus is the record served to the reporting layer. It is a
// best-effort snapshot, not a transaction: concurrent completions may land
// between field reads of different pipelines.
type UnifiedStatus struct {
	AcademicPipelineActive   bool `json:"academic_pipeline_active"`
	NewsPipelineActive       bool `json:"news_pipeline_active"`
	SerperPipelineActive     bool `json:"serper_pipeline_active"`
	EnrichmentPipelineActive bool `json:"enrichment_pipeline_active"`

	LastAcademicPipelineRun   *string `json:"last_academic_pipeline_run"`
	LastNewsPipelineRun       *string `json:"last_news_pipeline_run"`
	LastSerperPipelineRun     *string `json:"last_serper_pipeline_run"`
	LastEnrichmentPipelineRun *string `json:"last_enrichment_pipeline_run"`

	TotalProcessedToday int         `json:"total_processed_today"`
	ErrorsToday         int         `json:"errors_today"`
	SystemHealth        HealthState `json:"system_health"`
	LastUpdated         string      `json:"last_updated"`
}

// GetUnifiedStatus re-reads persisted state, then aggregates the per-pipeline
// fields, today's totals, and current system health. It never returns an
// error: dependency failures surface as a degraded health value.
func (r *Registry) GetUnifiedStatus() UnifiedStatus {
	// Refresh from disk so the snapshot reflects the latest persisted truth
	// even when several registry instances share the state file.
	r.LoadStatus()

	health := r.GetSystemHealth()
	now := r.clock()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := UnifiedStatus{
		SystemHealth: health.Overall,
		LastUpdated:  now.Format(time.RFC3339),
	}

	active, lastRuns := r.wellKnownFieldsLocked()
	out.AcademicPipelineActive = active[PipelineAcademic]
	out.NewsPipelineActive = active[PipelineNews]
	out.SerperPipelineActive = active[PipelineSerper]
	out.EnrichmentPipelineActive = active[PipelineEnrichment]
	out.LastAcademicPipelineRun = lastRuns[PipelineAcademic]
	out.LastNewsPipelineRun = lastRuns[PipelineNews]
	out.LastSerperPipelineRun = lastRuns[PipelineSerper]
	out.LastEnrichmentPipelineRun = lastRuns[PipelineEnrichment]

	out.TotalProcessedToday = r.totalProcessedTodayLocked(now)
	out.ErrorsToday = r.errorsTodayLocked(now)

	return out
}

// wellKnownFieldsLocked collects the per-pipeline active flags and formatted
// last-run timestamps. Caller must hold at least the read lock.
func (r *Registry) wellKnownFieldsLocked() (map[string]bool, map[string]*string) {
	active := make(map[string]bool, len(WellKnownPipelines))
	lastRuns := make(map[string]*string, len(WellKnownPipelines))

	for _, name := range WellKnownPipelines {
		st, ok := r.statuses[name]
		if !ok {
			active[name] = false
			lastRuns[name] = nil
			continue
		}
		active[name] = st.PipelineActive
		if st.LastRun != nil {
			formatted := st.LastRun.Format(time.RFC3339)
			lastRuns[name] = &formatted
		}
	}

	return active, lastRuns
}

// totalProcessedTodayLocked sums items over jobs whose last run qualifies
// under the recency policy. Within a qualifying job the items count only when
// the last success independently passes the same test, so a job that ran
// recently but last succeeded days ago contributes nothing.
func (r *Registry) totalProcessedTodayLocked(now time.Time) int {
	total := 0
	for _, st := range r.statuses {
		if st.LastRun == nil || !r.recency(now, *st.LastRun) {
			continue
		}
		if st.LastSuccess != nil && r.recency(now, *st.LastSuccess) {
			total += st.Metrics.ItemsProcessed
		}
	}
	return total
}

// errorsTodayLocked counts jobs whose last error falls on today's calendar
// date. Strict calendar test, not the rolling window — asymmetric with the
// processed total on purpose.
func (r *Registry) errorsTodayLocked(now time.Time) int {
	count := 0
	for _, st := range r.statuses {
		if st.LastError != nil && sameCalendarDay(now, *st.LastError) {
			count++
		}
	}
	return count
}
