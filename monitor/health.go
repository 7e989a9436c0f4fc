package monitor

import (
	"context"
	"database/sql"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/innoscope/innoscope/errors"
)

// HealthState is a binary operational signal. There are no intermediate
// severity levels.
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
)

// Pinger is the liveness probe for an external dependency (database, vector
// index). Implementations must respect the context deadline.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DBPinger adapts a *sql.DB to the Pinger interface.
func DBPinger(db *sql.DB) Pinger { return dbPinger{db} }

type dbPinger struct{ db *sql.DB }

func (p dbPinger) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// SystemHealth is a derived snapshot, never stored.
type SystemHealth struct {
	CPUPercent     float64     `json:"cpu_percent"`
	MemoryPercent  float64     `json:"memory_percent"`
	DatabaseStatus HealthState `json:"database_status"`
	VectorDBStatus HealthState `json:"vector_db_status"`
	Overall        HealthState `json:"overall"`
}

const dependencyPingTimeout = 3 * time.Second

// SetResourceSampler replaces the CPU/memory sampler (for testing).
func (r *Registry) SetResourceSampler(fn func() (cpuPercent, memPercent float64, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sampleResources = fn
}

// GetSystemHealth samples process-host resource usage and pings the database
// and vector-index dependencies. It never returns an error: an unreachable
// dependency or failed sample maps to a degraded reading.
func (r *Registry) GetSystemHealth() SystemHealth {
	health := SystemHealth{
		DatabaseStatus: HealthHealthy,
		VectorDBStatus: HealthHealthy,
	}

	r.mu.RLock()
	sample := r.sampleResources
	db, vector := r.db, r.vector
	cpuThreshold := r.cfg.CPUThresholdPercent
	memThreshold := r.cfg.MemoryThresholdPercent
	r.mu.RUnlock()

	cpuPct, memPct, err := sample()
	if err != nil {
		r.log.Warnw("Failed to sample system resources", "error", err)
	} else {
		health.CPUPercent = cpuPct
		health.MemoryPercent = memPct
	}

	health.DatabaseStatus = pingDependency(db, "database", r)
	health.VectorDBStatus = pingDependency(vector, "vector_db", r)

	degraded := health.DatabaseStatus != HealthHealthy ||
		health.VectorDBStatus != HealthHealthy ||
		health.CPUPercent > cpuThreshold ||
		health.MemoryPercent > memThreshold

	health.Overall = r.applyDebounce(degraded)
	return health
}

// applyDebounce tracks consecutive degraded samples. With HealthDebounce=1
// (the default) a single reading flips status either way; larger values
// require a streak before reporting degraded.
func (r *Registry) applyDebounce(degraded bool) HealthState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !degraded {
		r.degradedStreak = 0
		return HealthHealthy
	}

	r.degradedStreak++
	if r.degradedStreak >= r.cfg.HealthDebounce {
		return HealthDegraded
	}
	return HealthHealthy
}

func pingDependency(p Pinger, name string, r *Registry) HealthState {
	if p == nil {
		return HealthHealthy
	}

	ctx, cancel := context.WithTimeout(context.Background(), dependencyPingTimeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		r.log.Warnw("Dependency health check failed", "dependency", name, "error", err)
		return HealthDegraded
	}
	return HealthHealthy
}

// sampleSystemResources reads CPU and memory utilization via gopsutil.
func sampleSystemResources() (cpuPercent, memPercent float64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to read memory stats")
	}

	// Interval 0 compares against the previous sample; the first call in a
	// process returns 0 and subsequent calls return utilization since then.
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to read cpu stats")
	}

	cpuPercent = 0
	if len(percents) > 0 {
		cpuPercent = percents[0]
	}
	return cpuPercent, v.UsedPercent, nil
}
