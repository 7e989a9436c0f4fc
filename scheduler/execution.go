package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// Execution is one historical record of a scheduled enrichment trigger. A
// record is created when the run starts and finalized when it completes, so a
// row stuck in "running" after a restart indicates an interrupted run.
type Execution struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Status   string `json:"status"`

	StartedAt   string  `json:"started_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
	DurationMs  *int64  `json:"duration_ms,omitempty"`

	ItemsProcessed int64   `json:"items_processed"`
	ErrorMessage   *string `json:"error_message,omitempty"`
}

const (
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
)

// NewExecution builds a running execution record for a trigger at startedAt.
func NewExecution(provider string, startedAt time.Time) *Execution {
	return &Execution{
		ID:        "ENX_" + uuid.NewString(),
		Provider:  provider,
		Status:    ExecutionStatusRunning,
		StartedAt: startedAt.UTC().Format(time.RFC3339),
	}
}

// Complete finalizes the record for a successful run.
func (e *Execution) Complete(completedAt time.Time, items int64) {
	e.finish(completedAt, ExecutionStatusCompleted, items)
}

// Fail finalizes the record for a failed run.
func (e *Execution) Fail(completedAt time.Time, items int64, errMsg string) {
	e.finish(completedAt, ExecutionStatusFailed, items)
	e.ErrorMessage = &errMsg
}

func (e *Execution) finish(completedAt time.Time, status string, items int64) {
	ts := completedAt.UTC().Format(time.RFC3339)
	e.Status = status
	e.CompletedAt = &ts
	e.ItemsProcessed = items

	if started, err := time.Parse(time.RFC3339, e.StartedAt); err == nil {
		ms := completedAt.UTC().Sub(started).Milliseconds()
		if ms < 0 {
			ms = 0
		}
		e.DurationMs = &ms
	}
}

// DurationMS returns the recorded duration, or 0 while the run is in flight.
func (e *Execution) DurationMS() int64 {
	if e.DurationMs == nil {
		return 0
	}
	return *e.DurationMs
}
