// Package monitor tracks the run state of every collection pipeline and
// aggregates operational health across them.
package monitor

import "time"

// PipelineState represents the current state of a pipeline
type PipelineState string

const (
	StateIdle    PipelineState = "idle"
	StateRunning PipelineState = "running"
	StateSuccess PipelineState = "success"
	StateFailed  PipelineState = "failed"
)

// IsValidState returns true if the state string is a valid PipelineState
func IsValidState(s string) bool {
	switch PipelineState(s) {
	case StateIdle, StateRunning, StateSuccess, StateFailed:
		return true
	default:
		return false
	}
}

// Well-known pipeline names. The registry accepts arbitrary names; these four
// are the ones surfaced individually on the unified status record.
const (
	PipelineAcademic   = "academic_pipeline"
	PipelineNews       = "news_pipeline"
	PipelineSerper     = "serper_pipeline"
	PipelineEnrichment = "enrichment_pipeline"
)

// WellKnownPipelines lists the pipelines reported field-by-field in the
// unified status, in display order.
var WellKnownPipelines = []string{
	PipelineAcademic,
	PipelineNews,
	PipelineSerper,
	PipelineEnrichment,
}

// RunMetrics holds the counters of a single pipeline run. A fresh RunMetrics
// replaces the previous one when the next run completes; it is not mutated
// after completion.
type RunMetrics struct {
	ItemsProcessed int     `json:"items_processed"`
	RuntimeSeconds float64 `json:"runtime_seconds"`
}

// JobStatus is the persistent run state of one named pipeline.
type JobStatus struct {
	PipelineActive   bool          `json:"pipeline_active"`
	LastRun          *time.Time    `json:"last_run,omitempty"`
	LastSuccess      *time.Time    `json:"last_success,omitempty"`
	LastError        *time.Time    `json:"last_error,omitempty"`
	CurrentState     PipelineState `json:"current_state"`
	Metrics          RunMetrics    `json:"metrics"`
	RunCount         int           `json:"run_count"`
	ErrorCount       int           `json:"error_count"`
	LastErrorMessage string        `json:"last_error_message,omitempty"`
}

// newJobStatus returns the default idle status created the first time a
// pipeline name is seen.
func newJobStatus() *JobStatus {
	return &JobStatus{
		CurrentState: StateIdle,
	}
}

// clone returns a deep copy so callers never observe a torn JobStatus.
func (s *JobStatus) clone() *JobStatus {
	c := *s
	if s.LastRun != nil {
		t := *s.LastRun
		c.LastRun = &t
	}
	if s.LastSuccess != nil {
		t := *s.LastSuccess
		c.LastSuccess = &t
	}
	if s.LastError != nil {
		t := *s.LastError
		c.LastError = &t
	}
	return &c
}

// start transitions the status to a running state at now.
// Re-entrant starts simply overwrite.
func (s *JobStatus) start(now time.Time) {
	s.CurrentState = StateRunning
	s.PipelineActive = true
	s.LastRun = &now
}

// complete records the outcome of a run at now. Exactly one of LastSuccess
// and LastError moves to now, matching LastRun; the other keeps its prior
// value. A run is never both success and failure.
func (s *JobStatus) complete(now time.Time, success bool, runtimeSeconds float64, itemsProcessed int, errorMessage string) {
	s.PipelineActive = false
	s.LastRun = &now
	s.RunCount++

	if success {
		s.CurrentState = StateSuccess
		s.LastSuccess = &now
		s.Metrics = RunMetrics{
			ItemsProcessed: itemsProcessed,
			RuntimeSeconds: runtimeSeconds,
		}
	} else {
		s.CurrentState = StateFailed
		s.LastError = &now
		s.LastErrorMessage = errorMessage
		s.ErrorCount++
	}
}
