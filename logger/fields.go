package logger

// Standard field names for consistent structured logging across innoscope.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldPipeline    = "pipeline"
	FieldExecutionID = "execution_id"
	FieldComponent   = "component"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldNextRunAt  = "next_run_at"
	FieldLastRunAt  = "last_run_at"

	// Errors
	FieldError = "error"

	// Counts
	FieldItems = "items"
	FieldCount = "count"

	// Status
	FieldStatus = "status"
	FieldState  = "state"

	// Files and paths
	FieldFile = "file"
	FieldPath = "path"
)
