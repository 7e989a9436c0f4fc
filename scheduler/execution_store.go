package scheduler

import (
	"database/sql"
	"time"

	"github.com/innoscope/innoscope/errors"
)

// ExecutionStore persists enrichment execution history.
type ExecutionStore struct {
	db *sql.DB
}

// NewExecutionStore creates an execution store backed by db. The
// enrichment_executions table is created by storage.Migrate.
func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

// CreateExecution inserts a new execution record.
func (s *ExecutionStore) CreateExecution(exec *Execution) error {
	query := `
		INSERT INTO enrichment_executions (
			id, provider, status,
			started_at, completed_at, duration_ms,
			items_processed, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var completedAt, errorMessage, durationMs interface{}
	if exec.CompletedAt != nil {
		completedAt = *exec.CompletedAt
	}
	if exec.DurationMs != nil {
		durationMs = *exec.DurationMs
	}
	if exec.ErrorMessage != nil {
		errorMessage = *exec.ErrorMessage
	}

	_, err := s.db.Exec(query,
		exec.ID,
		exec.Provider,
		exec.Status,
		exec.StartedAt,
		completedAt,
		durationMs,
		exec.ItemsProcessed,
		errorMessage,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create execution")
	}

	return nil
}

// UpdateExecution updates an existing execution record.
func (s *ExecutionStore) UpdateExecution(exec *Execution) error {
	query := `
		UPDATE enrichment_executions
		SET status = ?,
		    completed_at = ?,
		    duration_ms = ?,
		    items_processed = ?,
		    error_message = ?
		WHERE id = ?
	`

	var completedAt, errorMessage, durationMs interface{}
	if exec.CompletedAt != nil {
		completedAt = *exec.CompletedAt
	}
	if exec.DurationMs != nil {
		durationMs = *exec.DurationMs
	}
	if exec.ErrorMessage != nil {
		errorMessage = *exec.ErrorMessage
	}

	result, err := s.db.Exec(query,
		exec.Status,
		completedAt,
		durationMs,
		exec.ItemsProcessed,
		errorMessage,
		exec.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update execution")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if rowsAffected == 0 {
		return errors.Newf("execution not found: %s", exec.ID)
	}

	return nil
}

// GetExecution retrieves an execution by ID.
func (s *ExecutionStore) GetExecution(id string) (*Execution, error) {
	query := `
		SELECT id, provider, status,
		       started_at, completed_at, duration_ms,
		       items_processed, error_message
		FROM enrichment_executions
		WHERE id = ?
	`

	var exec Execution
	var completedAt, errorMessage sql.NullString
	var durationMs sql.NullInt64

	err := s.db.QueryRow(query, id).Scan(
		&exec.ID,
		&exec.Provider,
		&exec.Status,
		&exec.StartedAt,
		&completedAt,
		&durationMs,
		&exec.ItemsProcessed,
		&errorMessage,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Newf("execution not found: %s", id)
		}
		return nil, errors.Wrap(err, "failed to get execution")
	}

	if completedAt.Valid {
		exec.CompletedAt = &completedAt.String
	}
	if durationMs.Valid {
		exec.DurationMs = &durationMs.Int64
	}
	if errorMessage.Valid {
		exec.ErrorMessage = &errorMessage.String
	}

	return &exec, nil
}

// ListRecentExecutions retrieves the most recent executions, newest first.
func (s *ExecutionStore) ListRecentExecutions(limit int) ([]*Execution, error) {
	query := `
		SELECT id, provider, status,
		       started_at, completed_at, duration_ms,
		       items_processed, error_message
		FROM enrichment_executions
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		var exec Execution
		var completedAt, errorMessage sql.NullString
		var durationMs sql.NullInt64

		err := rows.Scan(
			&exec.ID,
			&exec.Provider,
			&exec.Status,
			&exec.StartedAt,
			&completedAt,
			&durationMs,
			&exec.ItemsProcessed,
			&errorMessage,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}

		if completedAt.Valid {
			exec.CompletedAt = &completedAt.String
		}
		if durationMs.Valid {
			exec.DurationMs = &durationMs.Int64
		}
		if errorMessage.Valid {
			exec.ErrorMessage = &errorMessage.String
		}

		executions = append(executions, &exec)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating executions")
	}

	return executions, nil
}

// CleanupOldExecutions deletes completed and failed executions older than the
// retention window. Returns the number of rows removed.
func (s *ExecutionStore) CleanupOldExecutions(retentionDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339)

	result, err := s.db.Exec(`
		DELETE FROM enrichment_executions
		WHERE status IN (?, ?) AND started_at < ?
	`, ExecutionStatusCompleted, ExecutionStatusFailed, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup executions")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to check rows affected")
	}

	return int(deleted), nil
}
