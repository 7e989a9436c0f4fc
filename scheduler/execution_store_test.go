package scheduler

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	itesting "github.com/innoscope/innoscope/internal/testing"
)

func TestExecutionLifecycle(t *testing.T) {
	startedAt := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	exec := NewExecution("openrouter", startedAt)
	assert.True(t, strings.HasPrefix(exec.ID, "ENX_"))
	assert.Equal(t, ExecutionStatusRunning, exec.Status)
	assert.Nil(t, exec.CompletedAt)
	assert.EqualValues(t, 0, exec.DurationMS())

	exec.Complete(startedAt.Add(90*time.Second), 12)
	assert.Equal(t, ExecutionStatusCompleted, exec.Status)
	assert.EqualValues(t, 12, exec.ItemsProcessed)
	assert.EqualValues(t, 90000, exec.DurationMS())
	require.NotNil(t, exec.CompletedAt)
}

func TestExecutionFail(t *testing.T) {
	startedAt := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	exec := NewExecution("openrouter", startedAt)
	exec.Fail(startedAt.Add(5*time.Second), 3, "provider timeout")

	assert.Equal(t, ExecutionStatusFailed, exec.Status)
	require.NotNil(t, exec.ErrorMessage)
	assert.Equal(t, "provider timeout", *exec.ErrorMessage)
	assert.EqualValues(t, 3, exec.ItemsProcessed)
	assert.EqualValues(t, 5000, exec.DurationMS())
}

func TestExecutionStoreCreateAndGet(t *testing.T) {
	store := NewExecutionStore(itesting.CreateTestDB(t))

	exec := NewExecution("openrouter", time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, store.CreateExecution(exec))

	got, err := store.GetExecution(exec.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.ID, got.ID)
	assert.Equal(t, "openrouter", got.Provider)
	assert.Equal(t, ExecutionStatusRunning, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.DurationMs)
	assert.Nil(t, got.ErrorMessage)
}

func TestExecutionStoreGetMissing(t *testing.T) {
	store := NewExecutionStore(itesting.CreateTestDB(t))

	_, err := store.GetExecution("ENX_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestExecutionStoreUpdate(t *testing.T) {
	store := NewExecutionStore(itesting.CreateTestDB(t))

	startedAt := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	exec := NewExecution("openrouter", startedAt)
	require.NoError(t, store.CreateExecution(exec))

	exec.Complete(startedAt.Add(30*time.Second), 42)
	require.NoError(t, store.UpdateExecution(exec))

	got, err := store.GetExecution(exec.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusCompleted, got.Status)
	assert.EqualValues(t, 42, got.ItemsProcessed)
	require.NotNil(t, got.DurationMs)
	assert.EqualValues(t, 30000, *got.DurationMs)

	// Updating an unknown execution is an error.
	missing := NewExecution("openrouter", startedAt)
	assert.Error(t, store.UpdateExecution(missing))
}

func TestExecutionStoreListRecent(t *testing.T) {
	store := NewExecutionStore(itesting.CreateTestDB(t))

	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		exec := NewExecution("openrouter", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, store.CreateExecution(exec))
	}

	recent, err := store.ListRecentExecutions(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	// Newest first
	assert.Equal(t, base.Add(2*time.Hour).Format(time.RFC3339), recent[0].StartedAt)
	assert.Equal(t, base.Add(time.Hour).Format(time.RFC3339), recent[1].StartedAt)
}

func TestExecutionStoreCleanup(t *testing.T) {
	store := NewExecutionStore(itesting.CreateTestDB(t))

	old := NewExecution("openrouter", time.Now().UTC().AddDate(0, 0, -60))
	old.Complete(time.Now().UTC().AddDate(0, 0, -60).Add(time.Minute), 5)
	require.NoError(t, store.CreateExecution(old))

	// A stuck running row survives cleanup regardless of age.
	stuck := NewExecution("openrouter", time.Now().UTC().AddDate(0, 0, -60))
	require.NoError(t, store.CreateExecution(stuck))

	fresh := NewExecution("openrouter", time.Now().UTC())
	fresh.Complete(time.Now().UTC(), 1)
	require.NoError(t, store.CreateExecution(fresh))

	deleted, err := store.CleanupOldExecutions(30)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	remaining, err := store.ListRecentExecutions(10)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestSchedulerRecordsExecutionHistory(t *testing.T) {
	start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := &fixedClock{now: start}
	runner := &stubRunner{items: 9}

	store := NewExecutionStore(itesting.CreateTestDB(t))
	s, _ := testScheduler(t, NewSchedule("openrouter", nil, nil, time.Hour, true, start), runner, clock.Now)
	s.history = store

	clock.Advance(time.Hour)
	s.checkDue()

	recent, err := store.ListRecentExecutions(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, ExecutionStatusCompleted, recent[0].Status)
	assert.EqualValues(t, 9, recent[0].ItemsProcessed)
	assert.Equal(t, "openrouter", recent[0].Provider)
}
