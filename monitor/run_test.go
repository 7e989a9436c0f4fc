package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innoscope/innoscope/errors"
)

func TestRunPipelineSuccess(t *testing.T) {
	r := testRegistry(t, time.Now)

	err := r.RunPipeline(context.Background(), PipelineAcademic, func(ctx context.Context, run *Run) error {
		run.AddProcessedItems(10)
		run.AddProcessedItems(5)
		return nil
	})
	require.NoError(t, err)

	st := r.JobStatusSnapshot(PipelineAcademic)
	require.NotNil(t, st)
	assert.Equal(t, StateSuccess, st.CurrentState)
	assert.Equal(t, 15, st.Metrics.ItemsProcessed)
	assert.False(t, st.PipelineActive)
}

func TestRunPipelineFailurePropagates(t *testing.T) {
	r := testRegistry(t, time.Now)
	boom := errors.New("upstream API returned 503")

	err := r.RunPipeline(context.Background(), PipelineNews, func(ctx context.Context, run *Run) error {
		run.AddProcessedItems(2)
		return boom
	})

	// The pipeline's own caller always sees the failure
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))

	st := r.JobStatusSnapshot(PipelineNews)
	require.NotNil(t, st)
	assert.Equal(t, StateFailed, st.CurrentState)
	assert.Equal(t, "upstream API returned 503", st.LastErrorMessage)
	assert.Equal(t, 1, st.ErrorCount)
	assert.False(t, st.PipelineActive)
}

func TestRunPipelinePanicRecordsFailureAndRepanics(t *testing.T) {
	r := testRegistry(t, time.Now)

	assert.Panics(t, func() {
		r.RunPipeline(context.Background(), PipelineSerper, func(ctx context.Context, run *Run) error {
			panic("nil dereference in parser")
		})
	})

	st := r.JobStatusSnapshot(PipelineSerper)
	require.NotNil(t, st)
	assert.Equal(t, StateFailed, st.CurrentState)
	assert.Contains(t, st.LastErrorMessage, "nil dereference in parser")
	assert.False(t, st.PipelineActive, "a panicking run must not leave the pipeline marked active")
}

func TestRunIsActiveDuringExecution(t *testing.T) {
	r := testRegistry(t, time.Now)

	_ = r.RunPipeline(context.Background(), PipelineEnrichment, func(ctx context.Context, run *Run) error {
		st := r.JobStatusSnapshot(PipelineEnrichment)
		require.NotNil(t, st)
		assert.True(t, st.PipelineActive)
		assert.Equal(t, StateRunning, st.CurrentState)
		return nil
	})

	st := r.JobStatusSnapshot(PipelineEnrichment)
	assert.False(t, st.PipelineActive)
}

func TestRunCompleteIdempotent(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	current := base
	r := testRegistry(t, func() time.Time { return current })

	run := r.StartRun(PipelineAcademic)
	run.AddProcessedItems(4)
	current = base.Add(2 * time.Second)
	run.Complete(nil)

	// A second completion is ignored
	run.Complete(errors.New("late failure"))

	st := r.JobStatusSnapshot(PipelineAcademic)
	assert.Equal(t, StateSuccess, st.CurrentState)
	assert.Equal(t, 1, st.RunCount)
	assert.Equal(t, 4, st.Metrics.ItemsProcessed)
	assert.Equal(t, 2.0, st.Metrics.RuntimeSeconds)
}
