package jobtrack

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orelytics/docpipe/constants"
)

func TestTracker_SuccessWhenOnlyProcessed(t *testing.T) {
	tr := NewTracker(nil)
	err := tr.Run(context.Background(), "ingest", func(_ context.Context, ex *Execution) error {
		ex.AddProcessed(10)
		return nil
	})
	require.NoError(t, err)

	recs := tr.RecentJobs("ingest", 1, "")
	require.Len(t, recs, 1)
	assert.Equal(t, constants.JobSuccess, recs[0].Status)
	assert.Equal(t, 10, recs[0].RecordsProcessed)
}

func TestTracker_PartialWhenProcessedAndFailed(t *testing.T) {
	tr := NewTracker(nil)
	_ = tr.Run(context.Background(), "ingest", func(_ context.Context, ex *Execution) error {
		ex.AddProcessed(10)
		ex.AddFailed(2)
		return nil
	})

	recs := tr.RecentJobs("ingest", 1, "")
	require.Len(t, recs, 1)
	assert.Equal(t, constants.JobPartial, recs[0].Status)
}

func TestTracker_FailedWhenOnlyFailures(t *testing.T) {
	tr := NewTracker(nil)
	_ = tr.Run(context.Background(), "ingest", func(_ context.Context, ex *Execution) error {
		ex.AddFailed(2)
		return nil
	})

	recs := tr.RecentJobs("ingest", 1, "")
	require.Len(t, recs, 1)
	assert.Equal(t, constants.JobFailed, recs[0].Status)
}

func TestTracker_ErrorFinalizesFailed(t *testing.T) {
	tr := NewTracker(nil)
	boom := errors.New("boom")
	err := tr.Run(context.Background(), "ingest", func(context.Context, *Execution) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	recs := tr.RecentJobs("ingest", 1, "")
	require.Len(t, recs, 1)
	assert.Equal(t, constants.JobFailed, recs[0].Status)
	assert.Contains(t, recs[0].ErrorMessage, "boom")
}

func TestTracker_PanicRecordedAndRepanicked(t *testing.T) {
	tr := NewTracker(nil)
	require.Panics(t, func() {
		_ = tr.Run(context.Background(), "ingest", func(context.Context, *Execution) error {
			panic("kaboom")
		})
	})

	recs := tr.RecentJobs("ingest", 1, "")
	require.Len(t, recs, 1)
	assert.Equal(t, constants.JobFailed, recs[0].Status)
	assert.Contains(t, recs[0].ErrorMessage, "kaboom")
}

func TestTracker_HistoryBounded(t *testing.T) {
	tr := NewTracker(nil, WithMaxHistory(3))
	for i := 0; i < 5; i++ {
		_ = tr.Run(context.Background(), "t", func(context.Context, *Execution) error { return nil })
	}
	assert.Len(t, tr.RecentJobs("", 100, ""), 3)
}

func TestTracker_RecentJobsFilters(t *testing.T) {
	tr := NewTracker(nil)
	_ = tr.Run(context.Background(), "a", func(context.Context, *Execution) error { return nil })
	_ = tr.Run(context.Background(), "b", func(context.Context, *Execution) error { return errors.New("x") })

	assert.Len(t, tr.RecentJobs("a", 10, ""), 1)
	assert.Len(t, tr.RecentJobs("", 10, constants.JobFailed), 1)
	assert.Len(t, tr.RecentJobs("b", 10, constants.JobSuccess), 0)
}

func TestTracker_Stats(t *testing.T) {
	tr := NewTracker(nil)
	_ = tr.Run(context.Background(), "t", func(_ context.Context, ex *Execution) error {
		ex.AddProcessed(5)
		return nil
	})
	_ = tr.Run(context.Background(), "t", func(context.Context, *Execution) error {
		return errors.New("boom")
	})

	stats := tr.Stats("t", time.Now().Add(-time.Hour))
	assert.Equal(t, 2, stats.Runs)
	assert.Equal(t, 1, stats.Successes)
	assert.Equal(t, 1, stats.Failures)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
	assert.Equal(t, 5, stats.TotalProcessed)
	require.NotNil(t, stats.LastRunAt)
}
