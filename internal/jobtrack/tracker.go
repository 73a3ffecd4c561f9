package jobtrack

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/common"
	"github.com/orelytics/docpipe/internal/entity"
)

// Tracker records execution history for named tasks and serves aggregate
// statistics over a bounded rolling window of records.
type Tracker struct {
	logger     *slog.Logger
	maxHistory int

	mu      sync.Mutex
	history []*entity.JobRecord // newest first
}

type Option func(*Tracker)

func WithMaxHistory(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.maxHistory = n
		}
	}
}

func NewTracker(logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		logger:     logger,
		maxHistory: 500,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Execution is one tracked run of a named task. Record counts are added by
// the task body; Finish computes the terminal status.
type Execution struct {
	tracker *Tracker
	rec     *entity.JobRecord

	mu       sync.Mutex
	finished bool
}

// Begin creates a RUNNING record and returns the execution scope plus a
// context carrying the task name and execution id.
func (t *Tracker) Begin(ctx context.Context, name string) (*Execution, context.Context) {
	rec := &entity.JobRecord{
		ID:        uuid.New(),
		TaskName:  name,
		Status:    constants.JobRunning,
		StartedAt: time.Now(),
	}
	t.mu.Lock()
	t.history = append([]*entity.JobRecord{rec}, t.history...)
	if len(t.history) > t.maxHistory {
		t.history = t.history[:t.maxHistory]
	}
	t.mu.Unlock()

	ctx = common.WithTaskName(ctx, name)
	ctx = common.WithExecutionID(ctx, rec.ID.String())
	t.logger.Info("job.start", "task", name, "execution_id", rec.ID)
	return &Execution{tracker: t, rec: rec}, ctx
}

// Run executes fn inside a tracked scope. A panic is recorded as FAILED and
// re-raised; an error return is recorded as FAILED; otherwise the status
// follows the processed/failed counts.
func (t *Tracker) Run(ctx context.Context, name string, fn func(ctx context.Context, ex *Execution) error) (err error) {
	ex, ctx := t.Begin(ctx, name)
	defer func() {
		if r := recover(); r != nil {
			ex.Finish(fmt.Errorf("panic: %v", r))
			panic(r)
		}
		ex.Finish(err)
	}()
	err = fn(ctx, ex)
	return err
}

// AddProcessed increments the processed-record count.
func (ex *Execution) AddProcessed(n int) {
	ex.mu.Lock()
	ex.rec.RecordsProcessed += n
	ex.mu.Unlock()
}

// AddFailed increments the failed-record count.
func (ex *Execution) AddFailed(n int) {
	ex.mu.Lock()
	ex.rec.RecordsFailed += n
	ex.mu.Unlock()
}

// SetMeta attaches free-form metadata to the record.
func (ex *Execution) SetMeta(key string, value any) {
	ex.mu.Lock()
	if ex.rec.Metadata == nil {
		ex.rec.Metadata = make(map[string]any)
	}
	ex.rec.Metadata[key] = value
	ex.mu.Unlock()
}

// ID returns the unique execution id.
func (ex *Execution) ID() uuid.UUID { return ex.rec.ID }

// Finish finalizes the record. With a nil error the status is SUCCESS,
// PARTIAL when both processed and failed counts are nonzero, or FAILED when
// only failures were recorded. Finish is idempotent.
func (ex *Execution) Finish(err error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.finished {
		return
	}
	ex.finished = true

	now := time.Now()
	ex.rec.FinishedAt = &now
	ex.rec.Duration = now.Sub(ex.rec.StartedAt)

	switch {
	case err != nil:
		ex.rec.Status = constants.JobFailed
		ex.rec.ErrorMessage = err.Error()
	case ex.rec.RecordsFailed > 0 && ex.rec.RecordsProcessed > 0:
		ex.rec.Status = constants.JobPartial
	case ex.rec.RecordsFailed > 0:
		ex.rec.Status = constants.JobFailed
	default:
		ex.rec.Status = constants.JobSuccess
	}

	log := ex.tracker.logger
	attrs := []any{
		"task", ex.rec.TaskName,
		"execution_id", ex.rec.ID,
		"status", ex.rec.Status,
		"processed", ex.rec.RecordsProcessed,
		"failed", ex.rec.RecordsFailed,
		"elapsed_ms", ex.rec.Duration.Milliseconds(),
	}
	if ex.rec.Status == constants.JobFailed {
		log.Warn("job.finish", append(attrs, "error", ex.rec.ErrorMessage)...)
	} else {
		log.Info("job.finish", attrs...)
	}
}

// RecentJobs returns up to limit records, newest first, optionally filtered
// by task name and status. Empty filters match everything.
func (t *Tracker) RecentJobs(taskName string, limit int, status constants.JobStatus) []entity.JobRecord {
	if limit <= 0 {
		limit = 50
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]entity.JobRecord, 0, limit)
	for _, rec := range t.history {
		if taskName != "" && rec.TaskName != taskName {
			continue
		}
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, *rec)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Stats aggregates finished runs of one task started at or after since.
func (t *Tracker) Stats(taskName string, since time.Time) entity.JobStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := entity.JobStats{TaskName: taskName}
	var totalDuration time.Duration
	for _, rec := range t.history {
		if rec.TaskName != taskName || rec.StartedAt.Before(since) {
			continue
		}
		if rec.Status == constants.JobRunning {
			continue
		}
		stats.Runs++
		totalDuration += rec.Duration
		stats.TotalProcessed += rec.RecordsProcessed
		stats.TotalFailed += rec.RecordsFailed
		switch rec.Status {
		case constants.JobSuccess:
			stats.Successes++
		case constants.JobPartial:
			stats.Partials++
		case constants.JobFailed:
			stats.Failures++
		}
		if stats.LastRunAt == nil || rec.StartedAt.After(*stats.LastRunAt) {
			started := rec.StartedAt
			stats.LastRunAt = &started
		}
	}
	if stats.Runs > 0 {
		stats.SuccessRate = float64(stats.Successes+stats.Partials) / float64(stats.Runs)
		stats.AvgDuration = totalDuration / time.Duration(stats.Runs)
	}
	return stats
}
