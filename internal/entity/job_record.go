package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/orelytics/docpipe/constants"
)

// JobRecord is one row of task execution history.
type JobRecord struct {
	ID               uuid.UUID           `json:"id"`
	TaskName         string              `json:"task_name"`
	Status           constants.JobStatus `json:"status"`
	StartedAt        time.Time           `json:"started_at"`
	FinishedAt       *time.Time          `json:"finished_at,omitempty"`
	Duration         time.Duration       `json:"duration"`
	RecordsProcessed int                 `json:"records_processed"`
	RecordsFailed    int                 `json:"records_failed"`
	ErrorMessage     string              `json:"error_message,omitempty"`
	Metadata         map[string]any      `json:"metadata,omitempty"`
}

// JobStats aggregates history for one task over a lookback window.
type JobStats struct {
	TaskName       string        `json:"task_name"`
	Runs           int           `json:"runs"`
	Successes      int           `json:"successes"`
	Failures       int           `json:"failures"`
	Partials       int           `json:"partials"`
	SuccessRate    float64       `json:"success_rate"`
	AvgDuration    time.Duration `json:"avg_duration"`
	TotalProcessed int           `json:"total_processed"`
	TotalFailed    int           `json:"total_failed"`
	LastRunAt      *time.Time    `json:"last_run_at,omitempty"`
}
