package constants

// QueueStatus is the canonical status for rows in extraction_queue.
type QueueStatus string

// Stable values (store these exact strings in DB).
const (
	QueuePending    QueueStatus = "PENDING"    // discovered, waiting to be claimed
	QueueProcessing QueueStatus = "PROCESSING" // claimed by a worker
	QueueCompleted  QueueStatus = "COMPLETED"  // terminal success
	QueueFailed     QueueStatus = "FAILED"     // failure; re-claimable below the retry ceiling
)

// JobStatus is the canonical status for rows in job_history.
type JobStatus string

const (
	JobRunning JobStatus = "RUNNING" // in progress
	JobSuccess JobStatus = "SUCCESS" // finished, no failures recorded
	JobPartial JobStatus = "PARTIAL" // finished with both processed and failed records
	JobFailed  JobStatus = "FAILED"  // terminal failure
)
