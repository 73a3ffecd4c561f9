package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/entity"
	"github.com/orelytics/docpipe/internal/resilience"
)

// EnqueueRequest describes a discovered document.
type EnqueueRequest struct {
	Locator     string
	SourceKind  constants.SourceKind
	DocKindHint constants.DocType
	OwnerRef    string
	Priority    int
	LocalPath   string
	ContentHash string
}

// Queue is the durable work-item store. Enqueue is idempotent on locator:
// a duplicate of a live (PENDING/PROCESSING) or COMPLETED item returns
// common.ErrDuplicate; a duplicate of a FAILED item under the retry ceiling
// resets it to PENDING. ClaimNextBatch atomically marks claimed items
// PROCESSING, ordered by priority desc then discovery time asc; a FAILED
// item below the ceiling becomes claimable once its backoff window elapses.
type Queue interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (uuid.UUID, error)
	ClaimNextBatch(ctx context.Context, n int) ([]entity.QueueItem, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error
	Get(ctx context.Context, id uuid.UUID) (entity.QueueItem, error)
	CountByStatus(ctx context.Context) (map[constants.QueueStatus]int, error)
}

// Policy carries the retry ceiling and the backoff schedule applied to
// failed items. The schedule is the same exponential formula the retry
// primitive uses.
type Policy struct {
	RetryCeiling int
	Backoff      resilience.RetryConfig
}

func DefaultPolicy() Policy {
	return Policy{
		RetryCeiling: 3,
		Backoff: resilience.RetryConfig{
			BaseDelay:     30 * time.Second,
			BackoffFactor: 2,
			MaxDelay:      30 * time.Minute,
		},
	}
}

// RetryAt computes the earliest re-claim time for an item that has now
// failed retryCount times.
func (p Policy) RetryAt(now time.Time, retryCount int) time.Time {
	return now.Add(p.Backoff.Backoff(retryCount))
}

// Terminal reports whether an item with this retry count is out of attempts.
func (p Policy) Terminal(retryCount int) bool {
	return retryCount >= p.RetryCeiling
}
