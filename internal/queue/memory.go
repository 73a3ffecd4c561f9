package queue

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/common"
	"github.com/orelytics/docpipe/internal/entity"
)

// MemoryQueue is the in-process backend. All transitions happen under one
// mutex, so a claim is a single atomic conditional update.
type MemoryQueue struct {
	policy Policy
	logger *slog.Logger

	mu        sync.Mutex
	items     map[uuid.UUID]*entity.QueueItem
	byLocator map[string]uuid.UUID
	now       func() time.Time
}

func NewMemoryQueue(policy Policy, logger *slog.Logger) *MemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryQueue{
		policy:    policy,
		logger:    logger,
		items:     make(map[uuid.UUID]*entity.QueueItem),
		byLocator: make(map[string]uuid.UUID),
		now:       time.Now,
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, req EnqueueRequest) (uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if id, ok := q.byLocator[req.Locator]; ok {
		existing := q.items[id]
		if existing.Status == constants.QueueFailed && !q.policy.Terminal(existing.RetryCount) {
			// Re-discovery of a retryable failure resets it to PENDING.
			existing.Status = constants.QueuePending
			existing.NextRetryAt = nil
			existing.LastError = ""
			q.logger.Info("queue.requeue", "item_id", id, "locator", req.Locator, "retry_count", existing.RetryCount)
			return id, nil
		}
		return id, common.ErrDuplicate
	}

	item := &entity.QueueItem{
		ID:           uuid.New(),
		Locator:      req.Locator,
		SourceKind:   req.SourceKind,
		DocKindHint:  req.DocKindHint,
		OwnerRef:     req.OwnerRef,
		Status:       constants.QueuePending,
		Priority:     req.Priority,
		LocalPath:    req.LocalPath,
		ContentHash:  req.ContentHash,
		DiscoveredAt: q.now(),
	}
	q.items[item.ID] = item
	q.byLocator[item.Locator] = item.ID
	q.logger.Info("queue.enqueue", "item_id", item.ID, "locator", item.Locator, "source", item.SourceKind, "priority", item.Priority)
	return item.ID, nil
}

func (q *MemoryQueue) ClaimNextBatch(_ context.Context, n int) ([]entity.QueueItem, error) {
	if n <= 0 {
		return nil, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var candidates []*entity.QueueItem
	for _, item := range q.items {
		if claimable(item, q.policy, now) {
			candidates = append(candidates, item)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].DiscoveredAt.Before(candidates[j].DiscoveredAt)
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}

	out := make([]entity.QueueItem, 0, len(candidates))
	for _, item := range candidates {
		item.Status = constants.QueueProcessing
		out = append(out, *item)
	}
	return out, nil
}

func (q *MemoryQueue) Complete(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return common.ErrNotFound
	}
	now := q.now()
	item.Status = constants.QueueCompleted
	item.CompletedAt = &now
	item.NextRetryAt = nil
	item.LastError = ""
	q.logger.Info("queue.complete", "item_id", id)
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, id uuid.UUID, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return common.ErrNotFound
	}
	item.RetryCount++
	item.Status = constants.QueueFailed
	item.LastError = errMsg
	if q.policy.Terminal(item.RetryCount) {
		item.NextRetryAt = nil
		q.logger.Warn("queue.fail.terminal", "item_id", id, "retry_count", item.RetryCount, "error", errMsg)
	} else {
		at := q.policy.RetryAt(q.now(), item.RetryCount)
		item.NextRetryAt = &at
		q.logger.Warn("queue.fail", "item_id", id, "retry_count", item.RetryCount, "next_retry_at", at, "error", errMsg)
	}
	return nil
}

func (q *MemoryQueue) Get(_ context.Context, id uuid.UUID) (entity.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return entity.QueueItem{}, common.ErrNotFound
	}
	return *item, nil
}

func (q *MemoryQueue) CountByStatus(_ context.Context) (map[constants.QueueStatus]int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := make(map[constants.QueueStatus]int)
	for _, item := range q.items {
		counts[item.Status]++
	}
	return counts, nil
}

func claimable(item *entity.QueueItem, policy Policy, now time.Time) bool {
	switch item.Status {
	case constants.QueuePending:
		return true
	case constants.QueueFailed:
		return !policy.Terminal(item.RetryCount) &&
			item.NextRetryAt != nil && !now.Before(*item.NextRetryAt)
	default:
		return false
	}
}
