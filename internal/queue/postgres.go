package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/common"
	"github.com/orelytics/docpipe/internal/entity"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS extraction_queue (
	id            UUID PRIMARY KEY,
	locator       TEXT NOT NULL UNIQUE,
	source_kind   TEXT NOT NULL,
	doc_kind_hint TEXT NOT NULL DEFAULT '',
	owner_ref     TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	priority      INTEGER NOT NULL DEFAULT 0,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	last_error    TEXT NOT NULL DEFAULT '',
	local_path    TEXT NOT NULL DEFAULT '',
	content_hash  TEXT NOT NULL DEFAULT '',
	discovered_at TIMESTAMPTZ NOT NULL,
	next_retry_at TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_queue_claim ON extraction_queue (status, priority DESC, discovered_at ASC);
`

// PostgresQueue is the shared-deployment backend. Claims use
// FOR UPDATE SKIP LOCKED so concurrent workers never double-claim.
type PostgresQueue struct {
	pool   *pgxpool.Pool
	policy Policy
	logger *slog.Logger
}

func NewPostgresQueue(ctx context.Context, pool *pgxpool.Pool, policy Policy, logger *slog.Logger) (*PostgresQueue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("create queue schema: %w", err)
	}
	return &PostgresQueue{pool: pool, policy: policy, logger: logger}, nil
}

func (q *PostgresQueue) Enqueue(ctx context.Context, req EnqueueRequest) (uuid.UUID, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin enqueue: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		id         uuid.UUID
		status     string
		retryCount int
	)
	err = tx.QueryRow(ctx,
		`SELECT id, status, retry_count FROM extraction_queue WHERE locator = $1 FOR UPDATE`, req.Locator).
		Scan(&id, &status, &retryCount)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		id = uuid.New()
		_, err = tx.Exec(ctx, `
			INSERT INTO extraction_queue
				(id, locator, source_kind, doc_kind_hint, owner_ref, status, priority, local_path, content_hash, discovered_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`,
			id, req.Locator, string(req.SourceKind), string(req.DocKindHint), req.OwnerRef,
			string(constants.QueuePending), req.Priority, req.LocalPath, req.ContentHash)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert queue item: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return uuid.Nil, fmt.Errorf("commit enqueue: %w", err)
		}
		q.logger.Info("queue.enqueue", "item_id", id, "locator", req.Locator, "source", req.SourceKind)
		return id, nil
	case err != nil:
		return uuid.Nil, fmt.Errorf("lookup locator: %w", err)
	}

	if constants.QueueStatus(status) == constants.QueueFailed && !q.policy.Terminal(retryCount) {
		_, err = tx.Exec(ctx, `
			UPDATE extraction_queue
			SET status = $1, next_retry_at = NULL, last_error = ''
			WHERE id = $2`,
			string(constants.QueuePending), id)
		if err != nil {
			return uuid.Nil, fmt.Errorf("requeue item: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return uuid.Nil, fmt.Errorf("commit requeue: %w", err)
		}
		q.logger.Info("queue.requeue", "item_id", id, "locator", req.Locator, "retry_count", retryCount)
		return id, nil
	}
	return id, common.ErrDuplicate
}

func (q *PostgresQueue) ClaimNextBatch(ctx context.Context, n int) ([]entity.QueueItem, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := q.pool.Query(ctx, `
		UPDATE extraction_queue
		SET status = $1
		WHERE id IN (
			SELECT id FROM extraction_queue
			WHERE status = $2
			   OR (status = $3 AND retry_count < $4 AND next_retry_at IS NOT NULL AND next_retry_at <= NOW())
			ORDER BY priority DESC, discovered_at ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, locator, source_kind, doc_kind_hint, owner_ref, status, priority,
		          retry_count, last_error, local_path, content_hash, discovered_at, next_retry_at, completed_at`,
		string(constants.QueueProcessing), string(constants.QueuePending),
		string(constants.QueueFailed), q.policy.RetryCeiling, n)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var items []entity.QueueItem
	for rows.Next() {
		var (
			item        entity.QueueItem
			sourceKind  string
			docKindHint string
			status      string
			nextRetryAt *time.Time
			completedAt *time.Time
		)
		err := rows.Scan(&item.ID, &item.Locator, &sourceKind, &docKindHint, &item.OwnerRef,
			&status, &item.Priority, &item.RetryCount, &item.LastError,
			&item.LocalPath, &item.ContentHash, &item.DiscoveredAt, &nextRetryAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("scan claimed row: %w", err)
		}
		item.SourceKind = constants.SourceKind(sourceKind)
		item.DocKindHint = constants.DocType(docKindHint)
		item.Status = constants.QueueStatus(status)
		item.NextRetryAt = nextRetryAt
		item.CompletedAt = completedAt
		items = append(items, item)
	}
	return items, rows.Err()
}

func (q *PostgresQueue) Complete(ctx context.Context, id uuid.UUID) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE extraction_queue
		SET status = $1, completed_at = NOW(), next_retry_at = NULL, last_error = ''
		WHERE id = $2`,
		string(constants.QueueCompleted), id)
	if err != nil {
		return fmt.Errorf("complete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	q.logger.Info("queue.complete", "item_id", id)
	return nil
}

func (q *PostgresQueue) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin fail: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var retryCount int
	err = tx.QueryRow(ctx, `SELECT retry_count FROM extraction_queue WHERE id = $1 FOR UPDATE`, id).Scan(&retryCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return common.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup retry count: %w", err)
	}

	retryCount++
	var nextRetry *time.Time
	if !q.policy.Terminal(retryCount) {
		at := q.policy.RetryAt(time.Now(), retryCount)
		nextRetry = &at
	}
	_, err = tx.Exec(ctx, `
		UPDATE extraction_queue
		SET status = $1, retry_count = $2, last_error = $3, next_retry_at = $4
		WHERE id = $5`,
		string(constants.QueueFailed), retryCount, errMsg, nextRetry, id)
	if err != nil {
		return fmt.Errorf("fail item: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit fail: %w", err)
	}
	q.logger.Warn("queue.fail", "item_id", id, "retry_count", retryCount, "terminal", q.policy.Terminal(retryCount), "error", errMsg)
	return nil
}

func (q *PostgresQueue) Get(ctx context.Context, id uuid.UUID) (entity.QueueItem, error) {
	var (
		item        entity.QueueItem
		sourceKind  string
		docKindHint string
		status      string
		nextRetryAt *time.Time
		completedAt *time.Time
	)
	err := q.pool.QueryRow(ctx, `
		SELECT id, locator, source_kind, doc_kind_hint, owner_ref, status, priority,
		       retry_count, last_error, local_path, content_hash, discovered_at, next_retry_at, completed_at
		FROM extraction_queue WHERE id = $1`, id).
		Scan(&item.ID, &item.Locator, &sourceKind, &docKindHint, &item.OwnerRef,
			&status, &item.Priority, &item.RetryCount, &item.LastError,
			&item.LocalPath, &item.ContentHash, &item.DiscoveredAt, &nextRetryAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.QueueItem{}, common.ErrNotFound
	}
	if err != nil {
		return entity.QueueItem{}, fmt.Errorf("get item: %w", err)
	}
	item.SourceKind = constants.SourceKind(sourceKind)
	item.DocKindHint = constants.DocType(docKindHint)
	item.Status = constants.QueueStatus(status)
	item.NextRetryAt = nextRetryAt
	item.CompletedAt = completedAt
	return item, nil
}

func (q *PostgresQueue) CountByStatus(ctx context.Context) (map[constants.QueueStatus]int, error) {
	rows, err := q.pool.Query(ctx, `SELECT status, COUNT(*) FROM extraction_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[constants.QueueStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[constants.QueueStatus(status)] = n
	}
	return counts, rows.Err()
}
