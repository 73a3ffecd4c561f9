package queue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/common"
	"github.com/orelytics/docpipe/internal/entity"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS extraction_queue (
	id            TEXT PRIMARY KEY,
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
	discovered_at INTEGER NOT NULL,
	next_retry_at INTEGER,
	completed_at  INTEGER
);
CREATE INDEX IF NOT EXISTS idx_queue_claim ON extraction_queue (status, priority DESC, discovered_at ASC);
`

// SQLiteQueue persists queue items in a local SQLite file. SQLite's single-
// writer model makes the claim transaction an atomic conditional update.
type SQLiteQueue struct {
	db     *sql.DB
	policy Policy
	logger *slog.Logger
}

func OpenSQLiteQueue(path string, policy Policy, logger *slog.Logger) (*SQLiteQueue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// Writes are serialized through a single connection; SQLite does not
	// benefit from a larger pool and concurrent writers would contend.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create queue schema: %w", err)
	}
	return &SQLiteQueue{db: db, policy: policy, logger: logger}, nil
}

// NewSQLiteQueue wraps an already-open handle (shared with the result store).
func NewSQLiteQueue(db *sql.DB, policy Policy, logger *slog.Logger) (*SQLiteQueue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("create queue schema: %w", err)
	}
	return &SQLiteQueue{db: db, policy: policy, logger: logger}, nil
}

func (q *SQLiteQueue) Close() error { return q.db.Close() }

func (q *SQLiteQueue) Enqueue(ctx context.Context, req EnqueueRequest) (uuid.UUID, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin enqueue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		idStr      string
		status     string
		retryCount int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, status, retry_count FROM extraction_queue WHERE locator = ?`, req.Locator).
		Scan(&idStr, &status, &retryCount)
	switch {
	case err == sql.ErrNoRows:
		id := uuid.New()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO extraction_queue
				(id, locator, source_kind, doc_kind_hint, owner_ref, status, priority, local_path, content_hash, discovered_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id.String(), req.Locator, string(req.SourceKind), string(req.DocKindHint), req.OwnerRef,
			string(constants.QueuePending), req.Priority, req.LocalPath, req.ContentHash, time.Now().UnixNano())
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert queue item: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return uuid.Nil, fmt.Errorf("commit enqueue: %w", err)
		}
		q.logger.Info("queue.enqueue", "item_id", id, "locator", req.Locator, "source", req.SourceKind)
		return id, nil
	case err != nil:
		return uuid.Nil, fmt.Errorf("lookup locator: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse item id %q: %w", idStr, err)
	}
	if constants.QueueStatus(status) == constants.QueueFailed && !q.policy.Terminal(retryCount) {
		_, err = tx.ExecContext(ctx, `
			UPDATE extraction_queue
			SET status = ?, next_retry_at = NULL, last_error = ''
			WHERE id = ? AND status = ?`,
			string(constants.QueuePending), idStr, string(constants.QueueFailed))
		if err != nil {
			return uuid.Nil, fmt.Errorf("requeue item: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return uuid.Nil, fmt.Errorf("commit requeue: %w", err)
		}
		q.logger.Info("queue.requeue", "item_id", id, "locator", req.Locator, "retry_count", retryCount)
		return id, nil
	}
	return id, common.ErrDuplicate
}

func (q *SQLiteQueue) ClaimNextBatch(ctx context.Context, n int) ([]entity.QueueItem, error) {
	if n <= 0 {
		return nil, nil
	}
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixNano()
	rows, err := tx.QueryContext(ctx, `
		SELECT id, locator, source_kind, doc_kind_hint, owner_ref, status, priority,
		       retry_count, last_error, local_path, content_hash, discovered_at, next_retry_at, completed_at
		FROM extraction_queue
		WHERE status = ?
		   OR (status = ? AND retry_count < ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?)
		ORDER BY priority DESC, discovered_at ASC
		LIMIT ?`,
		string(constants.QueuePending), string(constants.QueueFailed), q.policy.RetryCeiling, now, n)
	if err != nil {
		return nil, fmt.Errorf("select claimable: %w", err)
	}
	items, err := scanQueueRows(rows)
	if err != nil {
		return nil, err
	}

	claimed := make([]entity.QueueItem, 0, len(items))
	for _, item := range items {
		res, err := tx.ExecContext(ctx, `
			UPDATE extraction_queue SET status = ?
			WHERE id = ? AND status = ?`,
			string(constants.QueueProcessing), item.ID.String(), string(item.Status))
		if err != nil {
			return nil, fmt.Errorf("claim item %s: %w", item.ID, err)
		}
		if affected, _ := res.RowsAffected(); affected == 1 {
			item.Status = constants.QueueProcessing
			claimed = append(claimed, item)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return claimed, nil
}

func (q *SQLiteQueue) Complete(ctx context.Context, id uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE extraction_queue
		SET status = ?, completed_at = ?, next_retry_at = NULL, last_error = ''
		WHERE id = ?`,
		string(constants.QueueCompleted), time.Now().UnixNano(), id.String())
	if err != nil {
		return fmt.Errorf("complete item: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return common.ErrNotFound
	}
	q.logger.Info("queue.complete", "item_id", id)
	return nil
}

func (q *SQLiteQueue) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fail: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var retryCount int
	err = tx.QueryRowContext(ctx, `SELECT retry_count FROM extraction_queue WHERE id = ?`, id.String()).Scan(&retryCount)
	if err == sql.ErrNoRows {
		return common.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup retry count: %w", err)
	}

	retryCount++
	var nextRetry any // nil for terminal failures
	if !q.policy.Terminal(retryCount) {
		nextRetry = q.policy.RetryAt(time.Now(), retryCount).UnixNano()
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE extraction_queue
		SET status = ?, retry_count = ?, last_error = ?, next_retry_at = ?
		WHERE id = ?`,
		string(constants.QueueFailed), retryCount, errMsg, nextRetry, id.String())
	if err != nil {
		return fmt.Errorf("fail item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fail: %w", err)
	}
	q.logger.Warn("queue.fail", "item_id", id, "retry_count", retryCount, "terminal", q.policy.Terminal(retryCount), "error", errMsg)
	return nil
}

func (q *SQLiteQueue) Get(ctx context.Context, id uuid.UUID) (entity.QueueItem, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, locator, source_kind, doc_kind_hint, owner_ref, status, priority,
		       retry_count, last_error, local_path, content_hash, discovered_at, next_retry_at, completed_at
		FROM extraction_queue WHERE id = ?`, id.String())
	if err != nil {
		return entity.QueueItem{}, fmt.Errorf("get item: %w", err)
	}
	items, err := scanQueueRows(rows)
	if err != nil {
		return entity.QueueItem{}, err
	}
	if len(items) == 0 {
		return entity.QueueItem{}, common.ErrNotFound
	}
	return items[0], nil
}

func (q *SQLiteQueue) CountByStatus(ctx context.Context) (map[constants.QueueStatus]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM extraction_queue GROUP BY status`)
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

func scanQueueRows(rows *sql.Rows) ([]entity.QueueItem, error) {
	defer rows.Close()
	var items []entity.QueueItem
	for rows.Next() {
		var (
			item         entity.QueueItem
			idStr        string
			sourceKind   string
			docKindHint  string
			status       string
			discoveredAt int64
			nextRetryAt  sql.NullInt64
			completedAt  sql.NullInt64
		)
		err := rows.Scan(&idStr, &item.Locator, &sourceKind, &docKindHint, &item.OwnerRef,
			&status, &item.Priority, &item.RetryCount, &item.LastError,
			&item.LocalPath, &item.ContentHash, &discoveredAt, &nextRetryAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("scan queue row: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse item id %q: %w", idStr, err)
		}
		item.ID = id
		item.SourceKind = constants.SourceKind(sourceKind)
		item.DocKindHint = constants.DocType(docKindHint)
		item.Status = constants.QueueStatus(status)
		item.DiscoveredAt = time.Unix(0, discoveredAt)
		if nextRetryAt.Valid {
			t := time.Unix(0, nextRetryAt.Int64)
			item.NextRetryAt = &t
		}
		if completedAt.Valid {
			t := time.Unix(0, completedAt.Int64)
			item.CompletedAt = &t
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
