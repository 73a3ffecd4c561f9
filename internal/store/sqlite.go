package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/common"
	"github.com/orelytics/docpipe/internal/entity"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS extraction_results (
	id          TEXT PRIMARY KEY,
	item_id     TEXT NOT NULL,
	type        TEXT NOT NULL,
	method      TEXT NOT NULL,
	metrics     TEXT NOT NULL,
	confidence  REAL NOT NULL,
	owner_ref   TEXT NOT NULL DEFAULT '',
	source_page INTEGER NOT NULL DEFAULT 0,
	snippet     TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_created ON extraction_results (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_results_item ON extraction_results (item_id);

CREATE TABLE IF NOT EXISTS owners (
	ref    TEXT PRIMARY KEY,
	ticker TEXT NOT NULL DEFAULT '',
	name   TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_owners_ticker ON owners (ticker) WHERE ticker != '';
`

// SQLiteStore keeps results and owners in a local SQLite file, typically
// the same file as the SQLite queue backend.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func OpenSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return NewSQLiteStore(db, logger)
}

// NewSQLiteStore wraps an already-open handle (shared with the queue).
func NewSQLiteStore(db *sql.DB, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("create store schema: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) SaveExtractionResult(ctx context.Context, itemID uuid.UUID, result entity.ExtractionResult) error {
	metrics, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	id := uuid.New()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO extraction_results
			(id, item_id, type, method, metrics, confidence, owner_ref, source_page, snippet, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), itemID.String(), string(result.Type), string(result.Method),
		string(metrics), result.Confidence, result.OwnerRef, result.SourcePage,
		result.Snippet, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	s.logger.Info("store.result.saved",
		"result_id", id, "item_id", itemID, "type", result.Type, "method", result.Method)
	return nil
}

// ResolveOwnerRef matches a ticker or name hint against the owner registry.
func (s *SQLiteStore) ResolveOwnerRef(ctx context.Context, hint string) (string, error) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return "", common.ErrInvalidInput
	}
	var ref string
	err := s.db.QueryRowContext(ctx, `
		SELECT ref FROM owners
		WHERE ticker = ? COLLATE NOCASE OR name = ? COLLATE NOCASE
		LIMIT 1`, hint, hint).Scan(&ref)
	if err == sql.ErrNoRows {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve owner: %w", err)
	}
	return ref, nil
}

func (s *SQLiteStore) UpsertOwner(ctx context.Context, owner Owner) error {
	if owner.Ref == "" {
		return common.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO owners (ref, ticker, name) VALUES (?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET ticker = excluded.ticker, name = excluded.name`,
		owner.Ref, owner.Ticker, owner.Name)
	if err != nil {
		return fmt.Errorf("upsert owner: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, since time.Time, limit int) ([]StoredResult, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, type, method, metrics, confidence, owner_ref, source_page, snippet, created_at
		FROM extraction_results
		WHERE created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?`, since.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []StoredResult
	for rows.Next() {
		var (
			sr         StoredResult
			idStr      string
			itemStr    string
			typ        string
			method     string
			metricsRaw string
			createdAt  int64
		)
		err := rows.Scan(&idStr, &itemStr, &typ, &method, &metricsRaw,
			&sr.Result.Confidence, &sr.Result.OwnerRef, &sr.Result.SourcePage,
			&sr.Result.Snippet, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if sr.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parse result id %q: %w", idStr, err)
		}
		if sr.ItemID, err = uuid.Parse(itemStr); err != nil {
			return nil, fmt.Errorf("parse item id %q: %w", itemStr, err)
		}
		sr.Result.Type = constants.ExtractionType(typ)
		sr.Result.Method = constants.ExtractionMethod(method)
		sr.CreatedAt = time.Unix(0, createdAt)
		if err := json.Unmarshal([]byte(metricsRaw), &sr.Result.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics for %s: %w", idStr, err)
		}
		results = append(results, sr)
	}
	return results, rows.Err()
}
