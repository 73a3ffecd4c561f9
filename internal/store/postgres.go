package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/common"
	"github.com/orelytics/docpipe/internal/entity"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS extraction_results (
	id          UUID PRIMARY KEY,
	item_id     UUID NOT NULL,
	type        TEXT NOT NULL,
	method      TEXT NOT NULL,
	metrics     JSONB NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	owner_ref   TEXT NOT NULL DEFAULT '',
	source_page INTEGER NOT NULL DEFAULT 0,
	snippet     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_results_created ON extraction_results (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_results_item ON extraction_results (item_id);

CREATE TABLE IF NOT EXISTS owners (
	ref    TEXT PRIMARY KEY,
	ticker TEXT NOT NULL DEFAULT '',
	name   TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_owners_ticker ON owners (ticker) WHERE ticker <> '';
`

// PostgresStore is the shared-database backend for multi-worker
// deployments, over the same pool as the Postgres queue.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("create store schema: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) SaveExtractionResult(ctx context.Context, itemID uuid.UUID, result entity.ExtractionResult) error {
	metrics, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	id := uuid.New()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO extraction_results
			(id, item_id, type, method, metrics, confidence, owner_ref, source_page, snippet)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, itemID, string(result.Type), string(result.Method), metrics,
		result.Confidence, result.OwnerRef, result.SourcePage, result.Snippet)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	s.logger.Info("store.result.saved",
		"result_id", id, "item_id", itemID, "type", result.Type, "method", result.Method)
	return nil
}

func (s *PostgresStore) ResolveOwnerRef(ctx context.Context, hint string) (string, error) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return "", common.ErrInvalidInput
	}
	var ref string
	err := s.pool.QueryRow(ctx, `
		SELECT ref FROM owners
		WHERE lower(ticker) = lower($1) OR lower(name) = lower($1)
		LIMIT 1`, hint).Scan(&ref)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve owner: %w", err)
	}
	return ref, nil
}

func (s *PostgresStore) UpsertOwner(ctx context.Context, owner Owner) error {
	if owner.Ref == "" {
		return common.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO owners (ref, ticker, name) VALUES ($1, $2, $3)
		ON CONFLICT (ref) DO UPDATE SET ticker = EXCLUDED.ticker, name = EXCLUDED.name`,
		owner.Ref, owner.Ticker, owner.Name)
	if err != nil {
		return fmt.Errorf("upsert owner: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListResults(ctx context.Context, since time.Time, limit int) ([]StoredResult, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, item_id, type, method, metrics, confidence, owner_ref, source_page, snippet, created_at
		FROM extraction_results
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []StoredResult
	for rows.Next() {
		var (
			sr         StoredResult
			typ        string
			method     string
			metricsRaw []byte
		)
		err := rows.Scan(&sr.ID, &sr.ItemID, &typ, &method, &metricsRaw,
			&sr.Result.Confidence, &sr.Result.OwnerRef, &sr.Result.SourcePage,
			&sr.Result.Snippet, &sr.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		sr.Result.Type = constants.ExtractionType(typ)
		sr.Result.Method = constants.ExtractionMethod(method)
		if err := json.Unmarshal(metricsRaw, &sr.Result.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics for %s: %w", sr.ID, err)
		}
		results = append(results, sr)
	}
	return results, rows.Err()
}
