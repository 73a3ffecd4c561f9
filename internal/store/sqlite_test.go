package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/common"
	"github.com/orelytics/docpipe/internal/entity"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "results.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_SaveAndListRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	itemID := uuid.New()

	result := entity.ExtractionResult{
		Type:   constants.ExtractMineralResource,
		Method: constants.MethodTable,
		Metrics: map[string]any{
			"category": "indicated",
			"tonnes":   45.0,
			"grade":    0.95,
		},
		Confidence: constants.ConfidenceTable,
		OwnerRef:   "cmp-42",
		SourcePage: 14,
		Snippet:    "Indicated 45.0 Mt at 0.95 g/t",
	}
	require.NoError(t, s.SaveExtractionResult(ctx, itemID, result))

	listed, err := s.ListResults(ctx, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	got := listed[0]
	assert.Equal(t, itemID, got.ItemID)
	assert.Equal(t, constants.ExtractMineralResource, got.Result.Type)
	assert.Equal(t, constants.MethodTable, got.Result.Method)
	assert.Equal(t, constants.ConfidenceTable, got.Result.Confidence)
	assert.Equal(t, "cmp-42", got.Result.OwnerRef)
	assert.Equal(t, 14, got.Result.SourcePage)
	assert.Equal(t, "indicated", got.Result.Metrics["category"])
	assert.Equal(t, 45.0, got.Result.Metrics["tonnes"])
	assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)
}

func TestSQLiteStore_ListResultsSinceFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveExtractionResult(ctx, uuid.New(), entity.ExtractionResult{
		Type: constants.ExtractProduction, Method: constants.MethodRegex,
		Metrics: map[string]any{"gold_oz": 52000.0}, Confidence: constants.ConfidenceRegex,
	}))

	listed, err := s.ListResults(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, listed, "future cutoff excludes everything")
}

func TestSQLiteStore_OwnerResolution(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertOwner(ctx, Owner{Ref: "cmp-42", Ticker: "ORE", Name: "Orelytics Mining Corp."}))

	ref, err := s.ResolveOwnerRef(ctx, "ORE")
	require.NoError(t, err)
	assert.Equal(t, "cmp-42", ref)

	ref, err = s.ResolveOwnerRef(ctx, "ore")
	require.NoError(t, err)
	assert.Equal(t, "cmp-42", ref, "ticker match is case-insensitive")

	ref, err = s.ResolveOwnerRef(ctx, "Orelytics Mining Corp.")
	require.NoError(t, err)
	assert.Equal(t, "cmp-42", ref)

	_, err = s.ResolveOwnerRef(ctx, "XYZ")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = s.ResolveOwnerRef(ctx, "  ")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestSQLiteStore_UpsertOwnerOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertOwner(ctx, Owner{Ref: "cmp-42", Ticker: "ORE"}))
	require.NoError(t, s.UpsertOwner(ctx, Owner{Ref: "cmp-42", Ticker: "ORE.V", Name: "Orelytics"}))

	ref, err := s.ResolveOwnerRef(ctx, "ORE.V")
	require.NoError(t, err)
	assert.Equal(t, "cmp-42", ref)

	_, err = s.ResolveOwnerRef(ctx, "ORE")
	assert.ErrorIs(t, err, common.ErrNotFound, "old ticker no longer resolves")
}
