package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/orelytics/docpipe/internal/entity"
)

// StoredResult is one persisted extraction record with its provenance.
type StoredResult struct {
	ID        uuid.UUID               `json:"id"`
	ItemID    uuid.UUID               `json:"item_id"`
	Result    entity.ExtractionResult `json:"result"`
	CreatedAt time.Time               `json:"created_at"`
}

// Owner is a known reporting entity that documents can be attributed to.
type Owner struct {
	Ref    string `json:"ref"`
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// Store persists extraction results and the owner registry. It satisfies
// the engine's ResultStore collaborator and adds the read side used by
// exports and operators.
type Store interface {
	SaveExtractionResult(ctx context.Context, itemID uuid.UUID, result entity.ExtractionResult) error
	ResolveOwnerRef(ctx context.Context, hint string) (string, error)
	UpsertOwner(ctx context.Context, owner Owner) error
	ListResults(ctx context.Context, since time.Time, limit int) ([]StoredResult, error)
}
