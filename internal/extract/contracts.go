package extract

import (
	"context"

	"github.com/google/uuid"

	"github.com/orelytics/docpipe/internal/entity"
)

// PageRange is a 1-based inclusive page window.
type PageRange struct {
	Start int
	End   int
}

// TextExtractor pulls plain text out of a document source (local path or URL).
type TextExtractor interface {
	ExtractPages(ctx context.Context, source string, pages PageRange) (string, error)
	ExtractAll(ctx context.Context, source string, maxPages int) (string, error)
}

// Table is one structurally detected table.
type Table struct {
	Rows [][]string
	Page int
}

// TableDetector finds tables in a bounded page window.
type TableDetector interface {
	DetectTables(ctx context.Context, source string, pages PageRange) ([]Table, error)
}

// ResultStore is the collaborator that persists extraction output and maps
// entity hints (tickers, names) to owner references.
type ResultStore interface {
	SaveExtractionResult(ctx context.Context, itemID uuid.UUID, result entity.ExtractionResult) error
	ResolveOwnerRef(ctx context.Context, hint string) (string, error)
}
