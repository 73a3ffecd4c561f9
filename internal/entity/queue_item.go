package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/orelytics/docpipe/constants"
)

// QueueItem represents a discovered document tracked through its lifecycle.
type QueueItem struct {
	ID           uuid.UUID             `json:"id"`
	Locator      string                `json:"locator"`       // URL or content hash; dedup key
	SourceKind   constants.SourceKind  `json:"source_kind"`
	DocKindHint  constants.DocType     `json:"doc_kind_hint,omitempty"` // declared by the discovery source, optional
	OwnerRef     string                `json:"owner_ref,omitempty"`     // owning-entity reference (company id / ticker)
	Status       constants.QueueStatus `json:"status"`
	Priority     int                   `json:"priority"` // higher runs first
	RetryCount   int                   `json:"retry_count"`
	LastError    string                `json:"last_error,omitempty"`
	LocalPath    string                `json:"local_path,omitempty"` // set once downloaded
	ContentHash  string                `json:"content_hash,omitempty"`
	DiscoveredAt time.Time             `json:"discovered_at"`
	NextRetryAt  *time.Time            `json:"next_retry_at,omitempty"` // earliest re-claim time for FAILED items
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
}
