package entity

import "github.com/orelytics/docpipe/constants"

// ExtractionResult is one structured record produced by an extraction attempt.
// Multiple results may come out of a single queue item (e.g. production AND
// economics from the same filing).
type ExtractionResult struct {
	Type       constants.ExtractionType   `json:"type"`
	Method     constants.ExtractionMethod `json:"method"`
	Metrics    map[string]any             `json:"metrics"`
	Confidence float64                    `json:"confidence"`
	OwnerRef   string                     `json:"owner_ref,omitempty"`
	SourcePage int                        `json:"source_page,omitempty"`
	Snippet    string                     `json:"snippet,omitempty"`
}
