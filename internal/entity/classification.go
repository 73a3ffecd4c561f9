package entity

import "github.com/orelytics/docpipe/constants"

// Classification is the immutable result of classifying one document.
type Classification struct {
	Type       constants.DocType `json:"type"`
	Subtype    string            `json:"subtype,omitempty"`
	Confidence float64           `json:"confidence"` // 0..1
	Ticker     string            `json:"ticker,omitempty"`
	Exchange   string            `json:"exchange,omitempty"`
}
