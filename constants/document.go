package constants

import "strings"

// DocType is the closed set of document classifications.
type DocType string

const (
	DocTechnicalReport DocType = "technical_report"
	DocEarnings        DocType = "earnings"
	DocMDA             DocType = "mda"
	DocPressRelease    DocType = "press_release"
	DocOther           DocType = "other"
)

// AllDocTypes lists every classifiable type except the fallback.
var AllDocTypes = []DocType{DocTechnicalReport, DocEarnings, DocMDA, DocPressRelease}

// Subtype values for technical reports (study stage) and periodic filings.
const (
	SubtypePEA = "pea"
	SubtypePFS = "pfs"
	SubtypeFS  = "fs"
)

// FeasibilitySubtypes are the study-stage subtypes that carry project economics.
var FeasibilitySubtypes = map[string]struct{}{
	SubtypePEA: {},
	SubtypePFS: {},
	SubtypeFS:  {},
}

// ExtractionType names the structured record families the engine produces.
type ExtractionType string

const (
	ExtractProduction      ExtractionType = "production"
	ExtractMineralResource ExtractionType = "mineral_resource"
	ExtractEconomics       ExtractionType = "economics"
)

// ExtractionMethod records which stage actually produced a result.
type ExtractionMethod string

const (
	MethodTable ExtractionMethod = "table"
	MethodLLM   ExtractionMethod = "llm"
	MethodRegex ExtractionMethod = "regex"
)

// Confidence assigned per method, used downstream for weighting.
const (
	ConfidenceTable float64 = 0.90
	ConfidenceLLM   float64 = 0.85
	ConfidenceRegex float64 = 0.50
)

// SourceKind identifies where a queue item was discovered.
type SourceKind string

const (
	SourceDropDir SourceKind = "dropdir"
	SourceFeed    SourceKind = "feed"
	SourceBus     SourceKind = "bus"
	SourceManual  SourceKind = "manual"
)

// AllowedExtensions holds the file extensions accepted by discovery sources.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
	"txt": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
