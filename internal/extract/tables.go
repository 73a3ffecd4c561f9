package extract

import (
	"regexp"
	"strings"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/entity"
)

// tableKeywordThreshold is the minimum keyword-hit count for a detected
// table to be accepted as a resource or economics table.
const tableKeywordThreshold = 2

var resourceTableKeywords = []string{
	"category", "classification", "measured", "indicated", "inferred",
	"proven", "probable", "tonnes", "tonnage", "grade", "contained",
	"g/t", "moz", "koz",
}

var economicsTableKeywords = []string{
	"npv", "irr", "payback", "capex", "opex", "discount rate",
	"after-tax", "pre-tax", "parameter", "value", "sustaining capital",
	"initial capital",
}

// tableKind classifies a detected table by counting domain keyword hits in
// its header and first rows. Returns "" when neither keyword set reaches
// the threshold.
func tableKind(tbl Table) constants.ExtractionType {
	head := headText(tbl)
	resHits := countHits(head, resourceTableKeywords)
	ecoHits := countHits(head, economicsTableKeywords)

	switch {
	case resHits >= tableKeywordThreshold && resHits >= ecoHits:
		return constants.ExtractMineralResource
	case ecoHits >= tableKeywordThreshold:
		return constants.ExtractEconomics
	default:
		return ""
	}
}

// headText joins the header plus the first two data rows; classification
// keywords live there, not in the numeric body.
func headText(tbl Table) string {
	n := len(tbl.Rows)
	if n > 3 {
		n = 3
	}
	var b strings.Builder
	for _, row := range tbl.Rows[:n] {
		b.WriteString(strings.ToLower(strings.Join(row, " ")))
		b.WriteByte(' ')
	}
	return b.String()
}

func countHits(text string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}

// Column roles for resource tables.
type columnRoles struct {
	category  int
	tonnes    int
	grade     int
	contained int
}

var roleKeywords = map[string][]string{
	"category":  {"category", "classification", "class", "resource"},
	"tonnes":    {"tonnes", "tonnage", "mt", "kt"},
	"grade":     {"grade", "g/t", "gpt", "%"},
	"contained": {"contained", "ounces", "oz", "metal", "moz", "koz", "mlb"},
}

// inferColumnRoles matches header cells against role keyword lists.
// Unmatched roles stay -1.
func inferColumnRoles(header []string) columnRoles {
	roles := columnRoles{category: -1, tonnes: -1, grade: -1, contained: -1}
	assign := func(target *int, col int) {
		if *target == -1 {
			*target = col
		}
	}
	for col, cell := range header {
		lower := strings.ToLower(cell)
		switch {
		case matchesAny(lower, roleKeywords["category"]):
			assign(&roles.category, col)
		case matchesAny(lower, roleKeywords["tonnes"]):
			assign(&roles.tonnes, col)
		case matchesAny(lower, roleKeywords["grade"]):
			assign(&roles.grade, col)
		case matchesAny(lower, roleKeywords["contained"]):
			assign(&roles.contained, col)
		}
	}
	return roles
}

func matchesAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

var resourceCategories = []string{
	"measured & indicated", "measured and indicated",
	"measured", "indicated", "inferred", "proven", "probable", "total",
}

func categoryIn(cell string) string {
	lower := strings.ToLower(strings.TrimSpace(cell))
	for _, cat := range resourceCategories {
		if strings.Contains(lower, cat) {
			return cat
		}
	}
	return ""
}

// inlineRowPattern is the per-row fallback for rows whose columns could not
// be mapped: "12.3 Mt @ 1.2 g/t = 0.5 Moz" style text.
var inlineRowPattern = regexp.MustCompile(
	`(?i)([\d,]+(?:\.\d+)?)\s*Mt\s*@\s*([\d,]+(?:\.\d+)?)\s*(g/t|%)[^=]*=\s*([\d,]+(?:\.\d+)?)\s*(Moz|koz|Mlb|kt|t)`)

// parseResourceTable produces one result per recognized category row.
func parseResourceTable(tbl Table) []entity.ExtractionResult {
	if len(tbl.Rows) < 2 {
		return nil
	}
	roles := inferColumnRoles(tbl.Rows[0])

	var results []entity.ExtractionResult
	for _, row := range tbl.Rows[1:] {
		cat := ""
		if roles.category >= 0 && roles.category < len(row) {
			cat = categoryIn(row[roles.category])
		} else {
			// No category column inferred; look anywhere in the row.
			for _, cell := range row {
				if cat = categoryIn(cell); cat != "" {
					break
				}
			}
		}
		if cat == "" {
			continue
		}

		metrics := map[string]any{"category": cat}
		mapped := false
		if roles.tonnes >= 0 && roles.tonnes < len(row) {
			if v, ok := parseNumber(row[roles.tonnes]); ok {
				metrics["tonnes"] = v
				mapped = true
			}
		}
		if roles.grade >= 0 && roles.grade < len(row) {
			if v, ok := parseNumber(row[roles.grade]); ok {
				metrics["grade"] = v
				mapped = true
			}
		}
		if roles.contained >= 0 && roles.contained < len(row) {
			if v, ok := parseNumber(row[roles.contained]); ok {
				metrics["contained_metal"] = v
				mapped = true
			}
		}

		if !mapped {
			// Inline-text fallback for rows without usable column roles.
			m := inlineRowPattern.FindStringSubmatch(strings.Join(row, " "))
			if m == nil {
				continue
			}
			tonnes, _ := parseNumber(m[1])
			grade, _ := parseNumber(m[2])
			contained, _ := parseNumber(m[4])
			metrics["tonnes"] = tonnes
			metrics["grade"] = grade
			metrics["grade_unit"] = m[3]
			metrics["contained_metal"] = contained
			metrics["contained_unit"] = m[5]
		}

		results = append(results, entity.ExtractionResult{
			Type:       constants.ExtractMineralResource,
			Method:     constants.MethodTable,
			Metrics:    metrics,
			Confidence: constants.ConfidenceTable,
			SourcePage: tbl.Page,
		})
	}
	return results
}

// economicsParams maps parameter-cell text to canonical metric keys.
var economicsParams = map[string]string{
	"npv":                "npv",
	"net present value":  "npv",
	"irr":                "irr_pct",
	"internal rate":      "irr_pct",
	"payback":            "payback_years",
	"initial capital":    "initial_capex",
	"capex":              "initial_capex",
	"sustaining capital": "sustaining_capex",
	"opex":               "opex",
	"operating cost":     "opex",
	"discount rate":      "discount_rate_pct",
	"mine life":          "mine_life_years",
}

// parseEconomicsTable reads parameter/value rows into a single result.
func parseEconomicsTable(tbl Table) []entity.ExtractionResult {
	metrics := make(map[string]any)
	for _, row := range tbl.Rows {
		if len(row) < 2 {
			continue
		}
		key := canonicalParam(row[0])
		if key == "" {
			continue
		}
		// The value is the first numeric cell after the parameter.
		for _, cell := range row[1:] {
			if v, ok := parseNumber(cell); ok {
				metrics[key] = v
				break
			}
		}
	}
	if len(metrics) == 0 {
		return nil
	}
	return []entity.ExtractionResult{{
		Type:       constants.ExtractEconomics,
		Method:     constants.MethodTable,
		Metrics:    metrics,
		Confidence: constants.ConfidenceTable,
		SourcePage: tbl.Page,
	}}
}

func canonicalParam(cell string) string {
	lower := strings.ToLower(cell)
	for needle, key := range economicsParams {
		if strings.Contains(lower, needle) {
			return key
		}
	}
	return ""
}
