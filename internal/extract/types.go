package extract

import (
	"regexp"

	"github.com/orelytics/docpipe/constants"
)

// typeSpec bundles everything the engine needs for one extraction type:
// the section heading to locate, the structured prompt, the schema the
// model's JSON must satisfy, and the last-resort regex pass.
type typeSpec struct {
	sectionKeyword string
	prompt         string
	schema         map[string]any
	regexFallback  func(text string) map[string]any
}

var typeSpecs = map[constants.ExtractionType]typeSpec{
	constants.ExtractProduction: {
		sectionKeyword: "production results",
		prompt: "Extract reported production figures from the text below. " +
			`Return ONLY JSON: {"period": "<e.g. Q2 2026>", "gold_oz": <number or null>, ` +
			`"silver_oz": <number or null>, "copper_tonnes": <number or null>, ` +
			`"aisc_per_oz": <number or null>, "cash_cost_per_oz": <number or null>}. ` +
			"Use null for figures the text does not state. Do not guess.",
		schema: map[string]any{
			"type":     "object",
			"required": []any{"period"},
			"properties": map[string]any{
				"period":           map[string]any{"type": "string"},
				"gold_oz":          map[string]any{"type": []any{"number", "null"}},
				"silver_oz":        map[string]any{"type": []any{"number", "null"}},
				"copper_tonnes":    map[string]any{"type": []any{"number", "null"}},
				"aisc_per_oz":      map[string]any{"type": []any{"number", "null"}},
				"cash_cost_per_oz": map[string]any{"type": []any{"number", "null"}},
			},
		},
		regexFallback: productionRegex,
	},
	constants.ExtractMineralResource: {
		sectionKeyword: "mineral resource estimate",
		prompt: "Extract the mineral resource estimate from the text below. " +
			`Return ONLY JSON: {"rows": [{"category": "<measured|indicated|inferred|proven|probable|total>", ` +
			`"tonnes": <number>, "grade": <number>, "grade_unit": "<g/t|%>", ` +
			`"contained_metal": <number or null>, "contained_unit": "<Moz|koz|kt or null>"}]}. ` +
			"One row per resource category. Omit categories the text does not report.",
		schema: map[string]any{
			"type":     "object",
			"required": []any{"rows"},
			"properties": map[string]any{
				"rows": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":     "object",
						"required": []any{"category", "tonnes", "grade"},
						"properties": map[string]any{
							"category":        map[string]any{"type": "string"},
							"tonnes":          map[string]any{"type": "number"},
							"grade":           map[string]any{"type": "number"},
							"grade_unit":      map[string]any{"type": []any{"string", "null"}},
							"contained_metal": map[string]any{"type": []any{"number", "null"}},
							"contained_unit":  map[string]any{"type": []any{"string", "null"}},
						},
					},
				},
			},
		},
		regexFallback: resourceRegex,
	},
	constants.ExtractEconomics: {
		sectionKeyword: "economic analysis",
		prompt: "Extract the project economics from the text below. " +
			`Return ONLY JSON: {"npv": <number or null>, "npv_currency": "<USD|CAD or null>", ` +
			`"discount_rate_pct": <number or null>, "irr_pct": <number or null>, ` +
			`"payback_years": <number or null>, "initial_capex": <number or null>, ` +
			`"sustaining_capex": <number or null>, "mine_life_years": <number or null>}. ` +
			"Figures in millions unless stated otherwise. Use null for absent figures.",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"npv":               map[string]any{"type": []any{"number", "null"}},
				"npv_currency":      map[string]any{"type": []any{"string", "null"}},
				"discount_rate_pct": map[string]any{"type": []any{"number", "null"}},
				"irr_pct":           map[string]any{"type": []any{"number", "null"}},
				"payback_years":     map[string]any{"type": []any{"number", "null"}},
				"initial_capex":     map[string]any{"type": []any{"number", "null"}},
				"sustaining_capex":  map[string]any{"type": []any{"number", "null"}},
				"mine_life_years":   map[string]any{"type": []any{"number", "null"}},
			},
		},
		regexFallback: economicsRegex,
	},
}

var (
	goldOzPattern = regexp.MustCompile(
		`(?i)(?:produced|production\s+of)\s+([\d,]+(?:\.\d+)?)\s*(?:ounces|oz)\s+of\s+gold`)
	aiscPattern = regexp.MustCompile(
		`(?i)(?:AISC|all-in\s+sustaining\s+costs?)\s*(?:of|was|were|at|:)?\s*(?:US)?\$\s*([\d,]+(?:\.\d+)?)`)
	cashCostPattern = regexp.MustCompile(
		`(?i)cash\s+costs?\s*(?:of|was|were|at|:)?\s*(?:US)?\$\s*([\d,]+(?:\.\d+)?)`)
	periodPattern = regexp.MustCompile(`(?i)\b(Q[1-4])\s*(?:of\s*)?(\d{4})\b`)

	npvPattern = regexp.MustCompile(
		`(?i)NPV[^.\d$%]{0,40}\$\s*([\d,]+(?:\.\d+)?)\s*(billion|million|B|M)?`)
	irrPattern = regexp.MustCompile(
		`(?i)IRR\s*(?:of)?\s*([\d]+(?:\.\d+)?)\s*%`)
	paybackPattern = regexp.MustCompile(
		`(?i)payback\s*(?:period)?\s*(?:of)?\s*([\d]+(?:\.\d+)?)\s*years?`)
	capexPattern = regexp.MustCompile(
		`(?i)initial\s+capital\s*(?:cost|expenditure)?s?\s*(?:of)?\s*(?:US)?\$\s*([\d,]+(?:\.\d+)?)\s*(billion|million|B|M)?`)
)

func productionRegex(text string) map[string]any {
	metrics := make(map[string]any)
	if m := goldOzPattern.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			metrics["gold_oz"] = v
		}
	}
	if m := aiscPattern.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			metrics["aisc_per_oz"] = v
		}
	}
	if m := cashCostPattern.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			metrics["cash_cost_per_oz"] = v
		}
	}
	if len(metrics) == 0 {
		return nil
	}
	if m := periodPattern.FindStringSubmatch(text); m != nil {
		metrics["period"] = m[1] + " " + m[2]
	}
	return metrics
}

func resourceRegex(text string) map[string]any {
	m := inlineRowPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	tonnes, _ := parseNumber(m[1])
	grade, _ := parseNumber(m[2])
	contained, _ := parseNumber(m[4])
	return map[string]any{
		"tonnes":          tonnes,
		"grade":           grade,
		"grade_unit":      m[3],
		"contained_metal": contained,
		"contained_unit":  m[5],
	}
}

func economicsRegex(text string) map[string]any {
	metrics := make(map[string]any)
	if m := npvPattern.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			metrics["npv"] = scaleMoney(v, m[2])
		}
	}
	if m := irrPattern.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			metrics["irr_pct"] = v
		}
	}
	if m := paybackPattern.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			metrics["payback_years"] = v
		}
	}
	if m := capexPattern.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			metrics["initial_capex"] = scaleMoney(v, m[2])
		}
	}
	if len(metrics) == 0 {
		return nil
	}
	return metrics
}

// scaleMoney normalizes dollar figures to millions.
func scaleMoney(v float64, unit string) float64 {
	switch unit {
	case "billion", "B", "b":
		return v * 1000
	default:
		return v
	}
}
