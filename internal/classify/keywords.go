package classify

import "github.com/orelytics/docpipe/constants"

// weighted keyword tables per document type. A keyword contributes its
// weight when present as a case-insensitive substring.
var typeKeywords = map[constants.DocType]map[string]float64{
	constants.DocTechnicalReport: {
		"ni 43-101":                       5,
		"mineral resource estimate":       5,
		"technical report":                4,
		"qualified person":                3,
		"mineral reserve":                 3,
		"feasibility study":               3,
		"preliminary economic assessment": 3,
		"cut-off grade":                   3,
		"metallurgical":                   2,
	},
	constants.DocEarnings: {
		"earnings per share":        4,
		"quarterly results":         4,
		"net income":                3,
		"ebitda":                    3,
		"cash flow from operations": 3,
		"earnings":                  3,
		"gross margin":              2,
		"fiscal year":               2,
	},
	constants.DocMDA: {
		"management's discussion and analysis": 5,
		"md&a":                            5,
		"liquidity and capital resources": 4,
		"results of operations":           3,
		"critical accounting estimates":   3,
		"off-balance sheet":               2,
	},
	constants.DocPressRelease: {
		"for immediate release": 4,
		"press release":         4,
		"news release":          4,
		"announces":             3,
		"drill results":         3,
		"tsx venture exchange":  2,
		"about the company":     2,
	},
}

// maxScore is precomputed per type for confidence normalization.
var maxScore = func() map[constants.DocType]float64 {
	m := make(map[constants.DocType]float64, len(typeKeywords))
	for typ, kws := range typeKeywords {
		var sum float64
		for _, w := range kws {
			sum += w
		}
		m[typ] = sum
	}
	return m
}()
