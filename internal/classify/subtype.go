package classify

import (
	"regexp"
	"strings"

	"github.com/orelytics/docpipe/constants"
)

var quarterPattern = regexp.MustCompile(`(?i)\b(?:q([1-4])\s*(?:20\d{2})?|(first|second|third|fourth)\s+quarter)\b`)

var quarterWords = map[string]string{
	"first": "q1", "second": "q2", "third": "q3", "fourth": "q4",
}

// detectSubtype is a second, type-specific pass over the same lowercased
// text, independent of the primary keyword score.
func detectSubtype(typ constants.DocType, lower string) string {
	switch typ {
	case constants.DocTechnicalReport:
		// Order matters: "pre-feasibility study" contains "feasibility study".
		switch {
		case strings.Contains(lower, "preliminary economic assessment") || strings.Contains(lower, "(pea)"):
			return constants.SubtypePEA
		case strings.Contains(lower, "pre-feasibility") || strings.Contains(lower, "prefeasibility"):
			return constants.SubtypePFS
		case strings.Contains(lower, "feasibility study"):
			return constants.SubtypeFS
		}
	case constants.DocEarnings, constants.DocMDA:
		if m := quarterPattern.FindStringSubmatch(lower); m != nil {
			if m[1] != "" {
				return "q" + m[1]
			}
			return quarterWords[m[2]]
		}
	}
	return ""
}
