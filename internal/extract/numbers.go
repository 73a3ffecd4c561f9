package extract

import (
	"strconv"
	"strings"
)

// parseNumber reads a numeric cell, tolerating thousands separators,
// currency signs and surrounding junk. Returns false for non-numeric text.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "$€£ ")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	if s == "" || s == "-" || s == "—" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
