package classify

import "regexp"

// tickerPatterns match bracketed exchange-prefixed tickers such as
// "(TSX: ABC)" or "(NYSE:XYZ)". First match wins.
var tickerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\((TSX-V|TSXV|TSX|NYSE|NASDAQ|ASX|LSE|CSE|OTCQX|OTCQB)\s*[:\-]\s*([A-Z][A-Z0-9.]{0,5})\)`),
	regexp.MustCompile(`\b(TSX-V|TSXV|TSX|NYSE|NASDAQ|ASX|LSE|CSE)\s*:\s*([A-Z][A-Z0-9.]{0,5})\b`),
}

// detectTicker returns the first exchange/ticker pair found in the text.
func detectTicker(text string) (exchange, ticker string) {
	for _, pat := range tickerPatterns {
		if m := pat.FindStringSubmatch(text); m != nil {
			return m[1], m[2]
		}
	}
	return "", ""
}
