package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/orelytics/docpipe/internal/llm"
)

const (
	// scanWindowSize is how much text after a keyword hit is considered.
	scanWindowSize = 2500
	// scanHeadSize bounds the "near the top" region scoring looks at.
	scanHeadSize = 400
	// scanMinScore is the acceptance floor for the best window.
	scanMinScore = 1
)

// scoutSection asks the model to locate a section's start page from the
// first pages of the document (table of contents and headers). The answer
// is accepted only when it resolves to a positive page number. A completion
// error is returned as-is; a malformed or negative answer is a model
// decision, not a transport failure, and reports a plain miss.
func scoutSection(ctx context.Context, completer llm.Completer, tocText, sectionKeyword string, logger *slog.Logger) (int, bool, error) {
	if completer == nil || strings.TrimSpace(tocText) == "" {
		return 0, false, nil
	}
	out, err := completer.Complete(ctx, llm.CompletionRequest{
		System: "You read tables of contents of long mining disclosure documents. " +
			`Return ONLY JSON: {"page": <number>} with the start page of the requested section, or {"page": 0} if absent.`,
		Prompt:    "Section to locate: \"" + sectionKeyword + "\"\n\nFront matter:\n" + tocText,
		MaxTokens: 32,
		ForceJSON: true,
	})
	if err != nil {
		return 0, false, fmt.Errorf("scout completion: %w", err)
	}
	block := llm.ExtractJSONBlock(out)
	if block == nil {
		return 0, false, nil
	}
	var parsed struct {
		Page int `json:"page"`
	}
	if err := json.Unmarshal(block, &parsed); err != nil || parsed.Page <= 0 {
		return 0, false, nil
	}
	logger.Info("extract.scout.ok", "section", sectionKeyword, "page", parsed.Page)
	return parsed.Page, true, nil
}

var scanBoostWords = []string{"table", "estimate", "summary"}
var scanPenaltyWords = []string{"forward-looking", "cautionary", "disclaimer", "no assurance"}

// scanSection is the heuristic fallback: every occurrence of the target
// keyword opens a fixed-size window of following text; windows are scored
// by what appears near their top, and the best window above the floor wins.
func scanSection(text, sectionKeyword string, logger *slog.Logger) (string, bool) {
	lower := strings.ToLower(text)
	keyword := strings.ToLower(sectionKeyword)

	best := ""
	bestScore := scanMinScore - 1
	for idx := 0; ; {
		hit := strings.Index(lower[idx:], keyword)
		if hit < 0 {
			break
		}
		start := idx + hit
		end := start + scanWindowSize
		if end > len(text) {
			end = len(text)
		}
		window := text[start:end]

		headEnd := scanHeadSize
		if headEnd > len(window) {
			headEnd = len(window)
		}
		head := strings.ToLower(window[:headEnd])

		score := 0
		for _, w := range scanBoostWords {
			if strings.Contains(head, w) {
				score += 2
			}
		}
		for _, w := range scanPenaltyWords {
			if strings.Contains(head, w) {
				score -= 3
			}
		}
		if score > bestScore {
			bestScore = score
			best = window
		}
		idx = start + len(keyword)
	}

	if bestScore < scanMinScore {
		logger.Info("extract.scan.miss", "section", sectionKeyword, "best_score", bestScore)
		return "", false
	}
	logger.Info("extract.scan.ok", "section", sectionKeyword, "score", bestScore, "window_len", len(best))
	return best, true
}
