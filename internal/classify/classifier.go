package classify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/entity"
	"github.com/orelytics/docpipe/internal/llm"
)

const (
	// Below llmThreshold the keyword verdict is weak enough to ask the model.
	llmThreshold = 0.4
	// Below otherThreshold the document is not worth a typed pipeline.
	otherThreshold = 0.2

	// classifyExcerpt caps how much text goes into the override prompt.
	classifyExcerpt = 4000
)

// Classifier scores document text against weighted keyword tables and
// falls back to a language-model override for ambiguous documents. It is a
// pure function of the input text plus the optional model call; it never
// returns an error.
type Classifier struct {
	completer llm.Completer // optional
	logger    *slog.Logger
}

func NewClassifier(completer llm.Completer, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{completer: completer, logger: logger}
}

// Classify determines document type, subtype, confidence and any ticker
// found in the text.
func (c *Classifier) Classify(ctx context.Context, text string) entity.Classification {
	lower := strings.ToLower(text)

	bestType := constants.DocOther
	var bestScore float64
	for typ, kws := range typeKeywords {
		var score float64
		for kw, weight := range kws {
			if strings.Contains(lower, kw) {
				score += weight
			}
		}
		if score > bestScore {
			bestScore = score
			bestType = typ
		}
	}

	var confidence float64
	if bestType != constants.DocOther {
		confidence = bestScore / maxScore[bestType] * 2
		if confidence > 1 {
			confidence = 1
		}
	}

	if confidence < llmThreshold && c.completer != nil {
		if typ, conf, ok := c.llmOverride(ctx, text); ok {
			c.logger.Info("classify.llm_override", "keyword_type", bestType, "llm_type", typ, "llm_confidence", conf)
			bestType = typ
			confidence = conf
		}
	}
	if confidence < otherThreshold {
		bestType = constants.DocOther
	}

	result := entity.Classification{
		Type:       bestType,
		Subtype:    detectSubtype(bestType, lower),
		Confidence: confidence,
	}
	result.Exchange, result.Ticker = detectTicker(text)

	c.logger.Info("classify.ok",
		"type", result.Type,
		"subtype", result.Subtype,
		"confidence", result.Confidence,
		"ticker", result.Ticker,
	)
	return result
}

// llmOverride asks the model for {type, confidence}. Any failure — transport,
// malformed output, unknown type — is swallowed and reported as "no override".
func (c *Classifier) llmOverride(ctx context.Context, text string) (constants.DocType, float64, bool) {
	excerpt := text
	if len(excerpt) > classifyExcerpt {
		excerpt = excerpt[:classifyExcerpt]
	}
	out, err := c.completer.Complete(ctx, llm.CompletionRequest{
		System: "You classify mining-sector disclosure documents. Return ONLY JSON: " +
			`{"type": "technical_report|earnings|mda|press_release|other", "confidence": 0.0}`,
		Prompt:    "Classify this document excerpt:\n\n" + excerpt,
		MaxTokens: 64,
		ForceJSON: true,
	})
	if err != nil {
		c.logger.Warn("classify.llm_failed", "error", err)
		return "", 0, false
	}

	block := llm.ExtractJSONBlock(out)
	if block == nil {
		return "", 0, false
	}
	var parsed struct {
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(block, &parsed); err != nil {
		c.logger.Warn("classify.llm_unparseable", "error", err)
		return "", 0, false
	}
	typ := constants.DocType(strings.ToLower(strings.TrimSpace(parsed.Type)))
	switch typ {
	case constants.DocTechnicalReport, constants.DocEarnings, constants.DocMDA,
		constants.DocPressRelease, constants.DocOther:
	default:
		return "", 0, false
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return "", 0, false
	}
	return typ, parsed.Confidence, true
}
