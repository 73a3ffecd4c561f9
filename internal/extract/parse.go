package extract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/entity"
	"github.com/orelytics/docpipe/internal/llm"
)

const snippetLen = 240

// parseWithModel runs the structured-JSON prompt for one extraction type
// over the located section text and validates the answer against the
// type's schema. An invalid or malformed answer is an error so the caller
// can fall back to the regex pass.
func parseWithModel(ctx context.Context, completer llm.Completer, spec typeSpec, extType constants.ExtractionType, sectionText string) ([]entity.ExtractionResult, error) {
	out, err := completer.Complete(ctx, llm.CompletionRequest{
		System:    "You extract structured figures from mining disclosure documents. Answer with JSON only, no prose.",
		Prompt:    spec.prompt + "\n\nText:\n" + sectionText,
		MaxTokens: 600,
		ForceJSON: true,
	})
	if err != nil {
		return nil, fmt.Errorf("parse completion: %w", err)
	}
	block := llm.ExtractJSONBlock(out)
	if block == nil {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	if err := llm.ValidateJSONAgainstSchema(spec.schema, block); err != nil {
		return nil, err
	}

	if extType == constants.ExtractMineralResource {
		return resourceResultsFromJSON(block, sectionText)
	}
	var metrics map[string]any
	if err := json.Unmarshal(block, &metrics); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	dropNulls(metrics)
	if len(metrics) == 0 {
		return nil, fmt.Errorf("model returned no figures")
	}
	return []entity.ExtractionResult{{
		Type:       extType,
		Method:     constants.MethodLLM,
		Metrics:    metrics,
		Confidence: constants.ConfidenceLLM,
		Snippet:    snippet(sectionText),
	}}, nil
}

// resourceResultsFromJSON expands the {"rows": [...]} answer into one
// result per category row, mirroring the table path's shape.
func resourceResultsFromJSON(block []byte, sectionText string) ([]entity.ExtractionResult, error) {
	var parsed struct {
		Rows []map[string]any `json:"rows"`
	}
	if err := json.Unmarshal(block, &parsed); err != nil {
		return nil, fmt.Errorf("decode resource rows: %w", err)
	}
	if len(parsed.Rows) == 0 {
		return nil, fmt.Errorf("model returned no resource rows")
	}
	results := make([]entity.ExtractionResult, 0, len(parsed.Rows))
	for _, row := range parsed.Rows {
		dropNulls(row)
		results = append(results, entity.ExtractionResult{
			Type:       constants.ExtractMineralResource,
			Method:     constants.MethodLLM,
			Metrics:    row,
			Confidence: constants.ConfidenceLLM,
			Snippet:    snippet(sectionText),
		})
	}
	return results, nil
}

func dropNulls(m map[string]any) {
	for k, v := range m {
		if v == nil {
			delete(m, k)
		}
	}
}

func snippet(text string) string {
	if len(text) <= snippetLen {
		return text
	}
	return text[:snippetLen]
}
