package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/entity"
	"github.com/orelytics/docpipe/internal/llm"
	"github.com/orelytics/docpipe/internal/resilience"
)

// Engine runs the layered extraction strategy for one document and one
// extraction type: structural tables first, then model-guided section
// location (Scout), then heuristic location (Scan), then a structured
// model parse with a regex last resort. A stage that fails or finds
// nothing never aborts the fallthrough; only a miss across every stage
// yields an empty answer.
type Engine struct {
	text      TextExtractor
	tables    TableDetector
	completer llm.Completer

	tableBreaker *resilience.Breaker
	llmBreaker   *resilience.Breaker

	tableWindow int
	scoutSpan   int
	tocChars    int
	logger      *slog.Logger
}

type EngineOption func(*Engine)

// WithEngineLogger sets the logger for engine events.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithTableBreaker guards the table-detection stage.
func WithTableBreaker(b *resilience.Breaker) EngineOption {
	return func(e *Engine) { e.tableBreaker = b }
}

// WithLLMBreaker guards the Scout and Parse model calls.
func WithLLMBreaker(b *resilience.Breaker) EngineOption {
	return func(e *Engine) { e.llmBreaker = b }
}

// WithTableWindow bounds how many leading pages table detection scans.
func WithTableWindow(pages int) EngineOption {
	return func(e *Engine) {
		if pages > 0 {
			e.tableWindow = pages
		}
	}
}

// WithScoutSpan sets how many pages are read from a scouted start page.
func WithScoutSpan(pages int) EngineOption {
	return func(e *Engine) {
		if pages > 0 {
			e.scoutSpan = pages
		}
	}
}

func NewEngine(text TextExtractor, tables TableDetector, completer llm.Completer, opts ...EngineOption) *Engine {
	e := &Engine{
		text:        text,
		tables:      tables,
		completer:   completer,
		tableWindow: 60,
		scoutSpan:   4,
		tocChars:    6000,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Document is the input to one extraction run: where the bytes live and
// the already-extracted full text.
type Document struct {
	Source   string
	FullText string
}

// Extract runs the strategy chain for one extraction type. A total miss
// returns (nil, nil); errors are reserved for context cancellation.
func (e *Engine) Extract(ctx context.Context, doc Document, extType constants.ExtractionType) ([]entity.ExtractionResult, error) {
	spec, ok := typeSpecs[extType]
	if !ok {
		return nil, fmt.Errorf("unknown extraction type %q", extType)
	}

	if results := e.tryTables(ctx, doc, extType); len(results) > 0 {
		e.logger.Info("extract.done", "type", extType, "method", constants.MethodTable, "results", len(results))
		return results, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sectionText, located := e.locateSection(ctx, doc, spec.sectionKeyword)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if located {
		if results := e.tryParse(ctx, spec, extType, sectionText); len(results) > 0 {
			e.logger.Info("extract.done", "type", extType, "method", constants.MethodLLM, "results", len(results))
			return results, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	} else {
		// Nothing located; the regex pass gets the whole document.
		sectionText = doc.FullText
	}

	if result := e.tryRegex(spec, extType, sectionText); result != nil {
		e.logger.Info("extract.done", "type", extType, "method", constants.MethodRegex, "results", 1)
		return []entity.ExtractionResult{*result}, nil
	}

	e.logger.Info("extract.miss", "type", extType, "source", doc.Source)
	return nil, nil
}

// tryTables detects tables in the leading page window and parses those
// whose keyword classification matches the requested type.
func (e *Engine) tryTables(ctx context.Context, doc Document, extType constants.ExtractionType) []entity.ExtractionResult {
	if e.tables == nil {
		return nil
	}
	var detected []Table
	err := e.breakerDo(ctx, e.tableBreaker, func(ctx context.Context) error {
		var derr error
		detected, derr = e.tables.DetectTables(ctx, doc.Source, PageRange{Start: 1, End: e.tableWindow})
		return derr
	})
	if err != nil {
		e.logger.Warn("extract.tables.skip", "type", extType, "error", err)
		return nil
	}

	var results []entity.ExtractionResult
	for _, tbl := range detected {
		if tableKind(tbl) != extType {
			continue
		}
		switch extType {
		case constants.ExtractMineralResource:
			results = append(results, parseResourceTable(tbl)...)
		case constants.ExtractEconomics:
			results = append(results, parseEconomicsTable(tbl)...)
		}
	}
	return results
}

// locateSection tries Scout (model reads the front matter for a start
// page) and falls back to Scan (keyword window scoring over full text).
func (e *Engine) locateSection(ctx context.Context, doc Document, keyword string) (string, bool) {
	if e.completer != nil && e.text != nil {
		toc := doc.FullText
		if len(toc) > e.tocChars {
			toc = toc[:e.tocChars]
		}
		var page int
		var found bool
		err := e.breakerDo(ctx, e.llmBreaker, func(ctx context.Context) error {
			var serr error
			page, found, serr = scoutSection(ctx, e.completer, toc, keyword, e.logger)
			return serr
		})
		switch {
		case err != nil:
			e.logger.Warn("extract.scout.skip", "section", keyword, "error", err)
		case found:
			text, terr := e.text.ExtractPages(ctx, doc.Source, PageRange{Start: page, End: page + e.scoutSpan})
			if terr == nil && text != "" {
				return text, true
			}
			e.logger.Warn("extract.scout.read_failed", "page", page, "error", terr)
		}
	}
	return scanSection(doc.FullText, keyword, e.logger)
}

func (e *Engine) tryParse(ctx context.Context, spec typeSpec, extType constants.ExtractionType, sectionText string) []entity.ExtractionResult {
	if e.completer == nil {
		return nil
	}
	var results []entity.ExtractionResult
	err := e.breakerDo(ctx, e.llmBreaker, func(ctx context.Context) error {
		var perr error
		results, perr = parseWithModel(ctx, e.completer, spec, extType, sectionText)
		return perr
	})
	if err != nil {
		e.logger.Warn("extract.parse.fallback", "type", extType, "error", err)
		return nil
	}
	return results
}

func (e *Engine) tryRegex(spec typeSpec, extType constants.ExtractionType, text string) *entity.ExtractionResult {
	metrics := spec.regexFallback(text)
	if len(metrics) == 0 {
		return nil
	}
	return &entity.ExtractionResult{
		Type:       extType,
		Method:     constants.MethodRegex,
		Metrics:    metrics,
		Confidence: constants.ConfidenceRegex,
		Snippet:    snippet(text),
	}
}

func (e *Engine) breakerDo(ctx context.Context, b *resilience.Breaker, fn func(context.Context) error) error {
	if b == nil {
		return fn(ctx)
	}
	return b.Do(ctx, fn)
}
