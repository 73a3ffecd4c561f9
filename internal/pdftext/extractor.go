package pdftext

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/orelytics/docpipe/internal/extract"
)

// Extractor implements extract.TextExtractor and extract.TableDetector by
// shelling out to pdftotext. Layout mode preserves the column alignment
// the table detector depends on.
type Extractor struct {
	runner Runner
	binary string
	logger *slog.Logger
}

type Option func(*Extractor)

// WithRunner replaces the exec runner, used by tests.
func WithRunner(r Runner) Option {
	return func(e *Extractor) { e.runner = r }
}

// WithBinary overrides the pdftotext binary path.
func WithBinary(path string) Option {
	return func(e *Extractor) {
		if path != "" {
			e.binary = path
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

func New(opts ...Option) *Extractor {
	e := &Extractor{
		runner: execRunner{},
		binary: "pdftotext",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) ExtractPages(ctx context.Context, source string, pages extract.PageRange) (string, error) {
	if pages.Start < 1 || pages.End < pages.Start {
		return "", fmt.Errorf("invalid page range %d-%d", pages.Start, pages.End)
	}
	return e.run(ctx, source,
		"-f", strconv.Itoa(pages.Start),
		"-l", strconv.Itoa(pages.End))
}

func (e *Extractor) ExtractAll(ctx context.Context, source string, maxPages int) (string, error) {
	args := []string{}
	if maxPages > 0 {
		args = append(args, "-l", strconv.Itoa(maxPages))
	}
	return e.run(ctx, source, args...)
}

func (e *Extractor) run(ctx context.Context, source string, extra ...string) (string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return "", fmt.Errorf("remote source %q must be downloaded before text extraction", source)
	}
	// Form feeds between pages are kept so the table detector can
	// attribute tables to page numbers.
	args := append([]string{"-layout"}, extra...)
	args = append(args, source, "-")

	stdout, stderr, err := e.runner.Run(ctx, e.binary, args...)
	if err != nil {
		return "", fmt.Errorf("pdftotext %q: %w (%s)", source, err, truncate(string(stderr), 256))
	}
	return string(stdout), nil
}
