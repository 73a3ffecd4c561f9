package pdftext

import (
	"context"
	"regexp"
	"strings"

	"github.com/orelytics/docpipe/internal/extract"
)

// minTableRows is the smallest run of aligned lines treated as a table.
const minTableRows = 2

var cellSplitPattern = regexp.MustCompile(`\s{2,}`)

// DetectTables finds whitespace-aligned tables in layout-mode text. A
// table is a run of consecutive lines that each split into two or more
// cells on multi-space gaps.
func (e *Extractor) DetectTables(ctx context.Context, source string, pages extract.PageRange) ([]extract.Table, error) {
	text, err := e.ExtractPages(ctx, source, pages)
	if err != nil {
		return nil, err
	}

	var tables []extract.Table
	pageText := strings.Split(text, "\f")
	for i, page := range pageText {
		pageNo := pages.Start + i
		tables = append(tables, tablesInPage(page, pageNo)...)
	}
	e.logger.Debug("pdftext.tables.detected", "source", source, "tables", len(tables))
	return tables, nil
}

func tablesInPage(page string, pageNo int) []extract.Table {
	var tables []extract.Table
	var current [][]string

	flush := func() {
		if len(current) >= minTableRows {
			tables = append(tables, extract.Table{Rows: current, Page: pageNo})
		}
		current = nil
	}

	for _, line := range strings.Split(page, "\n") {
		cells := splitCells(line)
		if len(cells) >= 2 {
			current = append(current, cells)
			continue
		}
		flush()
	}
	flush()
	return tables
}

func splitCells(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	cells := cellSplitPattern.Split(line, -1)
	out := cells[:0]
	for _, cell := range cells {
		cell = strings.TrimSpace(cell)
		if cell != "" {
			out = append(out, cell)
		}
	}
	return out
}
