package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/orelytics/docpipe/internal/jobtrack"
	"github.com/orelytics/docpipe/internal/store"
)

// Service produces XLSX bytes for operator exports: one sheet of
// extraction results, one of job history.
type Service struct {
	store   store.Store
	tracker *jobtrack.Tracker
	logger  *slog.Logger
}

func NewService(st store.Store, tracker *jobtrack.Tracker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, tracker: tracker, logger: logger}
}

// ExportXLSX returns a workbook with results since the cutoff. A zero
// cutoff exports everything.
func (s *Service) ExportXLSX(ctx context.Context, since time.Time) ([]byte, error) {
	start := time.Now()

	results, err := s.store.ListResults(ctx, since, 0)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}

	f := excelize.NewFile()
	if err := s.writeResultsSheet(f, results); err != nil {
		return nil, err
	}
	if s.tracker != nil {
		if err := s.writeJobsSheet(f); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"rows", len(results),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (s *Service) writeResultsSheet(f *excelize.File, results []store.StoredResult) error {
	const sheet = "Results"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	// Drop the default sheet excelize creates.
	_ = f.DeleteSheet("Sheet1")

	headers := []string{
		"Extracted At",
		"Owner",
		"Type",
		"Method",
		"Confidence",
		"Page",
		"Metrics",
		"Item ID",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range results {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, r.CreatedAt.UTC().Format("2006-01-02 15:04"))
		write(2, r.Result.OwnerRef)
		write(3, string(r.Result.Type))
		write(4, string(r.Result.Method))
		write(5, r.Result.Confidence)
		write(6, r.Result.SourcePage)
		write(7, flattenMetrics(r.Result.Metrics))
		write(8, r.ItemID.String())
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 18)
	_ = f.SetColWidth(sheet, "B", "B", 14)
	_ = f.SetColWidth(sheet, "C", "D", 16)
	_ = f.SetColWidth(sheet, "G", "G", 60)
	_ = f.SetColWidth(sheet, "H", "H", 38)
	return nil
}

func (s *Service) writeJobsSheet(f *excelize.File) error {
	const sheet = "Jobs"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"Started At", "Task", "Status", "Duration", "Processed", "Failed", "Error"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, j := range s.tracker.RecentJobs("", 0, "") {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, j.StartedAt.UTC().Format("2006-01-02 15:04:05"))
		write(2, j.TaskName)
		write(3, string(j.Status))
		write(4, j.Duration.Round(time.Millisecond).String())
		write(5, j.RecordsProcessed)
		write(6, j.RecordsFailed)
		write(7, truncate(j.ErrorMessage, 140))
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 20)
	_ = f.SetColWidth(sheet, "B", "B", 22)
	_ = f.SetColWidth(sheet, "G", "G", 48)
	return nil
}

// flattenMetrics renders metrics as stable "key=value" pairs so the cell
// is diffable between exports.
func flattenMetrics(metrics map[string]any) string {
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for i, k := range keys {
		if i > 0 {
			out += "; "
		}
		v, err := json.Marshal(metrics[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%v", metrics[k]))
		}
		out += k + "=" + string(v)
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
