package pdftext

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orelytics/docpipe/internal/extract"
)

type fakeRunner struct {
	stdout []byte
	stderr []byte
	err    error
	calls  [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.stdout, f.stderr, f.err
}

func TestExtractPages_BuildsPageRangeArgs(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("section text")}
	e := New(WithRunner(runner))

	text, err := e.ExtractPages(context.Background(), "report.pdf", extract.PageRange{Start: 14, End: 18})
	require.NoError(t, err)
	assert.Equal(t, "section text", text)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"pdftotext", "-layout", "-f", "14", "-l", "18", "report.pdf", "-"}, runner.calls[0])
}

func TestExtractPages_RejectsInvalidRange(t *testing.T) {
	e := New(WithRunner(&fakeRunner{}))
	_, err := e.ExtractPages(context.Background(), "report.pdf", extract.PageRange{Start: 5, End: 2})
	assert.Error(t, err)
}

func TestExtractAll_CapsPages(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("doc")}
	e := New(WithRunner(runner))

	_, err := e.ExtractAll(context.Background(), "report.pdf", 200)
	require.NoError(t, err)
	assert.Equal(t, []string{"pdftotext", "-layout", "-l", "200", "report.pdf", "-"}, runner.calls[0])
}

func TestRun_RejectsRemoteSources(t *testing.T) {
	runner := &fakeRunner{}
	e := New(WithRunner(runner))

	_, err := e.ExtractAll(context.Background(), "https://example.com/report.pdf", 0)
	assert.Error(t, err)
	assert.Empty(t, runner.calls, "must not shell out for URLs")
}

func TestRun_WrapsCommandFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1"), stderr: []byte("Syntax Error: couldn't read xref table")}
	e := New(WithRunner(runner))

	_, err := e.ExtractAll(context.Background(), "broken.pdf", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xref table")
}

const layoutPage1 = `Mineral Resource Statement

Category        Tonnes (Mt)    Grade (g/t)    Contained (Moz)
Measured        12.3           1.21           0.48
Indicated       45.0           0.95           1.37

Notes: resources reported at a 0.4 g/t cut-off.`

const layoutPage2 = `Economic Summary

Parameter             Value
After-Tax NPV (5%)    450
IRR (%)               22.5`

func TestDetectTables_FindsAlignedColumns(t *testing.T) {
	runner := &fakeRunner{stdout: []byte(layoutPage1 + "\f" + layoutPage2)}
	e := New(WithRunner(runner))

	tables, err := e.DetectTables(context.Background(), "report.pdf", extract.PageRange{Start: 14, End: 15})
	require.NoError(t, err)
	require.Len(t, tables, 2)

	first := tables[0]
	assert.Equal(t, 14, first.Page)
	require.Len(t, first.Rows, 3)
	assert.Equal(t, []string{"Category", "Tonnes (Mt)", "Grade (g/t)", "Contained (Moz)"}, first.Rows[0])
	assert.Equal(t, []string{"Measured", "12.3", "1.21", "0.48"}, first.Rows[1])

	second := tables[1]
	assert.Equal(t, 15, second.Page)
	require.Len(t, second.Rows, 3)
	assert.Equal(t, []string{"After-Tax NPV (5%)", "450"}, second.Rows[1])
}

func TestDetectTables_IgnoresProse(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("Just a paragraph of prose.\nAnother line of prose.\n")}
	e := New(WithRunner(runner))

	tables, err := e.DetectTables(context.Background(), "report.pdf", extract.PageRange{Start: 1, End: 1})
	require.NoError(t, err)
	assert.Empty(t, tables)
}
