package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/llm"
	"github.com/orelytics/docpipe/internal/resilience"
)

type fakeText struct {
	pages string
	err   error
}

func (f *fakeText) ExtractPages(_ context.Context, _ string, _ PageRange) (string, error) {
	return f.pages, f.err
}

func (f *fakeText) ExtractAll(_ context.Context, _ string, _ int) (string, error) {
	return f.pages, f.err
}

type fakeTables struct {
	tables []Table
	err    error
}

func (f *fakeTables) DetectTables(_ context.Context, _ string, _ PageRange) ([]Table, error) {
	return f.tables, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func countingCompleter(calls *atomic.Int64, reply string, err error) llm.Completer {
	return llm.CompleterFunc(func(_ context.Context, _ llm.CompletionRequest) (string, error) {
		calls.Add(1)
		return reply, err
	})
}

const economicsProse = "The economic analysis summary table shows robust returns. " +
	"The project carries an after-tax NPV of $450 million at a 5% discount rate " +
	"and an IRR of 22.5%, with a payback period of 3.1 years."

func TestEngine_TablesWinWithoutModelCalls(t *testing.T) {
	var calls atomic.Int64
	e := NewEngine(
		&fakeText{},
		&fakeTables{tables: []Table{resourceTable()}},
		countingCompleter(&calls, "", errors.New("should not be called")),
	)

	results, err := e.Extract(context.Background(), Document{Source: "report.pdf", FullText: "irrelevant"}, constants.ExtractMineralResource)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, constants.MethodTable, results[0].Method)
	assert.Equal(t, constants.ConfidenceTable, results[0].Confidence)
	assert.Zero(t, calls.Load(), "table hit must short-circuit the model stages")
}

func TestEngine_ScanRunsWhenTablesEmptyAndScoutFails(t *testing.T) {
	var calls atomic.Int64
	e := NewEngine(
		&fakeText{},
		&fakeTables{},
		countingCompleter(&calls, "", errors.New("model down")),
	)

	results, err := e.Extract(context.Background(), Document{FullText: economicsProse}, constants.ExtractEconomics)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Scout failed and Parse failed, so Scan located the window and the
	// regex pass produced the result.
	assert.Equal(t, constants.MethodRegex, results[0].Method)
	assert.Equal(t, constants.ConfidenceRegex, results[0].Confidence)
	assert.Equal(t, 450.0, results[0].Metrics["npv"])
	assert.Equal(t, 22.5, results[0].Metrics["irr_pct"])
	assert.Equal(t, int64(2), calls.Load(), "both Scout and Parse attempted despite failures")
}

func TestEngine_ParseProducesModelResult(t *testing.T) {
	replies := []string{
		`{"page": 0}`, // Scout: section not listed
		`{"npv": 450, "irr_pct": 22.5, "payback_years": 3.1, "initial_capex": null}`,
	}
	var n atomic.Int64
	completer := llm.CompleterFunc(func(_ context.Context, _ llm.CompletionRequest) (string, error) {
		return replies[n.Add(1)-1], nil
	})
	e := NewEngine(&fakeText{}, &fakeTables{}, completer)

	results, err := e.Extract(context.Background(), Document{FullText: economicsProse}, constants.ExtractEconomics)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, constants.MethodLLM, results[0].Method)
	assert.Equal(t, constants.ConfidenceLLM, results[0].Confidence)
	assert.Equal(t, 450.0, results[0].Metrics["npv"])
	assert.NotContains(t, results[0].Metrics, "initial_capex", "null figures are dropped")
	assert.NotEmpty(t, results[0].Snippet)
}

func TestEngine_ScoutPageFeedsParse(t *testing.T) {
	replies := []string{
		`{"page": 14}`,
		`{"rows": [{"category": "indicated", "tonnes": 45.0, "grade": 0.95, "grade_unit": "g/t", "contained_metal": 1.37, "contained_unit": "Moz"}]}`,
	}
	var n atomic.Int64
	completer := llm.CompleterFunc(func(_ context.Context, _ llm.CompletionRequest) (string, error) {
		return replies[n.Add(1)-1], nil
	})
	e := NewEngine(
		&fakeText{pages: "Mineral Resource Estimate ... Indicated 45.0 Mt at 0.95 g/t"},
		&fakeTables{},
		completer,
	)

	results, err := e.Extract(context.Background(), Document{Source: "report.pdf", FullText: "1. Introduction .... 14. Mineral Resource Estimate"}, constants.ExtractMineralResource)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, constants.MethodLLM, results[0].Method)
	assert.Equal(t, "indicated", results[0].Metrics["category"])
	assert.Equal(t, 45.0, results[0].Metrics["tonnes"])
}

func TestEngine_InvalidModelJSONFallsBackToRegex(t *testing.T) {
	replies := []string{
		`{"page": 0}`,
		`{"npv": "four hundred fifty"}`, // fails schema validation
	}
	var n atomic.Int64
	completer := llm.CompleterFunc(func(_ context.Context, _ llm.CompletionRequest) (string, error) {
		return replies[n.Add(1)-1], nil
	})
	e := NewEngine(&fakeText{}, &fakeTables{}, completer)

	results, err := e.Extract(context.Background(), Document{FullText: economicsProse}, constants.ExtractEconomics)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, constants.MethodRegex, results[0].Method)
}

func TestEngine_TotalMissIsNotAnError(t *testing.T) {
	var calls atomic.Int64
	e := NewEngine(&fakeText{}, &fakeTables{}, countingCompleter(&calls, "", errors.New("down")))

	results, err := e.Extract(context.Background(), Document{FullText: "A press release about a board appointment."}, constants.ExtractEconomics)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEngine_OpenLLMBreakerSkipsModelStages(t *testing.T) {
	b := resilience.NewBreaker("llm", resilience.BreakerConfig{
		FailureThreshold: 1,
		Timeout:          time.Hour,
	}, nil)
	b.Failure()
	require.Equal(t, resilience.StateOpen, b.State())

	var calls atomic.Int64
	e := NewEngine(
		&fakeText{},
		&fakeTables{},
		countingCompleter(&calls, "", nil),
		WithLLMBreaker(b),
	)

	results, err := e.Extract(context.Background(), Document{FullText: economicsProse}, constants.ExtractEconomics)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, constants.MethodRegex, results[0].Method, "regex still runs with the circuit open")
	assert.Zero(t, calls.Load(), "open circuit must not invoke the model")
}

func TestEngine_DeadModelTripsLLMBreaker(t *testing.T) {
	b := resilience.NewBreaker("llm", resilience.BreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	}, nil)

	var calls atomic.Int64
	e := NewEngine(
		&fakeText{},
		&fakeTables{},
		countingCompleter(&calls, "", errors.New("connection refused")),
		WithLLMBreaker(b),
	)

	for i := 0; i < 10; i++ {
		_, err := e.Extract(context.Background(), Document{FullText: economicsProse}, constants.ExtractEconomics)
		require.NoError(t, err)
	}

	// Scout and Parse each record a breaker failure on the first pass;
	// every later pass must fail fast without touching the model.
	assert.Equal(t, resilience.StateOpen, b.State(), "completion failures must open the circuit")
	assert.Equal(t, int64(2), calls.Load(), "open circuit must stop model calls")
}

func TestEngine_TableDetectorErrorFallsThrough(t *testing.T) {
	replies := []string{
		`{"page": 0}`,
		`{"npv": 450}`,
	}
	var n atomic.Int64
	completer := llm.CompleterFunc(func(_ context.Context, _ llm.CompletionRequest) (string, error) {
		return replies[n.Add(1)-1], nil
	})
	e := NewEngine(&fakeText{}, &fakeTables{err: errors.New("pdftotext crashed")}, completer)

	results, err := e.Extract(context.Background(), Document{FullText: economicsProse}, constants.ExtractEconomics)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, constants.MethodLLM, results[0].Method)
}

func TestScanSection_PenalizesBoilerplate(t *testing.T) {
	text := "Forward-looking statements: economic analysis herein is cautionary and no assurance ... " +
		economicsProse
	section, ok := scanSection(text, "economic analysis", discardLogger())
	require.True(t, ok)
	assert.Contains(t, section, "NPV of $450 million", "the scored window must be the real section, not the disclaimer")
}

func TestScanSection_MissBelowFloor(t *testing.T) {
	_, ok := scanSection("no relevant heading here", "economic analysis", discardLogger())
	assert.False(t, ok)
}
