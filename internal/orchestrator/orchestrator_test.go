package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/cache"
	"github.com/orelytics/docpipe/internal/classify"
	"github.com/orelytics/docpipe/internal/entity"
	"github.com/orelytics/docpipe/internal/extract"
	"github.com/orelytics/docpipe/internal/jobtrack"
	"github.com/orelytics/docpipe/internal/queue"
	"github.com/orelytics/docpipe/internal/resilience"
)

const technicalReportText = `NI 43-101 Technical Report on the Cerro Alto Project
prepared for Orelytics Mining Corp. (TSX: ORE) by the qualified person.
This mineral resource estimate uses a cut-off grade of 0.4 g/t.`

const pressReleaseText = `FOR IMMEDIATE RELEASE: Orelytics Mining Corp. announces
the appointment of a new director to its board.`

type fakeText struct {
	text  string
	err   error
	calls atomic.Int64
}

func (f *fakeText) ExtractPages(_ context.Context, _ string, _ extract.PageRange) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

func (f *fakeText) ExtractAll(_ context.Context, _ string, _ int) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

type fakeTables struct {
	tables []extract.Table
}

func (f *fakeTables) DetectTables(_ context.Context, _ string, _ extract.PageRange) ([]extract.Table, error) {
	return f.tables, nil
}

type fakeStore struct {
	mu     sync.Mutex
	saved  []entity.ExtractionResult
	byItem map[uuid.UUID]int
	owners map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{byItem: make(map[uuid.UUID]int), owners: make(map[string]string)}
}

func (s *fakeStore) SaveExtractionResult(_ context.Context, itemID uuid.UUID, result entity.ExtractionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, result)
	s.byItem[itemID]++
	return nil
}

func (s *fakeStore) ResolveOwnerRef(_ context.Context, hint string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.owners[hint]; ok {
		return ref, nil
	}
	return "", errors.New("unknown owner")
}

func resourceTable() extract.Table {
	return extract.Table{
		Page: 14,
		Rows: [][]string{
			{"Category", "Tonnes (Mt)", "Grade (g/t)", "Contained (Moz)"},
			{"Indicated", "45.0", "0.95", "1.37"},
		},
	}
}

func testPolicy() queue.Policy {
	return queue.Policy{
		RetryCeiling: 3,
		Backoff: resilience.RetryConfig{
			BaseDelay:     10 * time.Millisecond,
			BackoffFactor: 2,
			MaxDelay:      time.Second,
		},
	}
}

func buildOrchestrator(t *testing.T, text *fakeText, tables *fakeTables, store *fakeStore, opts ...Option) (*Orchestrator, queue.Queue) {
	t.Helper()
	q := queue.NewMemoryQueue(testPolicy(), nil)
	engine := extract.NewEngine(text, tables, nil)
	classifier := classify.NewClassifier(nil, nil)
	return New(q, engine, classifier, text, store, opts...), q
}

func TestOrchestrator_ProcessesTechnicalReport(t *testing.T) {
	text := &fakeText{text: technicalReportText}
	store := newFakeStore()
	store.owners["ORE"] = "company-1"
	tracker := jobtrack.NewTracker(nil)

	o, q := buildOrchestrator(t, text, &fakeTables{tables: []extract.Table{resourceTable()}}, store, WithTracker(tracker))
	ctx := context.Background()
	id, err := q.Enqueue(ctx, queue.EnqueueRequest{Locator: "report.pdf", SourceKind: constants.SourceManual})
	require.NoError(t, err)

	require.NoError(t, o.RunOnce(ctx))

	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.QueueCompleted, item.Status)

	require.NotEmpty(t, store.saved)
	result := store.saved[0]
	assert.Equal(t, constants.ExtractMineralResource, result.Type)
	assert.Equal(t, constants.MethodTable, result.Method)
	assert.Equal(t, "company-1", result.OwnerRef, "ticker in text resolves the owner")

	jobs := tracker.RecentJobs(TaskName, 1, "")
	require.Len(t, jobs, 1)
	assert.Equal(t, constants.JobSuccess, jobs[0].Status)
	assert.Equal(t, 1, jobs[0].RecordsProcessed)
}

func TestOrchestrator_FetchFailureFailsItem(t *testing.T) {
	text := &fakeText{err: errors.New("pdftotext: no such file")}
	store := newFakeStore()
	o, q := buildOrchestrator(t, text, &fakeTables{}, store)

	ctx := context.Background()
	id, err := q.Enqueue(ctx, queue.EnqueueRequest{Locator: "missing.pdf"})
	require.NoError(t, err)

	require.NoError(t, o.RunOnce(ctx))

	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.QueueFailed, item.Status)
	assert.Equal(t, 1, item.RetryCount)
	assert.Contains(t, item.LastError, "fetch text")
	require.NotNil(t, item.NextRetryAt, "retryable failure gets a backoff window")
	assert.Empty(t, store.saved)
}

func TestOrchestrator_OpenTextBreakerFailsFast(t *testing.T) {
	b := resilience.NewBreaker("text-extraction", resilience.BreakerConfig{
		FailureThreshold: 1,
		Timeout:          time.Hour,
	}, nil)
	b.Failure()

	text := &fakeText{text: technicalReportText}
	o, q := buildOrchestrator(t, text, &fakeTables{}, newFakeStore(), WithTextBreaker(b))

	ctx := context.Background()
	id, _ := q.Enqueue(ctx, queue.EnqueueRequest{Locator: "report.pdf"})
	require.NoError(t, o.RunOnce(ctx))

	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.QueueFailed, item.Status)
	assert.Zero(t, text.calls.Load(), "open circuit must not touch the extractor")
}

type hangingText struct{}

func (hangingText) ExtractPages(ctx context.Context, _ string, _ extract.PageRange) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (hangingText) ExtractAll(ctx context.Context, _ string, _ int) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestOrchestrator_ItemTimeoutFailsStuckItem(t *testing.T) {
	q := queue.NewMemoryQueue(testPolicy(), nil)
	engine := extract.NewEngine(hangingText{}, &fakeTables{}, nil)
	o := New(q, engine, classify.NewClassifier(nil, nil), hangingText{}, newFakeStore(),
		WithItemTimeout(20*time.Millisecond))

	ctx := context.Background()
	id, err := q.Enqueue(ctx, queue.EnqueueRequest{Locator: "stuck.pdf"})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, o.RunOnce(ctx))
	assert.Less(t, time.Since(start), 5*time.Second, "stuck extraction must be cut off")

	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.QueueFailed, item.Status)
	assert.Contains(t, item.LastError, context.DeadlineExceeded.Error())
}

func TestOrchestrator_NoResultsFailsItem(t *testing.T) {
	text := &fakeText{text: pressReleaseText}
	store := newFakeStore()
	o, q := buildOrchestrator(t, text, &fakeTables{}, store)

	ctx := context.Background()
	id, _ := q.Enqueue(ctx, queue.EnqueueRequest{Locator: "pr.pdf"})
	require.NoError(t, o.RunOnce(ctx))

	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.QueueFailed, item.Status)
	assert.Contains(t, item.LastError, "all extraction stages produced nothing")
	assert.Empty(t, store.saved)
}

func TestOrchestrator_ClassificationCachedByContentHash(t *testing.T) {
	text := &fakeText{text: technicalReportText}
	store := newFakeStore()
	classCache := cache.NewTTL[entity.Classification](16, time.Minute)
	o, q := buildOrchestrator(t, text, &fakeTables{tables: []extract.Table{resourceTable()}}, store,
		WithClassificationCache(classCache))

	ctx := context.Background()
	_, err := q.Enqueue(ctx, queue.EnqueueRequest{Locator: "a.pdf", ContentHash: "deadbeef"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, queue.EnqueueRequest{Locator: "b.pdf", ContentHash: "deadbeef"})
	require.NoError(t, err)

	require.NoError(t, o.RunOnce(ctx))

	assert.Equal(t, 1, classCache.Len(), "identical content classifies once")
	counts, err := q.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[constants.QueueCompleted])
}

func TestOrchestrator_ProcessesWholeBatchConcurrently(t *testing.T) {
	text := &fakeText{text: technicalReportText}
	store := newFakeStore()
	o, q := buildOrchestrator(t, text, &fakeTables{tables: []extract.Table{resourceTable()}}, store,
		WithWorkers(4), WithBatchSize(20))

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_, err := q.Enqueue(ctx, queue.EnqueueRequest{Locator: uuid.NewString()})
		require.NoError(t, err)
	}
	require.NoError(t, o.RunOnce(ctx))

	counts, err := q.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, counts[constants.QueueCompleted])
	assert.Len(t, store.byItem, 20)
}

func TestTypesFor(t *testing.T) {
	cases := []struct {
		name string
		cls  entity.Classification
		want []constants.ExtractionType
	}{
		{
			name: "earnings gets production",
			cls:  entity.Classification{Type: constants.DocEarnings},
			want: []constants.ExtractionType{constants.ExtractProduction},
		},
		{
			name: "plain technical report gets resources only",
			cls:  entity.Classification{Type: constants.DocTechnicalReport},
			want: []constants.ExtractionType{constants.ExtractMineralResource},
		},
		{
			name: "feasibility study adds economics",
			cls:  entity.Classification{Type: constants.DocTechnicalReport, Subtype: constants.SubtypeFS},
			want: []constants.ExtractionType{constants.ExtractMineralResource, constants.ExtractEconomics},
		},
		{
			name: "unknown type tries everything",
			cls:  entity.Classification{Type: constants.DocOther},
			want: []constants.ExtractionType{
				constants.ExtractProduction, constants.ExtractMineralResource, constants.ExtractEconomics,
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, typesFor(tc.cls))
		})
	}
}
