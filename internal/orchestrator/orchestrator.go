package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/cache"
	"github.com/orelytics/docpipe/internal/classify"
	"github.com/orelytics/docpipe/internal/common"
	"github.com/orelytics/docpipe/internal/entity"
	"github.com/orelytics/docpipe/internal/extract"
	"github.com/orelytics/docpipe/internal/jobtrack"
	"github.com/orelytics/docpipe/internal/queue"
	"github.com/orelytics/docpipe/internal/resilience"
	"github.com/orelytics/docpipe/internal/telemetry"
)

// TaskName is the job-tracker task under which batch runs are recorded.
const TaskName = "extraction.batch"

// Orchestrator drives the pipeline: claim a batch of queue items, fan them
// out to a bounded worker pool, and for each item fetch text, classify,
// extract per type, persist and settle the item.
type Orchestrator struct {
	queue      queue.Queue
	engine     *extract.Engine
	classifier *classify.Classifier
	text       extract.TextExtractor
	store      extract.ResultStore

	textBreaker *resilience.Breaker
	classCache  *cache.TTL[entity.Classification]
	tracker     *jobtrack.Tracker

	batchSize   int
	workers     int
	maxPages    int
	itemTimeout time.Duration
	logger      *slog.Logger
}

type Option func(*Orchestrator)

// WithWorkers bounds concurrent item processing.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithBatchSize sets how many items one run claims.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithMaxPages bounds full-text extraction per document.
func WithMaxPages(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxPages = n
		}
	}
}

// WithItemTimeout bounds one item's full flow so a single stuck document
// cannot eat the whole batch window.
func WithItemTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.itemTimeout = d
		}
	}
}

// WithTextBreaker guards the text-extraction dependency.
func WithTextBreaker(b *resilience.Breaker) Option {
	return func(o *Orchestrator) { o.textBreaker = b }
}

// WithClassificationCache memoizes classifications by content hash.
func WithClassificationCache(c *cache.TTL[entity.Classification]) Option {
	return func(o *Orchestrator) { o.classCache = c }
}

// WithTracker records each batch run in the job tracker.
func WithTracker(t *jobtrack.Tracker) Option {
	return func(o *Orchestrator) { o.tracker = t }
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func New(q queue.Queue, engine *extract.Engine, classifier *classify.Classifier, text extract.TextExtractor, store extract.ResultStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		queue:      q,
		engine:     engine,
		classifier: classifier,
		text:       text,
		store:      store,
		batchSize:  10,
		workers:    4,
		maxPages:   200,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunOnce claims and processes one batch. It is the body of the scheduled
// extraction task and is safe to call concurrently only through the
// scheduler's re-entrancy guard.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	if o.tracker != nil {
		return o.tracker.Run(ctx, TaskName, o.runBatch)
	}
	return o.runBatch(ctx, nil)
}

func (o *Orchestrator) runBatch(ctx context.Context, ex *jobtrack.Execution) error {
	batch, err := o.queue.ClaimNextBatch(ctx, o.batchSize)
	if err != nil {
		return fmt.Errorf("claim batch: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}
	o.logger.Info("orchestrator.batch.start", "items", len(batch), "workers", o.workers)

	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup
	for _, item := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(item entity.QueueItem) {
			defer wg.Done()
			defer func() { <-sem }()
			if perr := o.processItem(ctx, item); perr != nil {
				if ex != nil {
					ex.AddFailed(1)
				}
			} else if ex != nil {
				ex.AddProcessed(1)
			}
		}(item)
	}
	wg.Wait()
	return nil
}

// processItem runs the full per-document flow and settles the queue item.
// The returned error is what the item was failed with, for accounting.
func (o *Orchestrator) processItem(ctx context.Context, item entity.QueueItem) error {
	ctx = common.WithItemID(ctx, item.ID.String())
	if o.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.itemTimeout)
		defer cancel()
	}
	timer := prometheus.NewTimer(telemetry.ItemDurationSeconds)
	defer timer.ObserveDuration()

	source := item.LocalPath
	if source == "" {
		source = item.Locator
	}

	fullText, err := o.fetchText(ctx, source)
	if err != nil {
		o.failItem(ctx, item, fmt.Errorf("fetch text: %w", err))
		return err
	}

	cls := o.classify(ctx, item, fullText)
	o.logger.Info("orchestrator.item.classified",
		"item_id", item.ID, "type", cls.Type, "subtype", cls.Subtype,
		"confidence", cls.Confidence, "ticker", cls.Ticker)

	ownerRef := o.resolveOwner(ctx, item, cls)

	doc := extract.Document{Source: source, FullText: fullText}
	saved := 0
	for _, extType := range typesFor(cls) {
		results, xerr := o.engine.Extract(ctx, doc, extType)
		if xerr != nil {
			// Only context errors escape the engine; stop the item.
			o.failItem(ctx, item, xerr)
			return xerr
		}
		for _, result := range results {
			result.OwnerRef = ownerRef
			if serr := o.store.SaveExtractionResult(ctx, item.ID, result); serr != nil {
				o.failItem(ctx, item, fmt.Errorf("save result: %w", serr))
				return serr
			}
			telemetry.ExtractionResults.WithLabelValues(string(result.Type), string(result.Method)).Inc()
			saved++
		}
	}

	if saved == 0 {
		err := fmt.Errorf("%w: doc type %s", common.ErrExtractionExhausted, cls.Type)
		o.failItem(ctx, item, err)
		return err
	}
	telemetry.ItemsProcessed.WithLabelValues("completed").Inc()
	if cerr := o.queue.Complete(ctx, item.ID); cerr != nil {
		o.logger.Error("orchestrator.item.complete_failed", "item_id", item.ID, "error", cerr)
		return cerr
	}
	o.logger.Info("orchestrator.item.done", "item_id", item.ID, "results", saved)
	return nil
}

func (o *Orchestrator) fetchText(ctx context.Context, source string) (string, error) {
	var fullText string
	fn := func(ctx context.Context) error {
		var terr error
		fullText, terr = o.text.ExtractAll(ctx, source, o.maxPages)
		return terr
	}
	var err error
	if o.textBreaker != nil {
		err = o.textBreaker.Do(ctx, fn)
	} else {
		err = fn(ctx)
	}
	return fullText, err
}

// classify returns the cached classification when the item carries a
// content hash, otherwise classifies directly.
func (o *Orchestrator) classify(ctx context.Context, item entity.QueueItem, fullText string) entity.Classification {
	if o.classCache == nil || item.ContentHash == "" {
		return o.classifier.Classify(ctx, fullText)
	}
	cls, _ := o.classCache.GetOrLoad(item.ContentHash, func() (entity.Classification, error) {
		return o.classifier.Classify(ctx, fullText), nil
	})
	return cls
}

func (o *Orchestrator) resolveOwner(ctx context.Context, item entity.QueueItem, cls entity.Classification) string {
	if item.OwnerRef != "" {
		return item.OwnerRef
	}
	if cls.Ticker == "" {
		return ""
	}
	ref, err := o.store.ResolveOwnerRef(ctx, cls.Ticker)
	if err != nil {
		o.logger.Warn("orchestrator.owner.unresolved", "item_id", item.ID, "ticker", cls.Ticker, "error", err)
		return ""
	}
	return ref
}

func (o *Orchestrator) failItem(ctx context.Context, item entity.QueueItem, err error) {
	telemetry.ItemsProcessed.WithLabelValues("failed").Inc()
	o.logger.Warn("orchestrator.item.fail", "item_id", item.ID, "error", err)
	if ferr := o.queue.Fail(ctx, item.ID, err.Error()); ferr != nil {
		o.logger.Error("orchestrator.item.fail_failed", "item_id", item.ID, "error", ferr)
	}
}

// typesFor maps a document classification to the extraction types worth
// attempting. Unknown documents get every type; the engine's miss path is
// cheap for the wrong ones.
func typesFor(cls entity.Classification) []constants.ExtractionType {
	switch cls.Type {
	case constants.DocEarnings, constants.DocMDA, constants.DocPressRelease:
		return []constants.ExtractionType{constants.ExtractProduction}
	case constants.DocTechnicalReport:
		types := []constants.ExtractionType{constants.ExtractMineralResource}
		if _, ok := constants.FeasibilitySubtypes[cls.Subtype]; ok {
			types = append(types, constants.ExtractEconomics)
		}
		return types
	default:
		return []constants.ExtractionType{
			constants.ExtractProduction,
			constants.ExtractMineralResource,
			constants.ExtractEconomics,
		}
	}
}
