package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/orelytics/docpipe/internal/cache"
	"github.com/orelytics/docpipe/internal/classify"
	"github.com/orelytics/docpipe/internal/common"
	"github.com/orelytics/docpipe/internal/entity"
	"github.com/orelytics/docpipe/internal/extract"
	"github.com/orelytics/docpipe/internal/ingest"
	"github.com/orelytics/docpipe/internal/jobtrack"
	"github.com/orelytics/docpipe/internal/llm"
	"github.com/orelytics/docpipe/internal/llm/openai"
	"github.com/orelytics/docpipe/internal/orchestrator"
	"github.com/orelytics/docpipe/internal/pdftext"
	"github.com/orelytics/docpipe/internal/queue"
	"github.com/orelytics/docpipe/internal/resilience"
	"github.com/orelytics/docpipe/internal/scheduler"
	"github.com/orelytics/docpipe/internal/store"
	"github.com/orelytics/docpipe/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()
	log := logger.Sugar()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := queue.Policy{
		RetryCeiling: cfg.Queue.RetryCeiling,
		Backoff: resilience.RetryConfig{
			BaseDelay:     cfg.Queue.BackoffBase,
			BackoffFactor: cfg.Queue.BackoffFactor,
			MaxDelay:      cfg.Queue.BackoffMax,
		},
	}

	var (
		q   queue.Queue
		st  store.Store
		err error
	)
	if cfg.Database.DSN != "" {
		pool, perr := pgxpool.New(ctx, cfg.Database.DSN)
		if perr != nil {
			log.Fatalf("postgres pool: %v", perr)
		}
		defer pool.Close()
		if perr := pool.Ping(ctx); perr != nil {
			log.Fatalf("postgres ping: %v", perr)
		}
		if q, err = queue.NewPostgresQueue(ctx, pool, policy, nil); err != nil {
			log.Fatalf("postgres queue: %v", err)
		}
		if st, err = store.NewPostgresStore(ctx, pool, nil); err != nil {
			log.Fatalf("postgres store: %v", err)
		}
		log.Infow("storage ready", "backend", "postgres")
	} else {
		// Queue and store share one SQLite file; the driver is registered
		// by the queue package's import.
		db, derr := sql.Open("sqlite", cfg.Database.SQLitePath)
		if derr != nil {
			log.Fatalf("open sqlite: %v", derr)
		}
		defer db.Close()
		db.SetMaxOpenConns(1)
		if q, err = queue.NewSQLiteQueue(db, policy, nil); err != nil {
			log.Fatalf("sqlite queue: %v", err)
		}
		if st, err = store.NewSQLiteStore(db, nil); err != nil {
			log.Fatalf("sqlite store: %v", err)
		}
		log.Infow("storage ready", "backend", "sqlite", "path", cfg.Database.SQLitePath)
	}

	var completer llm.Completer
	if cfg.LLM.APIKey != "" {
		completer = openai.NewClient(openai.Config{
			BaseURL:    cfg.LLM.BaseURL,
			Model:      cfg.LLM.Model,
			APIKey:     cfg.LLM.APIKey,
			Timeout:    cfg.LLM.Timeout,
			RatePerSec: cfg.LLM.RatePerSec,
			Burst:      cfg.LLM.Burst,
		}, nil)
	} else {
		log.Warnw("no LLM API key; scout, parse and classification override disabled")
	}

	extractor := pdftext.New(pdftext.WithBinary(cfg.Extractor.PdftotextBin))

	textBreaker := resilience.NewBreaker("text-extraction", resilience.BreakerConfig{
		FailureThreshold: 5, SuccessThreshold: 2, Timeout: time.Minute,
	}, nil)
	llmBreaker := resilience.NewBreaker("llm", resilience.BreakerConfig{
		FailureThreshold: 5, SuccessThreshold: 2, Timeout: 2 * time.Minute,
	}, nil)
	tableBreaker := resilience.NewBreaker("table-detection", resilience.BreakerConfig{
		FailureThreshold: 5, SuccessThreshold: 2, Timeout: time.Minute,
	}, nil)
	breakers := []*resilience.Breaker{textBreaker, llmBreaker, tableBreaker}

	engine := extract.NewEngine(extractor, extractor, completer,
		extract.WithTableWindow(cfg.Extractor.ScanPages),
		extract.WithScoutSpan(cfg.Extractor.ScoutPages),
		extract.WithTableBreaker(tableBreaker),
		extract.WithLLMBreaker(llmBreaker),
	)

	tracker := jobtrack.NewTracker(nil)
	orch := orchestrator.New(q, engine, classify.NewClassifier(completer, nil), extractor, st,
		orchestrator.WithWorkers(cfg.Queue.Workers),
		orchestrator.WithBatchSize(cfg.Queue.BatchSize),
		orchestrator.WithMaxPages(cfg.Extractor.MaxPages),
		orchestrator.WithItemTimeout(cfg.Queue.ItemTimeout),
		orchestrator.WithTextBreaker(textBreaker),
		orchestrator.WithClassificationCache(cache.NewTTL[entity.Classification](1024, 24*time.Hour)),
		orchestrator.WithTracker(tracker),
	)

	sched := scheduler.New(scheduler.WithPollInterval(cfg.Scheduler.CheckInterval))
	mustRegister(log, sched, scheduler.TaskConfig{
		Name:          orchestrator.TaskName,
		Interval:      cfg.Scheduler.ExtractInterval,
		Timeout:       cfg.Scheduler.TaskTimeout,
		SkipThreshold: cfg.Scheduler.FailureCeiling,
	}, orch.RunOnce)
	mustRegister(log, sched, scheduler.TaskConfig{
		Name:     "queue.sweep",
		Interval: cfg.Scheduler.SweepInterval,
		Timeout:  time.Minute,
	}, func(ctx context.Context) error {
		return sweepQueue(ctx, q, breakers)
	})

	if len(cfg.Ingest.WatchRoots) > 0 {
		paths, _, werr := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       cfg.Ingest.WatchRoots,
			InitialScan: cfg.Ingest.InitialScan,
			Debounce:    cfg.Ingest.Debounce,
		}, nil)
		if werr != nil {
			log.Fatalf("watcher: %v", werr)
		}
		go ingest.NewIngestor(q, cfg.Queue.DefaultPriority, nil).Run(ctx, paths)
		log.Infow("drop-directory discovery started", "roots", cfg.Ingest.WatchRoots)
	}

	if cfg.Ingest.NATSURL != "" {
		bus, berr := ingest.ConnectBus(cfg.Ingest.NATSURL, nil)
		if berr != nil {
			log.Fatalf("nats connect: %v", berr)
		}
		defer bus.Close()
		if _, berr := bus.SubscribeDiscoveries(cfg.Ingest.NATSSubject, q); berr != nil {
			log.Fatalf("nats subscribe: %v", berr)
		}
		log.Infow("bus discovery started", "subject", cfg.Ingest.NATSSubject)
	}

	telemetry.StartMetricsServer(ctx, cfg.Telemetry.Addr, nil)

	log.Infow("docpiped running",
		"batch_size", cfg.Queue.BatchSize,
		"workers", cfg.Queue.Workers,
		"extract_interval", cfg.Scheduler.ExtractInterval,
	)
	sched.Start(ctx)
	log.Info("stopped")
}

func mustRegister(log *zap.SugaredLogger, s *scheduler.Scheduler, cfg scheduler.TaskConfig, fn scheduler.TaskFunc) {
	if err := s.RegisterTask(cfg, fn); err != nil {
		log.Fatalf("register %s: %v", cfg.Name, err)
	}
}

// sweepQueue refreshes queue-depth and breaker gauges. Retry-eligible
// FAILED items need no explicit requeue: the claim query picks them up as
// soon as their backoff window elapses, which the extraction task's next
// run observes.
func sweepQueue(ctx context.Context, q queue.Queue, breakers []*resilience.Breaker) error {
	counts, err := q.CountByStatus(ctx)
	if err != nil {
		return err
	}
	for status, n := range counts {
		telemetry.QueueDepth.WithLabelValues(string(status)).Set(float64(n))
	}
	for _, b := range breakers {
		open := 0.0
		if b.State() == resilience.StateOpen {
			open = 1
		}
		telemetry.BreakerState.WithLabelValues(b.Name()).Set(open)
	}
	return nil
}
