package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/common"
	"github.com/orelytics/docpipe/internal/ingest"
	"github.com/orelytics/docpipe/internal/queue"
	"github.com/orelytics/docpipe/internal/resilience"
)

func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	_ = godotenv.Load()

	var (
		locator  = flag.String("locator", "", "document locator: local path or URL (required)")
		priority = flag.Int("priority", 0, "claim priority, higher first")
		hint     = flag.String("hint", "", "document type hint (technical_report|earnings|mda|press_release)")
		owner    = flag.String("owner", "", "owner reference to attribute results to")
		viaBus   = flag.Bool("bus", false, "publish to the NATS discovery subject instead of writing the queue")
	)
	flag.Parse()

	if *locator == "" {
		printError("Error: --locator is required\n")
		os.Exit(1)
	}

	cfg := common.LoadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *viaBus {
		if cfg.Ingest.NATSURL == "" {
			printError("Error: --bus requires NATS_URL\n")
			os.Exit(1)
		}
		bus, err := ingest.ConnectBus(cfg.Ingest.NATSURL, nil)
		if err != nil {
			printError("Error: nats connect: %v\n", err)
			os.Exit(1)
		}
		defer bus.Close()
		err = bus.PublishDiscovery(cfg.Ingest.NATSSubject, ingest.DiscoveryMessage{
			Locator:     *locator,
			DocKindHint: *hint,
			OwnerRef:    *owner,
			Priority:    *priority,
		})
		if err != nil {
			printError("Error: publish: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("published %s to %s\n", *locator, cfg.Ingest.NATSSubject)
		return
	}

	q, cleanup, err := openQueue(ctx, cfg)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	id, err := q.Enqueue(ctx, queue.EnqueueRequest{
		Locator:     *locator,
		SourceKind:  constants.SourceManual,
		DocKindHint: constants.DocType(*hint),
		OwnerRef:    *owner,
		Priority:    *priority,
	})
	switch {
	case errors.Is(err, common.ErrDuplicate):
		fmt.Printf("already queued as %s\n", id)
	case err != nil:
		printError("Error: enqueue: %v\n", err)
		os.Exit(1)
	default:
		fmt.Printf("queued %s as %s\n", *locator, id)
	}
}

func openQueue(ctx context.Context, cfg *common.Config) (queue.Queue, func(), error) {
	policy := queue.Policy{
		RetryCeiling: cfg.Queue.RetryCeiling,
		Backoff: resilience.RetryConfig{
			BaseDelay:     cfg.Queue.BackoffBase,
			BackoffFactor: cfg.Queue.BackoffFactor,
			MaxDelay:      cfg.Queue.BackoffMax,
		},
	}
	if cfg.Database.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		q, err := queue.NewPostgresQueue(ctx, pool, policy, nil)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return q, pool.Close, nil
	}
	q, err := queue.OpenSQLiteQueue(cfg.Database.SQLitePath, policy, nil)
	if err != nil {
		return nil, nil, err
	}
	return q, func() { _ = q.Close() }, nil
}
