package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/orelytics/docpipe/internal/common"
	"github.com/orelytics/docpipe/internal/export"
	"github.com/orelytics/docpipe/internal/store"
)

func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	_ = godotenv.Load()

	var (
		out     = flag.String("out", "docpipe-results.xlsx", "output XLSX file path")
		fromStr = flag.String("from", "", "only include results from this date (YYYY-MM-DD)")
	)
	flag.Parse()

	var since time.Time
	if *fromStr != "" {
		parsed, err := time.Parse("2006-01-02", *fromStr)
		if err != nil {
			printError("Error: invalid --from date, use YYYY-MM-DD: %v\n", err)
			os.Exit(1)
		}
		since = parsed
	}

	cfg := common.LoadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	// Job history lives in the daemon's memory; a standalone export has
	// only the results sheet.
	data, err := export.NewService(st, nil, nil).ExportXLSX(ctx, since)
	if err != nil {
		printError("Error: export: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		printError("Error: write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(data))
}

func openStore(ctx context.Context, cfg *common.Config) (store.Store, func(), error) {
	if cfg.Database.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		st, err := store.NewPostgresStore(ctx, pool, nil)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, pool.Close, nil
	}
	st, err := store.OpenSQLiteStore(cfg.Database.SQLitePath, nil)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { _ = st.Close() }, nil
}
