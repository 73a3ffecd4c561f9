package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/common"
	"github.com/orelytics/docpipe/internal/queue"
	"github.com/orelytics/docpipe/internal/telemetry"
)

// Ingestor turns discovered file paths into queue items. The content hash
// doubles as the classification cache key downstream.
type Ingestor struct {
	queue    queue.Queue
	priority int
	logger   *slog.Logger
}

func NewIngestor(q queue.Queue, priority int, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{queue: q, priority: priority, logger: logger}
}

// Run consumes the watcher channel until it closes or ctx is canceled.
func (in *Ingestor) Run(ctx context.Context, paths <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-paths:
			if !ok {
				return
			}
			if err := in.IngestFile(ctx, path); err != nil && !errors.Is(err, common.ErrDuplicate) {
				in.logger.Error("ingest.file.failed", "path", path, "error", err)
			}
		}
	}
}

// IngestFile enqueues one local document. Duplicate locators come back as
// common.ErrDuplicate, which steady-state rescans are expected to hit.
func (in *Ingestor) IngestFile(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	hash, err := hashFile(abs)
	if err != nil {
		return fmt.Errorf("hash %q: %w", abs, err)
	}

	id, err := in.queue.Enqueue(ctx, queue.EnqueueRequest{
		Locator:     abs,
		SourceKind:  constants.SourceDropDir,
		Priority:    in.priority,
		LocalPath:   abs,
		ContentHash: hash,
	})
	if err != nil {
		return err
	}
	telemetry.QueueItemsEnqueued.WithLabelValues(string(constants.SourceDropDir)).Inc()
	in.logger.Info("ingest.file.enqueued", "item_id", id, "path", abs, "hash", hash[:12])
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
