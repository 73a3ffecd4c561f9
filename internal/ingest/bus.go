package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/orelytics/docpipe/constants"
	"github.com/orelytics/docpipe/internal/common"
	"github.com/orelytics/docpipe/internal/queue"
	"github.com/orelytics/docpipe/internal/telemetry"
)

// DiscoveryMessage is the JSON payload external feeds publish to announce
// a document.
type DiscoveryMessage struct {
	Locator     string `json:"locator"`
	DocKindHint string `json:"doc_kind_hint,omitempty"`
	OwnerRef    string `json:"owner_ref,omitempty"`
	Priority    int    `json:"priority,omitempty"`
}

// Bus bridges a NATS subject into the extraction queue.
type Bus struct {
	nc     *nats.Conn
	logger *slog.Logger
}

func ConnectBus(url string, logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Bus{nc: nc, logger: logger}, nil
}

func (b *Bus) Close() {
	if b.nc != nil {
		_ = b.nc.Drain()
	}
}

// PublishDiscovery announces a document on the subject; used by feed
// adapters and the enqueue CLI.
func (b *Bus) PublishDiscovery(subject string, msg DiscoveryMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.nc.Publish(subject, data)
}

// SubscribeDiscoveries enqueues every valid message on the subject.
// Malformed payloads and duplicate locators are logged and dropped.
func (b *Bus) SubscribeDiscoveries(subject string, q queue.Queue) (*nats.Subscription, error) {
	return b.nc.Subscribe(subject, func(m *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var msg DiscoveryMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			b.logger.Warn("ingest.bus.malformed", "subject", subject, "error", err)
			return
		}
		if msg.Locator == "" {
			b.logger.Warn("ingest.bus.missing_locator", "subject", subject)
			return
		}

		id, err := q.Enqueue(ctx, queue.EnqueueRequest{
			Locator:     msg.Locator,
			SourceKind:  constants.SourceBus,
			DocKindHint: constants.DocType(msg.DocKindHint),
			OwnerRef:    msg.OwnerRef,
			Priority:    msg.Priority,
		})
		switch {
		case errors.Is(err, common.ErrDuplicate):
			b.logger.Debug("ingest.bus.duplicate", "locator", msg.Locator)
		case err != nil:
			b.logger.Error("ingest.bus.enqueue_failed", "locator", msg.Locator, "error", err)
		default:
			telemetry.QueueItemsEnqueued.WithLabelValues(string(constants.SourceBus)).Inc()
			b.logger.Info("ingest.bus.enqueued", "item_id", id, "locator", msg.Locator)
		}
	})
}
