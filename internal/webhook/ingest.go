package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduline/comms-gateway/internal/gateway"
	"github.com/eduline/comms-gateway/internal/models"
	"github.com/eduline/comms-gateway/internal/repository"
)

// IngestResult reports what happened to one inbound provider callback
type IngestResult struct {
	Type    string `json:"type"`
	Matched bool   `json:"matched"`
	Applied bool   `json:"applied"`
}

// Ingestor normalizes heterogeneous provider callbacks into the internal
// status model and applies them to the delivery queue. Receipts for
// messages the system never persisted are logged and discarded; ingestion
// must survive anything a provider posts.
type Ingestor struct {
	repo     repository.MessageRepository
	registry *gateway.Registry
	logger   *slog.Logger
}

// NewIngestor creates a webhook ingestor
func NewIngestor(repo repository.MessageRepository, registry *gateway.Registry, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		repo:     repo,
		registry: registry,
		logger:   logger,
	}
}

// Ingest processes one raw provider payload for a channel. The payload is
// opaque to this layer; the adapter classifies it. Only resolution
// failures and storage errors are returned as errors — unmatched or
// unrecognized events are a normal, non-error outcome.
func (i *Ingestor) Ingest(ctx context.Context, channel models.Channel, payload []byte) (*IngestResult, error) {
	adapter, err := i.registry.Resolve(channel)
	if err != nil {
		return nil, err
	}

	handler, ok := adapter.(gateway.WebhookHandler)
	if !ok {
		return nil, models.ErrCapability(fmt.Sprintf("channel %s does not support webhooks", channel))
	}

	event := handler.ProcessWebhook(payload)
	if event.Type == models.WebhookEventUnknown {
		i.logger.Warn("unrecognized webhook payload",
			slog.String("channel", string(channel)),
			slog.Int("payload_bytes", len(payload)),
		)
		return &IngestResult{Type: event.Type}, nil
	}

	update, err := receiptFromEvent(event)
	if err != nil {
		i.logger.Warn("webhook event missing receipt fields",
			slog.String("channel", string(channel)),
			slog.String("type", event.Type),
			slog.String("error", err.Error()),
		)
		return &IngestResult{Type: event.Type}, nil
	}

	applied, err := i.apply(ctx, update)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Providers may deliver receipts for messages we never stored,
			// e.g. during a provider migration.
			i.logger.Warn("webhook receipt unmatched",
				slog.String("channel", string(channel)),
				slog.String("provider_message_id", update.ProviderMessageID),
				slog.String("type", event.Type),
			)
			return &IngestResult{Type: event.Type}, nil
		}
		return nil, err
	}

	i.logger.Info("webhook receipt processed",
		slog.String("channel", string(channel)),
		slog.String("provider_message_id", update.ProviderMessageID),
		slog.String("type", event.Type),
		slog.Bool("applied", applied),
	)

	return &IngestResult{Type: event.Type, Matched: true, Applied: applied}, nil
}

// apply looks the message up and applies the receipt with state-machine
// precedence. A receipt that does not advance the state is idempotently
// ignored.
func (i *Ingestor) apply(ctx context.Context, update models.ReceiptUpdate) (bool, error) {
	message, err := i.repo.GetByProviderMessageID(ctx, update.ProviderMessageID)
	if err != nil {
		return false, err
	}

	// Terminal messages permit no further transitions; skip the
	// conditional update entirely.
	if models.IsTerminalStatus(message.Status) {
		return false, nil
	}

	applied, err := i.repo.ApplyReceipt(ctx, update)
	if err != nil {
		return false, fmt.Errorf("failed to apply receipt: %w", err)
	}
	return applied, nil
}

// receiptFromEvent extracts the normalized receipt fields adapters place
// in a classified webhook event.
func receiptFromEvent(event models.WebhookEvent) (models.ReceiptUpdate, error) {
	providerID, _ := event.Data["provider_message_id"].(string)
	if providerID == "" {
		return models.ReceiptUpdate{}, errors.New("missing provider_message_id")
	}

	status, _ := event.Data["status"].(string)
	if !models.IsValidMessageStatus(status) {
		return models.ReceiptUpdate{}, fmt.Errorf("unknown status %q", status)
	}

	update := models.ReceiptUpdate{
		ProviderMessageID: providerID,
		Status:            status,
	}

	// A delivery timestamp is only meaningful on a delivered receipt.
	// Adapters should not attach one to other states, but a misbehaving
	// provider must not be able to stamp delivered_at on a failed message.
	if status == models.MessageStatusDelivered {
		if raw, ok := event.Data["delivered_at"].(string); ok && raw != "" {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				update.DeliveredAt = &ts
			}
		}
		if update.DeliveredAt == nil {
			now := time.Now().UTC()
			update.DeliveredAt = &now
		}
	}

	if reason, ok := event.Data["error"].(string); ok && reason != "" {
		update.Error = &reason
	}

	return update, nil
}
