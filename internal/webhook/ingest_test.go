package webhook

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/eduline/comms-gateway/internal/gateway"
	"github.com/eduline/comms-gateway/internal/models"
	"github.com/eduline/comms-gateway/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestIngestor(t *testing.T) (*Ingestor, *repository.MemoryMessageRepository) {
	t.Helper()

	repo := repository.NewMemoryMessageRepository()
	registry := gateway.NewRegistry(testLogger())
	registry.Register(gateway.NewMockRichGateway("mock-whatsapp", models.ChannelWhatsApp, 1.0))
	registry.Register(gateway.NewMockGateway("mock-sms", models.ChannelSMS, 1.0))

	push, err := gateway.NewPushGateway(gateway.PushConfig{Endpoint: "https://push.example.com/send"})
	if err != nil {
		t.Fatalf("NewPushGateway() error: %v", err)
	}
	registry.Register(push)

	return NewIngestor(repo, registry, testLogger()), repo
}

func sentMessage(t *testing.T, repo *repository.MemoryMessageRepository, providerID string) *models.Message {
	t.Helper()

	ctx := context.Background()
	message := &models.Message{
		Recipient: "+15551234567",
		Channel:   models.ChannelWhatsApp,
		Content:   "enrollment confirmed",
		Status:    models.MessageStatusQueued,
	}
	if err := repo.Create(ctx, message); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if claimed, err := repo.ClaimForSending(ctx, message.ID); err != nil || !claimed {
		t.Fatalf("ClaimForSending() = %v, %v", claimed, err)
	}
	if err := repo.MarkSent(ctx, message.ID, providerID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkSent() error: %v", err)
	}
	return message
}

func TestIngest_DeliveredReceipt(t *testing.T) {
	ingestor, repo := newTestIngestor(t)
	message := sentMessage(t, repo, "wamid-1")

	payload := []byte(`{"message_id": "wamid-1", "event": "delivered", "delivered_at": "2026-08-29T10:00:00Z"}`)
	result, err := ingestor.Ingest(context.Background(), models.ChannelWhatsApp, payload)
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	if !result.Matched || !result.Applied {
		t.Fatalf("expected matched and applied, got %+v", result)
	}

	got, _ := repo.GetByID(context.Background(), message.ID)
	if got.Status != models.MessageStatusDelivered {
		t.Errorf("expected delivered, got %s", got.Status)
	}
	want := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	if got.DeliveredAt == nil || !got.DeliveredAt.Equal(want) {
		t.Errorf("expected delivered_at %v, got %v", want, got.DeliveredAt)
	}
}

// Applying the same receipt twice must leave the message exactly as one
// application does.
func TestIngest_DuplicateReceiptIsIdempotent(t *testing.T) {
	ingestor, repo := newTestIngestor(t)
	message := sentMessage(t, repo, "wamid-1")
	ctx := context.Background()

	payload := []byte(`{"message_id": "wamid-1", "event": "delivered", "delivered_at": "2026-08-29T10:00:00Z"}`)

	if _, err := ingestor.Ingest(ctx, models.ChannelWhatsApp, payload); err != nil {
		t.Fatalf("first Ingest() error: %v", err)
	}
	first, _ := repo.GetByID(ctx, message.ID)

	result, err := ingestor.Ingest(ctx, models.ChannelWhatsApp, payload)
	if err != nil {
		t.Fatalf("second Ingest() error: %v", err)
	}
	if result.Applied {
		t.Error("duplicate receipt must be a no-op")
	}

	second, _ := repo.GetByID(ctx, message.ID)
	if second.Status != first.Status || !second.DeliveredAt.Equal(*first.DeliveredAt) {
		t.Errorf("duplicate receipt changed state: %+v -> %+v", first, second)
	}
}

// A delivered receipt followed by a stale sent-only update must leave the
// message delivered.
func TestIngest_StaleSentAfterDelivered(t *testing.T) {
	ingestor, repo := newTestIngestor(t)
	message := sentMessage(t, repo, "wamid-1")
	ctx := context.Background()

	delivered := []byte(`{"message_id": "wamid-1", "event": "delivered", "delivered_at": "2026-08-29T10:00:00Z"}`)
	if _, err := ingestor.Ingest(ctx, models.ChannelWhatsApp, delivered); err != nil {
		t.Fatalf("Ingest(delivered) error: %v", err)
	}

	stale := []byte(`{"message_id": "wamid-1", "event": "sent"}`)
	result, err := ingestor.Ingest(ctx, models.ChannelWhatsApp, stale)
	if err != nil {
		t.Fatalf("Ingest(stale sent) error: %v", err)
	}
	if result.Applied {
		t.Error("stale sent update must not apply")
	}

	got, _ := repo.GetByID(ctx, message.ID)
	if got.Status != models.MessageStatusDelivered {
		t.Errorf("expected delivered preserved, got %s", got.Status)
	}
	if got.DeliveredAt == nil {
		t.Error("expected delivered_at preserved")
	}
}

// A failure callback that carries a timestamp must not stamp a delivery
// time; delivered_at is set only when the message reaches delivered.
func TestIngest_FailureCallbackNeverSetsDeliveredAt(t *testing.T) {
	ingestor, repo := newTestIngestor(t)
	ctx := context.Background()

	message := &models.Message{
		Recipient: "visa-updates",
		Channel:   models.ChannelPush,
		Content:   "slot released",
		Status:    models.MessageStatusQueued,
	}
	if err := repo.Create(ctx, message); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if claimed, err := repo.ClaimForSending(ctx, message.ID); err != nil || !claimed {
		t.Fatalf("ClaimForSending() = %v, %v", claimed, err)
	}
	if err := repo.MarkSent(ctx, message.ID, "p-77", time.Now().UTC()); err != nil {
		t.Fatalf("MarkSent() error: %v", err)
	}

	payload := []byte(`{"id": "p-77", "state": "FAILED", "ts": "2026-08-29T10:00:00Z", "error": "device unregistered"}`)
	result, err := ingestor.Ingest(ctx, models.ChannelPush, payload)
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if !result.Matched || !result.Applied {
		t.Fatalf("expected matched and applied, got %+v", result)
	}

	got, _ := repo.GetByID(ctx, message.ID)
	if got.Status != models.MessageStatusUndeliverable {
		t.Errorf("expected undeliverable, got %s", got.Status)
	}
	if got.DeliveredAt != nil {
		t.Errorf("undeliverable message must not carry delivered_at, got %v", got.DeliveredAt)
	}
	if got.LastError == nil || *got.LastError != "device unregistered" {
		t.Errorf("expected provider reason recorded, got %v", got.LastError)
	}

	// Undeliverable is terminal; a late delivered callback must not revive it
	late := []byte(`{"id": "p-77", "state": "DELIVERED", "ts": "2026-08-29T11:00:00Z"}`)
	result, err = ingestor.Ingest(ctx, models.ChannelPush, late)
	if err != nil {
		t.Fatalf("Ingest(late delivered) error: %v", err)
	}
	if result.Applied {
		t.Error("receipt for a terminal message must not apply")
	}

	got, _ = repo.GetByID(ctx, message.ID)
	if got.Status != models.MessageStatusUndeliverable || got.DeliveredAt != nil {
		t.Errorf("terminal state mutated: status=%s delivered_at=%v", got.Status, got.DeliveredAt)
	}
}

// Receipts for messages the system never persisted are logged and
// discarded, never an error.
func TestIngest_UnmatchedReceiptDiscarded(t *testing.T) {
	ingestor, _ := newTestIngestor(t)

	payload := []byte(`{"message_id": "never-stored", "event": "delivered"}`)
	result, err := ingestor.Ingest(context.Background(), models.ChannelWhatsApp, payload)
	if err != nil {
		t.Fatalf("unmatched receipt must not error, got: %v", err)
	}
	if result.Matched {
		t.Error("expected unmatched result")
	}
}

func TestIngest_MalformedPayloadIsUnknown(t *testing.T) {
	ingestor, repo := newTestIngestor(t)
	message := sentMessage(t, repo, "wamid-1")

	result, err := ingestor.Ingest(context.Background(), models.ChannelWhatsApp, []byte("<<<definitely not json"))
	if err != nil {
		t.Fatalf("malformed payload must not error, got: %v", err)
	}
	if result.Type != models.WebhookEventUnknown {
		t.Errorf("expected unknown type, got %q", result.Type)
	}

	got, _ := repo.GetByID(context.Background(), message.ID)
	if got.Status != models.MessageStatusSent {
		t.Errorf("malformed payload must not mutate the queue, got %s", got.Status)
	}
}

func TestIngest_ChannelWithoutWebhookCapability(t *testing.T) {
	ingestor, _ := newTestIngestor(t)

	_, err := ingestor.Ingest(context.Background(), models.ChannelSMS, []byte(`{}`))
	if err == nil {
		t.Fatal("expected a capability error")
	}
	if models.KindOf(err) != models.ErrKindCapability {
		t.Errorf("expected capability kind, got %v", err)
	}
}

func TestIngest_UnknownChannel(t *testing.T) {
	ingestor, _ := newTestIngestor(t)

	_, err := ingestor.Ingest(context.Background(), models.Channel("fax"), []byte(`{}`))
	if err == nil {
		t.Fatal("expected resolution error for unknown channel")
	}
}
