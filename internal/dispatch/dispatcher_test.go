package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eduline/comms-gateway/internal/gateway"
	"github.com/eduline/comms-gateway/internal/models"
	"github.com/eduline/comms-gateway/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubGateway gives tests deterministic control over adapter behavior
type stubGateway struct {
	channel   models.Channel
	sendCalls atomic.Int64
	result    gateway.SendResult
	blockSend bool
}

func (g *stubGateway) Send(ctx context.Context, recipient, content string, opts gateway.SendOptions) gateway.SendResult {
	g.sendCalls.Add(1)
	if g.blockSend {
		<-ctx.Done()
		return gateway.SendResult{Success: false, Err: ctx.Err()}
	}
	return g.result
}

func (g *stubGateway) ValidateRecipient(recipient string) bool {
	return gateway.ValidRecipient(g.channel, recipient)
}

func (g *stubGateway) Name() string { return "stub-" + string(g.channel) }

func (g *stubGateway) Type() models.Channel { return g.channel }

func (g *stubGateway) TestConnection(ctx context.Context) bool { return true }

func (g *stubGateway) Capabilities() models.CapabilitySet { return models.NewCapabilitySet() }

func newTestRegistry(t *testing.T, adapters ...gateway.Gateway) *gateway.Registry {
	t.Helper()

	registry := gateway.NewRegistry(testLogger())
	for _, adapter := range adapters {
		registry.Register(adapter)
	}
	return registry
}

func queueMessage(t *testing.T, repo repository.MessageRepository, channel models.Channel, recipient string) *models.Message {
	t.Helper()

	message := &models.Message{
		Recipient: recipient,
		Channel:   channel,
		Content:   "visa interview scheduled",
		Status:    models.MessageStatusQueued,
	}
	if err := repo.Create(context.Background(), message); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return message
}

func TestDispatch_SuccessRecordsProviderID(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	stub := &stubGateway{
		channel: models.ChannelSMS,
		result:  gateway.SendResult{Success: true, MessageID: "prov-42", Status: models.MessageStatusSent},
	}
	d := NewDispatcher(repo, newTestRegistry(t, stub), Options{MaxAttempts: 3}, testLogger())

	message := queueMessage(t, repo, models.ChannelSMS, "+15551234567")
	if err := d.Dispatch(context.Background(), message.ID); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	got, _ := repo.GetByID(context.Background(), message.ID)
	if got.Status != models.MessageStatusSent {
		t.Errorf("expected status sent, got %s", got.Status)
	}
	if got.ProviderMessageID == nil || *got.ProviderMessageID != "prov-42" {
		t.Errorf("expected provider message id prov-42, got %v", got.ProviderMessageID)
	}
	if got.SentAt == nil {
		t.Error("expected sent_at to be set")
	}
	if got.Attempts != 0 {
		t.Errorf("a successful pass must not increment attempts, got %d", got.Attempts)
	}
	if got.LastError != nil {
		t.Errorf("expected last error cleared, got %v", *got.LastError)
	}
}

// A message that fails transport max_attempts times ends failed with
// attempts == max_attempts and is never requeued.
func TestDispatch_TransportFailureRetriesUntilBound(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	stub := &stubGateway{
		channel: models.ChannelSMS,
		result:  gateway.SendResult{Success: false, Err: models.ErrTransport("connection reset", nil)},
	}
	const maxAttempts = 3
	d := NewDispatcher(repo, newTestRegistry(t, stub), Options{MaxAttempts: maxAttempts}, testLogger())

	message := queueMessage(t, repo, models.ChannelSMS, "+15551234567")
	ctx := context.Background()

	for i := 0; i < maxAttempts; i++ {
		if err := d.Dispatch(ctx, message.ID); err != nil {
			t.Fatalf("Dispatch() pass %d error: %v", i+1, err)
		}
	}

	got, _ := repo.GetByID(ctx, message.ID)
	if got.Status != models.MessageStatusFailed {
		t.Fatalf("expected terminal failed, got %s", got.Status)
	}
	if got.Attempts != maxAttempts {
		t.Errorf("expected attempts == %d, got %d", maxAttempts, got.Attempts)
	}
	if stub.sendCalls.Load() != maxAttempts {
		t.Errorf("expected %d transport calls, got %d", maxAttempts, stub.sendCalls.Load())
	}

	// Terminal messages are left alone by further dispatch passes
	if err := d.Dispatch(ctx, message.ID); err != nil {
		t.Fatalf("Dispatch() on terminal message error: %v", err)
	}
	if stub.sendCalls.Load() != maxAttempts {
		t.Error("terminal message must never be re-dispatched")
	}
}

func TestDispatch_ProviderRejectionIsUndeliverable(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	stub := &stubGateway{
		channel: models.ChannelWhatsApp,
		result:  gateway.SendResult{Success: false, Err: models.ErrProviderRejected("recipient not on whatsapp")},
	}
	d := NewDispatcher(repo, newTestRegistry(t, stub), Options{MaxAttempts: 3}, testLogger())

	message := queueMessage(t, repo, models.ChannelWhatsApp, "+15551234567")
	if err := d.Dispatch(context.Background(), message.ID); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	got, _ := repo.GetByID(context.Background(), message.ID)
	if got.Status != models.MessageStatusUndeliverable {
		t.Errorf("expected undeliverable, got %s", got.Status)
	}
	if stub.sendCalls.Load() != 1 {
		t.Errorf("provider rejections must not retry, got %d calls", stub.sendCalls.Load())
	}
}

func TestDispatch_TimeoutFailsAndStaysRetryable(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	stub := &stubGateway{channel: models.ChannelSMS, blockSend: true}
	d := NewDispatcher(repo, newTestRegistry(t, stub), Options{
		MaxAttempts: 3,
		SendTimeout: 20 * time.Millisecond,
	}, testLogger())

	message := queueMessage(t, repo, models.ChannelSMS, "+15551234567")
	if err := d.Dispatch(context.Background(), message.ID); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	got, _ := repo.GetByID(context.Background(), message.ID)
	if got.Status != models.MessageStatusQueued {
		t.Fatalf("expected timeout failure to requeue, got %s", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("expected 1 attempt after timeout, got %d", got.Attempts)
	}
	if got.LastError == nil {
		t.Fatal("expected a timeout error message")
	}
}

// With N concurrent workers and one queued message, exactly one worker
// may call the adapter.
func TestDispatch_ConcurrentWorkersSingleSend(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	stub := &stubGateway{
		channel: models.ChannelSMS,
		result:  gateway.SendResult{Success: true, MessageID: "prov-1", Status: models.MessageStatusSent},
	}
	d := NewDispatcher(repo, newTestRegistry(t, stub), Options{MaxAttempts: 3}, testLogger())

	message := queueMessage(t, repo, models.ChannelSMS, "+15551234567")

	const workers = 12
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Dispatch(context.Background(), message.ID); err != nil {
				t.Errorf("Dispatch() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls := stub.sendCalls.Load(); calls != 1 {
		t.Fatalf("expected exactly 1 adapter send, got %d", calls)
	}
}

// A queued message scheduled for the future must be left untouched by a
// dispatch run before its time.
func TestSweep_SkipsScheduledMessages(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	stub := &stubGateway{
		channel: models.ChannelSMS,
		result:  gateway.SendResult{Success: true, MessageID: "prov-1", Status: models.MessageStatusSent},
	}
	d := NewDispatcher(repo, newTestRegistry(t, stub), Options{MaxAttempts: 3}, testLogger())
	ctx := context.Background()

	inAnHour := time.Now().Add(time.Hour)
	scheduled := &models.Message{
		Recipient:   "+15551234567",
		Channel:     models.ChannelSMS,
		Content:     "fee reminder",
		Status:      models.MessageStatusQueued,
		ScheduledAt: &inAnHour,
	}
	if err := repo.Create(ctx, scheduled); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := d.Sweep(ctx, 10); err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}

	got, _ := repo.GetByID(ctx, scheduled.ID)
	if got.Status != models.MessageStatusQueued {
		t.Errorf("expected scheduled message to stay queued, got %s", got.Status)
	}
	if got.Attempts != 0 {
		t.Errorf("expected scheduled message untouched, attempts = %d", got.Attempts)
	}
	if stub.sendCalls.Load() != 0 {
		t.Errorf("expected no adapter call before scheduled time, got %d", stub.sendCalls.Load())
	}
}

func TestSweep_DispatchesDueMessages(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	stub := &stubGateway{
		channel: models.ChannelSMS,
		result:  gateway.SendResult{Success: true, MessageID: "prov-1", Status: models.MessageStatusSent},
	}
	d := NewDispatcher(repo, newTestRegistry(t, stub), Options{MaxAttempts: 3}, testLogger())
	ctx := context.Background()

	first := queueMessage(t, repo, models.ChannelSMS, "+15551234567")
	second := queueMessage(t, repo, models.ChannelSMS, "+15557654321")

	if err := d.Sweep(ctx, 10); err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}

	for _, message := range []*models.Message{first, second} {
		got, _ := repo.GetByID(ctx, message.ID)
		if got.Status != models.MessageStatusSent {
			t.Errorf("message %d: expected sent, got %s", message.ID, got.Status)
		}
	}
}

// A message claimed by a worker that died is stranded in sending; the
// sweep returns it to the queue once it has aged past the stale bound and
// delivers it.
func TestSweep_ReclaimsStrandedSending(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	stub := &stubGateway{
		channel: models.ChannelSMS,
		result:  gateway.SendResult{Success: true, MessageID: "prov-1", Status: models.MessageStatusSent},
	}
	d := NewDispatcher(repo, newTestRegistry(t, stub), Options{
		MaxAttempts: 3,
		StaleAfter:  time.Millisecond,
	}, testLogger())
	ctx := context.Background()

	message := queueMessage(t, repo, models.ChannelSMS, "+15551234567")
	if claimed, _ := repo.ClaimForSending(ctx, message.ID); !claimed {
		t.Fatal("expected claim to succeed")
	}
	time.Sleep(10 * time.Millisecond)

	if err := d.Sweep(ctx, 10); err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}

	got, _ := repo.GetByID(ctx, message.ID)
	if got.Status != models.MessageStatusSent {
		t.Errorf("expected stranded message reclaimed and sent, got %s", got.Status)
	}
	if stub.sendCalls.Load() != 1 {
		t.Errorf("expected 1 adapter send after reclaim, got %d", stub.sendCalls.Load())
	}
}

// A freshly claimed message must not be reclaimed out from under its worker
func TestSweep_LeavesFreshSendingAlone(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	stub := &stubGateway{
		channel: models.ChannelSMS,
		result:  gateway.SendResult{Success: true, MessageID: "prov-1", Status: models.MessageStatusSent},
	}
	d := NewDispatcher(repo, newTestRegistry(t, stub), Options{
		MaxAttempts: 3,
		StaleAfter:  time.Hour,
	}, testLogger())
	ctx := context.Background()

	message := queueMessage(t, repo, models.ChannelSMS, "+15551234567")
	if claimed, _ := repo.ClaimForSending(ctx, message.ID); !claimed {
		t.Fatal("expected claim to succeed")
	}

	if err := d.Sweep(ctx, 10); err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}

	got, _ := repo.GetByID(ctx, message.ID)
	if got.Status != models.MessageStatusSending {
		t.Errorf("expected in-flight message untouched, got %s", got.Status)
	}
	if stub.sendCalls.Load() != 0 {
		t.Errorf("expected no adapter call, got %d", stub.sendCalls.Load())
	}
}

func TestRecipientSuffix(t *testing.T) {
	if got := RecipientSuffix("+15551234567"); got != "***4567" {
		t.Errorf("RecipientSuffix() = %q", got)
	}
	if got := RecipientSuffix("abc"); got != "***" {
		t.Errorf("RecipientSuffix() short input = %q", got)
	}
}
