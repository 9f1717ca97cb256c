package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/eduline/comms-gateway/internal/models"
)

// MockGateway simulates a capability-free provider backend. Used by tests
// and as the default adapter in development wiring. Transport calls are
// counted so tests can assert that validation failures short-circuit
// before any provider traffic.
type MockGateway struct {
	name        string
	channel     models.Channel
	successRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
	failWith    error

	transportCalls atomic.Int64
}

// NewMockGateway creates a mock adapter for the given channel
// successRate: probability of success (0.0 to 1.0), default 1.0
func NewMockGateway(name string, channel models.Channel, successRate float64) *MockGateway {
	if successRate <= 0 || successRate > 1.0 {
		successRate = 1.0
	}

	return &MockGateway{
		name:        name,
		channel:     channel,
		successRate: successRate,
		minDelay:    time.Millisecond,
		maxDelay:    5 * time.Millisecond,
	}
}

// FailWith forces every transport attempt to fail with the given error.
// Overrides the success rate; pass nil to restore random behavior.
func (g *MockGateway) FailWith(err error) {
	g.failWith = err
}

// TransportCalls returns how many times the simulated transport was invoked
func (g *MockGateway) TransportCalls() int64 {
	return g.transportCalls.Load()
}

// Name returns the adapter identifier
func (g *MockGateway) Name() string {
	return g.name
}

// Type returns the channel this adapter serves
func (g *MockGateway) Type() models.Channel {
	return g.channel
}

// ValidateRecipient format-checks the recipient per channel rules
func (g *MockGateway) ValidateRecipient(recipient string) bool {
	return ValidRecipient(g.channel, recipient)
}

// TestConnection always succeeds for the mock backend
func (g *MockGateway) TestConnection(ctx context.Context) bool {
	return ctx.Err() == nil
}

// Capabilities returns the empty set; the plain mock implements no
// optional interfaces.
func (g *MockGateway) Capabilities() models.CapabilitySet {
	return models.NewCapabilitySet()
}

// Send simulates a provider submission
func (g *MockGateway) Send(ctx context.Context, recipient, content string, opts SendOptions) SendResult {
	if !g.ValidateRecipient(recipient) {
		return SendResult{
			Success: false,
			Err:     models.ErrInvalidInput(fmt.Sprintf("invalid recipient for channel %s", g.channel)),
		}
	}
	return g.transmit(ctx)
}

// transmit simulates network latency and random transport failures
func (g *MockGateway) transmit(ctx context.Context) SendResult {
	g.transportCalls.Add(1)

	delay := g.minDelay + time.Duration(rand.Int63n(int64(g.maxDelay-g.minDelay)))
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return SendResult{
			Success: false,
			Err:     models.ErrTransport("send canceled", ctx.Err()),
		}
	}

	if g.failWith != nil {
		return SendResult{Success: false, Err: g.failWith}
	}

	if rand.Float64() > g.successRate {
		return SendResult{
			Success: false,
			Err:     models.ErrTransport("simulated network error", nil),
		}
	}

	return SendResult{
		Success:   true,
		MessageID: uuid.NewString(),
		Status:    models.MessageStatusSent,
	}
}

// MockRichGateway is a mock adapter that implements every optional
// capability interface. Its webhook parser understands the canonical
// receipt shape used throughout the tests.
type MockRichGateway struct {
	*MockGateway

	templates  []string
	mediaTypes []string
}

// NewMockRichGateway creates a fully capable mock adapter
func NewMockRichGateway(name string, channel models.Channel, successRate float64) *MockRichGateway {
	return &MockRichGateway{
		MockGateway: NewMockGateway(name, channel, successRate),
		templates:   []string{"appointment_reminder", "visa_status_update", "payment_due"},
		mediaTypes:  []string{"image", "document", "video"},
	}
}

// Capabilities reports the full capability set
func (g *MockRichGateway) Capabilities() models.CapabilitySet {
	return models.NewCapabilitySet(
		models.CapabilityMedia,
		models.CapabilityTemplates,
		models.CapabilityInteractive,
		models.CapabilityBalance,
		models.CapabilityWebhooks,
	)
}

// SupportedMediaTypes lists the media types this mock accepts
func (g *MockRichGateway) SupportedMediaTypes() []string {
	return g.mediaTypes
}

// SendMedia simulates a media submission
func (g *MockRichGateway) SendMedia(ctx context.Context, recipient, mediaURL, caption, mediaType string) SendResult {
	if !g.ValidateRecipient(recipient) {
		return SendResult{
			Success: false,
			Err:     models.ErrInvalidInput(fmt.Sprintf("invalid recipient for channel %s", g.channel)),
		}
	}

	supported := false
	for _, mt := range g.mediaTypes {
		if mt == mediaType {
			supported = true
			break
		}
	}
	if !supported {
		return SendResult{
			Success: false,
			Err:     models.ErrInvalidInput(fmt.Sprintf("unsupported media type %q", mediaType)),
		}
	}

	return g.transmit(ctx)
}

// Templates lists the provider-approved template names
func (g *MockRichGateway) Templates(ctx context.Context) ([]string, error) {
	return append([]string(nil), g.templates...), nil
}

// SendTemplate simulates a templated submission
func (g *MockRichGateway) SendTemplate(ctx context.Context, recipient, templateName string, variables map[string]string, language string) SendResult {
	if !g.ValidateRecipient(recipient) {
		return SendResult{
			Success: false,
			Err:     models.ErrInvalidInput(fmt.Sprintf("invalid recipient for channel %s", g.channel)),
		}
	}

	known := false
	for _, name := range g.templates {
		if name == templateName {
			known = true
			break
		}
	}
	if !known {
		return SendResult{
			Success: false,
			Err:     models.ErrProviderRejected(fmt.Sprintf("unknown template %q", templateName)),
		}
	}

	return g.transmit(ctx)
}

// SendWithButtons simulates an interactive submission with reply buttons
func (g *MockRichGateway) SendWithButtons(ctx context.Context, recipient, content string, buttons []Button) SendResult {
	if len(buttons) == 0 {
		return SendResult{
			Success: false,
			Err:     models.ErrInvalidInput("buttons must not be empty"),
		}
	}
	if !g.ValidateRecipient(recipient) {
		return SendResult{
			Success: false,
			Err:     models.ErrInvalidInput(fmt.Sprintf("invalid recipient for channel %s", g.channel)),
		}
	}
	return g.transmit(ctx)
}

// SendWithKeyboard simulates an interactive submission with a reply keyboard
func (g *MockRichGateway) SendWithKeyboard(ctx context.Context, recipient, content string, keys []string) SendResult {
	if len(keys) == 0 {
		return SendResult{
			Success: false,
			Err:     models.ErrInvalidInput("keyboard keys must not be empty"),
		}
	}
	if !g.ValidateRecipient(recipient) {
		return SendResult{
			Success: false,
			Err:     models.ErrInvalidInput(fmt.Sprintf("invalid recipient for channel %s", g.channel)),
		}
	}
	return g.transmit(ctx)
}

// Balance returns a fixed mock balance
func (g *MockRichGateway) Balance(ctx context.Context) (models.Balance, error) {
	credits := int64(4200)
	return models.Balance{Balance: 42.00, Currency: "USD", Credits: &credits}, nil
}

// RegisterWebhook records nothing for the mock backend
func (g *MockRichGateway) RegisterWebhook(ctx context.Context, url string, events []string) error {
	return nil
}

// mockReceipt is the canonical webhook payload shape the mock understands
type mockReceipt struct {
	MessageID   string `json:"message_id"`
	Event       string `json:"event"`
	DeliveredAt string `json:"delivered_at,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// ProcessWebhook classifies a raw payload. Malformed or unrecognized input
// yields an "unknown" event carrying the raw body, never an error.
func (g *MockRichGateway) ProcessWebhook(payload []byte) models.WebhookEvent {
	var receipt mockReceipt
	if err := json.Unmarshal(payload, &receipt); err != nil || receipt.MessageID == "" || receipt.Event == "" {
		return models.WebhookEvent{
			Type: models.WebhookEventUnknown,
			Data: map[string]any{"raw": string(payload)},
		}
	}

	data := map[string]any{
		"provider_message_id": receipt.MessageID,
		"status":              receipt.Event,
	}
	if receipt.DeliveredAt != "" {
		data["delivered_at"] = receipt.DeliveredAt
	}
	if receipt.Reason != "" {
		data["error"] = receipt.Reason
	}

	return models.WebhookEvent{Type: receipt.Event, Data: data}
}
