package gateway

import (
	"context"

	"github.com/eduline/comms-gateway/internal/models"
)

// SendResult is the structured outcome of an adapter send operation.
// Provider-side failures are reported through Err and Success, never by
// panicking; only environment-level problems (missing configuration) are
// surfaced before a send is attempted.
type SendResult struct {
	Success   bool
	MessageID string
	Status    string
	Err       error
}

// SendOptions carries channel-specific parameters for a send
type SendOptions map[string]string

// Gateway is the contract every provider adapter implements, uniformly
// regardless of backend. Optional behaviors (media, templates, interactive
// messages, balance queries, webhooks) are separate interfaces; an adapter's
// Capabilities must report exactly the optional interfaces it implements.
type Gateway interface {
	// Send attempts immediate synchronous delivery. The recipient is
	// validated before any transport call; an invalid recipient fails fast
	// without consuming provider quota.
	Send(ctx context.Context, recipient, content string, opts SendOptions) SendResult

	// ValidateRecipient format-checks a recipient per channel rules.
	// Pure, no I/O.
	ValidateRecipient(recipient string) bool

	// Name returns a stable adapter identifier for logging and reporting
	Name() string

	// Type returns the channel discriminator this adapter serves
	Type() models.Channel

	// TestConnection performs a lightweight reachability and credential
	// check. Used by health diagnostics, never by the send path.
	TestConnection(ctx context.Context) bool

	// Capabilities returns the adapter's fixed capability set
	Capabilities() models.CapabilitySet
}

// MediaSender is implemented by adapters that can deliver media attachments
type MediaSender interface {
	SendMedia(ctx context.Context, recipient, mediaURL, caption, mediaType string) SendResult
	SupportedMediaTypes() []string
}

// TemplateSender is implemented by adapters that support pre-approved
// message templates.
type TemplateSender interface {
	SendTemplate(ctx context.Context, recipient, templateName string, variables map[string]string, language string) SendResult
	Templates(ctx context.Context) ([]string, error)
}

// Button is one interactive reply option
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// InteractiveSender is implemented by adapters that support buttons and
// reply keyboards.
type InteractiveSender interface {
	SendWithButtons(ctx context.Context, recipient, content string, buttons []Button) SendResult
	SendWithKeyboard(ctx context.Context, recipient, content string, keys []string) SendResult
}

// BalanceChecker is implemented by adapters whose provider exposes an
// account balance query.
type BalanceChecker interface {
	Balance(ctx context.Context) (models.Balance, error)
}

// WebhookHandler is implemented by adapters whose provider pushes delivery
// receipts or inbound events to a callback URL.
type WebhookHandler interface {
	RegisterWebhook(ctx context.Context, url string, events []string) error

	// ProcessWebhook classifies a raw provider payload. It must tolerate
	// arbitrary input: malformed payloads yield a WebhookEvent with
	// Type "unknown" carrying the raw body, never an error.
	ProcessWebhook(payload []byte) models.WebhookEvent
}

// DetectCapabilities derives the capability set from the optional
// interfaces the adapter actually implements. Registry consumers rely on
// this matching Gateway.Capabilities exactly, so feature negotiation never
// needs type inspection.
func DetectCapabilities(g Gateway) models.CapabilitySet {
	set := models.NewCapabilitySet()
	if _, ok := g.(MediaSender); ok {
		set[models.CapabilityMedia] = struct{}{}
	}
	if _, ok := g.(TemplateSender); ok {
		set[models.CapabilityTemplates] = struct{}{}
	}
	if _, ok := g.(InteractiveSender); ok {
		set[models.CapabilityInteractive] = struct{}{}
	}
	if _, ok := g.(BalanceChecker); ok {
		set[models.CapabilityBalance] = struct{}{}
	}
	if _, ok := g.(WebhookHandler); ok {
		set[models.CapabilityWebhooks] = struct{}{}
	}
	return set
}
