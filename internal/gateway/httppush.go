package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eduline/comms-gateway/internal/models"
)

// PushConfig holds the settings for the topic-push adapter
type PushConfig struct {
	Endpoint string
	APIKey   string
}

// PushGateway sends topic notifications to a generic push relay over HTTP.
// The relay acknowledges with a message id and later posts delivery state
// back to the webhook entry point, so the adapter is webhook-capable.
type PushGateway struct {
	cfg    PushConfig
	client *http.Client
}

// NewPushGateway creates the push adapter
func NewPushGateway(cfg PushConfig) (*PushGateway, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, models.ErrConfig("push endpoint is required", nil)
	}

	return &PushGateway{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// Name returns the adapter identifier
func (g *PushGateway) Name() string {
	return "httppush"
}

// Type returns the push channel discriminator
func (g *PushGateway) Type() models.Channel {
	return models.ChannelPush
}

// ValidateRecipient checks the topic token shape
func (g *PushGateway) ValidateRecipient(recipient string) bool {
	return ValidRecipient(models.ChannelPush, recipient)
}

// Capabilities reports webhook support only
func (g *PushGateway) Capabilities() models.CapabilitySet {
	return models.NewCapabilitySet(models.CapabilityWebhooks)
}

// TestConnection probes the relay endpoint
func (g *PushGateway) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, g.cfg.Endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

type pushRequest struct {
	Topic   string            `json:"topic"`
	Message string            `json:"message"`
	Title   string            `json:"title,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

type pushResponse struct {
	MessageID string `json:"messageId"`
}

// Send posts the notification to the relay
func (g *PushGateway) Send(ctx context.Context, recipient, content string, opts SendOptions) SendResult {
	if !g.ValidateRecipient(recipient) {
		return SendResult{
			Success: false,
			Err:     models.ErrInvalidInput(fmt.Sprintf("invalid push topic %q", recipient)),
		}
	}

	body, err := json.Marshal(pushRequest{
		Topic:   recipient,
		Message: content,
		Title:   opts["title"],
	})
	if err != nil {
		return SendResult{Success: false, Err: models.ErrTransport("failed to marshal push request", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return SendResult{Success: false, Err: models.ErrTransport("failed to build push request", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return SendResult{Success: false, Err: models.ErrTransport("push relay unreachable", err)}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode >= http.StatusInternalServerError:
		return SendResult{
			Success: false,
			Err:     models.ErrTransport(fmt.Sprintf("push relay returned %d", resp.StatusCode), nil),
		}
	default:
		return SendResult{
			Success: false,
			Err:     models.ErrProviderRejected(fmt.Sprintf("push relay rejected message: %d body=%q", resp.StatusCode, raw)),
		}
	}

	var pr pushResponse
	if err := json.Unmarshal(raw, &pr); err != nil || pr.MessageID == "" {
		return SendResult{
			Success: false,
			Err:     models.ErrTransport(fmt.Sprintf("invalid relay response body=%q", raw), err),
		}
	}

	return SendResult{
		Success:   true,
		MessageID: pr.MessageID,
		Status:    models.MessageStatusSent,
	}
}

// RegisterWebhook asks the relay to post delivery state to the given URL
func (g *PushGateway) RegisterWebhook(ctx context.Context, url string, events []string) error {
	body, err := json.Marshal(map[string]any{"url": url, "events": events})
	if err != nil {
		return models.ErrTransport("failed to marshal webhook registration", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint+"/webhooks", bytes.NewReader(body))
	if err != nil {
		return models.ErrTransport("failed to build webhook registration", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return models.ErrTransport("push relay unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return models.ErrProviderRejected(fmt.Sprintf("webhook registration rejected: %d", resp.StatusCode))
	}
	return nil
}

// pushCallback is the relay's delivery state payload
type pushCallback struct {
	ID    string `json:"id"`
	State string `json:"state"`
	TS    string `json:"ts,omitempty"`
	Error string `json:"error,omitempty"`
}

// ProcessWebhook normalizes the relay's callback shape. Anything it cannot
// classify comes back as "unknown" with the raw body attached.
func (g *PushGateway) ProcessWebhook(payload []byte) models.WebhookEvent {
	var cb pushCallback
	if err := json.Unmarshal(payload, &cb); err != nil || cb.ID == "" || cb.State == "" {
		return models.WebhookEvent{
			Type: models.WebhookEventUnknown,
			Data: map[string]any{"raw": string(payload)},
		}
	}

	var status string
	switch strings.ToUpper(cb.State) {
	case "DELIVERED":
		status = models.MessageStatusDelivered
	case "SENT", "ACCEPTED":
		status = models.MessageStatusSent
	case "FAILED", "REJECTED":
		status = models.MessageStatusUndeliverable
	default:
		return models.WebhookEvent{
			Type: models.WebhookEventUnknown,
			Data: map[string]any{"raw": string(payload)},
		}
	}

	data := map[string]any{
		"provider_message_id": cb.ID,
		"status":              status,
	}
	// The relay timestamps every callback; it only means delivery time
	// when the state is DELIVERED.
	if cb.TS != "" && status == models.MessageStatusDelivered {
		data["delivered_at"] = cb.TS
	}
	if cb.Error != "" {
		data["error"] = cb.Error
	}

	return models.WebhookEvent{Type: status, Data: data}
}
