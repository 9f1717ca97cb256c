package models

import "time"

// Channel identifies the logical transport a message is sent through.
type Channel string

// Supported channel types
const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelViber    Channel = "viber"
	ChannelEmail    Channel = "email"
	ChannelSMPP     Channel = "smpp"
	ChannelPush     Channel = "push"
)

// IsValidChannel checks if the channel is one of the supported types
func IsValidChannel(channel Channel) bool {
	switch channel {
	case ChannelSMS, ChannelWhatsApp, ChannelViber, ChannelEmail, ChannelSMPP, ChannelPush:
		return true
	default:
		return false
	}
}

// Message status constants
const (
	MessageStatusPending       = "pending"
	MessageStatusQueued        = "queued"
	MessageStatusSending       = "sending"
	MessageStatusSent          = "sent"
	MessageStatusDelivered     = "delivered"
	MessageStatusFailed        = "failed"
	MessageStatusUndeliverable = "undeliverable"
)

// statusRank orders statuses by state-machine precedence. A receipt may only
// move a message forward in this ordering; a stale "sent" update can never
// overwrite "delivered".
var statusRank = map[string]int{
	MessageStatusPending:       0,
	MessageStatusQueued:        1,
	MessageStatusSending:       2,
	MessageStatusSent:          3,
	MessageStatusFailed:        4,
	MessageStatusDelivered:     5,
	MessageStatusUndeliverable: 5,
}

// StatusRank returns the precedence rank of a status, or -1 for unknown values
func StatusRank(status string) int {
	rank, ok := statusRank[status]
	if !ok {
		return -1
	}
	return rank
}

// IsValidMessageStatus checks if the message status is valid
func IsValidMessageStatus(status string) bool {
	_, ok := statusRank[status]
	return ok
}

// IsTerminalStatus reports whether a status permits no further transitions.
// A failed message is terminal only once its attempts are exhausted, which
// the dispatcher decides; delivered and undeliverable are always terminal.
func IsTerminalStatus(status string) bool {
	return status == MessageStatusDelivered || status == MessageStatusUndeliverable
}

// Message represents one outbound communication in the delivery queue
type Message struct {
	ID                int64             `json:"id"`
	Recipient         string            `json:"recipient"`
	Channel           Channel           `json:"channel"`
	Content           string            `json:"content"`
	Options           map[string]string `json:"options,omitempty"`
	Status            string            `json:"status"`
	ProviderMessageID *string           `json:"provider_message_id,omitempty"`
	Attempts          int               `json:"attempts"`
	LastError         *string           `json:"last_error,omitempty"`
	ScheduledAt       *time.Time        `json:"scheduled_at,omitempty"`
	SentAt            *time.Time        `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time        `json:"delivered_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// CanRetry checks if a failed message is still eligible for another attempt
func (m *Message) CanRetry(maxAttempts int) bool {
	return m.Status == MessageStatusFailed && m.Attempts < maxAttempts
}

// IsDue reports whether the message is eligible for dispatch at the given time
func (m *Message) IsDue(now time.Time) bool {
	if m.Status != MessageStatusQueued {
		return false
	}
	return m.ScheduledAt == nil || !m.ScheduledAt.After(now)
}

// MessageFilter holds filtering options for listing messages
type MessageFilter struct {
	Channel  Channel
	Status   string
	Page     int
	PageSize int
}

// ReceiptUpdate is a provider delivery receipt normalized into the internal
// status model, ready to be applied to the delivery queue.
type ReceiptUpdate struct {
	ProviderMessageID string     `json:"provider_message_id"`
	Status            string     `json:"status"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	Error             *string    `json:"error,omitempty"`
}

// DispatchJob represents a job queued for the dispatch worker
type DispatchJob struct {
	MessageID      int64  `json:"message_id"`
	IdempotencyKey string `json:"idempotency_key"`
}
