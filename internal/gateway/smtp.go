package gateway

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eduline/comms-gateway/internal/models"
)

// SMTPConfig holds the settings for the email adapter
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPGateway delivers email through a plain SMTP relay. SMTP assigns no
// provider message id, so one is generated locally on acceptance.
type SMTPGateway struct {
	cfg  SMTPConfig
	auth smtp.Auth
}

// NewSMTPGateway creates the email adapter. Missing host or sender address
// is a configuration error, surfaced at registry construction.
func NewSMTPGateway(cfg SMTPConfig) (*SMTPGateway, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, models.ErrConfig("smtp host is required", nil)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, models.ErrConfig(fmt.Sprintf("invalid smtp port %d", cfg.Port), nil)
	}
	if !ValidRecipient(models.ChannelEmail, cfg.From) {
		return nil, models.ErrConfig(fmt.Sprintf("invalid smtp sender address %q", cfg.From), nil)
	}

	g := &SMTPGateway{cfg: cfg}
	if cfg.Username != "" {
		g.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return g, nil
}

// Name returns the adapter identifier
func (g *SMTPGateway) Name() string {
	return "smtp"
}

// Type returns the email channel discriminator
func (g *SMTPGateway) Type() models.Channel {
	return models.ChannelEmail
}

// ValidateRecipient checks the address against RFC 5322 shape
func (g *SMTPGateway) ValidateRecipient(recipient string) bool {
	return ValidRecipient(models.ChannelEmail, recipient)
}

// Capabilities returns the empty set; plain SMTP supports none of the
// optional behaviors.
func (g *SMTPGateway) Capabilities() models.CapabilitySet {
	return models.NewCapabilitySet()
}

// TestConnection dials the relay without sending anything
func (g *SMTPGateway) TestConnection(ctx context.Context) bool {
	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", g.addr())
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Send submits the message to the relay
func (g *SMTPGateway) Send(ctx context.Context, recipient, content string, opts SendOptions) SendResult {
	if !g.ValidateRecipient(recipient) {
		return SendResult{
			Success: false,
			Err:     models.ErrInvalidInput(fmt.Sprintf("invalid email recipient %q", recipient)),
		}
	}

	subject := opts["subject"]
	if subject == "" {
		subject = "Notification"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", g.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(content)

	if err := smtp.SendMail(g.addr(), g.auth, g.cfg.From, []string{recipient}, []byte(b.String())); err != nil {
		return SendResult{
			Success: false,
			Err:     models.ErrTransport("smtp send failed", err),
		}
	}

	return SendResult{
		Success:   true,
		MessageID: uuid.NewString(),
		Status:    models.MessageStatusSent,
	}
}

func (g *SMTPGateway) addr() string {
	return fmt.Sprintf("%s:%d", g.cfg.Host, g.cfg.Port)
}
