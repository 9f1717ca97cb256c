package gateway

import (
	"fmt"
	"log/slog"

	"github.com/eduline/comms-gateway/internal/config"
	"github.com/eduline/comms-gateway/internal/models"
)

// BuildRegistry constructs the registry from channel configuration.
// Construction failures are recorded per channel instead of aborting, so
// one misconfigured provider never takes down the rest; resolving the
// broken channel surfaces the stored error.
func BuildRegistry(cfg config.ChannelsConfig, logger *slog.Logger) *Registry {
	registry := NewRegistry(logger)

	for _, name := range cfg.MockChannels {
		channel := models.Channel(name)
		if !models.IsValidChannel(channel) {
			registry.RegisterFailure(channel, models.ErrConfig(fmt.Sprintf("unknown mock channel %q", name), nil))
			continue
		}
		// WhatsApp-style channels get the full capability profile, plain
		// aggregator channels the bare contract.
		if channel == models.ChannelWhatsApp || channel == models.ChannelViber {
			registry.Register(NewMockRichGateway("mock-"+name, channel, 0.95))
		} else {
			registry.Register(NewMockGateway("mock-"+name, channel, 0.95))
		}
	}

	if cfg.SMTP.Host != "" {
		smtp, err := NewSMTPGateway(SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			registry.RegisterFailure(models.ChannelEmail, err)
		} else {
			registry.Register(smtp)
		}
	}

	if cfg.Push.Endpoint != "" {
		push, err := NewPushGateway(PushConfig{
			Endpoint: cfg.Push.Endpoint,
			APIKey:   cfg.Push.APIKey,
		})
		if err != nil {
			registry.RegisterFailure(models.ChannelPush, err)
		} else {
			registry.Register(push)
		}
	}

	return registry
}
