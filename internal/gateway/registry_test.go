package gateway

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/eduline/comms-gateway/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_ResolveRegisteredAdapter(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(NewMockGateway("mock-sms", models.ChannelSMS, 1.0))

	adapter, err := registry.Resolve(models.ChannelSMS)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if adapter.Name() != "mock-sms" {
		t.Errorf("expected adapter mock-sms, got %s", adapter.Name())
	}
}

// Unknown channels and construction failures must be distinguishable
func TestRegistry_ResolveErrorKinds(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(NewMockGateway("mock-sms", models.ChannelSMS, 1.0))
	registry.RegisterFailure(models.ChannelEmail, models.ErrConfig("smtp host is required", nil))

	_, err := registry.Resolve(models.Channel("carrier-pigeon"))
	if !errors.Is(err, models.ErrUnknownChannel) {
		t.Errorf("expected ErrUnknownChannel, got %v", err)
	}
	var configErr *ChannelConfigError
	if errors.As(err, &configErr) {
		t.Error("unknown channel must not look like a construction failure")
	}

	_, err = registry.Resolve(models.ChannelEmail)
	if !errors.As(err, &configErr) {
		t.Fatalf("expected ChannelConfigError, got %v", err)
	}
	if errors.Is(err, models.ErrUnknownChannel) {
		t.Error("construction failure must not look like an unknown channel")
	}
	if configErr.Channel != models.ChannelEmail {
		t.Errorf("expected channel email in error, got %s", configErr.Channel)
	}
}

func TestRegistry_ListIncludesFailedChannels(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(NewMockRichGateway("mock-whatsapp", models.ChannelWhatsApp, 1.0))
	registry.RegisterFailure(models.ChannelEmail, models.ErrConfig("smtp host is required", nil))

	infos := registry.List()
	if len(infos) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(infos))
	}

	byChannel := make(map[models.Channel]ChannelInfo, len(infos))
	for _, info := range infos {
		byChannel[info.Channel] = info
	}

	whatsapp := byChannel[models.ChannelWhatsApp]
	if !whatsapp.Configured {
		t.Error("expected whatsapp to be configured")
	}
	if len(whatsapp.Capabilities) != 5 {
		t.Errorf("expected 5 capabilities for rich mock, got %v", whatsapp.Capabilities)
	}

	email := byChannel[models.ChannelEmail]
	if email.Configured {
		t.Error("expected email to be unconfigured")
	}
}

func TestRegistry_RegisterReplacesPrevious(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.RegisterFailure(models.ChannelSMS, models.ErrConfig("bad credentials", nil))
	registry.Register(NewMockGateway("mock-sms", models.ChannelSMS, 1.0))

	adapter, err := registry.Resolve(models.ChannelSMS)
	if err != nil {
		t.Fatalf("Resolve() error after re-register: %v", err)
	}
	if adapter.Name() != "mock-sms" {
		t.Errorf("expected mock-sms, got %s", adapter.Name())
	}
}
