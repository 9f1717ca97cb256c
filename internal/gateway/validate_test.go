package gateway

import (
	"testing"

	"github.com/eduline/comms-gateway/internal/models"
)

func TestValidRecipient(t *testing.T) {
	tests := []struct {
		name      string
		channel   models.Channel
		recipient string
		want      bool
	}{
		{"sms e164", models.ChannelSMS, "+15551234567", true},
		{"sms missing plus", models.ChannelSMS, "15551234567", false},
		{"sms leading zero", models.ChannelSMS, "+05551234567", false},
		{"sms letters", models.ChannelSMS, "+1555ABC4567", false},
		{"sms empty", models.ChannelSMS, "", false},
		{"sms whitespace only", models.ChannelSMS, "   ", false},
		{"whatsapp e164", models.ChannelWhatsApp, "+447911123456", true},
		{"viber e164", models.ChannelViber, "+33612345678", true},
		{"smpp e164", models.ChannelSMPP, "+4915112345678", true},
		{"smpp too long", models.ChannelSMPP, "+123456789012345678", false},
		{"email plain", models.ChannelEmail, "student@example.com", true},
		{"email with display name", models.ChannelEmail, "Student <student@example.com>", false},
		{"email missing domain", models.ChannelEmail, "student@", false},
		{"email empty", models.ChannelEmail, "", false},
		{"push topic", models.ChannelPush, "leads/visa-updates", true},
		{"push topic dotted", models.ChannelPush, "org.branch.tasks", true},
		{"push topic with spaces", models.ChannelPush, "visa updates", false},
		{"unknown channel", models.Channel("fax"), "+15551234567", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidRecipient(tt.channel, tt.recipient); got != tt.want {
				t.Errorf("ValidRecipient(%q, %q) = %v, want %v", tt.channel, tt.recipient, got, tt.want)
			}
		})
	}
}
