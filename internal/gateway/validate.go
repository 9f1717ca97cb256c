package gateway

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/eduline/comms-gateway/internal/models"
)

var (
	e164Pattern  = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	topicPattern = regexp.MustCompile(`^[A-Za-z0-9_.~/-]{1,256}$`)
)

// ValidRecipient format-checks a recipient for the given channel. Phone
// channels require E.164, email requires an RFC 5322 address without a
// display name, push requires a topic token. Pure, no I/O.
func ValidRecipient(channel models.Channel, recipient string) bool {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return false
	}

	switch channel {
	case models.ChannelSMS, models.ChannelWhatsApp, models.ChannelViber, models.ChannelSMPP:
		return e164Pattern.MatchString(recipient)
	case models.ChannelEmail:
		addr, err := mail.ParseAddress(recipient)
		if err != nil {
			return false
		}
		return addr.Name == "" && addr.Address == recipient
	case models.ChannelPush:
		return topicPattern.MatchString(recipient)
	default:
		return false
	}
}
