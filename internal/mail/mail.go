// Package mail provides the outbound Mailer implementations: a pooled SMTP
// transport, Postmark and SES API backends, and a log-only mock for
// development. The relay handler only sees the mailrelay.Mailer interface.
package mail

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/trailintercasteller/mailrelay"
)

// Config holds configuration for the mail providers.
type Config struct {
	// Provider selects the backend: "smtp", "postmark", "ses" or "mock".
	Provider string

	// Sender is the identity outbound mail is sent as.
	Sender mailrelay.SenderIdentity

	// SMTP settings
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	SMTPMaxConnections int           // concurrent connection cap
	SMTPMaxMessages    int           // messages per connection before redial
	SMTPMinInterval    time.Duration // spacing between messages

	// Postmark settings
	PostmarkServerToken  string
	PostmarkAccountToken string

	// SES settings
	SESRegion          string
	SESAccessKeyID     string
	SESSecretAccessKey string
}

// New creates a Mailer for the configured provider.
func New(logger *slog.Logger, cfg Config) (mailrelay.Mailer, error) {
	switch cfg.Provider {
	case "smtp":
		return NewSMTPMailer(logger, cfg), nil
	case "postmark":
		return NewPostmarkMailer(logger, cfg), nil
	case "ses":
		return NewSESMailer(logger, cfg)
	case "mock", "":
		return NewMockMailer(logger), nil
	default:
		return nil, fmt.Errorf("unknown mail provider: %q", cfg.Provider)
	}
}

// formatFrom renders the sender identity as "Name <address>".
func formatFrom(sender mailrelay.SenderIdentity) string {
	if sender.Name == "" {
		return sender.Address
	}
	return fmt.Sprintf("%s <%s>", sender.Name, sender.Address)
}
