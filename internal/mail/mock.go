package mail

import (
	"context"
	"log/slog"

	"github.com/trailintercasteller/mailrelay"
)

// MockMailer logs messages instead of sending them. Used in development
// and as the default when no provider is configured.
type MockMailer struct {
	logger *slog.Logger
}

// NewMockMailer creates a log-only mailer.
func NewMockMailer(logger *slog.Logger) *MockMailer {
	return &MockMailer{logger: logger}
}

// Name returns the provider name.
func (m *MockMailer) Name() string {
	return "mock"
}

// Send logs the message and reports success.
func (m *MockMailer) Send(ctx context.Context, email *mailrelay.OutgoingEmail) (*mailrelay.SendResult, error) {
	m.logger.Info("MOCK EMAIL: message accepted",
		slog.String("to", email.To),
		slog.String("subject", email.Subject),
		slog.String("message_id", email.MessageID),
		slog.Int("attachments", len(email.Attachments)),
		slog.Int64("attachment_bytes", email.TotalAttachmentBytes()),
	)
	return &mailrelay.SendResult{MessageID: email.MessageID}, nil
}
