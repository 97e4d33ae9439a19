package mock

import (
	"context"

	"github.com/trailintercasteller/mailrelay"
)

// Compile-time interface check
var _ mailrelay.Mailer = (*Mailer)(nil)

// Mailer is a mock implementation of mailrelay.Mailer.
type Mailer struct {
	SendFn func(ctx context.Context, email *mailrelay.OutgoingEmail) (*mailrelay.SendResult, error)
	NameFn func() string

	// Tracking sent emails for assertions
	SentEmails []*mailrelay.OutgoingEmail
}

func (m *Mailer) Send(ctx context.Context, email *mailrelay.OutgoingEmail) (*mailrelay.SendResult, error) {
	m.SentEmails = append(m.SentEmails, email)
	if m.SendFn != nil {
		return m.SendFn(ctx, email)
	}
	return &mailrelay.SendResult{MessageID: email.MessageID}, nil
}

func (m *Mailer) Name() string {
	if m.NameFn != nil {
		return m.NameFn()
	}
	return "mock"
}

// Reset clears all sent emails.
func (m *Mailer) Reset() {
	m.SentEmails = nil
}

// LastEmail returns the last sent email, or nil if none.
func (m *Mailer) LastEmail() *mailrelay.OutgoingEmail {
	if len(m.SentEmails) == 0 {
		return nil
	}
	return m.SentEmails[len(m.SentEmails)-1]
}
