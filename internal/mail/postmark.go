package mail

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/keighl/postmark"

	"github.com/trailintercasteller/mailrelay"
)

// PostmarkMailer sends mail through the Postmark API.
type PostmarkMailer struct {
	client      *postmark.Client
	logger      *slog.Logger
	tag         string
	serverToken string
}

// NewPostmarkMailer creates a Postmark-backed mailer.
func NewPostmarkMailer(logger *slog.Logger, cfg Config) *PostmarkMailer {
	return &PostmarkMailer{
		client:      postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		logger:      logger,
		tag:         "relay",
		serverToken: cfg.PostmarkServerToken,
	}
}

// Name returns the provider name.
func (m *PostmarkMailer) Name() string {
	return "postmark"
}

// Configured reports whether the server token is present.
func (m *PostmarkMailer) Configured() bool {
	return m.serverToken != ""
}

// Send delivers the message via Postmark. The Postmark-assigned message ID
// is preferred over the locally generated one when present.
func (m *PostmarkMailer) Send(ctx context.Context, email *mailrelay.OutgoingEmail) (*mailrelay.SendResult, error) {
	pm := postmark.Email{
		From:     formatFrom(email.From),
		To:       email.To,
		Subject:  email.Subject,
		HtmlBody: email.HTMLBody,
		TextBody: email.TextBody,
		Tag:      m.tag,
	}

	for name, value := range email.Headers {
		pm.Headers = append(pm.Headers, postmark.Header{Name: name, Value: value})
	}

	for _, att := range email.Attachments {
		pm.Attachments = append(pm.Attachments, postmark.Attachment{
			Name:        att.Filename,
			Content:     base64.StdEncoding.EncodeToString(att.Content),
			ContentType: att.ContentType,
		})
	}

	type sendOutcome struct {
		resp postmark.EmailResponse
		err  error
	}
	done := make(chan sendOutcome, 1)
	go func() {
		resp, err := m.client.SendEmail(pm)
		done <- sendOutcome{resp: resp, err: err}
	}()

	select {
	case outcome := <-done:
		if outcome.err != nil {
			m.logger.Error("postmark send failed",
				slog.String("to", email.To),
				slog.String("error", outcome.err.Error()))
			return nil, mailrelay.WrapError(mailrelay.EINTERNAL, "postmark submission failed", outcome.err)
		}
		messageID := outcome.resp.MessageID
		if messageID == "" {
			messageID = email.MessageID
		}
		return &mailrelay.SendResult{MessageID: messageID}, nil
	case <-ctx.Done():
		return nil, mailrelay.Errorf(mailrelay.EINTERNAL, "email sending timeout")
	}
}
