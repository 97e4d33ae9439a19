package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/trailintercasteller/mailrelay"
)

// sesMaxRetries is the maximum number of retry attempts for transient failures.
const sesMaxRetries = 3

// sesBaseRetryDelay is the initial delay for exponential backoff.
const sesBaseRetryDelay = 1 * time.Second

// SESMailer sends mail via the AWS SES v2 API. Messages without
// attachments use the simple content format; messages with attachments are
// built as raw multipart/mixed MIME.
type SESMailer struct {
	sender mailrelay.SenderIdentity
	client SendEmailAPI
	logger *slog.Logger
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// NewSESMailer creates an SES-backed mailer from the given configuration.
func NewSESMailer(logger *slog.Logger, cfg Config) (*SESMailer, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.SESRegion))

	if cfg.SESAccessKeyID != "" && cfg.SESSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SESAccessKeyID, cfg.SESSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESMailer{
		sender: cfg.Sender,
		client: sesv2.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

// NewSESMailerWithClient creates an SESMailer with a custom client, used
// for testing.
func NewSESMailerWithClient(logger *slog.Logger, sender mailrelay.SenderIdentity, client SendEmailAPI) *SESMailer {
	return &SESMailer{
		sender: sender,
		client: client,
		logger: logger,
	}
}

// Name returns the provider name.
func (m *SESMailer) Name() string {
	return "ses"
}

// Send delivers the message via SES with bounded retries and exponential
// backoff, honouring ctx between attempts.
func (m *SESMailer) Send(ctx context.Context, email *mailrelay.OutgoingEmail) (*mailrelay.SendResult, error) {
	var input *sesv2.SendEmailInput

	if len(email.Attachments) > 0 {
		raw, err := buildRawMessage(formatFrom(email.From), email)
		if err != nil {
			return nil, mailrelay.WrapError(mailrelay.EATTACHMENT, "failed to build attachment message", err)
		}
		input = &sesv2.SendEmailInput{
			Content: &types.EmailContent{
				Raw: &types.RawMessage{
					Data: raw,
				},
			},
		}
	} else {
		input = buildSimpleInput(formatFrom(email.From), email)
	}

	var lastErr error
	for attempt := 0; attempt <= sesMaxRetries; attempt++ {
		if attempt > 0 {
			m.logger.Debug("retrying SES API request",
				slog.Int("attempt", attempt),
				slog.Int("max_retries", sesMaxRetries))
			if err := sleepWithContext(ctx, sesBackoffDelay(attempt)); err != nil {
				return nil, mailrelay.Errorf(mailrelay.EINTERNAL, "email sending timeout")
			}
		}

		out, err := m.client.SendEmail(ctx, input)
		if err == nil {
			messageID := email.MessageID
			if out.MessageId != nil && *out.MessageId != "" {
				messageID = *out.MessageId
			}
			return &mailrelay.SendResult{MessageID: messageID}, nil
		}

		lastErr = err
		m.logger.Warn("SES API error",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		if ctx.Err() != nil {
			return nil, mailrelay.Errorf(mailrelay.EINTERNAL, "email sending timeout")
		}
	}

	return nil, mailrelay.WrapError(mailrelay.EINTERNAL,
		fmt.Sprintf("SES API request failed after %d retries", sesMaxRetries), lastErr)
}

// buildSimpleInput creates a SES SendEmailInput for emails without attachments.
func buildSimpleInput(sender string, email *mailrelay.OutgoingEmail) *sesv2.SendEmailInput {
	body := &types.Body{}

	if email.HTMLBody != "" {
		body.Html = &types.Content{
			Data:    aws.String(email.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if email.TextBody != "" {
		body.Text = &types.Content{
			Data:    aws.String(email.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination: &types.Destination{
			ToAddresses: []string{email.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(email.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: body,
			},
		},
	}
}

// buildRawMessage constructs a raw MIME message for emails with attachments.
func buildRawMessage(sender string, email *mailrelay.OutgoingEmail) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", sender)
	fmt.Fprintf(&buf, "To: %s\r\n", email.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", email.Subject)
	if email.MessageID != "" {
		fmt.Fprintf(&buf, "Message-ID: %s\r\n", email.MessageID)
	}
	for _, name := range sortedHeaderNames(email.Headers) {
		fmt.Fprintf(&buf, "%s: %s\r\n", name, email.Headers[name])
	}
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	// Body part
	bodyHeader := make(textproto.MIMEHeader)
	if email.HTMLBody != "" {
		bodyHeader.Set("Content-Type", "text/html; charset=UTF-8")
		part, err := writer.CreatePart(bodyHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create body part: %w", err)
		}
		part.Write([]byte(email.HTMLBody))
	} else if email.TextBody != "" {
		bodyHeader.Set("Content-Type", "text/plain; charset=UTF-8")
		part, err := writer.CreatePart(bodyHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create body part: %w", err)
		}
		part.Write([]byte(email.TextBody))
	}

	// Attachments, in request order
	for _, att := range email.Attachments {
		attHeader := make(textproto.MIMEHeader)
		attHeader.Set("Content-Type", att.ContentType)
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%s", mime.QEncoding.Encode("UTF-8", att.Filename)))

		part, err := writer.CreatePart(attHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part: %w", err)
		}

		part.Write([]byte(encodeBase64WithLineBreaks(att.Content)))
	}

	writer.Close()
	return buf.Bytes(), nil
}

func sortedHeaderNames(headers map[string]string) []string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character line breaks per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += 76 {
		end := i + 76
		if end > len(encoded) {
			end = len(encoded)
		}
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}

// sesBackoffDelay returns the exponential backoff delay for the given attempt number.
func sesBackoffDelay(attempt int) time.Duration {
	delay := sesBaseRetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext sleeps for the given duration or until the context is done.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
