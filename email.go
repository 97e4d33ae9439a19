package mailrelay

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// emailPattern is the address syntax accepted for recipients. It is a
// deliberately loose check: one non-whitespace local part, an @, and a
// domain containing at least one dot.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// EmailRequest is the JSON payload accepted by the relay endpoint.
// It exists only for the duration of one HTTP call.
type EmailRequest struct {
	To          string       `json:"to"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// Signature is a hex-encoded HMAC-SHA256 over to+subject+html.
	// Required only when a shared secret is configured and the
	// deployment runs in production mode.
	Signature string `json:"signature,omitempty"`
}

// Attachment is a base64-encoded file carried by an EmailRequest.
// ContentType is trusted as given; it is never sniffed from the content.
type Attachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

// Extension returns the lowercased filename extension including the dot.
// A filename without a dot returns the whole lowercased name, which will
// never match the allow-list.
func (a *Attachment) Extension() string {
	name := strings.ToLower(a.Filename)
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return name
	}
	return name[idx:]
}

// EstimatedSize approximates the decoded byte size from the base64 length.
// This is a cheap pre-filter so oversized payloads are rejected before any
// buffer is allocated; exact sizes are measured again after decoding.
func (a *Attachment) EstimatedSize() int64 {
	return int64(math.Ceil(float64(len(a.Content)) * 0.75))
}

// Decode returns the raw attachment bytes. Interior whitespace and missing
// padding are tolerated; corrupt input and empty payloads are rejected.
func (a *Attachment) Decode() ([]byte, error) {
	content := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, a.Content)

	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(content, "="))
	}
	if err != nil {
		return nil, Errorf(EATTACHMENT, "Invalid base64 content in attachment %s", a.Filename)
	}
	if len(raw) == 0 {
		return nil, Errorf(EATTACHMENT, "Empty attachment content in attachment %s", a.Filename)
	}
	return raw, nil
}

// Policy holds the validation limits enforced on every request. Deployment
// variants differ only by configuration, never by forked code paths.
type Policy struct {
	// MaxSubjectLength is the maximum subject length in characters.
	MaxSubjectLength int

	// MaxAttachmentBytes is the per-file decoded size ceiling.
	MaxAttachmentBytes int64

	// MaxTotalBytes is the aggregate decoded size ceiling per request.
	MaxTotalBytes int64

	// AllowedExtensions is the filename extension allow-list, lowercased,
	// each entry including the leading dot.
	AllowedExtensions []string
}

// DefaultPolicy returns the strict deployment limits: 200-character
// subjects, 10MB per attachment, 15MB per request.
func DefaultPolicy() Policy {
	return Policy{
		MaxSubjectLength:   200,
		MaxAttachmentBytes: 10 * 1024 * 1024,
		MaxTotalBytes:      15 * 1024 * 1024,
		AllowedExtensions: []string{
			".pdf", ".txt", ".jpg", ".jpeg", ".png", ".gif",
			".doc", ".docx", ".xls", ".xlsx", ".csv",
		},
	}
}

// ExtensionAllowed reports whether ext is in the allow-list.
func (p Policy) ExtensionAllowed(ext string) bool {
	for _, allowed := range p.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Validate checks the request against the policy. Checks run in a fixed
// order and stop at the first failure; no external call is made and no
// attachment is decoded here.
func (r *EmailRequest) Validate(p Policy) error {
	if r.To == "" || r.Subject == "" || r.HTML == "" {
		return Invalid("Missing required fields: to, subject, html")
	}
	if !emailPattern.MatchString(r.To) {
		return Invalid("Invalid email address")
	}
	if utf8.RuneCountInString(r.Subject) > p.MaxSubjectLength {
		return Invalid("Subject too long (max %d chars)", p.MaxSubjectLength)
	}

	var total int64
	for i, att := range r.Attachments {
		if att.Filename == "" || att.Content == "" || att.ContentType == "" {
			return Invalid("Invalid attachment format at index %d", i)
		}
		if ext := att.Extension(); !p.ExtensionAllowed(ext) {
			return Invalid("File type not allowed: %s. Allowed: %s",
				ext, strings.Join(p.AllowedExtensions, ", "))
		}
		size := att.EstimatedSize()
		if size > p.MaxAttachmentBytes {
			return Invalid("Attachment %q too large (max %dMB per file)",
				att.Filename, p.MaxAttachmentBytes/(1024*1024))
		}
		total += size
	}
	if total > p.MaxTotalBytes {
		return Invalid("Total attachments too large (max %dMB total). Current size: %dMB",
			p.MaxTotalBytes/(1024*1024), roundMB(total))
	}
	return nil
}

// EstimatedTotalSize sums the estimated decoded sizes of all attachments.
func (r *EmailRequest) EstimatedTotalSize() int64 {
	var total int64
	for _, att := range r.Attachments {
		total += att.EstimatedSize()
	}
	return total
}

func roundMB(n int64) int64 {
	return (n + 512*1024) / (1024 * 1024)
}

// SenderIdentity is the display name and address outbound mail is sent as.
type SenderIdentity struct {
	Name    string
	Address string
}

// OutgoingAttachment carries decoded attachment bytes, in request order.
type OutgoingAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// OutgoingEmail is a fully validated and sanitized message ready to hand
// to a Mailer. Exactly one recipient; attachment order is preserved.
type OutgoingEmail struct {
	From        SenderIdentity
	To          string
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []OutgoingAttachment
	Headers     map[string]string
	MessageID   string
}

// TotalAttachmentBytes sums the decoded attachment sizes.
func (e *OutgoingEmail) TotalAttachmentBytes() int64 {
	var total int64
	for _, att := range e.Attachments {
		total += int64(len(att.Content))
	}
	return total
}

// SendResult reports a successful submission to the mail transport.
type SendResult struct {
	MessageID string
}

// Mailer delivers outbound messages. Implementations live in internal/mail;
// they own connection pooling, retries and provider-specific MIME concerns.
type Mailer interface {
	// Send delivers the message, honouring ctx for the overall timeout.
	Send(ctx context.Context, email *OutgoingEmail) (*SendResult, error)

	// Name returns the provider name ("smtp", "postmark", "ses", "mock").
	Name() string
}

// RateLimiter admits or rejects a request for a composite client key.
// The handler fails open when Allow reports an internal error, and fails
// closed when the limit is exceeded.
type RateLimiter interface {
	Allow(key string) (bool, error)
}

// NewMessageID generates a Message-ID embedding the current timestamp and
// a random suffix.
func NewMessageID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("<%d.%s@trail>", time.Now().UnixMilli(), suffix)
}

// AntiSpamHeaders returns the header set applied to every outgoing message
// to keep transactional mail out of spam folders and auto-responder loops.
func AntiSpamHeaders(sender SenderIdentity) map[string]string {
	return map[string]string{
		"X-Mailer":                 "Trail Mailer v1.0",
		"List-Unsubscribe":         fmt.Sprintf("<mailto:%s?subject=Unsubscribe>", sender.Address),
		"X-Priority":               "3",
		"X-MSMail-Priority":        "Normal",
		"Importance":               "Normal",
		"X-Auto-Response-Suppress": "OOF, DR, RN, NRN, AutoReply",
	}
}
