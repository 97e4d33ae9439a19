package mail

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/trailintercasteller/mailrelay"
)

const (
	defaultMaxConnections = 3
	defaultMaxMessages    = 50
	defaultMinInterval    = 10 * time.Second
)

// SMTPMailer delivers mail over SMTP with a small pool of persistent
// connections. The pool caps concurrent connections, recycles a connection
// after a fixed number of messages, and enforces a minimum spacing between
// sends so the provider does not throttle or blacklist the relay. This is
// a resource-sharing policy, not a correctness requirement.
type SMTPMailer struct {
	dialer *gomail.Dialer
	logger *slog.Logger

	conns       chan *smtpConn
	maxMessages int
	minInterval time.Duration

	mu       sync.Mutex
	lastSend time.Time
}

// smtpConn is one slot in the connection pool. sc is nil until the first
// send on this slot dials.
type smtpConn struct {
	sc   gomail.SendCloser
	sent int
}

func (c *smtpConn) redial(d *gomail.Dialer) error {
	c.close()
	sc, err := d.Dial()
	if err != nil {
		return err
	}
	c.sc = sc
	c.sent = 0
	return nil
}

func (c *smtpConn) close() {
	if c.sc != nil {
		_ = c.sc.Close()
		c.sc = nil
	}
}

// NewSMTPMailer creates a pooled SMTP mailer. Connections are dialed
// lazily on first use of each pool slot.
func NewSMTPMailer(logger *slog.Logger, cfg Config) *SMTPMailer {
	maxConns := cfg.SMTPMaxConnections
	if maxConns <= 0 {
		maxConns = defaultMaxConnections
	}
	maxMessages := cfg.SMTPMaxMessages
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	minInterval := cfg.SMTPMinInterval
	if minInterval <= 0 {
		minInterval = defaultMinInterval
	}

	conns := make(chan *smtpConn, maxConns)
	for i := 0; i < maxConns; i++ {
		conns <- &smtpConn{}
	}

	m := &SMTPMailer{
		dialer:      gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		logger:      logger,
		conns:       conns,
		maxMessages: maxMessages,
		minInterval: minInterval,
	}
	return m
}

// Name returns the provider name.
func (m *SMTPMailer) Name() string {
	return "smtp"
}

// Configured reports whether the SMTP credentials are present.
func (m *SMTPMailer) Configured() bool {
	return m.dialer.Username != "" && m.dialer.Password != ""
}

// Send delivers the message over a pooled connection. The context bounds
// the whole operation: spacing wait, pool acquisition, dial and submission.
func (m *SMTPMailer) Send(ctx context.Context, email *mailrelay.OutgoingEmail) (*mailrelay.SendResult, error) {
	msg := buildMessage(email)

	if err := m.waitSpacing(ctx); err != nil {
		return nil, err
	}

	var conn *smtpConn
	select {
	case conn = <-m.conns:
	case <-ctx.Done():
		return nil, mailrelay.Errorf(mailrelay.EINTERNAL, "email sending timeout")
	}

	result := make(chan error, 1)
	go func() {
		result <- m.sendOnConn(conn, msg)
	}()

	select {
	case err := <-result:
		m.conns <- conn
		if err != nil {
			return nil, mailrelay.WrapError(mailrelay.EINTERNAL, "smtp submission failed", err)
		}
		return &mailrelay.SendResult{MessageID: email.MessageID}, nil
	case <-ctx.Done():
		// The in-flight send owns the connection until it returns; tear
		// it down then so the slot comes back clean.
		go func() {
			<-result
			conn.close()
			m.conns <- conn
		}()
		m.logger.Warn("smtp send timed out",
			slog.String("to", email.To),
			slog.String("message_id", email.MessageID))
		return nil, mailrelay.Errorf(mailrelay.EINTERNAL, "email sending timeout")
	}
}

// sendOnConn submits msg on the given pool slot, dialing or recycling the
// connection as needed. A failed send gets one retry on a fresh connection;
// stale pooled connections are the common failure.
func (m *SMTPMailer) sendOnConn(conn *smtpConn, msg *gomail.Message) error {
	if conn.sc == nil || conn.sent >= m.maxMessages {
		if err := conn.redial(m.dialer); err != nil {
			return err
		}
	}

	if err := gomail.Send(conn.sc, msg); err != nil {
		m.logger.Warn("smtp send failed, retrying on fresh connection",
			slog.String("error", err.Error()))
		if rerr := conn.redial(m.dialer); rerr != nil {
			return err
		}
		if err = gomail.Send(conn.sc, msg); err != nil {
			conn.close()
			return err
		}
	}

	conn.sent++
	return nil
}

// waitSpacing reserves the next send slot and sleeps until it. Reservations
// are serialized under the mutex so concurrent senders queue up at
// minInterval spacing rather than racing for the same slot.
func (m *SMTPMailer) waitSpacing(ctx context.Context) error {
	m.mu.Lock()
	now := time.Now()
	next := m.lastSend.Add(m.minInterval)
	if next.Before(now) {
		next = now
	}
	m.lastSend = next
	m.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return mailrelay.Errorf(mailrelay.EINTERNAL, "email sending timeout")
	}
}

// buildMessage converts the domain message into a gomail message. gomail
// produces multipart/alternative for text+html and multipart/mixed when
// attachments are present.
func buildMessage(email *mailrelay.OutgoingEmail) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", email.From.Address, email.From.Name)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	if email.MessageID != "" {
		msg.SetHeader("Message-Id", email.MessageID)
	}
	for name, value := range email.Headers {
		msg.SetHeader(name, value)
	}

	if email.TextBody != "" {
		msg.SetBody("text/plain", email.TextBody)
		msg.AddAlternative("text/html", email.HTMLBody)
	} else {
		msg.SetBody("text/html", email.HTMLBody)
	}

	for _, att := range email.Attachments {
		content := att.Content
		msg.Attach(att.Filename,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
			gomail.SetHeader(map[string][]string{
				"Content-Type": {att.ContentType},
			}),
		)
	}

	return msg
}
