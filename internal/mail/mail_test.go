package mail

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/trailintercasteller/mailrelay"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_ProviderSelection(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"smtp", "smtp"},
		{"postmark", "postmark"},
		{"mock", "mock"},
		{"", "mock"},
	}

	for _, tt := range tests {
		m, err := New(discardLogger(), Config{Provider: tt.provider})
		if err != nil {
			t.Fatalf("provider %q: unexpected error: %v", tt.provider, err)
		}
		if got := m.Name(); got != tt.want {
			t.Errorf("provider %q: Name() got %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(discardLogger(), Config{Provider: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("error should name the provider: %v", err)
	}
}

func TestFormatFrom(t *testing.T) {
	full := mailrelay.SenderIdentity{Name: "Trail Relay", Address: "relay@example.com"}
	if got := formatFrom(full); got != "Trail Relay <relay@example.com>" {
		t.Errorf("got %q", got)
	}

	bare := mailrelay.SenderIdentity{Address: "relay@example.com"}
	if got := formatFrom(bare); got != "relay@example.com" {
		t.Errorf("got %q", got)
	}
}

func TestBuildMessage(t *testing.T) {
	email := &mailrelay.OutgoingEmail{
		From:      mailrelay.SenderIdentity{Name: "Trail Relay", Address: "relay@example.com"},
		To:        "hiker@example.com",
		Subject:   "Trail update",
		HTMLBody:  "<p>New section</p>",
		TextBody:  "New section",
		Headers:   mailrelay.AntiSpamHeaders(mailrelay.SenderIdentity{Address: "relay@example.com"}),
		MessageID: "<123.abc@trail>",
		Attachments: []mailrelay.OutgoingAttachment{{
			Filename:    "map.pdf",
			ContentType: "application/pdf",
			Content:     []byte("pdf bytes"),
		}},
	}

	msg := buildMessage(email)

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("rendering message: %v", err)
	}
	rendered := buf.String()

	for _, want := range []string{
		"Trail Relay",
		"<relay@example.com>",
		"To: hiker@example.com",
		"Subject: Trail update",
		"Message-Id: <123.abc@trail>",
		"X-Mailer: Trail Mailer v1.0",
		"X-Auto-Response-Suppress: OOF, DR, RN, NRN, AutoReply",
		"Content-Type: multipart/mixed",
		"text/plain",
		"text/html",
		"map.pdf",
	} {
		if !strings.Contains(rendered, want) {
			t.Errorf("rendered message missing %q", want)
		}
	}
}

func TestBuildMessage_HTMLOnly(t *testing.T) {
	email := &mailrelay.OutgoingEmail{
		From:     mailrelay.SenderIdentity{Address: "relay@example.com"},
		To:       "hiker@example.com",
		Subject:  "s",
		HTMLBody: "<p>only html</p>",
	}

	var buf bytes.Buffer
	if _, err := buildMessage(email).WriteTo(&buf); err != nil {
		t.Fatalf("rendering message: %v", err)
	}
	rendered := buf.String()

	if !strings.Contains(rendered, "text/html") {
		t.Error("missing html part")
	}
	if strings.Contains(rendered, "multipart/alternative") {
		t.Error("unexpected alternative part for html-only message")
	}
}
