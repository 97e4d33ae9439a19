package mailrelay

import (
	"encoding/base64"
	"strings"
	"testing"
)

func validRequest() EmailRequest {
	return EmailRequest{
		To:      "hiker@example.com",
		Subject: "Trail update",
		HTML:    "<p>New section opened</p>",
	}
}

func TestValidate_Success(t *testing.T) {
	req := validRequest()
	if err := req.Validate(DefaultPolicy()); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestValidate_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		req  EmailRequest
	}{
		{"missing to", EmailRequest{Subject: "s", HTML: "h"}},
		{"missing subject", EmailRequest{To: "a@b.com", HTML: "h"}},
		{"missing html", EmailRequest{To: "a@b.com", Subject: "s"}},
		{"all empty", EmailRequest{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(DefaultPolicy())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got := ErrorMessage(err); got != "Missing required fields: to, subject, html" {
				t.Errorf("message: got %q", got)
			}
			if !IsErrorCode(err, EINVALID) {
				t.Errorf("code: got %q, want %q", ErrorCode(err), EINVALID)
			}
		})
	}
}

func TestValidate_EmailAddress(t *testing.T) {
	valid := []string{
		"user@example.com",
		"first.last@sub.example.org",
		"user+tag@example.co",
	}
	invalid := []string{
		"not-an-email",
		"missing@domain",
		"@example.com",
		"two words@example.com",
		"user@@example.com",
	}

	for _, addr := range valid {
		req := validRequest()
		req.To = addr
		if err := req.Validate(DefaultPolicy()); err != nil {
			t.Errorf("address %q: expected valid, got %v", addr, err)
		}
	}
	for _, addr := range invalid {
		req := validRequest()
		req.To = addr
		err := req.Validate(DefaultPolicy())
		if err == nil {
			t.Errorf("address %q: expected error, got nil", addr)
			continue
		}
		if got := ErrorMessage(err); got != "Invalid email address" {
			t.Errorf("address %q: message got %q", addr, got)
		}
	}
}

func TestValidate_SubjectLength(t *testing.T) {
	req := validRequest()
	req.Subject = strings.Repeat("a", 200)
	if err := req.Validate(DefaultPolicy()); err != nil {
		t.Fatalf("200-char subject should be allowed: %v", err)
	}

	req.Subject = strings.Repeat("a", 201)
	err := req.Validate(DefaultPolicy())
	if err == nil {
		t.Fatal("expected error for 201-char subject")
	}
	if got := ErrorMessage(err); got != "Subject too long (max 200 chars)" {
		t.Errorf("message: got %q", got)
	}
}

func TestValidate_AttachmentFormat(t *testing.T) {
	req := validRequest()
	req.Attachments = []Attachment{
		{Filename: "a.pdf", Content: "QUJD", ContentType: "application/pdf"},
		{Filename: "b.pdf", ContentType: "application/pdf"}, // no content
	}
	err := req.Validate(DefaultPolicy())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := ErrorMessage(err); got != "Invalid attachment format at index 1" {
		t.Errorf("message: got %q", got)
	}
}

func TestValidate_ExtensionDenied(t *testing.T) {
	req := validRequest()
	req.Attachments = []Attachment{
		{Filename: "payload.exe", Content: "QUJD", ContentType: "application/octet-stream"},
	}
	err := req.Validate(DefaultPolicy())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	want := "File type not allowed: .exe. Allowed: .pdf, .txt, .jpg, .jpeg, .png, .gif, .doc, .docx, .xls, .xlsx, .csv"
	if got := ErrorMessage(err); got != want {
		t.Errorf("message:\n got %q\nwant %q", got, want)
	}
}

func TestValidate_ExtensionCaseInsensitive(t *testing.T) {
	req := validRequest()
	req.Attachments = []Attachment{
		{Filename: "REPORT.PDF", Content: "QUJD", ContentType: "application/pdf"},
	}
	if err := req.Validate(DefaultPolicy()); err != nil {
		t.Fatalf("uppercase extension should be allowed: %v", err)
	}
}

func TestValidate_AttachmentTooLarge(t *testing.T) {
	p := DefaultPolicy()
	p.MaxAttachmentBytes = 1024 * 1024
	p.MaxTotalBytes = 15 * 1024 * 1024

	req := validRequest()
	req.Attachments = []Attachment{
		// 2M of base64 estimates to 1.5MB decoded, over the 1MB cap.
		{Filename: "big.pdf", Content: strings.Repeat("A", 2*1024*1024), ContentType: "application/pdf"},
	}
	err := req.Validate(p)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := ErrorMessage(err); got != `Attachment "big.pdf" too large (max 1MB per file)` {
		t.Errorf("message: got %q", got)
	}
}

func TestValidate_TotalTooLarge(t *testing.T) {
	p := DefaultPolicy()
	p.MaxAttachmentBytes = 2 * 1024 * 1024
	p.MaxTotalBytes = 3 * 1024 * 1024

	content := strings.Repeat("A", 2*1024*1024) // ~1.5MB decoded each
	req := validRequest()
	req.Attachments = []Attachment{
		{Filename: "one.pdf", Content: content, ContentType: "application/pdf"},
		{Filename: "two.pdf", Content: content, ContentType: "application/pdf"},
		{Filename: "three.pdf", Content: content, ContentType: "application/pdf"},
	}
	err := req.Validate(p)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	got := ErrorMessage(err)
	if !strings.HasPrefix(got, "Total attachments too large (max 3MB total).") {
		t.Errorf("message: got %q", got)
	}
}

func TestAttachmentExtension(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"report.pdf", ".pdf"},
		{"Report.PDF", ".pdf"},
		{"archive.tar.gz", ".gz"},
		{"noextension", "noextension"},
		{".hidden", ".hidden"},
	}
	for _, tt := range tests {
		a := Attachment{Filename: tt.filename}
		if got := a.Extension(); got != tt.want {
			t.Errorf("Extension(%q): got %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestAttachmentEstimatedSize(t *testing.T) {
	raw := []byte("hello attachment content")
	encoded := base64.StdEncoding.EncodeToString(raw)
	a := Attachment{Content: encoded}

	est := a.EstimatedSize()
	// The estimate counts padding, so it may overshoot slightly but never
	// by more than the padding allowance.
	if est < int64(len(raw)) || est > int64(len(raw))+3 {
		t.Errorf("EstimatedSize: got %d, raw length %d", est, len(raw))
	}
}

func TestAttachmentDecode(t *testing.T) {
	raw := []byte("binary\x00payload")
	encoded := base64.StdEncoding.EncodeToString(raw)

	a := Attachment{Filename: "f.bin", Content: encoded}
	got, err := a.Decode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("Decode: got %q, want %q", got, raw)
	}
	// Round trip: re-encoding the decoded bytes reproduces the content.
	if reencoded := base64.StdEncoding.EncodeToString(got); reencoded != encoded {
		t.Errorf("re-encode: got %q, want %q", reencoded, encoded)
	}
}

func TestAttachmentDecode_Whitespace(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("split content"))
	// MIME-style folding in the middle of the payload.
	folded := encoded[:8] + "\r\n " + encoded[8:]

	a := Attachment{Filename: "f.txt", Content: folded}
	got, err := a.Decode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "split content" {
		t.Errorf("Decode: got %q", got)
	}
}

func TestAttachmentDecode_MissingPadding(t *testing.T) {
	encoded := base64.RawStdEncoding.EncodeToString([]byte("unpadded"))

	a := Attachment{Filename: "f.txt", Content: encoded}
	got, err := a.Decode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "unpadded" {
		t.Errorf("Decode: got %q", got)
	}
	// Round trip modulo padding: re-encoding differs from the unpadded
	// input only by the trailing "=".
	reencoded := base64.StdEncoding.EncodeToString(got)
	if strings.TrimRight(reencoded, "=") != encoded {
		t.Errorf("re-encode: got %q, want %q plus padding", reencoded, encoded)
	}
}

func TestAttachmentDecode_Invalid(t *testing.T) {
	a := Attachment{Filename: "bad.pdf", Content: "!!!not base64!!!"}
	_, err := a.Decode()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsErrorCode(err, EATTACHMENT) {
		t.Errorf("code: got %q, want %q", ErrorCode(err), EATTACHMENT)
	}
	if got := ErrorMessage(err); got != "Invalid base64 content in attachment bad.pdf" {
		t.Errorf("message: got %q", got)
	}
}

func TestAttachmentDecode_Empty(t *testing.T) {
	a := Attachment{Filename: "empty.txt", Content: "  \n "}
	_, err := a.Decode()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := ErrorMessage(err); got != "Empty attachment content in attachment empty.txt" {
		t.Errorf("message: got %q", got)
	}
}

func TestNewMessageID(t *testing.T) {
	id := NewMessageID()
	if !strings.HasPrefix(id, "<") || !strings.HasSuffix(id, "@trail>") {
		t.Errorf("message id format: got %q", id)
	}
	if id == NewMessageID() {
		t.Error("expected unique message ids")
	}
}

func TestAntiSpamHeaders(t *testing.T) {
	h := AntiSpamHeaders(SenderIdentity{Name: "Relay", Address: "relay@example.com"})
	if got := h["X-Mailer"]; got != "Trail Mailer v1.0" {
		t.Errorf("X-Mailer: got %q", got)
	}
	if got := h["List-Unsubscribe"]; got != "<mailto:relay@example.com?subject=Unsubscribe>" {
		t.Errorf("List-Unsubscribe: got %q", got)
	}
	if got := h["X-Auto-Response-Suppress"]; got != "OOF, DR, RN, NRN, AutoReply" {
		t.Errorf("X-Auto-Response-Suppress: got %q", got)
	}
}
