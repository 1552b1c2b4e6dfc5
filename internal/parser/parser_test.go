package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/shineum/mail-courier-lite/email"
)

func TestParse_PlainText(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"From: Sender <sender@example.com>",
		"To: one@example.com, Two <two@example.com>",
		"Cc: cc@example.com",
		"Subject: Plain message",
		"Date: Fri, 02 May 2025 15:04:05 +0000",
		"Message-ID: <abc123@example.com>",
		"X-Custom: custom-value",
		"",
		"Hello body",
	}, "\r\n")

	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.From == nil || msg.From.Address != "sender@example.com" {
		t.Errorf("From: got %v", msg.From)
	}
	if msg.From.Name != "Sender" {
		t.Errorf("From name: got %q", msg.From.Name)
	}
	if len(msg.To) != 2 {
		t.Fatalf("To length: got %d, want 2", len(msg.To))
	}
	if msg.To[1].Name != "Two" {
		t.Errorf("To[1] name: got %q", msg.To[1].Name)
	}
	if len(msg.Cc) != 1 || msg.Cc[0].Address != "cc@example.com" {
		t.Errorf("Cc: got %v", msg.Cc)
	}
	if msg.Subject != "Plain message" {
		t.Errorf("Subject: got %q", msg.Subject)
	}
	if msg.MessageID != "<abc123@example.com>" {
		t.Errorf("MessageID: got %q", msg.MessageID)
	}
	want := time.Date(2025, time.May, 2, 15, 4, 5, 0, time.UTC)
	if !msg.Date.Equal(want) {
		t.Errorf("Date: got %v, want %v", msg.Date, want)
	}
	if msg.Text != "Hello body" {
		t.Errorf("Text: got %q", msg.Text)
	}
	if msg.ContentType != email.TextPlain {
		t.Errorf("ContentType: got %q", msg.ContentType)
	}
	if len(msg.Headers) != 1 || msg.Headers[0].Name != "X-Custom" || msg.Headers[0].Value != "custom-value" {
		t.Errorf("Headers: got %v", msg.Headers)
	}
}

func TestParse_EncodedSubject(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"From: sender@example.com",
		"To: to@example.com",
		"Subject: =?UTF-8?q?Gr=C3=BC=C3=9Fe?=",
		"",
		"body",
	}, "\r\n")

	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "Grüße" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "Grüße")
	}
}

func TestParse_HTMLBody(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"From: sender@example.com",
		"To: to@example.com",
		"Content-Type: text/html; charset=UTF-8",
		"",
		"<p>hello</p>",
	}, "\r\n")

	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.HTMLBody() != "<p>hello</p>" {
		t.Errorf("HTMLBody: got %q", msg.HTMLBody())
	}
	if msg.TextBody() != "" {
		t.Errorf("TextBody: got %q, want empty", msg.TextBody())
	}
}

func TestParse_MultipartWithAttachment(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"From: sender@example.com",
		"To: to@example.com",
		"Subject: With attachment",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="outer"`,
		"",
		"--outer",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		"text part",
		"--outer",
		"Content-Type: application/octet-stream",
		"Content-Transfer-Encoding: base64",
		`Content-Disposition: attachment; filename="data.bin"`,
		"",
		"aGVsbG8gd29ybGQ=",
		"--outer--",
		"",
	}, "\r\n")

	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Body == nil {
		t.Fatal("Body: got nil, want multipart")
	}
	if got := strings.TrimRight(msg.Body.Text, "\r\n"); got != "text part" {
		t.Errorf("Body.Text: got %q", got)
	}
	if len(msg.Body.Attachments) != 1 {
		t.Fatalf("attachment count: got %d, want 1", len(msg.Body.Attachments))
	}
	att := msg.Body.Attachments[0]
	if att.Filename != "data.bin" {
		t.Errorf("attachment filename: got %q", att.Filename)
	}
	if att.ContentType != "application/octet-stream" {
		t.Errorf("attachment content type: got %q", att.ContentType)
	}
	if string(att.Content) != "hello world" {
		t.Errorf("attachment content: got %q", att.Content)
	}
}

func TestParse_NestedAlternative(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"From: sender@example.com",
		"To: to@example.com",
		`Content-Type: multipart/mixed; boundary="outer"`,
		"",
		"--outer",
		`Content-Type: multipart/alternative; boundary="inner"`,
		"",
		"--inner",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		"plain rendition",
		"--inner",
		"Content-Type: text/html; charset=UTF-8",
		"",
		"<p>html rendition</p>",
		"--inner--",
		"--outer--",
		"",
	}, "\r\n")

	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Body == nil {
		t.Fatal("Body: got nil")
	}
	if got := strings.TrimRight(msg.Body.Text, "\r\n"); got != "plain rendition" {
		t.Errorf("Body.Text: got %q", got)
	}
	if got := strings.TrimRight(msg.Body.HTML, "\r\n"); got != "<p>html rendition</p>" {
		t.Errorf("Body.HTML: got %q", got)
	}
}

func TestParse_AddressListFallback(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"From: sender@example.com",
		"To: bare-name, other@example.com",
		"",
		"body",
	}, "\r\n")

	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msg.To) != 2 {
		t.Fatalf("To length: got %d, want 2", len(msg.To))
	}
	if msg.To[0].Address != "bare-name" {
		t.Errorf("To[0]: got %q", msg.To[0].Address)
	}
}

func TestParse_MissingBoundary(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"From: sender@example.com",
		"To: to@example.com",
		"Content-Type: multipart/mixed",
		"",
		"body",
	}, "\r\n")

	if _, err := Parse([]byte(raw)); err == nil {
		t.Fatal("expected error for missing boundary")
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte("not a message")); err == nil {
		t.Fatal("expected error for unparseable input")
	}
}

// Round trip: everything the builder renders must come back out of Parse.
func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()

	e := email.New()
	if err := e.SetFromWithName("sender@example.com", "Sender"); err != nil {
		t.Fatalf("SetFromWithName: %v", err)
	}
	if err := e.AddTo("to@example.com"); err != nil {
		t.Fatalf("AddTo: %v", err)
	}
	if err := e.AddCc("cc@example.com"); err != nil {
		t.Fatalf("AddCc: %v", err)
	}
	if err := e.AddHeader("X-Courier", "roundtrip"); err != nil {
		t.Fatalf("AddHeader: %v", err)
	}
	e.SetSubject("Round trip")
	e.SetBody(&email.Multipart{
		Text: "plain",
		HTML: "<p>plain</p>",
		Attachments: []email.Attachment{{
			Filename:    "payload.bin",
			ContentType: "application/octet-stream",
			Content:     []byte{0x00, 0x01, 0x02, 0xff},
		}},
	})

	built, err := e.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	raw, err := built.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	parsed, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if parsed.From == nil || parsed.From.Address != "sender@example.com" {
		t.Errorf("From: got %v", parsed.From)
	}
	if parsed.Subject != "Round trip" {
		t.Errorf("Subject: got %q", parsed.Subject)
	}
	if len(parsed.To) != 1 || len(parsed.Cc) != 1 {
		t.Errorf("recipients: got To=%d Cc=%d", len(parsed.To), len(parsed.Cc))
	}
	if parsed.Body == nil {
		t.Fatal("Body: got nil")
	}
	if got := strings.TrimRight(parsed.Body.Text, "\r\n"); got != "plain" {
		t.Errorf("Body.Text: got %q", got)
	}
	if got := strings.TrimRight(parsed.Body.HTML, "\r\n"); got != "<p>plain</p>" {
		t.Errorf("Body.HTML: got %q", got)
	}
	if len(parsed.Body.Attachments) != 1 {
		t.Fatalf("attachment count: got %d", len(parsed.Body.Attachments))
	}
	att := parsed.Body.Attachments[0]
	if att.Filename != "payload.bin" {
		t.Errorf("attachment filename: got %q", att.Filename)
	}
	if len(att.Content) != 4 || att.Content[3] != 0xff {
		t.Errorf("attachment content: got %v", att.Content)
	}
	found := false
	for _, h := range parsed.Headers {
		if h.Name == "X-Courier" && h.Value == "roundtrip" {
			found = true
		}
	}
	if !found {
		t.Errorf("custom header missing: %v", parsed.Headers)
	}
}
