package ses

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/shineum/mail-courier-lite/email"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params, optFns...)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

// buildMessage constructs a deliverable message through the builder.
func buildMessage(t *testing.T, configure func(*email.Email)) *email.Message {
	t.Helper()

	e := email.New()
	if err := e.SetFrom("sender@example.com"); err != nil {
		t.Fatalf("SetFrom: %v", err)
	}
	if err := e.AddTo("to@example.com"); err != nil {
		t.Fatalf("AddTo: %v", err)
	}
	if configure != nil {
		configure(e)
	}
	msg, err := e.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return msg
}

func TestName(t *testing.T) {
	t.Parallel()
	tr := NewWithClient(&mockSESClient{})
	if got := tr.Name(); got != "ses" {
		t.Errorf("Name(): got %q, want %q", got, "ses")
	}
}

func TestSend_SimpleTextMessage(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := NewWithClient(mock)

	msg := buildMessage(t, func(e *email.Email) {
		e.SetSubject("Test Subject")
		e.SetText("Hello, World!")
	})

	if err := tr.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}

	input := mock.lastInput
	if input.Content.Simple == nil {
		t.Fatal("expected simple email content, got nil")
	}
	if got := *input.FromEmailAddress; got != "<sender@example.com>" {
		t.Errorf("FromEmailAddress: got %q, want %q", got, "<sender@example.com>")
	}
	if got := *input.Content.Simple.Subject.Data; got != "Test Subject" {
		t.Errorf("Subject: got %q, want %q", got, "Test Subject")
	}
	if got := *input.Content.Simple.Body.Text.Data; got != "Hello, World!" {
		t.Errorf("text body: got %q, want %q", got, "Hello, World!")
	}
	if input.Content.Simple.Body.Html != nil {
		t.Error("expected no HTML body")
	}
}

func TestSend_SimpleHTMLMessage(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := NewWithClient(mock)

	msg := buildMessage(t, func(e *email.Email) {
		e.SetSubject("HTML Test")
		e.SetBody(&email.Multipart{
			Text: "Plain text fallback",
			HTML: "<h1>Hello</h1>",
		})
	})

	if err := tr.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input := mock.lastInput
	if got := *input.Content.Simple.Body.Html.Data; got != "<h1>Hello</h1>" {
		t.Errorf("HTML body: got %q, want %q", got, "<h1>Hello</h1>")
	}
	if got := *input.Content.Simple.Body.Text.Data; got != "Plain text fallback" {
		t.Errorf("text body: got %q, want %q", got, "Plain text fallback")
	}
}

func TestSend_WithRecipients(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := NewWithClient(mock)

	msg := buildMessage(t, func(e *email.Email) {
		if err := e.AddTo("to2@example.com"); err != nil {
			t.Fatalf("AddTo: %v", err)
		}
		if err := e.AddCc("cc@example.com"); err != nil {
			t.Fatalf("AddCc: %v", err)
		}
		if err := e.AddBcc("bcc@example.com"); err != nil {
			t.Fatalf("AddBcc: %v", err)
		}
		if err := e.AddReplyTo("reply@example.com", "Replies"); err != nil {
			t.Fatalf("AddReplyTo: %v", err)
		}
		e.SetText("Hello")
	})

	if err := tr.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dest := mock.lastInput.Destination
	if len(dest.ToAddresses) != 2 {
		t.Errorf("ToAddresses: got %d, want 2", len(dest.ToAddresses))
	}
	if len(dest.CcAddresses) != 1 {
		t.Errorf("CcAddresses: got %d, want 1", len(dest.CcAddresses))
	}
	if len(dest.BccAddresses) != 1 {
		t.Errorf("BccAddresses: got %d, want 1", len(dest.BccAddresses))
	}
	if len(mock.lastInput.ReplyToAddresses) != 1 {
		t.Errorf("ReplyToAddresses: got %d, want 1", len(mock.lastInput.ReplyToAddresses))
	}
}

func TestSend_WithAttachments(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := NewWithClient(mock)

	msg := buildMessage(t, func(e *email.Email) {
		e.SetSubject("With Attachment")
		e.SetBody(&email.Multipart{
			Text: "See attachment",
			Attachments: []email.Attachment{{
				Filename:    "test.txt",
				ContentType: "text/plain",
				Content:     []byte("file content"),
			}},
		})
	})

	if err := tr.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input := mock.lastInput
	if input.Content.Raw == nil {
		t.Fatal("expected raw email content for attachment, got nil")
	}
	if input.Content.Simple != nil {
		t.Error("expected no simple content when using raw message")
	}

	rawStr := string(input.Content.Raw.Data)
	if !strings.Contains(rawStr, "sender@example.com") {
		t.Error("raw message missing From header")
	}
	if !strings.Contains(rawStr, "Subject: With Attachment") {
		t.Error("raw message missing Subject header")
	}
	if !strings.Contains(rawStr, "multipart/mixed") {
		t.Error("raw message missing multipart/mixed content type")
	}
	if !strings.Contains(rawStr, "test.txt") {
		t.Error("raw message missing attachment filename")
	}
}

func TestSend_CustomHeadersForceRaw(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := NewWithClient(mock)

	msg := buildMessage(t, func(e *email.Email) {
		if err := e.AddHeader("X-Campaign", "spring"); err != nil {
			t.Fatalf("AddHeader: %v", err)
		}
		e.SetText("Hello")
	})

	if err := tr.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.lastInput.Content.Raw == nil {
		t.Fatal("expected raw content for message with custom headers")
	}
	if !strings.Contains(string(mock.lastInput.Content.Raw.Data), "X-Campaign: spring") {
		t.Error("raw message missing custom header")
	}
}

func TestSend_RetryOnError(t *testing.T) {
	t.Parallel()

	callCount := 0
	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			callCount++
			if callCount <= 2 {
				return nil, errors.New("transient error")
			}
			return &sesv2.SendEmailOutput{MessageId: aws.String("ok")}, nil
		},
	}
	tr := NewWithClient(mock)

	msg := buildMessage(t, func(e *email.Email) {
		e.SetText("Hello")
	})

	if err := tr.Send(context.Background(), msg); err != nil {
		t.Fatalf("expected success after retry, got: %v", err)
	}
	if callCount != 3 {
		t.Errorf("call count: got %d, want 3", callCount)
	}
}

func TestSend_AllRetriesExhausted(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, errors.New("persistent error")
		},
	}
	tr := NewWithClient(mock)

	msg := buildMessage(t, func(e *email.Email) {
		e.SetText("Hello")
	})

	err := tr.Send(context.Background(), msg)
	if err == nil {
		t.Fatal("expected error after all retries exhausted")
	}
	if !strings.Contains(err.Error(), "after 3 retries") {
		t.Errorf("error message: got %q, want to contain 'after 3 retries'", err.Error())
	}
	// 1 initial + 3 retries = 4 total
	if mock.callCount != 4 {
		t.Errorf("call count: got %d, want 4", mock.callCount)
	}
}

func TestSend_ContextCancelled(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, errors.New("error")
		},
	}
	tr := NewWithClient(mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	msg := buildMessage(t, func(e *email.Email) {
		e.SetText("Hello")
	})

	if err := tr.Send(ctx, msg); err == nil {
		t.Fatal("expected error when context cancelled")
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
	}

	for _, tt := range tests {
		if got := backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d): got %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

// Verify Transport satisfies the email.Transport interface.
func TestTransportInterface(t *testing.T) {
	t.Parallel()

	var _ email.Transport = (*Transport)(nil)
}
