// Package smtp implements a Transport that submits messages to an SMTP
// server over the raw protocol: EHLO, opportunistic STARTTLS or implicit
// TLS, AUTH LOGIN with a PLAIN fallback, and DATA with dot-stuffing.
package smtp

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/shineum/mail-courier-lite/email"
)

// Option customizes a Transport.
type Option func(*Transport)

// WithTLSConfig sets the TLS configuration used for STARTTLS or implicit
// TLS connections. Without it a default config verifying the session host
// is used.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(t *Transport) {
		t.tlsConfig = cfg
	}
}

// WithSigner installs a hook that rewrites the rendered message before
// submission, typically to add a DKIM-Signature header.
func WithSigner(sign func([]byte) ([]byte, error)) Option {
	return func(t *Transport) {
		t.sign = sign
	}
}

// Transport submits messages over SMTP using the settings resolved into
// an email.Session.
type Transport struct {
	session   *email.Session
	tlsConfig *tls.Config
	sign      func([]byte) ([]byte, error)
}

// New creates an SMTP Transport for the given session.
func New(session *email.Session, opts ...Option) *Transport {
	t := &Transport{session: session}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "smtp"
}

// Send submits the message. The envelope sender is the session bounce
// address when set, otherwise the From address; the envelope recipients
// are To, Cc, and Bcc combined.
func (t *Transport) Send(ctx context.Context, msg *email.Message) error {
	if msg.From == nil {
		return fmt.Errorf("message has no sender")
	}

	envelopeFrom := t.session.Bounce
	if envelopeFrom == "" {
		envelopeFrom = msg.From.Address
	}
	recipients := msg.Recipients()
	if len(recipients) == 0 {
		return fmt.Errorf("message has no recipients")
	}

	raw, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("failed to render message: %w", err)
	}
	if t.sign != nil {
		raw, err = t.sign(raw)
		if err != nil {
			return fmt.Errorf("failed to sign message: %w", err)
		}
	}

	dialer := &net.Dialer{Timeout: t.session.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.session.Addr())
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	if t.session.Timeout > 0 {
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetDeadline(deadline)
		} else {
			conn.SetDeadline(time.Now().Add(t.session.Timeout))
		}
	}

	tlsActive := false
	if t.session.SSL {
		tlsConn := tls.Client(conn, t.clientTLSConfig())
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return fmt.Errorf("TLS handshake failed: %w", err)
		}
		conn = tlsConn
		tlsActive = true
	}

	tp := textproto.NewConn(conn)

	if _, _, err := tp.ReadResponse(220); err != nil {
		return fmt.Errorf("greeting failed: %w", err)
	}

	sendCommand := func(expectCode int, format string, args ...any) error {
		id, err := tp.Cmd(format, args...)
		if err != nil {
			return err
		}
		tp.StartResponse(id)
		defer tp.EndResponse(id)
		if _, _, err := tp.ReadResponse(expectCode); err != nil {
			return err
		}
		return nil
	}

	domain := addressDomain(envelopeFrom)

	if err := sendCommand(250, "EHLO %s", domain); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	// Opportunistic STARTTLS on plaintext connections
	if !tlsActive {
		if id, err := tp.Cmd("STARTTLS"); err == nil {
			tp.StartResponse(id)
			code, _, err := tp.ReadResponse(220)
			tp.EndResponse(id)

			if err == nil && code == 220 {
				tlsConn := tls.Client(conn, t.clientTLSConfig())
				if err := tlsConn.HandshakeContext(ctx); err != nil {
					return fmt.Errorf("TLS handshake failed: %w", err)
				}
				conn = tlsConn
				tp = textproto.NewConn(tlsConn)

				if err := sendCommand(250, "EHLO %s", domain); err != nil {
					return fmt.Errorf("post-TLS EHLO failed: %w", err)
				}
			} else {
				slog.Debug("server declined STARTTLS, continuing in plaintext",
					"host", t.session.Host,
				)
			}
		}
	}

	if t.session.AuthEnabled() {
		if err := t.authenticate(sendCommand); err != nil {
			return err
		}
	}

	if err := sendCommand(250, "MAIL FROM:<%s>", envelopeFrom); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	for _, rcpt := range recipients {
		if err := sendCommand(250, "RCPT TO:<%s>", rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s failed: %w", rcpt, err)
		}
	}

	if err := sendCommand(354, "DATA"); err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}

	// DotWriter handles dot-stuffing and the closing terminator
	dw := tp.Writer.DotWriter()
	if _, err := dw.Write(raw); err != nil {
		dw.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := dw.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	if _, _, err := tp.ReadResponse(250); err != nil {
		return fmt.Errorf("message rejected: %w", err)
	}

	_ = sendCommand(221, "QUIT")
	return nil
}

// authenticate tries AUTH LOGIN first, falling back to AUTH PLAIN.
func (t *Transport) authenticate(sendCommand func(int, string, ...any) error) error {
	userB64 := base64.StdEncoding.EncodeToString([]byte(t.session.Username))
	passB64 := base64.StdEncoding.EncodeToString([]byte(t.session.Password))

	if err := sendCommand(334, "AUTH LOGIN"); err == nil {
		if err := sendCommand(334, "%s", userB64); err != nil {
			return fmt.Errorf("AUTH LOGIN username rejected: %w", err)
		}
		if err := sendCommand(235, "%s", passB64); err != nil {
			return fmt.Errorf("AUTH LOGIN password rejected: %w", err)
		}
		return nil
	}

	plain := base64.StdEncoding.EncodeToString(
		[]byte("\x00" + t.session.Username + "\x00" + t.session.Password),
	)
	if err := sendCommand(235, "AUTH PLAIN %s", plain); err != nil {
		return fmt.Errorf("AUTH failed: %w", err)
	}
	return nil
}

// clientTLSConfig returns the configured TLS config or a default that
// verifies the session host.
func (t *Transport) clientTLSConfig() *tls.Config {
	if t.tlsConfig != nil {
		return t.tlsConfig
	}
	return &tls.Config{
		ServerName: t.session.Host,
		MinVersion: tls.VersionTLS12,
	}
}

// addressDomain extracts the domain part from an email address.
func addressDomain(address string) string {
	if idx := strings.LastIndex(address, "@"); idx >= 0 {
		return address[idx+1:]
	}
	return "localhost"
}
