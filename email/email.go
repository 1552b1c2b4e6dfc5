// Package email assembles addresses, headers, and content into MIME
// messages and hands them to a Transport for delivery. The Email builder
// validates its inputs as they are added; the actual wire-level submission
// lives behind the Transport interface.
package email

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync/atomic"
	"time"
)

// Default submission ports.
const (
	DefaultPort    = 25
	DefaultSSLPort = 465
)

// HostEnv is the environment variable consulted as a process-wide host
// name fallback when the builder itself has none configured.
const HostEnv = "SMTP_HOST"

// Transport delivers built messages. Implementations wrap a concrete
// delivery backend such as SMTP submission, a provider HTTP API, or
// stdout for dry runs.
type Transport interface {
	// Send delivers the message. It returns an error if delivery fails.
	Send(ctx context.Context, msg *Message) error

	// Name returns the human-readable name of the backend.
	Name() string
}

// Email accumulates everything needed to produce a Message and a Session.
// The zero value is ready to use. Email is not safe for concurrent use.
type Email struct {
	hostName       string
	smtpPort       int
	sslPort        int
	ssl            bool
	connectTimeout time.Duration
	socketTimeout  time.Duration
	bounce         string
	username       string
	password       string

	from    *mail.Address
	to      []*mail.Address
	cc      []*mail.Address
	bcc     []*mail.Address
	replyTo []*mail.Address

	subject string
	headers []Header

	content     string
	contentType string
	hasContent  bool
	body        *Multipart

	sentDate time.Time

	session *Session
	message *Message
}

// New returns an empty builder.
func New() *Email {
	return &Email{}
}

// AddTo appends one or more To recipients. Every input must be a
// syntactically valid address; on the first invalid input the call stops
// and reports an *AddressError without appending it.
func (e *Email) AddTo(addresses ...string) error {
	return appendAddresses(&e.to, addresses)
}

// AddCc appends one or more Cc recipients.
func (e *Email) AddCc(addresses ...string) error {
	return appendAddresses(&e.cc, addresses)
}

// AddBcc appends one or more Bcc recipients.
func (e *Email) AddBcc(addresses ...string) error {
	return appendAddresses(&e.bcc, addresses)
}

// AddReplyTo appends a reply-to address with an optional display name.
func (e *Email) AddReplyTo(address, name string) error {
	a, err := parseAddress(address, name)
	if err != nil {
		return err
	}
	e.replyTo = append(e.replyTo, a)
	return nil
}

// To returns the accumulated To recipients.
func (e *Email) To() []*mail.Address { return e.to }

// Cc returns the accumulated Cc recipients.
func (e *Email) Cc() []*mail.Address { return e.cc }

// Bcc returns the accumulated Bcc recipients.
func (e *Email) Bcc() []*mail.Address { return e.bcc }

// ReplyTo returns the accumulated reply-to addresses.
func (e *Email) ReplyTo() []*mail.Address { return e.replyTo }

// SetFrom sets the sender address.
func (e *Email) SetFrom(address string) error {
	return e.SetFromWithName(address, "")
}

// SetFromWithName sets the sender address with a display name.
func (e *Email) SetFromWithName(address, name string) error {
	a, err := parseAddress(address, name)
	if err != nil {
		return err
	}
	e.from = a
	return nil
}

// From returns the sender address, or nil if none was set.
func (e *Email) From() *mail.Address { return e.from }

// AddHeader records a custom header. Both name and value must be
// non-empty; duplicates by name are allowed and preserved in order.
func (e *Email) AddHeader(name, value string) error {
	if name == "" {
		return ErrEmptyHeaderName
	}
	if value == "" {
		return ErrEmptyHeaderValue
	}
	e.headers = append(e.headers, Header{Name: name, Value: value})
	return nil
}

// Headers returns the accumulated custom headers.
func (e *Email) Headers() []Header { return e.headers }

// SetSubject sets the message subject.
func (e *Email) SetSubject(subject string) { e.subject = subject }

// Subject returns the message subject.
func (e *Email) Subject() string { return e.subject }

// SetText sets plain-text message content.
func (e *Email) SetText(body string) {
	e.SetContent(body, TextPlain)
}

// SetHTML sets HTML message content.
func (e *Email) SetHTML(body string) {
	e.SetContent(body, TextHTML)
}

// SetContent sets explicit message content with the given content type.
// Explicit content takes precedence over a multipart body at build time.
func (e *Email) SetContent(body, contentType string) {
	e.content = body
	e.contentType = contentType
	e.hasContent = true
}

// SetBody attaches a prebuilt multipart body. It is used at build time
// only when no explicit content was set.
func (e *Email) SetBody(body *Multipart) { e.body = body }

// Attach adds an attachment, creating the multipart body when needed.
func (e *Email) Attach(att Attachment) {
	if e.body == nil {
		e.body = &Multipart{}
	}
	e.body.Attach(att)
}

// AttachFile reads path and attaches its contents.
func (e *Email) AttachFile(path string) error {
	if e.body == nil {
		e.body = &Multipart{}
	}
	return e.body.AttachFile(path)
}

// SetHostName sets the mail server host name used for session creation.
func (e *Email) SetHostName(host string) { e.hostName = host }

// HostName returns the configured mail server host name.
func (e *Email) HostName() string { return e.hostName }

// SetSMTPPort sets the plain submission port. Defaults to 25.
func (e *Email) SetSMTPPort(port int) { e.smtpPort = port }

// SetSSLPort sets the port used when SSL-on-connect is enabled.
// Defaults to 465.
func (e *Email) SetSSLPort(port int) { e.sslPort = port }

// SetSSLOnConnect toggles implicit TLS for the whole connection.
func (e *Email) SetSSLOnConnect(ssl bool) { e.ssl = ssl }

// SetConnectionTimeout sets the timeout for establishing the server
// connection.
func (e *Email) SetConnectionTimeout(d time.Duration) { e.connectTimeout = d }

// ConnectionTimeout returns the configured connection timeout.
func (e *Email) ConnectionTimeout() time.Duration { return e.connectTimeout }

// SetSocketTimeout sets the I/O timeout applied once connected.
func (e *Email) SetSocketTimeout(d time.Duration) { e.socketTimeout = d }

// SocketTimeout returns the configured I/O timeout.
func (e *Email) SocketTimeout() time.Duration { return e.socketTimeout }

// SetBounceAddress sets the envelope sender used for delivery-failure
// notices. An empty string clears it; anything else must be a valid
// address.
func (e *Email) SetBounceAddress(address string) error {
	if address == "" {
		e.bounce = ""
		return nil
	}
	a, err := parseAddress(address, "")
	if err != nil {
		return err
	}
	e.bounce = a.Address
	return nil
}

// BounceAddress returns the configured envelope sender.
func (e *Email) BounceAddress() string { return e.bounce }

// SetAuthentication sets the credentials used for submission.
func (e *Email) SetAuthentication(username, password string) {
	e.username = username
	e.password = password
}

// SetSentDate sets an explicit sent date. When unset, Build stamps the
// message with the current time.
func (e *Email) SetSentDate(t time.Time) { e.sentDate = t }

// SentDate returns the explicit sent date, zero if none was set.
func (e *Email) SentDate() time.Time { return e.sentDate }

// Build assembles the message. It may be called at most once per builder;
// later calls fail with ErrAlreadyBuilt. A sender and at least one
// recipient across To, Cc, and Bcc are required. Content resolution
// prefers explicit content, then the multipart body, then the empty
// string.
func (e *Email) Build() (*Message, error) {
	if e.message != nil {
		return nil, ErrAlreadyBuilt
	}
	if e.from == nil {
		return nil, ErrMissingFrom
	}
	if len(e.to)+len(e.cc)+len(e.bcc) == 0 {
		return nil, ErrNoReceivers
	}

	date := e.sentDate
	if date.IsZero() {
		date = time.Now()
	}

	m := &Message{
		From:      e.from,
		To:        e.to,
		Cc:        e.cc,
		Bcc:       e.bcc,
		ReplyTo:   e.replyTo,
		Subject:   e.subject,
		Headers:   e.headers,
		Date:      date,
		MessageID: generateMessageID(e.from),
	}

	switch {
	case e.hasContent:
		m.Text = e.content
		m.ContentType = e.contentType
	case e.body != nil:
		m.Body = e.body
	default:
		m.Text = ""
		m.ContentType = TextPlain
	}

	e.message = m
	return m, nil
}

// Message returns the built message, or nil before a successful Build.
func (e *Email) Message() *Message { return e.message }

// Send builds the message if it has not been built yet and delivers it
// through the given transport.
func (e *Email) Send(ctx context.Context, t Transport) error {
	if e.message == nil {
		if _, err := e.Build(); err != nil {
			return err
		}
	}
	if err := t.Send(ctx, e.message); err != nil {
		return fmt.Errorf("%s delivery failed: %w", t.Name(), err)
	}
	return nil
}

// appendAddresses validates and appends every input, stopping at the
// first invalid one.
func appendAddresses(list *[]*mail.Address, addresses []string) error {
	for _, address := range addresses {
		a, err := parseAddress(address, "")
		if err != nil {
			return err
		}
		*list = append(*list, a)
	}
	return nil
}

// parseAddress validates a single address string, optionally overriding
// its display name.
func parseAddress(address, name string) (*mail.Address, error) {
	a, err := mail.ParseAddress(address)
	if err != nil {
		return nil, &AddressError{Input: address, Err: err}
	}
	if name != "" {
		a.Name = name
	}
	return a, nil
}

// messageIDCounter disambiguates Message-IDs generated within the same
// nanosecond.
var messageIDCounter atomic.Int64

// generateMessageID produces a unique Message-ID scoped to the sender
// domain.
func generateMessageID(from *mail.Address) string {
	return fmt.Sprintf("<%d.%d@%s>", time.Now().UnixNano(), messageIDCounter.Add(1), addressDomain(from.Address))
}

// addressDomain extracts the domain part of an address, defaulting to
// localhost for malformed input.
func addressDomain(address string) string {
	if idx := strings.LastIndex(address, "@"); idx >= 0 {
		return address[idx+1:]
	}
	return "localhost"
}
