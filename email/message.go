package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"time"
)

// Common content types.
const (
	TextPlain = "text/plain"
	TextHTML  = "text/html"
)

// Header is a single custom message header. Duplicate names are allowed and
// rendered as separate header lines in insertion order.
type Header struct {
	Name  string
	Value string
}

// Message is a fully assembled email message, produced exactly once per
// builder by Build. Exactly one of Text (with ContentType) or Body carries
// the message content.
type Message struct {
	From      *mail.Address
	To        []*mail.Address
	Cc        []*mail.Address
	Bcc       []*mail.Address
	ReplyTo   []*mail.Address
	Subject   string
	Headers   []Header
	Date      time.Time
	MessageID string

	Text        string
	ContentType string
	Body        *Multipart
}

// Content reports the effective message content: the multipart body when
// one was attached, otherwise the plain content string (possibly empty).
func (m *Message) Content() any {
	if m.Body != nil {
		return m.Body
	}
	return m.Text
}

// TextBody returns the plain-text rendition of the content, or "" if the
// message has none.
func (m *Message) TextBody() string {
	if m.Body != nil {
		return m.Body.Text
	}
	if m.ContentType == TextHTML {
		return ""
	}
	return m.Text
}

// HTMLBody returns the HTML rendition of the content, or "" if the message
// has none.
func (m *Message) HTMLBody() string {
	if m.Body != nil {
		return m.Body.HTML
	}
	if m.ContentType == TextHTML {
		return m.Text
	}
	return ""
}

// Attachments returns the attachments of the multipart body, if any.
func (m *Message) Attachments() []Attachment {
	if m.Body == nil {
		return nil
	}
	return m.Body.Attachments
}

// Recipients returns the mailbox of every To, Cc, and Bcc address, in that
// order. This is the envelope recipient set used for SMTP submission.
func (m *Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	for _, list := range [][]*mail.Address{m.To, m.Cc, m.Bcc} {
		for _, a := range list {
			out = append(out, a.Address)
		}
	}
	return out
}

// Bytes renders the message into RFC 5322 wire form with CRLF line endings.
// Bcc addresses are intentionally left out of the rendered headers.
func (m *Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", m.From.String())
	writeAddressList(&buf, "To", m.To)
	writeAddressList(&buf, "Cc", m.Cc)
	writeAddressList(&buf, "Reply-To", m.ReplyTo)
	fmt.Fprintf(&buf, "Subject: %s\r\n", encodeHeaderValue(m.Subject))

	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))

	if m.MessageID != "" {
		fmt.Fprintf(&buf, "Message-ID: %s\r\n", m.MessageID)
	}

	for _, h := range m.Headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.Name, encodeHeaderValue(h.Value))
	}

	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")

	if m.Body != nil {
		if err := writeMultipartBody(&buf, m.Body); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	ctype := m.ContentType
	if ctype == "" {
		ctype = TextPlain
	}
	if strings.HasPrefix(ctype, "text/") {
		ctype += "; charset=UTF-8"
	}
	fmt.Fprintf(&buf, "Content-Type: %s\r\n\r\n", ctype)
	buf.WriteString(m.Text)

	return buf.Bytes(), nil
}

// WriteTo renders the message to w. It implements io.WriterTo.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	raw, err := m.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(raw)
	return int64(n), err
}

// writeMultipartBody renders a multipart/mixed body. When both text and
// HTML alternatives are present they are nested in a multipart/alternative
// part ahead of the attachments.
func writeMultipartBody(buf *bytes.Buffer, body *Multipart) error {
	writer := multipart.NewWriter(buf)
	fmt.Fprintf(buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	switch {
	case body.Text != "" && body.HTML != "":
		if err := writeAlternative(writer, body); err != nil {
			return err
		}
	case body.HTML != "":
		if err := writeTextPart(writer, TextHTML, body.HTML); err != nil {
			return err
		}
	case body.Text != "":
		if err := writeTextPart(writer, TextPlain, body.Text); err != nil {
			return err
		}
	}

	for _, att := range body.Attachments {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Type", att.ContentType)
		header.Set("Content-Transfer-Encoding", "base64")
		header.Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", mime.QEncoding.Encode("UTF-8", att.Filename)))

		part, err := writer.CreatePart(header)
		if err != nil {
			return fmt.Errorf("failed to create attachment part: %w", err)
		}
		if _, err := part.Write([]byte(encodeBase64WithLineBreaks(att.Content))); err != nil {
			return fmt.Errorf("failed to write attachment: %w", err)
		}
	}

	return writer.Close()
}

// writeAlternative writes a nested multipart/alternative part carrying the
// text and HTML renditions, text first per RFC 2046 preference order.
func writeAlternative(mixed *multipart.Writer, body *Multipart) error {
	var nested bytes.Buffer
	alt := multipart.NewWriter(&nested)
	if err := writeTextPart(alt, TextPlain, body.Text); err != nil {
		return err
	}
	if err := writeTextPart(alt, TextHTML, body.HTML); err != nil {
		return err
	}
	if err := alt.Close(); err != nil {
		return err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Type",
		fmt.Sprintf("multipart/alternative; boundary=%q", alt.Boundary()))
	part, err := mixed.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create alternative part: %w", err)
	}
	_, err = part.Write(nested.Bytes())
	return err
}

// writeTextPart writes a single text/* part with UTF-8 charset.
func writeTextPart(writer *multipart.Writer, ctype, content string) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", ctype+"; charset=UTF-8")
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create body part: %w", err)
	}
	_, err = part.Write([]byte(content))
	return err
}

// writeAddressList writes a formatted address header line, or nothing when
// the list is empty.
func writeAddressList(buf *bytes.Buffer, name string, addrs []*mail.Address) {
	if len(addrs) == 0 {
		return
	}
	formatted := make([]string, 0, len(addrs))
	for _, a := range addrs {
		formatted = append(formatted, a.String())
	}
	fmt.Fprintf(buf, "%s: %s\r\n", name, strings.Join(formatted, ", "))
}

// encodeHeaderValue Q-encodes a header value when it contains characters
// that cannot be represented in plain ASCII headers.
func encodeHeaderValue(v string) string {
	return mime.QEncoding.Encode("UTF-8", v)
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character
// line breaks per RFC 2045.
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
