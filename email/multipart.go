package email

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
)

// Multipart is a composite message body: optional text and HTML
// alternatives plus any number of attachments.
type Multipart struct {
	Text        string
	HTML        string
	Attachments []Attachment
}

// Attachment represents a file attached to a message body.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Attach adds an attachment to the body.
func (p *Multipart) Attach(att Attachment) {
	p.Attachments = append(p.Attachments, att)
}

// AttachFile reads path and attaches its contents. The content type is
// derived from the file extension, falling back to application/octet-stream.
func (p *Multipart) AttachFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read attachment: %w", err)
	}
	name := filepath.Base(path)
	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	p.Attach(Attachment{
		Filename:    name,
		ContentType: ctype,
		Content:     content,
	})
	return nil
}
