// Package graph implements a Transport that delivers messages via the
// Microsoft Graph API.
package graph

import (
	"encoding/base64"
	"net/mail"

	"github.com/shineum/mail-courier-lite/email"
)

// sendMailRequest is the top-level request body for the Graph API sendMail endpoint.
type sendMailRequest struct {
	Message sendMailMessage `json:"message"`
}

// sendMailMessage represents the message portion of a sendMail request.
type sendMailMessage struct {
	Subject                string            `json:"subject"`
	Body                   messageBody       `json:"body"`
	ToRecipients           []recipient       `json:"toRecipients"`
	CcRecipients           []recipient       `json:"ccRecipients,omitempty"`
	BccRecipients          []recipient       `json:"bccRecipients,omitempty"`
	ReplyTo                []recipient       `json:"replyTo,omitempty"`
	Attachments            []graphAttachment `json:"attachments,omitempty"`
	InternetMessageHeaders []messageHeader   `json:"internetMessageHeaders,omitempty"`
}

// messageBody represents the body of an email message.
type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// recipient represents an email recipient.
type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

// emailAddress represents an email address in a Graph API request.
type emailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// messageHeader is a custom internet message header. Graph requires the
// name to start with "x-" or "X-".
type messageHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// graphAttachment represents a file attachment in a Graph API request.
type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

// tokenResponse represents the OAuth2 token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// graphErrorResponse represents an error response from the Graph API.
type graphErrorResponse struct {
	Error graphError `json:"error"`
}

// graphError represents the error detail in a Graph API error response.
type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// buildSendMailRequest converts an email.Message into a Graph API sendMail
// request body.
func buildSendMailRequest(msg *email.Message) *sendMailRequest {
	body := messageBody{
		ContentType: "text",
		Content:     msg.TextBody(),
	}
	if html := msg.HTMLBody(); html != "" {
		body.ContentType = "html"
		body.Content = html
	}

	attachments := make([]graphAttachment, 0, len(msg.Attachments()))
	for _, att := range msg.Attachments() {
		attachments = append(attachments, graphAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         att.Filename,
			ContentType:  att.ContentType,
			ContentBytes: base64.StdEncoding.EncodeToString(att.Content),
		})
	}

	headers := make([]messageHeader, 0, len(msg.Headers))
	for _, h := range msg.Headers {
		headers = append(headers, messageHeader{Name: h.Name, Value: h.Value})
	}

	return &sendMailRequest{
		Message: sendMailMessage{
			Subject:                msg.Subject,
			Body:                   body,
			ToRecipients:           buildRecipients(msg.To),
			CcRecipients:           buildRecipients(msg.Cc),
			BccRecipients:          buildRecipients(msg.Bcc),
			ReplyTo:                buildRecipients(msg.ReplyTo),
			Attachments:            attachments,
			InternetMessageHeaders: headers,
		},
	}
}

// buildRecipients maps addresses onto Graph recipients, keeping display names.
func buildRecipients(addrs []*mail.Address) []recipient {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]recipient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, recipient{
			EmailAddress: emailAddress{Address: a.Address, Name: a.Name},
		})
	}
	return out
}
