// Package graph implements a Provider that sends emails via the Microsoft Graph API.
package graph

import (
	"sort"

	"github.com/shineum/contact-relay/internal/email"
)

// sendMailRequest is the top-level request body for the Graph API sendMail endpoint.
type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

// sendMailMessage represents the message portion of a sendMail request.
type sendMailMessage struct {
	Subject                string           `json:"subject"`
	Body                   messageBody      `json:"body"`
	ToRecipients           []recipient      `json:"toRecipients"`
	CcRecipients           []recipient      `json:"ccRecipients,omitempty"`
	ReplyTo                []recipient      `json:"replyTo,omitempty"`
	InternetMessageHeaders []internetHeader `json:"internetMessageHeaders,omitempty"`
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
}

// internetHeader is a custom X- header carried on the message.
type internetHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
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
// request body. Graph carries one body, so HTML wins over text.
func buildSendMailRequest(msg *email.Message) *sendMailRequest {
	body := messageBody{
		ContentType: "text",
		Content:     msg.Text,
	}
	if msg.HTML != "" {
		body.ContentType = "html"
		body.Content = msg.HTML
	}

	ccRecipients := make([]recipient, 0, len(msg.Cc))
	for _, addr := range msg.Cc {
		ccRecipients = append(ccRecipients, toRecipient(addr))
	}

	var replyTo []recipient
	if msg.ReplyTo != "" {
		replyTo = []recipient{toRecipient(msg.ReplyTo)}
	}

	names := make([]string, 0, len(msg.Headers))
	for name := range msg.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := make([]internetHeader, 0, len(names))
	for _, name := range names {
		headers = append(headers, internetHeader{Name: name, Value: msg.Headers[name]})
	}

	return &sendMailRequest{
		Message: sendMailMessage{
			Subject:                msg.Subject,
			Body:                   body,
			ToRecipients:           []recipient{toRecipient(msg.To)},
			CcRecipients:           ccRecipients,
			ReplyTo:                replyTo,
			InternetMessageHeaders: headers,
		},
	}
}

func toRecipient(addr string) recipient {
	return recipient{EmailAddress: emailAddress{Address: addr}}
}
