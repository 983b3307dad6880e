// Package compose renders the owner notification and the submitter
// confirmation for a validated submission.
package compose

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/contact-relay/internal/contact"
	"github.com/shineum/contact-relay/internal/email"
)

// maxMetaLength caps request metadata copied into the owner message.
const maxMetaLength = 512

// ReferenceHeader carries the submission reference on every outbound message.
const ReferenceHeader = "X-Contact-Reference"

//go:embed templates/*.tmpl
var templateFS embed.FS

// Settings are the fixed addresses and wording of the outbound messages.
type Settings struct {
	// From is the sender address for both messages.
	From string
	// Owner receives the notification and is the reply-to of the confirmation.
	Owner               string
	Cc                  []string
	SiteName            string
	ConfirmationSubject string
}

// Meta is optional request metadata shown to the owner.
type Meta struct {
	ClientIP    string
	UserAgent   string
	Referer     string
	SubmittedAt time.Time
	// Reference identifies the submission in mail and logs. Generated when empty.
	Reference string
}

// Composer builds outbound messages from embedded templates. It is safe for
// concurrent use.
type Composer struct {
	settings      Settings
	ownerHTML     *htmltemplate.Template
	ownerText     *texttemplate.Template
	submitterHTML *htmltemplate.Template
	submitterText *texttemplate.Template
}

// view is the data every template receives.
type view struct {
	SiteName    string
	Name        string
	Email       string
	Subject     string
	Message     string
	ClientIP    string
	UserAgent   string
	Referer     string
	SubmittedAt string
	Reference   string
}

// New parses the templates once.
func New(settings Settings) (*Composer, error) {
	if settings.SiteName == "" {
		settings.SiteName = "Portfolio"
	}
	if settings.ConfirmationSubject == "" {
		settings.ConfirmationSubject = "Thanks for your message"
	}

	c := &Composer{settings: settings}

	var err error
	if c.ownerHTML, err = htmltemplate.ParseFS(templateFS, "templates/owner.html.tmpl"); err != nil {
		return nil, fmt.Errorf("failed to parse owner html template: %w", err)
	}
	if c.ownerText, err = texttemplate.ParseFS(templateFS, "templates/owner.txt.tmpl"); err != nil {
		return nil, fmt.Errorf("failed to parse owner text template: %w", err)
	}
	if c.submitterHTML, err = htmltemplate.ParseFS(templateFS, "templates/submitter.html.tmpl"); err != nil {
		return nil, fmt.Errorf("failed to parse submitter html template: %w", err)
	}
	if c.submitterText, err = texttemplate.ParseFS(templateFS, "templates/submitter.txt.tmpl"); err != nil {
		return nil, fmt.Errorf("failed to parse submitter text template: %w", err)
	}
	return c, nil
}

// Compose renders both messages. The HTML bodies escape every interpolated
// value; the text bodies carry the sanitized values verbatim.
func (c *Composer) Compose(sub contact.CleanSubmission, meta Meta) (owner, submitter *email.Message, err error) {
	if meta.Reference == "" {
		meta.Reference = uuid.NewString()
	}
	if meta.SubmittedAt.IsZero() {
		meta.SubmittedAt = time.Now()
	}

	v := view{
		SiteName:    c.settings.SiteName,
		Name:        sub.Name,
		Email:       sub.Email,
		Subject:     sub.Subject,
		Message:     sub.Message,
		ClientIP:    contact.StripControl(meta.ClientIP, maxMetaLength),
		UserAgent:   contact.StripControl(meta.UserAgent, maxMetaLength),
		Referer:     contact.StripControl(meta.Referer, maxMetaLength),
		SubmittedAt: meta.SubmittedAt.UTC().Format(time.RFC1123),
		Reference:   meta.Reference,
	}

	ownerHTML, err := renderHTML(c.ownerHTML, v)
	if err != nil {
		return nil, nil, err
	}
	ownerText, err := renderText(c.ownerText, v)
	if err != nil {
		return nil, nil, err
	}
	submitterHTML, err := renderHTML(c.submitterHTML, v)
	if err != nil {
		return nil, nil, err
	}
	submitterText, err := renderText(c.submitterText, v)
	if err != nil {
		return nil, nil, err
	}

	headers := map[string]string{ReferenceHeader: meta.Reference}

	owner = &email.Message{
		From:    c.settings.From,
		To:      c.settings.Owner,
		ReplyTo: sub.Email,
		Cc:      append([]string(nil), c.settings.Cc...),
		Subject: fmt.Sprintf("[%s] %s (from %s)", c.settings.SiteName, sub.Subject, sub.Name),
		Text:    ownerText,
		HTML:    ownerHTML,
		Headers: headers,
	}
	submitter = &email.Message{
		From:    c.settings.From,
		To:      sub.Email,
		ReplyTo: c.settings.Owner,
		Subject: c.settings.ConfirmationSubject,
		Text:    submitterText,
		HTML:    submitterHTML,
		Headers: map[string]string{ReferenceHeader: meta.Reference},
	}
	return owner, submitter, nil
}

func renderHTML(t *htmltemplate.Template, v view) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func renderText(t *texttemplate.Template, v view) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
