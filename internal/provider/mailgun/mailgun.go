// Package mailgun implements a Provider backed by the Mailgun messages API.
package mailgun

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	mailgun "github.com/mailgun/mailgun-go/v5"

	"github.com/shineum/contact-relay/internal/email"
)

// Config holds Mailgun settings.
type Config struct {
	APIKey string
	Domain string
	// APIBase overrides the API root, e.g. the EU region endpoint.
	APIBase    string
	HTTPClient *http.Client
}

// Provider sends messages through Mailgun.
type Provider struct {
	domain string
	mg     mailgun.Mailgun
}

// New creates a Mailgun provider.
func New(cfg Config) *Provider {
	mg := mailgun.NewMailgun(cfg.APIKey)
	if cfg.APIBase != "" {
		mg.SetAPIBase(strings.TrimRight(cfg.APIBase, "/"))
	}
	if cfg.HTTPClient != nil {
		mg.SetHTTPClient(cfg.HTTPClient)
	}
	return &Provider{domain: cfg.Domain, mg: mg}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "mailgun"
}

// Send implements provider.Provider.
func (p *Provider) Send(ctx context.Context, msg *email.Message) (email.Receipt, error) {
	message := mailgun.NewMessage(p.domain, msg.From, msg.Subject, msg.Text)
	if err := message.AddRecipient(msg.To); err != nil {
		return email.Receipt{}, fmt.Errorf("add recipient: %w", err)
	}
	for _, cc := range msg.Cc {
		message.AddCC(cc)
	}
	if msg.ReplyTo != "" {
		message.SetReplyTo(msg.ReplyTo)
	}
	if msg.HTML != "" {
		message.SetHTML(msg.HTML)
	}

	names := make([]string, 0, len(msg.Headers))
	for name := range msg.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		message.AddHeader(name, msg.Headers[name])
	}

	resp, err := p.mg.Send(ctx, message)
	if err != nil {
		return email.Receipt{}, fmt.Errorf("mailgun send: %w", err)
	}

	return email.Receipt{MessageID: resp.ID}, nil
}
