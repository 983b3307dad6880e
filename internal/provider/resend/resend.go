// Package resend implements a Provider backed by the Resend HTTP API.
package resend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/resend/resend-go/v3"

	"github.com/shineum/contact-relay/internal/email"
)

// Config holds Resend settings.
type Config struct {
	APIKey     string
	HTTPClient *http.Client
	// BaseURL overrides the API endpoint. Must end with a slash.
	BaseURL string
}

// Provider sends messages through Resend.
type Provider struct {
	client *resend.Client
}

// New creates a Resend provider.
func New(cfg Config) (*Provider, error) {
	client := resend.NewCustomClient(cfg.HTTPClient, cfg.APIKey)
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid resend base url: %w", err)
		}
		client.BaseURL = u
	}
	return &Provider{client: client}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "resend"
}

// Send implements provider.Provider.
func (p *Provider) Send(ctx context.Context, msg *email.Message) (email.Receipt, error) {
	req := &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: msg.ReplyTo,
		Cc:      msg.Cc,
		Headers: msg.Headers,
	}

	sent, err := p.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return email.Receipt{}, fmt.Errorf("resend: failed to send email: %w", err)
	}

	return email.Receipt{MessageID: sent.Id}, nil
}
