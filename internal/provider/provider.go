// Package provider defines the interface for email delivery backends and
// builds the primary/fallback chain from configuration.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/shineum/contact-relay/internal/config"
	"github.com/shineum/contact-relay/internal/email"
	"github.com/shineum/contact-relay/internal/provider/graph"
	"github.com/shineum/contact-relay/internal/provider/mailgun"
	"github.com/shineum/contact-relay/internal/provider/null"
	"github.com/shineum/contact-relay/internal/provider/resend"
	"github.com/shineum/contact-relay/internal/provider/ses"
	"github.com/shineum/contact-relay/internal/provider/smtp"
	"github.com/shineum/contact-relay/internal/provider/sparkpost"
	"github.com/shineum/contact-relay/internal/provider/transport"
)

// Provider is the interface that email delivery backends must implement.
// Each provider performs exactly one backend call per Send and never retries.
type Provider interface {
	// Send delivers an email message through this provider.
	// It returns an error if the backend does not accept the message.
	Send(ctx context.Context, msg *email.Message) (email.Receipt, error)

	// Name returns the human-readable name of this provider.
	Name() string
}

// Chain is the ordered pair of providers used for delivery. Fallback may be nil.
type Chain struct {
	Primary  Provider
	Fallback Provider
}

// Names returns the provider names, with "" for a missing fallback.
func (c Chain) Names() (primary, fallback string) {
	if c.Primary != nil {
		primary = c.Primary.Name()
	}
	if c.Fallback != nil {
		fallback = c.Fallback.Name()
	}
	return primary, fallback
}

// autoOrder is the preference order when no provider is named explicitly.
var autoOrder = []string{"smtp", "resend", "sparkpost", "mailgun", "ses", "graph"}

// FromConfig builds the delivery chain. Explicit delivery.primary and
// delivery.fallback names win; otherwise the first two configured backends
// in autoOrder are used. With nothing configured the null provider is primary.
func FromConfig(ctx context.Context, cfg *config.Config) (Chain, error) {
	primaryName := strings.ToLower(strings.TrimSpace(cfg.Delivery.Primary))
	fallbackName := strings.ToLower(strings.TrimSpace(cfg.Delivery.Fallback))

	if primaryName != "" && primaryName == fallbackName {
		return Chain{}, &config.ConfigurationError{Field: "delivery.fallback", Reason: "must differ from delivery.primary"}
	}

	// An explicit primary only gets an explicit fallback.
	if primaryName == "" {
		var candidates []string
		for _, name := range autoOrder {
			if name != fallbackName && isConfigured(cfg, name) {
				candidates = append(candidates, name)
			}
		}
		if len(candidates) > 0 {
			primaryName = candidates[0]
		}
		if fallbackName == "" && len(candidates) > 1 {
			fallbackName = candidates[1]
		}
	}

	if primaryName == "" {
		if fallbackName != "" {
			return Chain{}, &config.ConfigurationError{Field: "delivery.fallback", Reason: "is set but no primary provider is configured"}
		}
		return Chain{Primary: null.New()}, nil
	}

	primary, err := build(ctx, cfg, "delivery.primary", primaryName)
	if err != nil {
		return Chain{}, err
	}

	chain := Chain{Primary: primary}
	if fallbackName != "" {
		if chain.Fallback, err = build(ctx, cfg, "delivery.fallback", fallbackName); err != nil {
			return Chain{}, err
		}
	}
	return chain, nil
}

// isConfigured reports whether the named backend has credentials.
func isConfigured(cfg *config.Config, name string) bool {
	switch name {
	case "smtp":
		return cfg.SMTPConfigured()
	case "resend":
		return cfg.ResendConfigured()
	case "sparkpost":
		return cfg.SparkPostConfigured()
	case "mailgun":
		return cfg.MailgunConfigured()
	case "ses":
		return cfg.SESConfigured()
	case "graph":
		return cfg.GraphConfigured()
	case "null":
		return true
	}
	return false
}

func build(ctx context.Context, cfg *config.Config, field, name string) (Provider, error) {
	switch name {
	case "smtp", "resend", "sparkpost", "mailgun", "ses", "graph", "null":
	default:
		return nil, &config.ConfigurationError{Field: field, Reason: fmt.Sprintf("names unknown provider %q", name)}
	}
	if !isConfigured(cfg, name) {
		return nil, &config.ConfigurationError{Field: field, Reason: fmt.Sprintf("names provider %q which is not configured", name)}
	}

	httpClient := transport.NewHTTPClient(cfg.Delivery.ConnectTimeout, cfg.Delivery.Timeout)

	switch name {
	case "smtp":
		return smtp.New(smtp.Config{
			Host:           cfg.SMTP.Host,
			Port:           cfg.SMTP.Port,
			Username:       cfg.SMTP.Username,
			Password:       cfg.SMTP.Password,
			ConnectTimeout: cfg.Delivery.ConnectTimeout,
			Timeout:        cfg.Delivery.Timeout,
		}), nil
	case "resend":
		return resend.New(resend.Config{APIKey: cfg.Resend.APIKey, HTTPClient: httpClient})
	case "sparkpost":
		return sparkpost.New(sparkpost.Config{
			APIKey:     cfg.SparkPost.APIKey,
			BaseURL:    cfg.SparkPost.BaseURL,
			HTTPClient: httpClient,
		}), nil
	case "mailgun":
		return mailgun.New(mailgun.Config{
			APIKey:     cfg.Mailgun.APIKey,
			Domain:     cfg.Mailgun.Domain,
			APIBase:    cfg.Mailgun.APIBase,
			HTTPClient: httpClient,
		}), nil
	case "ses":
		p, err := ses.New(ctx, ses.SESProviderConfig{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.Contact.From,
			ConnectTimeout:  cfg.Delivery.ConnectTimeout,
			Timeout:         cfg.Delivery.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES provider: %w", err)
		}
		return p, nil
	case "graph":
		return graph.New(graph.GraphProviderConfig{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
			HTTPClient:   httpClient,
		}), nil
	default:
		return null.New(), nil
	}
}
