// Package smtp implements a Provider that delivers through an authenticated
// SMTP relay.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	netsmtp "net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/contact-relay/internal/email"
)

// implicitTLSPort is the submissions port, where TLS starts before SMTP.
const implicitTLSPort = 465

// Config holds relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// ImplicitTLS dials TLS directly instead of upgrading with STARTTLS.
	// New enables it for port 465.
	ImplicitTLS bool

	ConnectTimeout time.Duration
	Timeout        time.Duration

	// TLSConfig overrides the client TLS settings. ServerName defaults to Host.
	TLSConfig *tls.Config
}

// Provider sends each message over a fresh SMTP connection.
type Provider struct {
	cfg Config
}

// New creates a Provider for the given relay.
func New(cfg Config) *Provider {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Port == implicitTLSPort {
		cfg.ImplicitTLS = true
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Provider{cfg: cfg}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}

// Send performs one complete SMTP transaction. The whole exchange is bounded
// by the configured timeout or the context deadline, whichever comes first.
func (p *Provider) Send(ctx context.Context, msg *email.Message) (email.Receipt, error) {
	from := envelopeAddress(msg.From)
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), messageIDDomain(from))

	raw, err := email.BuildMIME(msg, messageID, time.Now())
	if err != nil {
		return email.Receipt{}, fmt.Errorf("failed to build message: %w", err)
	}

	conn, err := p.dial(ctx)
	if err != nil {
		return email.Receipt{}, fmt.Errorf("failed to connect to %s: %w", p.addr(), err)
	}

	deadline := time.Now().Add(p.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return email.Receipt{}, fmt.Errorf("failed to set connection deadline: %w", err)
	}

	// Cancellation unblocks any pending read or write.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := netsmtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		conn.Close()
		return email.Receipt{}, fmt.Errorf("SMTP greeting failed: %w", err)
	}
	defer c.Close()

	if !p.cfg.ImplicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(p.tlsConfig()); err != nil {
				return email.Receipt{}, fmt.Errorf("STARTTLS failed: %w", err)
			}
		}
	}

	if p.cfg.Username != "" {
		auth := netsmtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return email.Receipt{}, fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := c.Mail(from); err != nil {
		return email.Receipt{}, fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	for _, rcpt := range msg.Recipients() {
		if err := c.Rcpt(envelopeAddress(rcpt)); err != nil {
			return email.Receipt{}, fmt.Errorf("RCPT TO %s rejected: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return email.Receipt{}, fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return email.Receipt{}, fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return email.Receipt{}, fmt.Errorf("message rejected: %w", err)
	}

	if err := c.Quit(); err != nil {
		// The message was already accepted at this point.
		slog.DebugContext(ctx, "SMTP QUIT failed", "error", err)
	}

	return email.Receipt{MessageID: messageID}, nil
}

func (p *Provider) addr() string {
	return net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
}

func (p *Provider) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: p.cfg.ConnectTimeout}
	if p.cfg.ImplicitTLS {
		td := &tls.Dialer{NetDialer: dialer, Config: p.tlsConfig()}
		return td.DialContext(ctx, "tcp", p.addr())
	}
	return dialer.DialContext(ctx, "tcp", p.addr())
}

func (p *Provider) tlsConfig() *tls.Config {
	cfg := &tls.Config{}
	if p.cfg.TLSConfig != nil {
		cfg = p.cfg.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = p.cfg.Host
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	return cfg
}

// envelopeAddress strips any display name from an address.
func envelopeAddress(s string) string {
	if addr, err := mail.ParseAddress(s); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(s)
}

func messageIDDomain(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "contact-relay.local"
}
