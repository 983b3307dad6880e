// Package null implements the provider used when no delivery backend is
// configured: it prints messages instead of sending them.
package null

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/shineum/contact-relay/internal/email"
)

// Provider prints email messages in a human-readable format and always
// reports success.
type Provider struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a null Provider that writes to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a null Provider that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Send prints the message and returns a synthetic message id.
func (p *Provider) Send(ctx context.Context, msg *email.Message) (email.Receipt, error) {
	id := "null-" + uuid.NewString()

	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString(fmt.Sprintf("From: %s\n", msg.From))
	b.WriteString(fmt.Sprintf("To: %s\n", msg.To))

	if len(msg.Cc) > 0 {
		b.WriteString(fmt.Sprintf("Cc: %s\n", strings.Join(msg.Cc, ", ")))
	}
	if msg.ReplyTo != "" {
		b.WriteString(fmt.Sprintf("Reply-To: %s\n", msg.ReplyTo))
	}

	b.WriteString(fmt.Sprintf("Subject: %s\n", msg.Subject))
	b.WriteString(fmt.Sprintf("Message-ID: %s\n", id))
	b.WriteString("Body:\n")

	body := msg.Text
	if body == "" {
		body = msg.HTML
	}
	b.WriteString(body + "\n")
	b.WriteString("========================================\n")

	if _, err := fmt.Fprint(p.writer, b.String()); err != nil {
		// The dump is informational; a broken writer never fails delivery.
		slog.WarnContext(ctx, "null provider could not write message", "error", err)
	}

	slog.InfoContext(ctx, "email logged, not sent",
		"provider", p.Name(),
		"to", msg.To,
		"subject", msg.Subject,
		"text_length", len(msg.Text),
		"html_length", len(msg.HTML),
		"message_id", id,
	)

	return email.Receipt{MessageID: id}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "null"
}
