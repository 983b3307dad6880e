package null

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/contact-relay/internal/email"
)

func TestSend_BasicEmail(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	msg := &email.Message{
		From:    "noreply@example.com",
		To:      "owner@example.com",
		ReplyTo: "jo@example.com",
		Subject: "New contact",
		Text:    "Please call me back.",
		HTML:    "<p>Please call me back.</p>",
	}

	receipt, err := p.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(receipt.MessageID, "null-"))

	output := buf.String()
	assert.Contains(t, output, "From: noreply@example.com")
	assert.Contains(t, output, "To: owner@example.com")
	assert.Contains(t, output, "Reply-To: jo@example.com")
	assert.Contains(t, output, "Subject: New contact")
	assert.Contains(t, output, "Message-ID: "+receipt.MessageID)
	assert.Contains(t, output, "Please call me back.")
	assert.NotContains(t, output, "<p>", "text body is preferred")
	assert.NotContains(t, output, "Cc:")
	assert.True(t, strings.HasPrefix(output, "========================================\n"))
	assert.True(t, strings.HasSuffix(output, "========================================\n"))
}

func TestSend_WithCc(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	_, err := p.Send(context.Background(), &email.Message{
		To:      "owner@example.com",
		Cc:      []string{"a@example.com", "b@example.com"},
		Subject: "With CC",
		Text:    "Hello",
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Cc: a@example.com, b@example.com")
}

func TestSend_HTMLBodyFallback(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	_, err := p.Send(context.Background(), &email.Message{To: "owner@example.com", Subject: "HTML only", HTML: "<p>HTML content</p>"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "<p>HTML content</p>")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSend_WriterErrorStillSucceeds(t *testing.T) {
	t.Parallel()

	p := NewWithWriter(failingWriter{})
	receipt, err := p.Send(context.Background(), &email.Message{To: "owner@example.com", Subject: "s", Text: "t"})
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.MessageID)
}

func TestSend_UniqueIDs(t *testing.T) {
	t.Parallel()

	p := NewWithWriter(&bytes.Buffer{})
	first, err := p.Send(context.Background(), &email.Message{To: "a@example.com"})
	require.NoError(t, err)
	second, err := p.Send(context.Background(), &email.Message{To: "a@example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, first.MessageID, second.MessageID)
}

func TestName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "null", New().Name())
}
