package mailgun

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/contact-relay/internal/email"
)

// capturedForm is the subset of a messages API call the tests inspect.
type capturedForm struct {
	path     string
	user     string
	password string
	values   map[string][]string
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, func() []capturedForm) {
	t.Helper()

	var (
		mu    sync.Mutex
		calls []capturedForm
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil && err != http.ErrNotMultipart {
			t.Errorf("failed to parse form: %v", err)
		}
		user, pass, _ := r.BasicAuth()

		mu.Lock()
		calls = append(calls, capturedForm{path: r.URL.Path, user: user, password: pass, values: r.Form})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv, func() []capturedForm {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedForm(nil), calls...)
	}
}

func TestName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "mailgun", New(Config{APIKey: "k", Domain: "mg.example.com"}).Name())
}

func TestSend_Success(t *testing.T) {
	t.Parallel()

	srv, calls := newServer(t, http.StatusOK, `{"id":"<20240501.1@mg.example.com>","message":"Queued. Thank you."}`)
	p := New(Config{APIKey: "key-test", Domain: "mg.example.com", APIBase: srv.URL, HTTPClient: srv.Client()})

	receipt, err := p.Send(context.Background(), &email.Message{
		From:    "Portfolio <noreply@example.com>",
		To:      "owner@example.com",
		ReplyTo: "jo@example.com",
		Cc:      []string{"partner@example.com"},
		Subject: "Hello",
		Text:    "text body",
		HTML:    "<p>html body</p>",
		Headers: map[string]string{"X-Contact-Reference": "ref-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "<20240501.1@mg.example.com>", receipt.MessageID)

	got := calls()
	require.Len(t, got, 1)
	call := got[0]
	assert.True(t, strings.HasSuffix(call.path, "/mg.example.com/messages"), call.path)
	assert.Equal(t, "api", call.user)
	assert.Equal(t, "key-test", call.password)
	assert.Equal(t, []string{"Portfolio <noreply@example.com>"}, call.values["from"])
	assert.Equal(t, []string{"owner@example.com"}, call.values["to"])
	assert.Equal(t, []string{"partner@example.com"}, call.values["cc"])
	assert.Equal(t, []string{"Hello"}, call.values["subject"])
	assert.Equal(t, []string{"text body"}, call.values["text"])
	assert.Equal(t, []string{"<p>html body</p>"}, call.values["html"])
	assert.Equal(t, []string{"jo@example.com"}, call.values["h:Reply-To"])
	assert.Equal(t, []string{"ref-1"}, call.values["h:X-Contact-Reference"])
}

func TestSend_APIError(t *testing.T) {
	t.Parallel()

	srv, calls := newServer(t, http.StatusUnauthorized, `{"message":"Invalid private key"}`)
	p := New(Config{APIKey: "bad", Domain: "mg.example.com", APIBase: srv.URL, HTTPClient: srv.Client()})

	_, err := p.Send(context.Background(), &email.Message{From: "a@example.com", To: "owner@example.com", Subject: "s", Text: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailgun send")
	assert.Len(t, calls(), 1)
}
