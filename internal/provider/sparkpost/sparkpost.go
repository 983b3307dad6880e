// Package sparkpost implements a Provider backed by the SparkPost
// Transmissions API.
package sparkpost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shineum/contact-relay/internal/email"
)

// DefaultBaseURL is the SparkPost v1 API root.
const DefaultBaseURL = "https://api.sparkpost.com/api/v1"

// maxResponseBody caps how much of a response is read.
const maxResponseBody = 64 << 10

// Config holds SparkPost settings.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Provider sends messages as single-recipient transmissions.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type transmission struct {
	Recipients []recipient `json:"recipients"`
	Content    content     `json:"content"`
}

type recipient struct {
	Address address `json:"address"`
}

// address carries header_to so cc copies show the primary To.
type address struct {
	Email    string `json:"email"`
	HeaderTo string `json:"header_to,omitempty"`
}

type content struct {
	From    string            `json:"from"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html,omitempty"`
	Text    string            `json:"text,omitempty"`
	ReplyTo string            `json:"reply_to,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type transmissionResponse struct {
	Results struct {
		ID string `json:"id"`
	} `json:"results"`
	Errors []struct {
		Message     string `json:"message"`
		Description string `json:"description"`
		Code        string `json:"code"`
	} `json:"errors"`
}

// New creates a SparkPost provider.
func New(cfg Config) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Provider{apiKey: cfg.APIKey, baseURL: baseURL, httpClient: client}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "sparkpost"
}

// Send implements provider.Provider.
func (p *Provider) Send(ctx context.Context, msg *email.Message) (email.Receipt, error) {
	jsonData, err := json.Marshal(buildTransmission(msg))
	if err != nil {
		return email.Receipt{}, fmt.Errorf("failed to marshal transmission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transmissions", bytes.NewReader(jsonData))
	if err != nil {
		return email.Receipt{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return email.Receipt{}, fmt.Errorf("SparkPost request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	var result transmissionResponse
	_ = json.Unmarshal(body, &result)

	if resp.StatusCode >= 300 {
		if len(result.Errors) > 0 {
			e := result.Errors[0]
			return email.Receipt{}, fmt.Errorf("SparkPost error %d: %s %s", resp.StatusCode, e.Message, e.Description)
		}
		return email.Receipt{}, fmt.Errorf("SparkPost error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return email.Receipt{MessageID: result.Results.ID}, nil
}

func buildTransmission(msg *email.Message) *transmission {
	recipients := []recipient{{Address: address{Email: msg.To}}}
	for _, cc := range msg.Cc {
		recipients = append(recipients, recipient{Address: address{Email: cc, HeaderTo: msg.To}})
	}

	headers := make(map[string]string, len(msg.Headers)+1)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	if len(msg.Cc) > 0 {
		headers["CC"] = strings.Join(msg.Cc, ", ")
	}

	return &transmission{
		Recipients: recipients,
		Content: content{
			From:    msg.From,
			Subject: msg.Subject,
			HTML:    msg.HTML,
			Text:    msg.Text,
			ReplyTo: msg.ReplyTo,
			Headers: headers,
		},
	}
}
