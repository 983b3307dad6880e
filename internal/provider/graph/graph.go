package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/shineum/contact-relay/internal/email"
)

// graphScope requests every application permission granted to the client.
const graphScope = "https://graph.microsoft.com/.default"

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// GraphProviderConfig holds the configuration for creating a GraphProvider.
type GraphProviderConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Sender       string
	// HTTPClient is used for both token and sendMail calls. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// GraphProvider sends emails via the Microsoft Graph API using OAuth2
// client credentials authentication.
type GraphProvider struct {
	sender     string
	graphURL   string
	httpClient *http.Client
}

// New creates a new GraphProvider with the given configuration.
func New(cfg GraphProviderConfig) *GraphProvider {
	tokenURL := fmt.Sprintf(
		"https://login.microsoftonline.com/%s/oauth2/v2.0/token",
		url.PathEscape(cfg.TenantID),
	)
	graphURL := fmt.Sprintf(
		"https://graph.microsoft.com/v1.0/users/%s/sendMail",
		url.PathEscape(cfg.Sender),
	)
	return newWithOverrides(cfg, graphURL, tokenURL)
}

// newWithOverrides creates a GraphProvider with custom URLs, used for testing.
func newWithOverrides(cfg GraphProviderConfig, graphURL, tokenURL string) *GraphProvider {
	base := cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	// Tokens are cached and refreshed by the oauth2 transport.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cc.Client(ctx)
	client.Timeout = base.Timeout

	return &GraphProvider{
		sender:     cfg.Sender,
		graphURL:   graphURL,
		httpClient: client,
	}
}

// Send delivers an email message via the Microsoft Graph API in a single
// request. Graph returns no message id, so the receipt is empty.
func (g *GraphProvider) Send(ctx context.Context, msg *email.Message) (email.Receipt, error) {
	bodyJSON, err := json.Marshal(buildSendMailRequest(msg))
	if err != nil {
		return email.Receipt{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.graphURL, bytes.NewReader(bodyJSON))
	if err != nil {
		return email.Receipt{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return email.Receipt{}, fmt.Errorf("Graph API request failed: %w", err)
	}
	defer resp.Body.Close()

	// HTTP 202 Accepted is success for sendMail
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		slog.DebugContext(ctx, "Graph API accepted message", "sender", g.sender)
		return email.Receipt{}, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var graphErrResp graphErrorResponse
	if jsonErr := json.Unmarshal(body, &graphErrResp); jsonErr == nil && graphErrResp.Error.Message != "" {
		return email.Receipt{}, &sendError{
			statusCode: resp.StatusCode,
			code:       graphErrResp.Error.Code,
			message:    graphErrResp.Error.Message,
		}
	}

	return email.Receipt{}, &sendError{statusCode: resp.StatusCode, message: string(body)}
}

// Name returns the provider name.
func (g *GraphProvider) Name() string {
	return "graph"
}

// sendError represents a non-success response from the Graph API.
type sendError struct {
	statusCode int
	code       string
	message    string
}

func (e *sendError) Error() string {
	if e.code != "" {
		return fmt.Sprintf("Graph API error (HTTP %d, %s): %s", e.statusCode, e.code, e.message)
	}
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}
