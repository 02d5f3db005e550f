package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "streamward-chat-1"

// GatewayOptions configures a GatewayCompleter.
type GatewayOptions struct {
	// BaseURL is the completion gateway, e.g. "https://llm.streamward.dev".
	BaseURL string
	// TokenURL issues the gateway's machine-to-machine tokens.
	TokenURL string
	// ClientID and ClientSecret are the gateway client credentials. They
	// belong to this service, not to any user.
	ClientID     string
	ClientSecret string
	// Model defaults to DefaultModel.
	Model string
	// HTTPClient is the base transport for token and completion calls.
	HTTPClient *http.Client
}

// GatewayCompleter calls an HTTP completion gateway, authenticating with the
// OAuth2 client-credentials grant. Token refresh is handled by the oauth2
// transport.
type GatewayCompleter struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewGatewayCompleter creates a gateway-backed completer.
func NewGatewayCompleter(opts GatewayOptions) *GatewayCompleter {
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	credentials := clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
	}

	ctx := context.Background()
	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}
	client := credentials.Client(ctx)
	client.Timeout = 60 * time.Second

	return &GatewayCompleter{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		model:   model,
		client:  client,
	}
}

type completionRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// Complete implements Completer.
func (g *GatewayCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("empty prompt")
	}

	body, err := json.Marshal(completionRequest{Model: g.model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion gateway returned status %d", resp.StatusCode)
	}

	var completion completionResponse
	if err := json.Unmarshal(data, &completion); err != nil {
		return "", fmt.Errorf("failed to parse completion response: %w", err)
	}
	if completion.Text == "" {
		return "", fmt.Errorf("completion gateway returned no text")
	}
	return completion.Text, nil
}
