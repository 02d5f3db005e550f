package exchange

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/streamward/assistant/pkg/logging"
)

// DefaultHTTPTimeout bounds every token-endpoint request. No upstream
// timeout is guaranteed, so the client always sets its own.
const DefaultHTTPTimeout = 30 * time.Second

// Credentials is a service-application credential used to authenticate an
// exchange request.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Request describes one RFC 8693 exchange. SourceAgent selects the service
// credential: empty means the orchestrator is exchanging a user token for an
// agent; a named agent means that agent is exchanging a token for a peer.
// The credential always belongs to the source, never the target, because the
// target authorization server authenticates the caller, not the subject.
type Request struct {
	SubjectToken     string
	SubjectTokenType string // defaults to the access-token URN
	Audience         string
	Scope            string
	SourceAgent      string
}

// Result is a successful exchange: the issued token plus its audit record.
type Result struct {
	Token  *Token
	Record Record
}

// ExchangeError wraps any failure of an exchange with the audience that was
// targeted.
type ExchangeError struct {
	Audience string
	Err      error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange for audience %q failed: %v", e.Audience, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// RecordSink receives the audit record of every successful exchange.
// Implementations must not block.
type RecordSink interface {
	Publish(Record)
}

// Options configures a Client.
type Options struct {
	// AudienceToServer maps each audience to its authorization-server id.
	AudienceToServer map[string]string
	// TokenEndpoint resolves an authorization-server id to its token
	// endpoint URL.
	TokenEndpoint func(authServerID string) string
	// Orchestrator is the credential used when SourceAgent is empty.
	Orchestrator Credentials
	// AgentCredentials maps agent names to their own service credentials.
	AgentCredentials map[string]Credentials
	// HTTPClient defaults to a client with DefaultHTTPTimeout.
	HTTPClient *http.Client
	// Sink optionally receives audit records.
	Sink RecordSink
}

// Client performs RFC 8693 token exchanges against per-audience
// authorization servers. Issued tokens are cached by (subject, audience,
// scope) until shortly before expiry.
type Client struct {
	audienceToServer map[string]string
	tokenEndpoint    func(string) string
	orchestrator     Credentials
	agentCredentials map[string]Credentials
	httpClient       *http.Client
	sink             RecordSink
	store            *TokenStore
}

// NewClient creates an exchange client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{
		audienceToServer: opts.AudienceToServer,
		tokenEndpoint:    opts.TokenEndpoint,
		orchestrator:     opts.Orchestrator,
		agentCredentials: opts.AgentCredentials,
		httpClient:       httpClient,
		sink:             opts.Sink,
		store:            NewTokenStore(),
	}
}

// Close stops the background token cache cleanup.
func (c *Client) Close() {
	c.store.Stop()
}

// Exchange swaps a subject token for a token targeting the given audience.
// A single attempt is made; any rejection, credential problem, or network
// failure surfaces as *ExchangeError and the caller decides whether to fall
// back or abort.
func (c *Client) Exchange(ctx context.Context, req Request) (*Result, error) {
	if err := c.validateRequest(&req); err != nil {
		return nil, &ExchangeError{Audience: req.Audience, Err: err}
	}

	credential, fromIdentity, err := c.selectCredential(req.SourceAgent)
	if err != nil {
		return nil, &ExchangeError{Audience: req.Audience, Err: err}
	}

	serverID, ok := c.audienceToServer[req.Audience]
	if !ok {
		return nil, &ExchangeError{Audience: req.Audience, Err: fmt.Errorf("no authorization server configured for audience")}
	}

	key := TokenKey{Subject: subjectDigest(req.SubjectToken), Audience: req.Audience, Scope: req.Scope}
	if token := c.store.Get(key); token != nil {
		logging.Debug("Exchange", "Reusing cached token for audience=%s as %s", req.Audience, fromIdentity)
		return c.result(token, fromIdentity, req), nil
	}

	endpoint := c.tokenEndpoint(serverID)
	logging.Debug("Exchange", "Exchanging token: from=%s audience=%s scope=%s server=%s",
		fromIdentity, req.Audience, req.Scope, serverID)

	token, err := c.doExchange(ctx, endpoint, credential, req)
	if err != nil {
		logExchangeFailure(fromIdentity, req.Audience, err)
		logging.Audit(logging.AuditEvent{
			Action:  "token_exchange",
			Outcome: "failure",
			Actor:   fromIdentity,
			Target:  req.Audience,
		})
		return nil, &ExchangeError{Audience: req.Audience, Err: err}
	}

	token.Audience = req.Audience
	c.store.Store(key, token)

	logging.Audit(logging.AuditEvent{
		Action:  "token_exchange",
		Outcome: "success",
		Actor:   fromIdentity,
		Target:  req.Audience,
		Detail:  "scope=" + req.Scope,
	})

	return c.result(token, fromIdentity, req), nil
}

func (c *Client) result(token *Token, fromIdentity string, req Request) *Result {
	record := Record{
		FromIdentity:   fromIdentity,
		ToAudience:     req.Audience,
		RequestedScope: req.Scope,
		IssuedToken:    NewRedactedToken(token.AccessToken),
		Timestamp:      time.Now().UTC(),
	}
	if c.sink != nil {
		c.sink.Publish(record)
	}
	return &Result{Token: token, Record: record}
}

func (c *Client) validateRequest(req *Request) error {
	if strings.TrimSpace(req.SubjectToken) == "" {
		return fmt.Errorf("subject token is required")
	}
	if req.Audience == "" {
		return fmt.Errorf("audience is required")
	}
	if req.SubjectTokenType == "" {
		req.SubjectTokenType = TokenTypeAccessToken
	}
	return nil
}

// selectCredential picks the service credential of whoever initiates the
// exchange. Finance calling HR's server authenticates as Finance; that
// asymmetry is intentional and load-bearing.
func (c *Client) selectCredential(sourceAgent string) (Credentials, string, error) {
	if sourceAgent == "" {
		if c.orchestrator.ClientID == "" {
			return Credentials{}, "", fmt.Errorf("orchestrator credential not configured")
		}
		return c.orchestrator, OrchestratorIdentity, nil
	}

	credential, ok := c.agentCredentials[sourceAgent]
	if !ok || credential.ClientID == "" {
		return Credentials{}, "", fmt.Errorf("no service credential configured for agent %q", sourceAgent)
	}
	return credential, sourceAgent, nil
}

func (c *Client) doExchange(ctx context.Context, endpoint string, credential Credentials, req Request) (*Token, error) {
	form := url.Values{
		"grant_type":         {GrantTypeTokenExchange},
		"subject_token":      {req.SubjectToken},
		"subject_token_type": {req.SubjectTokenType},
		"audience":           {req.Audience},
	}
	if req.Scope != "" {
		form.Set("scope", req.Scope)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(credential.ClientID, credential.ClientSecret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read exchange response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logging.Debug("Exchange", "Token endpoint rejected exchange: status=%d body=%s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("exchange rejected with status %d", resp.StatusCode)
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse exchange response: %w", err)
	}
	token.SetExpiresAtFromExpiresIn()

	return &token, nil
}

// logExchangeFailure separates timeouts from rejections in the logs.
// Operators need to tell an unreachable authorization server apart from a
// credential or policy problem; callers see the same ExchangeError either
// way.
func logExchangeFailure(fromIdentity, audience string, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		logging.Error("Exchange", err, "Exchange TIMED OUT: from=%s audience=%s", fromIdentity, audience)
	default:
		logging.Error("Exchange", err, "Exchange rejected: from=%s audience=%s", fromIdentity, audience)
	}
}

func subjectDigest(subjectToken string) string {
	sum := sha256.Sum256([]byte(subjectToken))
	return hex.EncodeToString(sum[:6])
}
