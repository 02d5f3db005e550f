// Package crossapp implements the ID-JAG cross-app access chain: four steps
// from an end-user ID token to a verified resource-server token, so a tool
// server can trust a grant without ever seeing the user's original
// credential.
package crossapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/streamward/assistant/internal/exchange"
	"github.com/streamward/assistant/internal/identity"
	"github.com/streamward/assistant/pkg/logging"

	jose "github.com/go-jose/go-jose/v4"
)

// GrantTypeJWTBearer is the RFC 7523 authorization-grant URN used in step 3.
const GrantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// jagScope is the scope requested for the intermediate grant.
const jagScope = "mcp:read"

// ErrUnauthorizedAccess is returned when the chain cannot produce a verified
// resource-server token. Tool calls must be refused outright; there is no
// fallback.
var ErrUnauthorizedAccess = errors.New("unauthorized tool access")

// ResourceServer identifies one tool server reachable through the chain.
type ResourceServer struct {
	AuthServerID string
	Audience     string
}

// TokenVerifier verifies a token against an explicit audience. Satisfied by
// *identity.Verifier.
type TokenVerifier interface {
	ValidateForAudience(ctx context.Context, raw, expectedAudience string) (*identity.UserIdentity, error)
}

// Grant is the result of a completed chain: the resource-server access token
// plus the intermediate grant kept for audit display.
type Grant struct {
	AccessToken string
	IDJAGToken  string
	TokenType   string
	Scope       string
	ExpiresIn   int
	Subject     string
}

// Options configures a Client.
type Options struct {
	// AgentID is the registered agent identity holding the signing key.
	AgentID string
	// PrivateKey signs the JWT-bearer client assertions.
	PrivateKey jose.JSONWebKey
	// Issuer resolves an authorization-server id to its issuer URL.
	Issuer func(authServerID string) string
	// TokenEndpoint resolves an authorization-server id to its token
	// endpoint URL.
	TokenEndpoint func(authServerID string) string
	// DefaultAuthServerID is the organization's own authorization server,
	// the target of step 1.
	DefaultAuthServerID string
	// ResourceServers maps tool-server names to their auth settings.
	ResourceServers map[string]ResourceServer
	// Verifier performs the step 2 and step 4 verifications.
	Verifier TokenVerifier
	// HTTPClient defaults to a 30s-timeout client.
	HTTPClient *http.Client
}

// Client runs the ID-JAG chain.
type Client struct {
	agentID         string
	privateKey      jose.JSONWebKey
	issuer          func(string) string
	tokenEndpoint   func(string) string
	defaultServerID string
	resourceServers map[string]ResourceServer
	verifier        TokenVerifier
	httpClient      *http.Client
}

// NewClient creates a cross-app access client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: exchange.DefaultHTTPTimeout}
	}
	return &Client{
		agentID:         opts.AgentID,
		privateKey:      opts.PrivateKey,
		issuer:          opts.Issuer,
		tokenEndpoint:   opts.TokenEndpoint,
		defaultServerID: opts.DefaultAuthServerID,
		resourceServers: opts.ResourceServers,
		verifier:        opts.Verifier,
		httpClient:      httpClient,
	}
}

// ExchangeIDToResourceToken runs steps 1-3 of the chain for the named
// resource server: ID token to intermediate JAG, audit-only JAG
// verification, then JAG to resource-server token. Step 4
// (VerifyResourceToken) gates the actual tool call and is the caller's
// responsibility before any tool access.
func (c *Client) ExchangeIDToResourceToken(ctx context.Context, userIDToken, serverName string) (*Grant, error) {
	server, ok := c.resourceServers[serverName]
	if !ok {
		return nil, fmt.Errorf("%w: unknown resource server %q", ErrUnauthorizedAccess, serverName)
	}
	if c.agentID == "" || c.privateKey.Key == nil {
		return nil, fmt.Errorf("%w: cross-app agent identity not configured", ErrUnauthorizedAccess)
	}

	// STEP 1: ID token to intermediate JAG token. The audience is the issuer
	// of the resource server's authorization server; the request is posted
	// to our own organization's token endpoint.
	jagAudience := c.issuer(server.AuthServerID)
	logging.Debug("CrossApp", "STEP 1: exchanging ID token, audience=%s", jagAudience)

	step1Endpoint := c.tokenEndpoint(c.defaultServerID)
	jag, err := c.postGrant(ctx, step1Endpoint, url.Values{
		"grant_type":           {exchange.GrantTypeTokenExchange},
		"requested_token_type": {exchange.TokenTypeIDJAG},
		"subject_token":        {userIDToken},
		"subject_token_type":   {exchange.TokenTypeIDToken},
		"audience":             {jagAudience},
		"scope":                {jagScope},
	})
	if err != nil {
		logStepFailure(1, err)
		return nil, fmt.Errorf("%w: step 1 failed", ErrUnauthorizedAccess)
	}
	logging.Info("CrossApp", "STEP 1 SUCCESS: expires_in=%ds", jag.ExpiresIn)

	// STEP 2: audit-only verification of the intermediate grant. A failure
	// here is logged for traceability and never aborts the chain.
	subject := ""
	if id, err := c.verifier.ValidateForAudience(ctx, jag.AccessToken, jagAudience); err != nil {
		logging.Warn("CrossApp", "STEP 2 verification warning: %v", err)
	} else {
		subject = id.Subject
		logging.Debug("CrossApp", "STEP 2 SUCCESS: sub=%s", subject)
	}

	// STEP 3: intermediate JAG to resource-server token, posted to the
	// resource server's own authorization server.
	logging.Debug("CrossApp", "STEP 3: exchanging JAG for %s token", serverName)
	step3Endpoint := c.tokenEndpoint(server.AuthServerID)
	resourceToken, err := c.postGrant(ctx, step3Endpoint, url.Values{
		"grant_type": {GrantTypeJWTBearer},
		"assertion":  {jag.AccessToken},
	})
	if err != nil {
		logStepFailure(3, err)
		return nil, fmt.Errorf("%w: step 3 failed", ErrUnauthorizedAccess)
	}
	logging.Info("CrossApp", "STEP 3 SUCCESS: expires_in=%ds scope=%s", resourceToken.ExpiresIn, resourceToken.Scope)

	logging.Audit(logging.AuditEvent{
		Action:  "idjag_exchange",
		Outcome: "success",
		Actor:   c.agentID,
		Target:  serverName,
	})

	return &Grant{
		AccessToken: resourceToken.AccessToken,
		IDJAGToken:  jag.AccessToken,
		TokenType:   resourceToken.TokenType,
		Scope:       resourceToken.Scope,
		ExpiresIn:   resourceToken.ExpiresIn,
		Subject:     subject,
	}, nil
}

// VerifyResourceToken is STEP 4: mandatory verification of the
// resource-server token before any tool call. A missing or invalid token
// denies access.
func (c *Client) VerifyResourceToken(ctx context.Context, accessToken, serverName string) (*identity.UserIdentity, error) {
	server, ok := c.resourceServers[serverName]
	if !ok {
		return nil, fmt.Errorf("%w: unknown resource server %q", ErrUnauthorizedAccess, serverName)
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("%w: no token supplied", ErrUnauthorizedAccess)
	}

	id, err := c.verifier.ValidateForAudience(ctx, accessToken, server.Audience)
	if err != nil {
		logging.Error("CrossApp", err, "STEP 4 FAILED for %s", serverName)
		logging.Audit(logging.AuditEvent{
			Action:  "idjag_verify",
			Outcome: "failure",
			Actor:   c.agentID,
			Target:  serverName,
		})
		return nil, fmt.Errorf("%w: token verification failed", ErrUnauthorizedAccess)
	}

	logging.Debug("CrossApp", "STEP 4 SUCCESS: sub=%s", id.Subject)
	return id, nil
}

// postGrant signs a fresh client assertion for the endpoint, posts the grant
// request, and parses the issued token.
func (c *Client) postGrant(ctx context.Context, endpoint string, form url.Values) (*exchange.Token, error) {
	assertion, err := buildClientAssertion(c.agentID, c.privateKey, endpoint)
	if err != nil {
		return nil, err
	}
	form.Set("client_assertion_type", ClientAssertionType)
	form.Set("client_assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create grant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grant request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read grant response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logging.Debug("CrossApp", "Grant rejected: status=%d body=%s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("grant rejected with status %d", resp.StatusCode)
	}

	var token exchange.Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse grant response: %w", err)
	}
	token.SetExpiresAtFromExpiresIn()
	return &token, nil
}

// logStepFailure keeps timeouts distinguishable from rejections in the logs;
// the caller sees the same failure either way.
func logStepFailure(step int, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		logging.Error("CrossApp", err, "STEP %d TIMEOUT: authorization server not responding", step)
	default:
		logging.Error("CrossApp", err, "STEP %d FAILED", step)
	}
}
