// Package exchange implements the RFC 8693 token-exchange client: swapping
// one bearer token for an audience-scoped token issued by the target agent's
// authorization server, authenticated with the service credential of
// whichever logical agent initiates the exchange.
package exchange

import (
	"time"
)

// RFC 8693 grant and token-type URNs.
const (
	GrantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
	TokenTypeAccessToken   = "urn:ietf:params:oauth:token-type:access_token"
	TokenTypeIDToken       = "urn:ietf:params:oauth:token-type:id_token"
	TokenTypeIDJAG         = "urn:ietf:params:oauth:token-type:id-jag"
)

// Token is an issued token with its metadata, as returned by a token
// endpoint.
type Token struct {
	// AccessToken is the bearer token used for authorization.
	AccessToken string `json:"access_token"`

	// IssuedTokenType is the RFC 8693 token-type URN of the issued token.
	IssuedTokenType string `json:"issued_token_type,omitempty"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the token lifetime in seconds.
	ExpiresIn int `json:"expires_in,omitempty"`

	// ExpiresAt is the calculated expiration timestamp.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// Scope is the granted scope(s).
	Scope string `json:"scope,omitempty"`

	// Audience is the audience the token was issued for.
	Audience string `json:"audience,omitempty"`
}

// IsExpired checks if the token has expired or will expire within the given
// margin.
func (t *Token) IsExpired(margin time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(t.ExpiresAt)
}

// SetExpiresAtFromExpiresIn calculates ExpiresAt when the endpoint only
// returned expires_in.
func (t *Token) SetExpiresAtFromExpiresIn() {
	if t.ExpiresAt.IsZero() && t.ExpiresIn > 0 {
		t.ExpiresAt = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
}

// TokenKey uniquely identifies a cached token: the subject it was exchanged
// from, the audience it targets, and the scope it carries.
type TokenKey struct {
	Subject  string
	Audience string
	Scope    string
}

// OrchestratorIdentity is the from_identity recorded when the top-level
// chat assistant initiates an exchange on behalf of the end user.
const OrchestratorIdentity = "Orchestrator"

// Record is an append-only audit entry created on every successful exchange.
// The issued token is stored redacted so records can be serialized, exported,
// or shown to an LLM without leaking token material.
type Record struct {
	FromIdentity   string        `json:"from_identity"`
	ToAudience     string        `json:"to_audience"`
	RequestedScope string        `json:"requested_scope"`
	IssuedToken    RedactedToken `json:"issued_token"`
	Timestamp      time.Time     `json:"timestamp"`
}
