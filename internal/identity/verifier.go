package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/streamward/assistant/pkg/logging"

	"github.com/golang-jwt/jwt/v5"
)

// DemoToken is a reserved literal accepted without verification when the
// verifier is constructed with AllowDemoToken. Local demonstrations only;
// the gate must stay off anywhere near production.
const DemoToken = "test-token-demo-user"

var demoIdentity = UserIdentity{
	Subject:    "00u-demo-user",
	Email:      "demo.user@streamward.dev",
	Name:       "Demo User",
	Department: "Engineering",
	RawClaims:  map[string]any{"sub": "00u-demo-user", "demo": true},
}

// VerifierOptions configures a Verifier.
type VerifierOptions struct {
	// ClientID is the application client id that ID-token audiences must
	// match.
	ClientID string
	// AllowDemoToken enables the reserved demo token bypass.
	AllowDemoToken bool
	// HTTPClient is used for JWKS fetches. Defaults to a 30s-timeout client.
	HTTPClient *http.Client
}

// Verifier validates bearer tokens issued by the external authorization
// service. One verifier handles all issuers; per-issuer key sets are cached.
type Verifier struct {
	clientID       string
	allowDemoToken bool
	httpClient     *http.Client

	mu     sync.Mutex
	caches map[string]*jwksCache
}

// NewVerifier creates a token verifier.
func NewVerifier(opts VerifierOptions) *Verifier {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.AllowDemoToken {
		logging.Warn("Verifier", "Demo token bypass is ENABLED; disable outside local demos")
	}
	return &Verifier{
		clientID:       opts.ClientID,
		allowDemoToken: opts.AllowDemoToken,
		httpClient:     httpClient,
		caches:         make(map[string]*jwksCache),
	}
}

// Validate verifies a bearer token and returns the normalized user identity.
// The token's issuer and audience are read unverified first to select a
// verification strategy, then everything is re-validated cryptographically.
func (v *Verifier) Validate(ctx context.Context, raw string) (*UserIdentity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	if raw == DemoToken {
		if v.allowDemoToken {
			logging.Warn("Verifier", "Accepted demo token without verification")
			id := demoIdentity
			return &id, nil
		}
		return nil, fmt.Errorf("%w: demo token not allowed", ErrInvalidToken)
	}

	issuer, audience, err := peekIssuerAudience(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	// Audience shape selects the strategy: URLs and api:// values are access
	// tokens verified against the literal audience; anything else is an ID
	// token verified against our own client id.
	expectedAudience := audience
	if !isAccessTokenAudience(audience) {
		if v.clientID == "" {
			return nil, fmt.Errorf("%w: id-token audience %q but no client id configured", ErrInvalidToken, audience)
		}
		expectedAudience = v.clientID
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("missing kid in token header")
		}
		return v.jwksFor(issuer).get(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(expectedAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		logging.Debug("Verifier", "Token rejected (issuer=%s audience=%s): %v", issuer, audience, err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: token not valid", ErrInvalidToken)
	}

	return identityFromClaims(claims)
}

// ValidateForAudience verifies a token against an explicit expected audience
// instead of deriving one from the audience shape. Used by the cross-app
// access chain, where the caller knows exactly which audience a hop must
// assert.
func (v *Verifier) ValidateForAudience(ctx context.Context, raw, expectedAudience string) (*UserIdentity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	issuer, _, err := peekIssuerAudience(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("missing kid in token header")
		}
		return v.jwksFor(issuer).get(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(expectedAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: token not valid", ErrInvalidToken)
	}

	return identityFromClaims(claims)
}

// jwksFor returns the key cache for an issuer, creating it on first use.
// A double-populate race is harmless; last writer wins.
func (v *Verifier) jwksFor(issuer string) *jwksCache {
	v.mu.Lock()
	defer v.mu.Unlock()
	cache, ok := v.caches[issuer]
	if !ok {
		cache = newJWKSCache(strings.TrimSuffix(issuer, "/")+"/v1/keys", v.httpClient)
		v.caches[issuer] = cache
	}
	return cache
}

// peekIssuerAudience decodes the token payload without signature verification
// to read iss and aud. The values are untrusted until ParseWithClaims
// re-validates them against the signature.
func peekIssuerAudience(raw string) (issuer, audience string, err error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return "", "", fmt.Errorf("malformed token: %v", err)
	}

	issuer, err = claims.GetIssuer()
	if err != nil || issuer == "" {
		return "", "", fmt.Errorf("token has no issuer")
	}
	auds, err := claims.GetAudience()
	if err != nil || len(auds) == 0 {
		return "", "", fmt.Errorf("token has no audience")
	}
	return issuer, auds[0], nil
}

func isAccessTokenAudience(audience string) bool {
	return strings.HasPrefix(audience, "http://") ||
		strings.HasPrefix(audience, "https://") ||
		strings.HasPrefix(audience, "api://")
}

func identityFromClaims(claims jwt.MapClaims) (*UserIdentity, error) {
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	id := &UserIdentity{
		Subject:   subject,
		Email:     resolveEmail(claims, subject),
		RawClaims: map[string]any(claims),
	}
	if name, ok := claims["name"].(string); ok {
		id.Name = name
	}
	if dept, ok := claims["department"].(string); ok {
		id.Department = dept
	}
	if groups, ok := claims["groups"].([]any); ok {
		for _, g := range groups {
			if s, ok := g.(string); ok {
				id.Groups = append(id.Groups, s)
			}
		}
	}
	return id, nil
}
