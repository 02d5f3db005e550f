package crossapp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/streamward/assistant/internal/identity"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

func testKey(t *testing.T) jose.JSONWebKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return jose.JSONWebKey{Key: key, KeyID: "agent-key-1", Algorithm: "RS256", Use: "sig"}
}

// fakeVerifier validates tokens by exact (token, audience) pairs.
type fakeVerifier struct {
	valid map[string]string // token -> audience it validates for
	calls []string
}

func (f *fakeVerifier) ValidateForAudience(_ context.Context, raw, audience string) (*identity.UserIdentity, error) {
	f.calls = append(f.calls, raw+"|"+audience)
	if want, ok := f.valid[raw]; ok && want == audience {
		return &identity.UserIdentity{Subject: "00u-chain", Email: "user@streamward.dev"}, nil
	}
	return nil, fmt.Errorf("%w: bad token", identity.ErrInvalidToken)
}

type grantRequest struct {
	form map[string]string
}

// newAuthServer serves token endpoints under /oauth2/<id>/v1/token and
// records every grant request per server id.
func newAuthServer(t *testing.T, tokens map[string]string, requests map[string]*grantRequest, failServers map[string]bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for id := range tokens {
		serverID := id
		mux.HandleFunc("/oauth2/"+serverID+"/v1/token", func(w http.ResponseWriter, r *http.Request) {
			if failServers[serverID] {
				http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
				return
			}
			if err := r.ParseForm(); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			form := map[string]string{}
			for k := range r.PostForm {
				form[k] = r.PostFormValue(k)
			}
			requests[serverID] = &grantRequest{form: form}

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": tokens[serverID],
				"token_type":   "Bearer",
				"expires_in":   300,
				"scope":        "mcp:read",
			})
		})
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newChainClient(t *testing.T, base string, verifier TokenVerifier) *Client {
	t.Helper()
	return NewClient(Options{
		AgentID:             "streamward-mcp-agent",
		PrivateKey:          testKey(t),
		Issuer:              func(id string) string { return base + "/oauth2/" + id },
		TokenEndpoint:       func(id string) string { return base + "/oauth2/" + id + "/v1/token" },
		DefaultAuthServerID: "default",
		ResourceServers: map[string]ResourceServer{
			"employees": {AuthServerID: "employees-server", Audience: "api://streamward-employees"},
		},
		Verifier: verifier,
	})
}

func TestExchangeIDToResourceToken_FullChain(t *testing.T) {
	requests := map[string]*grantRequest{}
	tokens := map[string]string{"default": "jag-token", "employees-server": "resource-token"}
	server := newAuthServer(t, tokens, requests, nil)

	verifier := &fakeVerifier{valid: map[string]string{
		"jag-token": server.URL + "/oauth2/employees-server",
	}}

	c := newChainClient(t, server.URL, verifier)
	grant, err := c.ExchangeIDToResourceToken(context.Background(), "user-id-token", "employees")
	if err != nil {
		t.Fatalf("chain failed: %v", err)
	}

	if grant.AccessToken != "resource-token" {
		t.Errorf("access token = %s", grant.AccessToken)
	}
	if grant.IDJAGToken != "jag-token" {
		t.Errorf("intermediate token = %s", grant.IDJAGToken)
	}
	if grant.Subject != "00u-chain" {
		t.Errorf("subject from step 2 = %s", grant.Subject)
	}

	step1 := requests["default"]
	if step1 == nil {
		t.Fatal("step 1 never reached the org token endpoint")
	}
	if step1.form["requested_token_type"] != "urn:ietf:params:oauth:token-type:id-jag" {
		t.Errorf("step 1 requested_token_type = %s", step1.form["requested_token_type"])
	}
	if step1.form["subject_token_type"] != "urn:ietf:params:oauth:token-type:id_token" {
		t.Errorf("step 1 subject_token_type = %s", step1.form["subject_token_type"])
	}
	if step1.form["subject_token"] != "user-id-token" {
		t.Errorf("step 1 subject_token = %s", step1.form["subject_token"])
	}
	if want := server.URL + "/oauth2/employees-server"; step1.form["audience"] != want {
		t.Errorf("step 1 audience = %s, expected %s", step1.form["audience"], want)
	}
	if step1.form["client_assertion_type"] != ClientAssertionType {
		t.Errorf("step 1 client_assertion_type = %s", step1.form["client_assertion_type"])
	}
	assertClientAssertion(t, step1.form["client_assertion"], server.URL+"/oauth2/default/v1/token")

	step3 := requests["employees-server"]
	if step3 == nil {
		t.Fatal("step 3 never reached the resource auth server")
	}
	if step3.form["grant_type"] != GrantTypeJWTBearer {
		t.Errorf("step 3 grant_type = %s", step3.form["grant_type"])
	}
	if step3.form["assertion"] != "jag-token" {
		t.Errorf("step 3 assertion = %s", step3.form["assertion"])
	}
	assertClientAssertion(t, step3.form["client_assertion"], server.URL+"/oauth2/employees-server/v1/token")
}

// assertClientAssertion decodes an assertion without verifying the signature
// and checks the registered agent identity and audience.
func assertClientAssertion(t *testing.T, assertion, expectedAudience string) {
	t.Helper()
	if assertion == "" {
		t.Fatal("missing client assertion")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(assertion, claims); err != nil {
		t.Fatalf("client assertion is not a JWT: %v", err)
	}
	if claims["iss"] != "streamward-mcp-agent" || claims["sub"] != "streamward-mcp-agent" {
		t.Errorf("assertion identity: iss=%v sub=%v", claims["iss"], claims["sub"])
	}
	auds, _ := claims.GetAudience()
	if len(auds) != 1 || auds[0] != expectedAudience {
		t.Errorf("assertion audience = %v, expected %s", auds, expectedAudience)
	}
	if jti, _ := claims["jti"].(string); jti == "" {
		t.Error("assertion missing jti")
	}
}

func TestExchangeIDToResourceToken_Step2FailureIsNotFatal(t *testing.T) {
	requests := map[string]*grantRequest{}
	tokens := map[string]string{"default": "jag-token", "employees-server": "resource-token"}
	server := newAuthServer(t, tokens, requests, nil)

	// Verifier rejects everything: step 2 is audit-only, the chain proceeds.
	verifier := &fakeVerifier{valid: map[string]string{}}

	c := newChainClient(t, server.URL, verifier)
	grant, err := c.ExchangeIDToResourceToken(context.Background(), "user-id-token", "employees")
	if err != nil {
		t.Fatalf("chain must survive step 2 failure: %v", err)
	}
	if grant.Subject != "" {
		t.Errorf("subject should be empty when step 2 fails, got %s", grant.Subject)
	}
}

func TestExchangeIDToResourceToken_Step1Failure(t *testing.T) {
	requests := map[string]*grantRequest{}
	tokens := map[string]string{"default": "jag-token", "employees-server": "resource-token"}
	server := newAuthServer(t, tokens, requests, map[string]bool{"default": true})

	c := newChainClient(t, server.URL, &fakeVerifier{})
	_, err := c.ExchangeIDToResourceToken(context.Background(), "user-id-token", "employees")
	if !errors.Is(err, ErrUnauthorizedAccess) {
		t.Fatalf("expected ErrUnauthorizedAccess, got %v", err)
	}
	if requests["employees-server"] != nil {
		t.Error("step 3 must not run after step 1 fails")
	}
}

func TestExchangeIDToResourceToken_Step3Failure(t *testing.T) {
	requests := map[string]*grantRequest{}
	tokens := map[string]string{"default": "jag-token", "employees-server": "resource-token"}
	server := newAuthServer(t, tokens, requests, map[string]bool{"employees-server": true})

	c := newChainClient(t, server.URL, &fakeVerifier{})
	_, err := c.ExchangeIDToResourceToken(context.Background(), "user-id-token", "employees")
	if !errors.Is(err, ErrUnauthorizedAccess) {
		t.Fatalf("expected ErrUnauthorizedAccess, got %v", err)
	}
}

func TestExchangeIDToResourceToken_UnknownServer(t *testing.T) {
	c := newChainClient(t, "http://unused", &fakeVerifier{})
	if _, err := c.ExchangeIDToResourceToken(context.Background(), "tok", "crm"); !errors.Is(err, ErrUnauthorizedAccess) {
		t.Errorf("expected ErrUnauthorizedAccess for unknown server, got %v", err)
	}
}

func TestVerifyResourceToken(t *testing.T) {
	verifier := &fakeVerifier{valid: map[string]string{
		"good-token": "api://streamward-employees",
	}}
	c := newChainClient(t, "http://unused", verifier)

	id, err := c.VerifyResourceToken(context.Background(), "good-token", "employees")
	if err != nil {
		t.Fatalf("verification failed: %v", err)
	}
	if id.Subject != "00u-chain" {
		t.Errorf("subject = %s", id.Subject)
	}

	if _, err := c.VerifyResourceToken(context.Background(), "bad-token", "employees"); !errors.Is(err, ErrUnauthorizedAccess) {
		t.Errorf("expected ErrUnauthorizedAccess for invalid token, got %v", err)
	}
	if _, err := c.VerifyResourceToken(context.Background(), "", "employees"); !errors.Is(err, ErrUnauthorizedAccess) {
		t.Errorf("expected ErrUnauthorizedAccess for missing token, got %v", err)
	}
	if _, err := c.VerifyResourceToken(context.Background(), "good-token", "crm"); !errors.Is(err, ErrUnauthorizedAccess) {
		t.Errorf("expected ErrUnauthorizedAccess for unknown server, got %v", err)
	}
}

func TestLoadPrivateJWK(t *testing.T) {
	dir := t.TempDir()
	key := testKey(t)

	data, err := key.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "agent.jwk.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadPrivateJWK(path)
	if err != nil {
		t.Fatalf("LoadPrivateJWK failed: %v", err)
	}
	if loaded.KeyID != "agent-key-1" {
		t.Errorf("kid = %s", loaded.KeyID)
	}
	if loaded.IsPublic() {
		t.Error("loaded key should be private")
	}

	// Public keys are rejected.
	pubData, err := key.Public().MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	pubPath := filepath.Join(dir, "agent.pub.jwk.json")
	if err := os.WriteFile(pubPath, pubData, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPrivateJWK(pubPath); err == nil {
		t.Error("expected error for public JWK")
	}

	// Garbage is rejected.
	badPath := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(badPath, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPrivateJWK(badPath); err == nil {
		t.Error("expected error for malformed JWK file")
	}
	if _, err := LoadPrivateJWK(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
