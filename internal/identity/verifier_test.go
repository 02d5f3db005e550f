package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

const testKID = "test-key-1"

// testIssuer is a fake authorization server: it serves a JWKS and signs
// tokens whose issuer claim points back at itself.
type testIssuer struct {
	server *httptest.Server
	key    *rsa.PrivateKey
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/keys", func(w http.ResponseWriter, _ *http.Request) {
		set := jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{{
				Key:       &key.PublicKey,
				KeyID:     testKID,
				Algorithm: "RS256",
				Use:       "sig",
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &testIssuer{server: server, key: key}
}

func (ti *testIssuer) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	if _, ok := claims["iss"]; !ok {
		claims["iss"] = ti.server.URL
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKID
	signed, err := token.SignedString(ti.key)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func (ti *testIssuer) signWithKID(t *testing.T, claims jwt.MapClaims, kid string) string {
	t.Helper()

	claims["iss"] = ti.server.URL
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	} else {
		delete(token.Header, "kid")
	}
	signed, err := token.SignedString(ti.key)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestValidate_AccessToken(t *testing.T) {
	issuer := newTestIssuer(t)
	v := NewVerifier(VerifierOptions{ClientID: "app-client"})

	raw := issuer.sign(t, jwt.MapClaims{
		"sub":   "00u123",
		"aud":   "api://streamward-chat",
		"email": "jane.doe@streamward.dev",
		"name":  "Jane Doe",
	})

	id, err := v.Validate(context.Background(), raw)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if id.Subject != "00u123" {
		t.Errorf("subject = %q, expected sub claim verbatim", id.Subject)
	}
	if id.Email != "jane.doe@streamward.dev" {
		t.Errorf("email = %q", id.Email)
	}
	if id.Name != "Jane Doe" {
		t.Errorf("name = %q", id.Name)
	}
}

func TestValidate_IDToken(t *testing.T) {
	issuer := newTestIssuer(t)
	v := NewVerifier(VerifierOptions{ClientID: "app-client"})

	raw := issuer.sign(t, jwt.MapClaims{
		"sub":   "00u456",
		"aud":   "app-client",
		"email": "joe@streamward.dev",
	})

	id, err := v.Validate(context.Background(), raw)
	if err != nil {
		t.Fatalf("Validate failed for id token: %v", err)
	}
	if id.Subject != "00u456" {
		t.Errorf("subject = %q", id.Subject)
	}
}

func TestValidate_IDTokenWrongClient(t *testing.T) {
	issuer := newTestIssuer(t)
	v := NewVerifier(VerifierOptions{ClientID: "app-client"})

	raw := issuer.sign(t, jwt.MapClaims{
		"sub": "00u456",
		"aud": "some-other-client",
	})

	if _, err := v.Validate(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for audience mismatch, got %v", err)
	}
}

func TestValidate_EmailFallbackChain(t *testing.T) {
	issuer := newTestIssuer(t)
	v := NewVerifier(VerifierOptions{ClientID: "app-client"})

	tests := []struct {
		name     string
		claims   jwt.MapClaims
		expected string
	}{
		{
			"preferred_username",
			jwt.MapClaims{"sub": "00u1", "aud": "api://x", "preferred_username": "pu@streamward.dev"},
			"pu@streamward.dev",
		},
		{
			"upn",
			jwt.MapClaims{"sub": "00u1", "aud": "api://x", "upn": "upn@streamward.dev"},
			"upn@streamward.dev",
		},
		{
			"subject_as_email",
			jwt.MapClaims{"sub": "subj@streamward.dev", "aud": "api://x"},
			"subj@streamward.dev",
		},
		{
			"no_email",
			jwt.MapClaims{"sub": "00u1", "aud": "api://x"},
			"",
		},
		{
			"email_wins",
			jwt.MapClaims{"sub": "00u1", "aud": "api://x", "email": "e@x.dev", "upn": "u@x.dev"},
			"e@x.dev",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			id, err := v.Validate(context.Background(), issuer.sign(t, test.claims))
			if err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
			if id.Email != test.expected {
				t.Errorf("email = %q, expected %q", id.Email, test.expected)
			}
		})
	}
}

func TestValidate_Expired(t *testing.T) {
	issuer := newTestIssuer(t)
	v := NewVerifier(VerifierOptions{ClientID: "app-client"})

	raw := issuer.sign(t, jwt.MapClaims{
		"sub": "00u1",
		"aud": "api://x",
		"exp": time.Now().Add(-2 * time.Hour).Unix(),
	})

	if _, err := v.Validate(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestValidate_MissingKID(t *testing.T) {
	issuer := newTestIssuer(t)
	v := NewVerifier(VerifierOptions{ClientID: "app-client"})

	raw := issuer.signWithKID(t, jwt.MapClaims{"sub": "00u1", "aud": "api://x"}, "")
	if _, err := v.Validate(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for missing kid, got %v", err)
	}
}

func TestValidate_UnknownKID(t *testing.T) {
	issuer := newTestIssuer(t)
	v := NewVerifier(VerifierOptions{ClientID: "app-client"})

	raw := issuer.signWithKID(t, jwt.MapClaims{"sub": "00u1", "aud": "api://x"}, "other-key")
	if _, err := v.Validate(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for unknown kid, got %v", err)
	}
}

func TestValidate_Garbage(t *testing.T) {
	v := NewVerifier(VerifierOptions{ClientID: "app-client"})

	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := v.Validate(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken for %q, got %v", raw, err)
		}
	}
}

func TestValidate_DemoToken(t *testing.T) {
	disabled := NewVerifier(VerifierOptions{ClientID: "app-client"})
	if _, err := disabled.Validate(context.Background(), DemoToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("demo token must be rejected when the gate is off, got %v", err)
	}

	enabled := NewVerifier(VerifierOptions{ClientID: "app-client", AllowDemoToken: true})
	id, err := enabled.Validate(context.Background(), DemoToken)
	if err != nil {
		t.Fatalf("demo token rejected with gate on: %v", err)
	}
	if id.Email != "demo.user@streamward.dev" {
		t.Errorf("unexpected demo identity email: %s", id.Email)
	}
}

func TestIsAccessTokenAudience(t *testing.T) {
	tests := []struct {
		audience string
		expected bool
	}{
		{"api://streamward-chat", true},
		{"https://api.streamward.dev", true},
		{"http://localhost:8080", true},
		{"0oa1b2c3d4", false},
		{"app-client", false},
	}
	for _, test := range tests {
		if got := isAccessTokenAudience(test.audience); got != test.expected {
			t.Errorf("isAccessTokenAudience(%q) = %v, expected %v", test.audience, got, test.expected)
		}
	}
}
