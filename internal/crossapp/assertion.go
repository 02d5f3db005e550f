package crossapp

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ClientAssertionType is the RFC 7523 client-assertion-type URN. The agent
// proves its identity with a signed JWT instead of a client secret.
const ClientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// assertionLifetime bounds how long a client assertion stays usable.
const assertionLifetime = 5 * time.Minute

// LoadPrivateJWK reads an agent's private signing key from a JWK JSON file.
func LoadPrivateJWK(path string) (jose.JSONWebKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return jose.JSONWebKey{}, fmt.Errorf("failed to read private key file: %w", err)
	}
	var key jose.JSONWebKey
	if err := json.Unmarshal(data, &key); err != nil {
		return jose.JSONWebKey{}, fmt.Errorf("failed to parse private JWK: %w", err)
	}
	if !key.Valid() {
		return jose.JSONWebKey{}, fmt.Errorf("private JWK is not valid")
	}
	if key.IsPublic() {
		return jose.JSONWebKey{}, fmt.Errorf("JWK is a public key, a private key is required")
	}
	return key, nil
}

// buildClientAssertion signs a JWT-bearer client assertion for one token
// endpoint. Each assertion carries a fresh jti so endpoints can reject
// replays.
func buildClientAssertion(agentID string, key jose.JSONWebKey, tokenEndpoint string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": agentID,
		"sub": agentID,
		"aud": tokenEndpoint,
		"iat": now.Unix(),
		"exp": now.Add(assertionLifetime).Unix(),
		"jti": uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if key.KeyID != "" {
		token.Header["kid"] = key.KeyID
	}

	signed, err := token.SignedString(key.Key)
	if err != nil {
		return "", fmt.Errorf("failed to sign client assertion: %w", err)
	}
	return signed, nil
}
