// Package identity validates inbound bearer tokens and normalizes their
// claims into a user identity record. It supports both access-token and
// ID-token shapes, selected by the audience convention of the token.
package identity

import (
	"errors"
	"strings"
)

// ErrInvalidToken is returned for any verification failure: bad signature,
// unknown signing key, expired token, wrong audience, or malformed input.
var ErrInvalidToken = errors.New("invalid token")

// UserIdentity is the normalized result of a successful token validation.
// It is immutable for the life of a request and never persisted.
type UserIdentity struct {
	Subject    string
	Email      string
	Name       string
	Groups     []string
	Department string
	RawClaims  map[string]any
}

// resolveEmail picks the best email candidate from token claims, trying the
// email claim, then preferred_username, then upn, then the subject itself if
// it looks like an email address.
func resolveEmail(claims map[string]any, subject string) string {
	for _, key := range []string{"email", "preferred_username", "upn"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	if strings.Contains(subject, "@") {
		return subject
	}
	return ""
}
