// Package privacy derives minimal, LLM-safe identity projections. Nothing
// may reach a language-model prompt without passing through MinimalIdentity
// first.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/streamward/assistant/internal/identity"
)

// DefaultSalt seeds the pseudonym hash when no salt is configured. Changing
// the salt changes every pseudonym across deployments.
const DefaultSalt = "streamward-privacy-salt"

// Policy controls what MinimalIdentity exposes.
type Policy struct {
	// AllowPII passes email and display name through verbatim. Requires
	// user consent, which this system does not itself enforce.
	AllowPII bool
	// Salt seeds the pseudonymous user id when AllowPII is false.
	Salt string
}

// Minimal is the only identity shape allowed into prompts. It is a strict
// allow-list projection: tokens, group memberships, and raw claims can never
// appear here, so new claims cannot silently leak.
type Minimal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

// MinimalIdentity projects a user identity down to what the current policy
// allows. With PII disabled (the default) the only field set is a stable
// salted pseudonym of the email.
func MinimalIdentity(id *identity.UserIdentity, policy Policy) Minimal {
	if policy.AllowPII {
		return Minimal{
			UserID: pseudonym(id.Email, policy.salt()),
			Email:  id.Email,
			Name:   id.Name,
		}
	}
	return Minimal{
		UserID: pseudonym(id.Email, policy.salt()),
	}
}

func (p Policy) salt() string {
	if p.Salt == "" {
		return DefaultSalt
	}
	return p.Salt
}

// pseudonym returns "user_" plus the first 16 hex characters of
// SHA256(email + salt).
func pseudonym(email, salt string) string {
	sum := sha256.Sum256([]byte(email + salt))
	return "user_" + hex.EncodeToString(sum[:])[:16]
}
