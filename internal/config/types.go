package config

import "fmt"

// Config is the top-level configuration structure for the assistant.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Auth     AuthConfig     `yaml:"auth"`
	CrossApp CrossAppConfig `yaml:"crossApp"`
	Privacy  PrivacyConfig  `yaml:"privacy"`
	FGA      FGAConfig      `yaml:"fga"`
	Audit    AuditConfig    `yaml:"audit"`
	LLM      LLMConfig      `yaml:"llm"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn, error (default: info)
	JSON  bool   `yaml:"json,omitempty"`  // JSON handler instead of text
}

// ServiceCredential is a non-human client identity used to authenticate
// token-exchange requests. Exactly one credential is selected per exchange,
// chosen by which logical agent initiates it.
type ServiceCredential struct {
	ClientID     string `yaml:"clientId,omitempty"`
	ClientSecret string `yaml:"clientSecret,omitempty"`
}

// AgentAuthConfig holds per-agent authorization settings: the audience its
// tokens assert, the authorization server that issues them, and the service
// credential the agent authenticates with when it initiates its own exchanges.
type AgentAuthConfig struct {
	Audience     string            `yaml:"audience,omitempty"`
	AuthServerID string            `yaml:"authServerId,omitempty"`
	Credential   ServiceCredential `yaml:"credential,omitempty"`
}

// AuthConfig is the authorization-service client configuration.
type AuthConfig struct {
	// IssuerDomain is the host of the external authorization service,
	// e.g. "auth.streamward.dev".
	IssuerDomain string `yaml:"issuerDomain,omitempty"`
	// ClientID is the main application's OAuth client id, used to validate
	// ID-token audiences.
	ClientID string `yaml:"clientId,omitempty"`
	// MainAudience is the audience asserted by the chat assistant's own
	// access tokens.
	MainAudience string `yaml:"mainAudience,omitempty"`
	// DefaultAuthServerID is the authorization server backing MainAudience.
	DefaultAuthServerID string `yaml:"defaultAuthServerId,omitempty"`
	// Orchestrator is the chat assistant's own service credential, used for
	// every exchange initiated on behalf of the end user.
	Orchestrator ServiceCredential `yaml:"orchestrator,omitempty"`
	// Agents maps agent names (hr, finance, legal) to their auth settings.
	Agents map[string]AgentAuthConfig `yaml:"agents,omitempty"`
	// AllowDemoToken accepts the reserved demo token without verification.
	// Never enable outside local demos.
	AllowDemoToken bool `yaml:"allowDemoToken,omitempty"`
}

// ResourceServerConfig identifies a tool server reachable through the
// cross-app access chain.
type ResourceServerConfig struct {
	AuthServerID string `yaml:"authServerId,omitempty"`
	Audience     string `yaml:"audience,omitempty"`
}

// CrossAppConfig configures the ID-JAG cross-app access client. The agent
// authenticates with a private signing key, not a client secret.
type CrossAppConfig struct {
	AgentID         string                          `yaml:"agentId,omitempty"`
	PrivateKeyFile  string                          `yaml:"privateKeyFile,omitempty"` // path to a JWK JSON file
	ResourceServers map[string]ResourceServerConfig `yaml:"resourceServers,omitempty"`
}

// PrivacyConfig controls identity redaction before LLM exposure.
type PrivacyConfig struct {
	// AllowPIIInPrompts passes email and display name through to prompts.
	// Default off: prompts only ever see a salted pseudonym.
	AllowPIIInPrompts bool `yaml:"allowPiiInPrompts,omitempty"`
	// AnonymousIDSalt seeds the pseudonym hash. Changing it changes every
	// pseudonym.
	AnonymousIDSalt string `yaml:"anonymousIdSalt,omitempty"`
}

// FGAConfig points at the external relationship store.
type FGAConfig struct {
	APIURL  string `yaml:"apiUrl,omitempty"`
	StoreID string `yaml:"storeId,omitempty"`
	ModelID string `yaml:"modelId,omitempty"`
	// FailClosed denies access when the store is unreachable. Default off,
	// which is a demo-only posture: unreachable store means allow all.
	FailClosed bool `yaml:"failClosed,omitempty"`
}

// LLMConfig points at the completion gateway. With no gateway URL the
// assistant falls back to the offline stub completer. The gateway is a
// machine-to-machine client: it authenticates with its own client
// credentials, never with a user token.
type LLMConfig struct {
	GatewayURL   string `yaml:"gatewayUrl,omitempty"`
	TokenURL     string `yaml:"tokenUrl,omitempty"`
	ClientID     string `yaml:"clientId,omitempty"`
	ClientSecret string `yaml:"clientSecret,omitempty"`
	Model        string `yaml:"model,omitempty"`
}

// AuditConfig configures the optional exchange audit-trail publisher.
type AuditConfig struct {
	NATSURL string `yaml:"natsUrl,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// DefaultAuditSubject is used when AuditConfig.Subject is empty.
const DefaultAuditSubject = "streamward.audit.exchange"

// Issuer returns the issuer URL for an authorization server id.
func (a AuthConfig) Issuer(authServerID string) string {
	return fmt.Sprintf("https://%s/oauth2/%s", a.IssuerDomain, authServerID)
}

// TokenEndpoint returns the token endpoint URL for an authorization server id.
func (a AuthConfig) TokenEndpoint(authServerID string) string {
	return a.Issuer(authServerID) + "/v1/token"
}

// AudienceToAuthServer returns the static audience to authorization-server
// map covering the main audience and every configured agent.
func (a AuthConfig) AudienceToAuthServer() map[string]string {
	m := make(map[string]string, len(a.Agents)+1)
	if a.MainAudience != "" {
		m[a.MainAudience] = a.DefaultAuthServerID
	}
	for _, agent := range a.Agents {
		if agent.Audience != "" {
			m[agent.Audience] = agent.AuthServerID
		}
	}
	return m
}
