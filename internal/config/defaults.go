package config

// GetDefaultConfig returns the default configuration for the assistant.
// Audiences and authorization servers match the demo tenant layout; every
// value can be overridden by config.yaml or environment variables.
func GetDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Auth: AuthConfig{
			IssuerDomain:        "auth.streamward.dev",
			MainAudience:        "api://streamward-chat",
			DefaultAuthServerID: "default",
			Agents: map[string]AgentAuthConfig{
				"hr": {
					Audience:     "api://streamward-hr",
					AuthServerID: "hr-server",
				},
				"finance": {
					Audience:     "api://streamward-finance",
					AuthServerID: "finance-server",
				},
				"legal": {
					Audience:     "api://streamward-legal",
					AuthServerID: "legal-server",
				},
			},
		},
		CrossApp: CrossAppConfig{
			ResourceServers: map[string]ResourceServerConfig{
				"employees": {
					AuthServerID: "employees-server",
					Audience:     "api://streamward-employees",
				},
				"partners": {
					AuthServerID: "partners-server",
					Audience:     "api://streamward-partners",
				},
			},
		},
		Privacy: PrivacyConfig{
			AnonymousIDSalt: "streamward-privacy-salt",
		},
		Audit: AuditConfig{
			Subject: DefaultAuditSubject,
		},
		LLM: LLMConfig{
			Model: "streamward-chat-1",
		},
	}
}
