// Package logging provides structured, subsystem-tagged logging for the
// assistant, built on Go's standard slog package.
//
// Initialize once at startup:
//
//	logging.Init(logging.LevelInfo, os.Stderr, false)
//
//	logging.Info("Bootstrap", "Assistant starting up")
//	logging.Debug("Config", "Loaded configuration from %s", configPath)
//	logging.Error("Exchange", err, "Token exchange failed for audience %s", aud)
//
// Logs are organized by subsystem to enable filtering and categorization:
//
//   - **Bootstrap**: application initialization and startup
//   - **Config**: configuration loading and validation
//   - **Verifier**: inbound token verification and JWKS handling
//   - **Exchange**: RFC 8693 token exchanges
//   - **CrossApp**: the ID-JAG cross-app access chain
//   - **Workflow**: workflow routing and execution
//   - **Authz**: relationship-based document access checks
//   - **Assistant**: chat sessions and intent routing
//   - **MCP**: tool server operations
//
// The package also provides audit logging for security-sensitive operations:
//
//	logging.Audit(logging.AuditEvent{
//	    Action:  "token_exchange",
//	    Outcome: "success",
//	    Actor:   "finance",
//	    Target:  "api://streamward-hr",
//	})
//
// Audit events are logged at INFO level with an [AUDIT] prefix for easy
// filtering by log aggregation systems. Audit events must never contain raw
// token material.
package logging
