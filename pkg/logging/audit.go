package logging

// AuditEvent describes a security-sensitive operation for the audit log.
// Fields carry identifiers only; raw tokens, claims, and secrets must be
// redacted or truncated by the caller before they reach this type.
type AuditEvent struct {
	// Action is the operation performed, e.g. "token_exchange", "idjag_step1".
	Action string
	// Outcome is "success" or "failure".
	Outcome string
	// Actor is the logical identity performing the action (agent name or
	// "orchestrator").
	Actor string
	// Target is the audience, resource, or document the action was aimed at.
	Target string
	// Detail is optional free-form context.
	Detail string
}

// Audit logs an audit event at INFO level with an [AUDIT] prefix.
func Audit(event AuditEvent) {
	detail := event.Detail
	if detail != "" {
		detail = " " + detail
	}
	Info("Audit", "[AUDIT] action=%s outcome=%s actor=%s target=%s%s",
		event.Action, event.Outcome, event.Actor, event.Target, detail)
}

// TruncateSessionID shortens a session identifier for log output so full
// session ids never appear in logs.
func TruncateSessionID(sessionID string) string {
	if len(sessionID) <= 8 {
		return sessionID
	}
	return sessionID[:8] + "..."
}
