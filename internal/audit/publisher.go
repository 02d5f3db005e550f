// Package audit publishes exchange audit records to NATS for external
// collection. Publishing is best-effort; a missing or unreachable broker
// never affects a workflow.
package audit

import (
	"encoding/json"

	"github.com/streamward/assistant/internal/config"
	"github.com/streamward/assistant/internal/exchange"
	"github.com/streamward/assistant/pkg/logging"

	nats "github.com/nats-io/nats.go"
)

// Publisher sends exchange records to a NATS subject. A Publisher with no
// connection is a no-op, so callers can wire it unconditionally.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// NewPublisher connects to the broker named in cfg. An empty NATS URL or a
// failed connection yields a disabled publisher, not an error.
func NewPublisher(cfg config.AuditConfig) *Publisher {
	subject := cfg.Subject
	if subject == "" {
		subject = config.DefaultAuditSubject
	}

	if cfg.NATSURL == "" {
		logging.Debug("Audit", "No NATS URL configured; audit trail publishing disabled")
		return &Publisher{subject: subject}
	}

	conn, err := nats.Connect(cfg.NATSURL, nats.Name("streamward-audit"))
	if err != nil {
		logging.Warn("Audit", "Failed to connect to NATS at %s, audit publishing disabled: %v", cfg.NATSURL, err)
		return &Publisher{subject: subject}
	}

	logging.Info("Audit", "Publishing exchange audit records to %s", subject)
	return &Publisher{conn: conn, subject: subject}
}

// Publish implements exchange.RecordSink. Records marshal with the issued
// token redacted, so nothing sensitive reaches the broker.
func (p *Publisher) Publish(record exchange.Record) {
	if p.conn == nil {
		return
	}

	data, err := json.Marshal(record)
	if err != nil {
		logging.Warn("Audit", "Failed to marshal audit record: %v", err)
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		logging.Warn("Audit", "Failed to publish audit record: %v", err)
	}
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		if err := p.conn.Drain(); err != nil {
			logging.Warn("Audit", "Error draining NATS connection: %v", err)
		}
	}
}
