// Package workflow drives the multi-agent routing graph: orchestrator to
// department agents to coordination to finalization, recording an auditable
// trail of every token exchange along the way.
package workflow

import (
	"context"
	"time"

	"github.com/streamward/assistant/internal/exchange"
	"github.com/streamward/assistant/internal/identity"
	"github.com/streamward/assistant/internal/privacy"

	"github.com/google/uuid"
)

// Workflow statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// FlowEntry is one agent invocation in the ordered trace.
type FlowEntry struct {
	Agent     string    `json:"agent"`
	Step      int       `json:"step"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the mutable record threaded through the routing graph. Each run
// owns its State exclusively; nodes execute sequentially, so no locking is
// needed. Once finalization writes FinalResult the state is effectively
// frozen.
type State struct {
	WorkflowID string         `json:"workflow_id"`
	Type       string         `json:"workflow_type"`
	Parameters map[string]any `json:"parameters,omitempty"`

	User *identity.UserIdentity `json:"-"`

	// Results holds each agent's business result, keyed by agent name. A
	// failed node stores {"error": <message>} instead of aborting the run.
	Results map[string]map[string]any `json:"results"`

	AgentFlow      []FlowEntry       `json:"agent_flow"`
	TokenExchanges []exchange.Record `json:"token_exchanges"`

	Error       string    `json:"error,omitempty"`
	FinalResult string    `json:"final_result,omitempty"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// NewState creates the state for a fresh workflow run.
func NewState(workflowType string, parameters map[string]any, user *identity.UserIdentity) *State {
	return &State{
		WorkflowID: uuid.NewString(),
		Type:       workflowType,
		Parameters: parameters,
		User:       user,
		Results:    make(map[string]map[string]any),
		Status:     StatusRunning,
		StartedAt:  time.Now().UTC(),
	}
}

// AddFlowEntry appends the next agent invocation to the trace. Steps number
// from 1 in call order.
func (s *State) AddFlowEntry(agent, action string) {
	s.AgentFlow = append(s.AgentFlow, FlowEntry{
		Agent:     agent,
		Step:      len(s.AgentFlow) + 1,
		Action:    action,
		Timestamp: time.Now().UTC(),
	})
}

// AddExchange appends an exchange record to the audit trail.
func (s *State) AddExchange(record exchange.Record) {
	s.TokenExchanges = append(s.TokenExchanges, record)
}

// SetAgentResult stores an agent's business result.
func (s *State) SetAgentResult(agent string, result map[string]any) {
	s.Results[agent] = result
}

// SetAgentError stores a node-local failure as the agent's result. The
// workflow continues with partial results.
func (s *State) SetAgentError(agent string, err error) {
	s.Results[agent] = map[string]any{"error": err.Error()}
}

// Invocation is what an agent node receives: its audience-scoped token and
// the redacted identity safe for prompts.
type Invocation struct {
	State *State
	Token *exchange.Token
	User  privacy.Minimal
}

// Agent is one department agent node in the graph.
type Agent interface {
	Name() string
	Audience() string
	Run(ctx context.Context, inv *Invocation) (map[string]any, error)
}
