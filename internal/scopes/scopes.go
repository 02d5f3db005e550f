// Package scopes is the static registry of OAuth scopes exposed by each
// department agent's authorization server. All lookups are pure; the
// vocabulary is fixed at compile time.
package scopes

import (
	"fmt"
	"strings"
)

// Agent names registered here. Every scope lookup is keyed by one of these.
const (
	AgentHR      = "hr"
	AgentFinance = "finance"
	AgentLegal   = "legal"
)

// Scope constants per agent. Each authorization server exposes a small fixed
// vocabulary; combinations are precomposed for convenience but are
// semantically just space-joined scope strings.
const (
	HREmployeesRead    = "hr:employees:read"
	HREmployeesWrite   = "hr:employees:write"
	HRBenefitsRead     = "hr:benefits:read"
	HRBenefitsWrite    = "hr:benefits:write"
	HROnboardingManage = "hr:onboarding:manage"

	FinanceTransactionsRead  = "finance:transactions:read"
	FinanceTransactionsWrite = "finance:transactions:write"
	FinanceBudgetRead        = "finance:budget:read"
	FinanceBudgetWrite       = "finance:budget:write"
	FinanceApprovalManage    = "finance:approval:manage"

	LegalComplianceRead   = "legal:compliance:read"
	LegalComplianceVerify = "legal:compliance:verify"
	LegalContractsRead    = "legal:contracts:read"
	LegalContractsReview  = "legal:contracts:review"
	LegalAuditExecute     = "legal:audit:execute"
)

// ErrUnknownAgent is returned for agent names outside the registry.
type ErrUnknownAgent struct {
	Agent string
}

func (e *ErrUnknownAgent) Error() string {
	return fmt.Sprintf("unknown agent %q", e.Agent)
}

var allScopes = map[string][]string{
	"hr": {
		HREmployeesRead, HREmployeesWrite,
		HRBenefitsRead, HRBenefitsWrite,
		HROnboardingManage,
	},
	"finance": {
		FinanceTransactionsRead, FinanceTransactionsWrite,
		FinanceBudgetRead, FinanceBudgetWrite,
		FinanceApprovalManage,
	},
	"legal": {
		LegalComplianceRead, LegalComplianceVerify,
		LegalContractsRead, LegalContractsReview,
		LegalAuditExecute,
	},
}

var defaultScopes = map[string][]string{
	"hr":      {HREmployeesRead, HRBenefitsRead},
	"finance": {FinanceTransactionsRead, FinanceApprovalManage},
	"legal":   {LegalComplianceRead, LegalComplianceVerify},
}

// crossAgentScopes maps a target agent to the scope a peer agent receives
// when reaching across: always the target's primary read scope.
var crossAgentScopes = map[string]string{
	"hr":      HREmployeesRead,
	"finance": FinanceTransactionsRead,
	"legal":   LegalComplianceRead,
}

// DefaultScope returns the space-joined default scope string requested when
// the orchestrator exchanges a user token for the target agent.
func DefaultScope(targetAgent string) (string, error) {
	s, ok := defaultScopes[targetAgent]
	if !ok {
		return "", &ErrUnknownAgent{Agent: targetAgent}
	}
	return strings.Join(s, " "), nil
}

// CrossAgentScope returns the scope one agent requests when exchanging a
// token to call a peer agent. The result depends only on the target: a peer
// always receives the target's read capability, never write or manage.
func CrossAgentScope(sourceAgent, targetAgent string) (string, error) {
	if _, ok := allScopes[sourceAgent]; !ok {
		return "", &ErrUnknownAgent{Agent: sourceAgent}
	}
	s, ok := crossAgentScopes[targetAgent]
	if !ok {
		return "", &ErrUnknownAgent{Agent: targetAgent}
	}
	return s, nil
}

// AllScopes returns the full scope vocabulary of an agent's authorization
// server.
func AllScopes(agent string) ([]string, error) {
	s, ok := allScopes[agent]
	if !ok {
		return nil, &ErrUnknownAgent{Agent: agent}
	}
	out := make([]string, len(s))
	copy(out, s)
	return out, nil
}

// KnownAgents returns the registered agent names.
func KnownAgents() []string {
	return []string{AgentHR, AgentFinance, AgentLegal}
}

// IsKnownAgent reports whether the name is in the registry.
func IsKnownAgent(agent string) bool {
	_, ok := allScopes[agent]
	return ok
}
