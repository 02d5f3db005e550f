package assistant

import "strings"

// Intent kinds. Exactly one applies to a message.
const (
	IntentWorkflow  = "workflow"
	IntentRAG       = "rag"
	IntentToolQuery = "tool_query"
	IntentGeneral   = "general"
)

// Intent is the routing decision for one user message. Kind selects the
// handler; the other fields are only meaningful for their kind.
type Intent struct {
	Kind string
	// WorkflowType is set for workflow intents.
	WorkflowType string
	// Server is the tool server for tool-query intents.
	Server string
}

// workflowTriggers map message keywords to workflow types, checked in order.
var workflowTriggers = []struct {
	keywords     []string
	workflowType string
}{
	{[]string{"onboard", "new hire", "new employee"}, "employee_onboarding"},
	{[]string{"expense", "reimburs"}, "expense_approval"},
	{[]string{"compliance", "audit"}, "compliance_review"},
	{[]string{"transaction", "payment", "invoice"}, "financial_transaction"},
}

// ClassifyIntent decides how a message is handled. Workflow phrasing wins
// over tool lookups, tool lookups over document search, and anything left is
// general conversation.
func ClassifyIntent(message string) Intent {
	m := strings.ToLower(message)

	for _, trigger := range workflowTriggers {
		for _, keyword := range trigger.keywords {
			if strings.Contains(m, keyword) {
				return Intent{Kind: IntentWorkflow, WorkflowType: trigger.workflowType}
			}
		}
	}

	if hasLookupVerb(m) {
		if strings.Contains(m, "employee") || strings.Contains(m, "staff") || strings.Contains(m, "colleague") {
			return Intent{Kind: IntentToolQuery, Server: "employees"}
		}
		if strings.Contains(m, "partner") || strings.Contains(m, "vendor") {
			return Intent{Kind: IntentToolQuery, Server: "partners"}
		}
	}

	for _, keyword := range []string{"document", "policy", "report", "handbook", "guide", "search"} {
		if strings.Contains(m, keyword) {
			return Intent{Kind: IntentRAG}
		}
	}

	return Intent{Kind: IntentGeneral}
}

func hasLookupVerb(m string) bool {
	for _, verb := range []string{"who is", "look up", "lookup", "find", "list", "show", "get"} {
		if strings.Contains(m, verb) {
			return true
		}
	}
	return false
}
