// Package agents holds the department agents invoked by the workflow
// engine. Business logic is mocked; the token handling around it is real.
// Each agent only ever sees a token exchanged for its own audience, and a
// peer call requires its own exchange under the calling agent's credential.
package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/streamward/assistant/internal/exchange"
	"github.com/streamward/assistant/internal/scopes"
	"github.com/streamward/assistant/internal/workflow"
	"github.com/streamward/assistant/pkg/logging"

	"github.com/google/uuid"
)

// Deps is what the agents need from the rest of the system.
type Deps struct {
	Exchanger workflow.Exchanger
	// Audiences maps department names to their API audience.
	Audiences map[string]string
}

// New builds the standard agent set, keyed by department.
func New(deps Deps) map[string]workflow.Agent {
	return map[string]workflow.Agent{
		scopes.AgentHR:      &HRAgent{audience: deps.Audiences[scopes.AgentHR]},
		scopes.AgentFinance: NewFinanceAgent(deps),
		scopes.AgentLegal:   &LegalAgent{audience: deps.Audiences[scopes.AgentLegal]},
	}
}

// HRAgent manages employee records and benefits enrollment.
type HRAgent struct {
	audience string
}

func (a *HRAgent) Name() string     { return scopes.AgentHR }
func (a *HRAgent) Audience() string { return a.audience }

// Run provisions the HR side of a workflow.
func (a *HRAgent) Run(_ context.Context, inv *workflow.Invocation) (map[string]any, error) {
	employeeName, _ := inv.State.Parameters["employee_name"].(string)
	if employeeName == "" {
		employeeName = inv.User.UserID
	}

	logging.Info("Agents", "HR agent handling %s for %s", inv.State.Type, inv.User.UserID)

	record := map[string]any{
		"employee_id": "emp-" + uuid.NewString()[:8],
		"name":        employeeName,
		"status":      "provisioned",
	}
	result := map[string]any{
		"employee_record": record,
		"scope_used":      inv.Token.Scope,
	}
	if isOnboarding(inv.State.Type) {
		result["benefits"] = "standard package enrolled"
		result["equipment"] = "laptop and badge requested"
	}
	return result, nil
}

// FinanceAgent sets up payroll and approves transactions. For work that
// needs employee data it calls across to HR, exchanging its own token under
// the finance service credential.
type FinanceAgent struct {
	audience   string
	hrAudience string
	exchanger  workflow.Exchanger
}

// NewFinanceAgent creates the finance agent.
func NewFinanceAgent(deps Deps) *FinanceAgent {
	return &FinanceAgent{
		audience:   deps.Audiences[scopes.AgentFinance],
		hrAudience: deps.Audiences[scopes.AgentHR],
		exchanger:  deps.Exchanger,
	}
}

func (a *FinanceAgent) Name() string     { return scopes.AgentFinance }
func (a *FinanceAgent) Audience() string { return a.audience }

// Run handles the finance side of a workflow.
func (a *FinanceAgent) Run(ctx context.Context, inv *workflow.Invocation) (map[string]any, error) {
	logging.Info("Agents", "Finance agent handling %s for %s", inv.State.Type, inv.User.UserID)

	switch {
	case isOnboarding(inv.State.Type):
		employee := a.fetchEmployeeFromHR(ctx, inv, "payroll-setup")
		return map[string]any{
			"payroll_account":   "acct-" + uuid.NewString()[:8],
			"corporate_card":    "requested",
			"employee_verified": employee != nil,
		}, nil

	default:
		employee := a.fetchEmployeeFromHR(ctx, inv, "expense-approval")
		result := map[string]any{
			"approval":     "granted",
			"limit":        5000,
			"currency":     "USD",
			"requested_by": inv.User.UserID,
		}
		if employee != nil {
			result["cost_center"] = employee["cost_center"]
		}
		return result, nil
	}
}

// fetchEmployeeFromHR performs the cross-agent hop: exchange the finance
// token for an HR-audience token under the finance credential, then query
// HR. When HR's authorization server is unavailable the agent continues with
// a simulated delegation marker so the demo stays alive; the marker is not a
// token and HR data is simply absent from the result.
func (a *FinanceAgent) fetchEmployeeFromHR(ctx context.Context, inv *workflow.Invocation, purpose string) map[string]any {
	scope, err := scopes.CrossAgentScope(scopes.AgentFinance, scopes.AgentHR)
	if err != nil {
		logging.Error("Agents", err, "Cross-agent scope lookup failed")
		return nil
	}

	result, err := a.exchanger.Exchange(ctx, exchange.Request{
		SubjectToken: inv.Token.AccessToken,
		Audience:     a.hrAudience,
		Scope:        scope,
		SourceAgent:  scopes.AgentFinance,
	})
	if err != nil {
		marker := fmt.Sprintf("finance-to-hr-token-%s-%d", purpose, time.Now().Unix())
		logging.Warn("Agents", "Finance->HR exchange failed, continuing without HR data (marker %s): %v", marker, err)
		return nil
	}
	inv.State.AddExchange(result.Record)

	logging.Debug("Agents", "Finance agent reached HR with scope %s for %s", result.Token.Scope, purpose)
	return a.queryHREmployee(inv, result.Token)
}

// queryHREmployee is the mocked HR data call made with the cross-agent
// token.
func (a *FinanceAgent) queryHREmployee(inv *workflow.Invocation, _ *exchange.Token) map[string]any {
	name, _ := inv.State.Parameters["employee_name"].(string)
	if name == "" {
		name = inv.User.UserID
	}
	return map[string]any{
		"name":        name,
		"cost_center": "CC-4200",
		"grade":       "IC3",
	}
}

// LegalAgent runs compliance verification and contract review.
type LegalAgent struct {
	audience string
}

func (a *LegalAgent) Name() string     { return scopes.AgentLegal }
func (a *LegalAgent) Audience() string { return a.audience }

// Run handles the legal side of a workflow.
func (a *LegalAgent) Run(_ context.Context, inv *workflow.Invocation) (map[string]any, error) {
	logging.Info("Agents", "Legal agent handling %s for %s", inv.State.Type, inv.User.UserID)

	if isOnboarding(inv.State.Type) {
		return map[string]any{
			"compliance_check":      "passed",
			"policies_acknowledged": []any{"code-of-conduct", "data-handling"},
			"background_check":      "clear",
		}, nil
	}
	return map[string]any{
		"compliance_check": "passed",
		"findings":         []any{},
		"audit_reference":  "aud-" + uuid.NewString()[:8],
	}, nil
}

func isOnboarding(workflowType string) bool {
	t := strings.ToLower(workflowType)
	return strings.Contains(t, "onboard") || strings.Contains(t, "hire") || strings.Contains(t, "employee")
}
