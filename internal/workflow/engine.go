package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/streamward/assistant/internal/exchange"
	"github.com/streamward/assistant/internal/identity"
	"github.com/streamward/assistant/internal/llm"
	"github.com/streamward/assistant/internal/privacy"
	"github.com/streamward/assistant/internal/scopes"
	"github.com/streamward/assistant/pkg/logging"
)

// ErrUnknownWorkflow is returned when no routing rule matches the workflow
// type. Routing fails fast, before any agent or token exchange runs.
var ErrUnknownWorkflow = errors.New("unknown workflow type")

// Exchanger is the token-exchange capability the engine needs. Satisfied by
// *exchange.Client.
type Exchanger interface {
	Exchange(ctx context.Context, req exchange.Request) (*exchange.Result, error)
}

// Options configures an Engine.
type Options struct {
	Exchanger Exchanger
	// Agents maps department names (hr, finance, legal) to their agent.
	Agents map[string]Agent
	// Privacy controls the identity projection handed to agents and prompts.
	Privacy privacy.Policy
	// Completer produces the coordination summary. Defaults to the offline
	// stub.
	Completer llm.Completer
	// Registry tracks runs. Defaults to an in-memory registry.
	Registry Registry
}

// Engine executes the routing graph for one workflow type: route to the
// first department agent, follow the conditional edges, then coordinate and
// finalize. Node failures are captured into that node's result; the graph
// always reaches finalization.
type Engine struct {
	exchanger Exchanger
	agents    map[string]Agent
	policy    privacy.Policy
	completer llm.Completer
	registry  Registry
}

// NewEngine creates an engine.
func NewEngine(opts Options) *Engine {
	completer := opts.Completer
	if completer == nil {
		completer = llm.StubCompleter{}
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewInMemoryRegistry()
	}
	return &Engine{
		exchanger: opts.Exchanger,
		agents:    opts.Agents,
		policy:    opts.Privacy,
		completer: completer,
		registry:  registry,
	}
}

// Registry exposes the run registry for status lookups.
func (e *Engine) Registry() Registry {
	return e.registry
}

// Execute runs a workflow on behalf of the authenticated user. userToken is
// the user's original token; every agent hop re-exchanges it with the
// orchestrator credential, so each agent receives a token scoped to its own
// audience rather than a forwarded copy.
//
// The returned state is always in a terminal status. An error is returned
// only when the workflow cannot start at all.
func (e *Engine) Execute(ctx context.Context, workflowType string, parameters map[string]any, user *identity.UserIdentity, userToken string) (*State, error) {
	route, err := e.route(workflowType)
	if err != nil {
		return nil, err
	}

	state := NewState(workflowType, parameters, user)
	e.registry.Put(state)

	logging.Info("Workflow", "Starting workflow %s: type=%s route=%s",
		state.WorkflowID, workflowType, strings.Join(route, " -> "))

	for _, department := range route {
		e.runAgentNode(ctx, state, department, userToken)
	}

	summary := e.coordinate(ctx, state)
	e.finalize(state, summary)
	return state, nil
}

// route resolves the ordered list of department agents for a workflow type.
func (e *Engine) route(workflowType string) ([]string, error) {
	t := strings.ToLower(workflowType)

	var route []string
	switch {
	case isOnboardingClass(t):
		route = append(route, scopes.AgentHR)
	case isFinanceClass(t):
		route = append(route, scopes.AgentFinance)
	case isLegalClass(t):
		route = append(route, scopes.AgentLegal)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflow, workflowType)
	}

	// Onboarding continues from HR into Finance for account and payroll
	// setup.
	if route[len(route)-1] == scopes.AgentHR && isOnboardingClass(t) {
		route = append(route, scopes.AgentFinance)
	}
	// Finance hands onboarding and compliance work to Legal for the final
	// verification.
	if route[len(route)-1] == scopes.AgentFinance && (isOnboardingClass(t) || isComplianceClass(t)) {
		route = append(route, scopes.AgentLegal)
	}
	return route, nil
}

func isOnboardingClass(t string) bool {
	return strings.Contains(t, "onboard") || strings.Contains(t, "hire") || strings.Contains(t, "employee")
}

func isFinanceClass(t string) bool {
	for _, kw := range []string{"financ", "transaction", "expense", "budget", "payment", "invoice"} {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

func isLegalClass(t string) bool {
	for _, kw := range []string{"legal", "compliance", "contract", "policy"} {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

func isComplianceClass(t string) bool {
	return strings.Contains(t, "compliance") || strings.Contains(t, "audit")
}

// runAgentNode exchanges the user token for the department's audience and
// invokes the agent. Any failure becomes that node's {error} result; the
// workflow continues.
func (e *Engine) runAgentNode(ctx context.Context, state *State, department, userToken string) {
	agent, ok := e.agents[department]
	if !ok {
		state.AddFlowEntry(flowName(department), "unavailable")
		state.SetAgentError(department, fmt.Errorf("no agent registered for %s", department))
		return
	}

	scope, err := scopes.DefaultScope(department)
	if err != nil {
		state.AddFlowEntry(flowName(department), "failed")
		state.SetAgentError(department, err)
		return
	}

	result, err := e.exchanger.Exchange(ctx, exchange.Request{
		SubjectToken: userToken,
		Audience:     agent.Audience(),
		Scope:        scope,
	})
	if err != nil {
		logging.Warn("Workflow", "Agent %s skipped, token exchange failed: %v", department, err)
		state.AddFlowEntry(flowName(department), "token_exchange_failed")
		state.SetAgentError(department, err)
		return
	}
	state.AddExchange(result.Record)

	inv := &Invocation{
		State: state,
		Token: result.Token,
		User:  privacy.MinimalIdentity(state.User, e.policy),
	}
	output, err := agent.Run(ctx, inv)
	if err != nil {
		logging.Warn("Workflow", "Agent %s failed: %v", department, err)
		state.AddFlowEntry(flowName(department), "failed")
		state.SetAgentError(department, err)
		return
	}

	state.AddFlowEntry(flowName(department), "completed")
	state.SetAgentResult(department, output)
	logging.Debug("Workflow", "Agent %s completed", department)
}

// coordinate summarizes the collected results through the completer. The
// prompt is built from sanitized results only; tokens never reach it.
func (e *Engine) coordinate(ctx context.Context, state *State) string {
	sanitized := sanitizeResults(state.Results)

	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the outcome of the %s workflow for %s.\n",
		state.Type, privacy.MinimalIdentity(state.User, e.policy).UserID)
	for department, result := range sanitized {
		fmt.Fprintf(&b, "%s: %v\n", department, result)
	}

	summary, err := e.completer.Complete(ctx, b.String())
	if err != nil {
		logging.Warn("Workflow", "Coordination summary failed, using fallback: %v", err)
		return fmt.Sprintf("Workflow %s finished with results from %d agents.", state.Type, len(state.Results))
	}
	return summary
}

// finalize closes out the run. Every execution reaches this node, with
// whatever partial results the agents produced.
func (e *Engine) finalize(state *State, summary string) {
	var failed []string
	for department, result := range state.Results {
		if _, ok := result["error"]; ok {
			failed = append(failed, department)
		}
	}

	state.FinalResult = summary
	if len(failed) > 0 {
		state.FinalResult = fmt.Sprintf("%s (partial results: %s unavailable)",
			summary, strings.Join(failed, ", "))
	}
	state.Status = StatusCompleted
	state.CompletedAt = time.Now().UTC()
	e.registry.Put(state)

	logging.Info("Workflow", "Workflow %s completed: agents=%d exchanges=%d failures=%d",
		state.WorkflowID, len(state.AgentFlow), len(state.TokenExchanges), len(failed))
}

func flowName(department string) string {
	return department + "_agent"
}

// sanitizeResults deep-copies agent results with every token-bearing field
// removed, keyed off the field name.
func sanitizeResults(results map[string]map[string]any) map[string]map[string]any {
	sanitized := make(map[string]map[string]any, len(results))
	for department, result := range results {
		sanitized[department] = sanitizeMap(result)
	}
	return sanitized
}

func sanitizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return sanitizeMap(val)
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, sanitizeValue(item))
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "secret") || strings.Contains(k, "assertion")
}
