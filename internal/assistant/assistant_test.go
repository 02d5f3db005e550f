package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/streamward/assistant/internal/crossapp"
	"github.com/streamward/assistant/internal/docs"
	"github.com/streamward/assistant/internal/identity"
	"github.com/streamward/assistant/internal/workflow"
)

type fakeVerifier struct {
	valid map[string]*identity.UserIdentity
}

func (v *fakeVerifier) Validate(_ context.Context, raw string) (*identity.UserIdentity, error) {
	if user, ok := v.valid[raw]; ok {
		return user, nil
	}
	return nil, identity.ErrInvalidToken
}

type fakeRunner struct {
	lastType  string
	lastToken string
	err       error
}

func (r *fakeRunner) Execute(_ context.Context, workflowType string, _ map[string]any, user *identity.UserIdentity, userToken string) (*workflow.State, error) {
	r.lastType = workflowType
	r.lastToken = userToken
	if r.err != nil {
		return nil, r.err
	}
	state := workflow.NewState(workflowType, nil, user)
	state.Status = workflow.StatusCompleted
	state.FinalResult = "workflow finished"
	return state, nil
}

type fakeQuerier struct {
	results []docs.Document
}

func (q *fakeQuerier) Query(_ context.Context, _, _ string) []docs.Document {
	return q.results
}

type fakeResources struct {
	grant *crossapp.Grant
	err   error
	calls []string
}

func (r *fakeResources) ExchangeIDToResourceToken(_ context.Context, _, serverName string) (*crossapp.Grant, error) {
	r.calls = append(r.calls, serverName)
	if r.err != nil {
		return nil, r.err
	}
	return r.grant, nil
}

type fakeInvoker struct {
	lastServer string
	lastTool   string
	lastArgs   map[string]any
	output     string
	err        error
}

func (i *fakeInvoker) Call(_ context.Context, serverName, tool string, args map[string]any) (string, error) {
	i.lastServer = serverName
	i.lastTool = tool
	i.lastArgs = args
	if i.err != nil {
		return "", i.err
	}
	return i.output, nil
}

type recordingCompleter struct {
	prompts []string
}

func (c *recordingCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	return "completion", nil
}

const userToken = "valid-user-token"

func newTestAssistant() (*Assistant, *fakeRunner, *fakeQuerier, *fakeResources, *fakeInvoker, *recordingCompleter) {
	runner := &fakeRunner{}
	querier := &fakeQuerier{}
	resources := &fakeResources{grant: &crossapp.Grant{AccessToken: "resource-token", Subject: "00u-jane"}}
	invoker := &fakeInvoker{output: `{"employees": []}`}
	completer := &recordingCompleter{}

	a := New(Options{
		Verifier: &fakeVerifier{valid: map[string]*identity.UserIdentity{
			userToken: {Subject: "00u-jane", Email: "jane@streamward.dev", Name: "Jane"},
		}},
		Workflows: runner,
		Documents: querier,
		Resources: resources,
		Tools:     invoker,
		Completer: completer,
	})
	return a, runner, querier, resources, invoker, completer
}

func TestHandleMessage_RejectsInvalidToken(t *testing.T) {
	a, _, _, _, _, _ := newTestAssistant()

	_, err := a.HandleMessage(context.Background(), "s1", "bad-token", "hello")
	if err == nil {
		t.Fatal("expected authentication error")
	}
	if !errors.Is(err, identity.ErrInvalidToken) {
		t.Errorf("err = %v", err)
	}
}

func TestHandleMessage_WorkflowIntent(t *testing.T) {
	a, runner, _, _, _, _ := newTestAssistant()

	resp, err := a.HandleMessage(context.Background(), "s1", userToken, "Please onboard our new hire")
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if resp.Intent.Kind != IntentWorkflow {
		t.Errorf("intent = %+v", resp.Intent)
	}
	if runner.lastType != "employee_onboarding" {
		t.Errorf("workflow type = %q", runner.lastType)
	}
	if runner.lastToken != userToken {
		t.Errorf("workflow got token %q, want the user's own token", runner.lastToken)
	}
	if resp.WorkflowID == "" || resp.Text != "workflow finished" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandleMessage_WorkflowStartFailureIsConversational(t *testing.T) {
	a, runner, _, _, _, _ := newTestAssistant()
	runner.err = workflow.ErrUnknownWorkflow

	resp, err := a.HandleMessage(context.Background(), "s1", userToken, "start the expense process")
	if err != nil {
		t.Fatalf("handler errors must stay conversational: %v", err)
	}
	if resp.WorkflowID != "" {
		t.Errorf("workflow id = %q", resp.WorkflowID)
	}
	if !strings.Contains(resp.Text, "couldn't start") {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestHandleMessage_DocumentIntent(t *testing.T) {
	a, _, querier, _, _, completer := newTestAssistant()
	querier.results = []docs.Document{
		{ID: "doc-1", Title: "Travel Policy", Content: "Employees may book economy flights."},
	}

	resp, err := a.HandleMessage(context.Background(), "s1", userToken, "what does the travel policy say?")
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if resp.Intent.Kind != IntentRAG {
		t.Errorf("intent = %+v", resp.Intent)
	}
	if resp.Text != "completion" {
		t.Errorf("text = %q", resp.Text)
	}
	if len(completer.prompts) != 1 {
		t.Fatalf("prompts = %v", completer.prompts)
	}
	prompt := completer.prompts[0]
	if !strings.Contains(prompt, "Travel Policy") {
		t.Errorf("document missing from prompt: %q", prompt)
	}
	if strings.Contains(prompt, "jane@streamward.dev") || strings.Contains(prompt, "Jane") {
		t.Errorf("PII leaked into prompt: %q", prompt)
	}
}

func TestHandleMessage_DocumentIntentNoResults(t *testing.T) {
	a, _, _, _, _, completer := newTestAssistant()

	resp, err := a.HandleMessage(context.Background(), "s1", userToken, "what does the security policy document say?")
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !strings.Contains(resp.Text, "couldn't find any documents") {
		t.Errorf("text = %q", resp.Text)
	}
	if len(completer.prompts) != 0 {
		t.Errorf("no completion should run without accessible documents, prompts = %v", completer.prompts)
	}
}

func TestHandleMessage_ToolQueryUsesResourceToken(t *testing.T) {
	a, _, _, resources, invoker, _ := newTestAssistant()

	resp, err := a.HandleMessage(context.Background(), "s1", userToken, "list employees in engineering")
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if resp.Intent.Kind != IntentToolQuery || resp.Intent.Server != "employees" {
		t.Errorf("intent = %+v", resp.Intent)
	}
	if len(resources.calls) != 1 || resources.calls[0] != "employees" {
		t.Errorf("resource calls = %v", resources.calls)
	}
	if invoker.lastTool != "list_employees" {
		t.Errorf("tool = %q", invoker.lastTool)
	}
	if invoker.lastArgs["token"] != "resource-token" {
		t.Errorf("tool call token = %v, want the chain's resource token", invoker.lastArgs["token"])
	}
	if invoker.lastArgs["department"] != "engineering" {
		t.Errorf("department arg = %v", invoker.lastArgs["department"])
	}
	for _, v := range invoker.lastArgs {
		if v == userToken {
			t.Error("the user's token must never reach a tool call")
		}
	}
}

func TestHandleMessage_ToolQueryDenied(t *testing.T) {
	a, _, _, resources, invoker, _ := newTestAssistant()
	resources.err = crossapp.ErrUnauthorizedAccess

	resp, err := a.HandleMessage(context.Background(), "s1", userToken, "show me our gold partners")
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !strings.Contains(resp.Text, "denied") {
		t.Errorf("text = %q", resp.Text)
	}
	if invoker.lastTool != "" {
		t.Error("no tool call may happen without a grant")
	}
}

func TestHandleMessage_GeneralConversationKeepsHistory(t *testing.T) {
	a, _, _, _, _, completer := newTestAssistant()

	if _, err := a.HandleMessage(context.Background(), "s1", userToken, "hello there"); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if _, err := a.HandleMessage(context.Background(), "s1", userToken, "how are you?"); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	last := completer.prompts[len(completer.prompts)-1]
	if !strings.Contains(last, "hello there") {
		t.Errorf("history missing from prompt: %q", last)
	}
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		message string
		want    Intent
	}{
		{"onboard the new hire starting monday", Intent{Kind: IntentWorkflow, WorkflowType: "employee_onboarding"}},
		{"approve my expense report", Intent{Kind: IntentWorkflow, WorkflowType: "expense_approval"}},
		{"run a compliance audit", Intent{Kind: IntentWorkflow, WorkflowType: "compliance_review"}},
		{"process this invoice", Intent{Kind: IntentWorkflow, WorkflowType: "financial_transaction"}},
		{"who is the staff lead in engineering", Intent{Kind: IntentToolQuery, Server: "employees"}},
		{"list our gold partners", Intent{Kind: IntentToolQuery, Server: "partners"}},
		{"what does the travel policy say", Intent{Kind: IntentRAG}},
		{"good morning!", Intent{Kind: IntentGeneral}},
	}
	for _, tc := range tests {
		got := ClassifyIntent(tc.message)
		if got != tc.want {
			t.Errorf("ClassifyIntent(%q) = %+v, want %+v", tc.message, got, tc.want)
		}
	}
}

func TestSessionWindow(t *testing.T) {
	store := NewInMemorySessionStore()
	store.GetOrCreate("s1", "jane@streamward.dev")

	for i := 0; i < MaxSessionMessages+5; i++ {
		store.Append("s1", Message{Role: RoleUser, Content: fmt.Sprintf("message %d", i)})
	}

	history := store.History("s1")
	if len(history) != MaxSessionMessages {
		t.Fatalf("history length = %d, want %d", len(history), MaxSessionMessages)
	}
	if history[0].Content != "message 5" {
		t.Errorf("oldest retained = %q, want message 5", history[0].Content)
	}
	if history[len(history)-1].Content != fmt.Sprintf("message %d", MaxSessionMessages+4) {
		t.Errorf("newest = %q", history[len(history)-1].Content)
	}
}

func TestSessionStoreIsolation(t *testing.T) {
	store := NewInMemorySessionStore()
	store.GetOrCreate("s1", "jane@streamward.dev")
	store.GetOrCreate("s2", "sam@streamward.dev")

	store.Append("s1", Message{Role: RoleUser, Content: "for s1"})
	if len(store.History("s2")) != 0 {
		t.Error("sessions must be isolated")
	}

	store.Delete("s1")
	if len(store.History("s1")) != 0 {
		t.Error("deleted session still has history")
	}

	// Appending to an unknown session is a no-op.
	store.Append("ghost", Message{Role: RoleUser, Content: "x"})
	if len(store.History("ghost")) != 0 {
		t.Error("append must not create sessions")
	}
}
