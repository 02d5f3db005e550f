// Package assistant is the conversational front door: it authenticates the
// caller, classifies each message, and routes it to document search, a
// multi-agent workflow, a cross-app tool query, or plain conversation.
// Prompts are always built from the redacted identity projection.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/streamward/assistant/internal/crossapp"
	"github.com/streamward/assistant/internal/docs"
	"github.com/streamward/assistant/internal/identity"
	"github.com/streamward/assistant/internal/llm"
	"github.com/streamward/assistant/internal/privacy"
	"github.com/streamward/assistant/internal/workflow"
	"github.com/streamward/assistant/pkg/logging"
)

// TokenValidator authenticates the caller's token. Satisfied by
// *identity.Verifier.
type TokenValidator interface {
	Validate(ctx context.Context, raw string) (*identity.UserIdentity, error)
}

// WorkflowRunner executes workflows. Satisfied by *workflow.Engine.
type WorkflowRunner interface {
	Execute(ctx context.Context, workflowType string, parameters map[string]any, user *identity.UserIdentity, userToken string) (*workflow.State, error)
}

// DocumentQuerier answers authorized document searches. Satisfied by
// *docs.Repository.
type DocumentQuerier interface {
	Query(ctx context.Context, userEmail, query string) []docs.Document
}

// ResourceAccess runs the cross-app chain for a tool server. Satisfied by
// *crossapp.Client.
type ResourceAccess interface {
	ExchangeIDToResourceToken(ctx context.Context, userIDToken, serverName string) (*crossapp.Grant, error)
}

// ToolInvoker calls a tool on a resource server. Satisfied by
// *mcptools.Invoker.
type ToolInvoker interface {
	Call(ctx context.Context, serverName, tool string, args map[string]any) (string, error)
}

// Options wires an Assistant.
type Options struct {
	Verifier  TokenValidator
	Sessions  SessionStore
	Workflows WorkflowRunner
	Documents DocumentQuerier
	Resources ResourceAccess
	Tools     ToolInvoker
	Completer llm.Completer
	Privacy   privacy.Policy
}

// Assistant routes authenticated messages.
type Assistant struct {
	verifier  TokenValidator
	sessions  SessionStore
	workflows WorkflowRunner
	documents DocumentQuerier
	resources ResourceAccess
	tools     ToolInvoker
	completer llm.Completer
	policy    privacy.Policy
}

// Response is the assistant's answer to one message.
type Response struct {
	Text       string `json:"text"`
	Intent     Intent `json:"-"`
	WorkflowID string `json:"workflow_id,omitempty"`
}

// New creates an assistant.
func New(opts Options) *Assistant {
	sessions := opts.Sessions
	if sessions == nil {
		sessions = NewInMemorySessionStore()
	}
	completer := opts.Completer
	if completer == nil {
		completer = llm.StubCompleter{}
	}
	return &Assistant{
		verifier:  opts.Verifier,
		sessions:  sessions,
		workflows: opts.Workflows,
		documents: opts.Documents,
		resources: opts.Resources,
		tools:     opts.Tools,
		completer: completer,
		policy:    opts.Privacy,
	}
}

// HandleMessage authenticates the caller and answers one message. An error
// is returned only for authentication failures; handler-level problems come
// back as assistant text so the conversation continues.
func (a *Assistant) HandleMessage(ctx context.Context, sessionID, rawToken, message string) (*Response, error) {
	user, err := a.verifier.Validate(ctx, rawToken)
	if err != nil {
		logging.Warn("Assistant", "Rejected message on session %s: %v", logging.TruncateSessionID(sessionID), err)
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	session := a.sessions.GetOrCreate(sessionID, user.Email)
	a.sessions.Append(session.ID, Message{Role: RoleUser, Content: message})

	intent := ClassifyIntent(message)
	logging.Info("Assistant", "Session %s: intent=%s user=%s",
		logging.TruncateSessionID(sessionID), intent.Kind, privacy.MinimalIdentity(user, a.policy).UserID)

	response := &Response{Intent: intent}
	switch intent.Kind {
	case IntentWorkflow:
		response.Text, response.WorkflowID = a.runWorkflow(ctx, intent, user, rawToken)
	case IntentRAG:
		response.Text = a.answerFromDocuments(ctx, user, message)
	case IntentToolQuery:
		response.Text = a.queryTools(ctx, intent, message, rawToken)
	default:
		response.Text = a.converse(ctx, session.ID, user, message)
	}

	a.sessions.Append(session.ID, Message{Role: RoleAssistant, Content: response.Text})
	return response, nil
}

func (a *Assistant) runWorkflow(ctx context.Context, intent Intent, user *identity.UserIdentity, rawToken string) (string, string) {
	minimal := privacy.MinimalIdentity(user, a.policy)
	state, err := a.workflows.Execute(ctx, intent.WorkflowType, map[string]any{
		"requested_by": minimal.UserID,
	}, user, rawToken)
	if err != nil {
		logging.Warn("Assistant", "Workflow %s did not start: %v", intent.WorkflowType, err)
		return fmt.Sprintf("I couldn't start the %s workflow: %v", intent.WorkflowType, err), ""
	}
	return state.FinalResult, state.WorkflowID
}

func (a *Assistant) answerFromDocuments(ctx context.Context, user *identity.UserIdentity, message string) string {
	results := a.documents.Query(ctx, user.Email, message)
	if len(results) == 0 {
		return "I couldn't find any documents you have access to for that question."
	}

	minimal := privacy.MinimalIdentity(user, a.policy)
	var b strings.Builder
	fmt.Fprintf(&b, "Answer the question for %s using these documents.\n", minimal.UserID)
	fmt.Fprintf(&b, "Question: %s\n", message)
	for _, doc := range results {
		fmt.Fprintf(&b, "Document %q: %s\n", doc.Title, excerpt(doc.Content))
	}

	answer, err := a.completer.Complete(ctx, b.String())
	if err != nil {
		logging.Warn("Assistant", "Completion failed on document answer: %v", err)
		return fmt.Sprintf("I found %d relevant documents but couldn't summarize them.", len(results))
	}
	return answer
}

// queryTools runs the cross-app chain and calls the tool server. The chain's
// resource token is the only credential that reaches the tool call; the
// user's token never does.
func (a *Assistant) queryTools(ctx context.Context, intent Intent, message, rawToken string) string {
	grant, err := a.resources.ExchangeIDToResourceToken(ctx, rawToken, intent.Server)
	if err != nil {
		logging.Warn("Assistant", "Cross-app access to %s denied: %v", intent.Server, err)
		return fmt.Sprintf("Access to the %s directory was denied.", intent.Server)
	}

	tool, args := toolCallFor(intent.Server, message)
	args["token"] = grant.AccessToken

	output, err := a.tools.Call(ctx, intent.Server, tool, args)
	if err != nil {
		logging.Warn("Assistant", "Tool call %s/%s failed: %v", intent.Server, tool, err)
		return fmt.Sprintf("The %s directory refused the request.", intent.Server)
	}
	return fmt.Sprintf("Here is what the %s directory returned:\n%s", intent.Server, output)
}

func (a *Assistant) converse(ctx context.Context, sessionID string, user *identity.UserIdentity, message string) string {
	minimal := privacy.MinimalIdentity(user, a.policy)

	var b strings.Builder
	fmt.Fprintf(&b, "Continue the conversation with %s.\n", minimal.UserID)
	for _, previous := range a.sessions.History(sessionID) {
		fmt.Fprintf(&b, "%s: %s\n", previous.Role, previous.Content)
	}
	fmt.Fprintf(&b, "user: %s\n", message)

	answer, err := a.completer.Complete(ctx, b.String())
	if err != nil {
		logging.Warn("Assistant", "Completion failed: %v", err)
		return "Sorry, I couldn't come up with an answer just now."
	}
	return answer
}

// toolCallFor picks the tool and arguments for a directory question.
func toolCallFor(serverName, message string) (string, map[string]any) {
	m := strings.ToLower(message)
	args := map[string]any{}

	switch serverName {
	case "partners":
		for _, tier := range []string{"gold", "silver"} {
			if strings.Contains(m, tier) {
				args["tier"] = tier
			}
		}
		return "list_partners", args
	default:
		for _, department := range []string{"engineering", "finance", "hr", "legal"} {
			if strings.Contains(m, department) {
				args["department"] = department
			}
		}
		return "list_employees", args
	}
}

func excerpt(content string) string {
	const limit = 240
	if len(content) <= limit {
		return content
	}
	return content[:limit] + "..."
}
