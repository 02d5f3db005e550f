package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/streamward/assistant/internal/agents"
	"github.com/streamward/assistant/internal/assistant"
	"github.com/streamward/assistant/internal/audit"
	"github.com/streamward/assistant/internal/authz"
	"github.com/streamward/assistant/internal/config"
	"github.com/streamward/assistant/internal/docs"
	"github.com/streamward/assistant/internal/identity"
	"github.com/streamward/assistant/internal/llm"
	"github.com/streamward/assistant/internal/mcptools"
	"github.com/streamward/assistant/internal/privacy"
	"github.com/streamward/assistant/internal/scopes"
	"github.com/streamward/assistant/internal/workflow"
	"github.com/streamward/assistant/pkg/logging"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	serveConfigPath string
	serveDebug      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the interactive assistant",
	Long: `Starts the assistant as an interactive chat session on the terminal.

The caller's bearer token is read from STREAMWARD_USER_TOKEN. When the demo
token bypass is enabled (STREAMWARD_ALLOW_DEMO_TOKEN=true) and no token is
set, the reserved demo token is used instead.

Each message is authenticated, classified, and routed to document search, a
multi-agent workflow, a cross-app tool query, or plain conversation.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigAndLogging(serveConfigPath, serveDebug)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userToken := os.Getenv("STREAMWARD_USER_TOKEN")
	if userToken == "" {
		if !cfg.Auth.AllowDemoToken {
			return fmt.Errorf("no user token: set STREAMWARD_USER_TOKEN or enable the demo token")
		}
		userToken = identity.DemoToken
	}

	verifier := newVerifier(cfg)

	publisher := audit.NewPublisher(cfg.Audit)
	defer publisher.Close()

	exchanger := newExchangeClient(cfg, publisher)
	defer exchanger.Close()

	gate := authz.NewGate(cfg.FGA)
	repository := docs.NewRepository(docs.NewInMemorySearcher(), gate)

	policy := privacy.Policy{
		AllowPII: cfg.Privacy.AllowPIIInPrompts,
		Salt:     cfg.Privacy.AnonymousIDSalt,
	}

	var completer llm.Completer = llm.StubCompleter{}
	if cfg.LLM.GatewayURL != "" {
		completer = llm.NewGatewayCompleter(llm.GatewayOptions{
			BaseURL:      cfg.LLM.GatewayURL,
			TokenURL:     cfg.LLM.TokenURL,
			ClientID:     cfg.LLM.ClientID,
			ClientSecret: cfg.LLM.ClientSecret,
			Model:        cfg.LLM.Model,
		})
		logging.Info("Bootstrap", "Using completion gateway at %s", cfg.LLM.GatewayURL)
	} else {
		logging.Info("Bootstrap", "No completion gateway configured; using the offline stub")
	}

	audiences := make(map[string]string, len(cfg.Auth.Agents))
	for name, agent := range cfg.Auth.Agents {
		audiences[name] = agent.Audience
	}
	engine := workflow.NewEngine(workflow.Options{
		Exchanger: exchanger,
		Agents:    agents.New(agents.Deps{Exchanger: exchanger, Audiences: audiences}),
		Privacy:   policy,
		Completer: completer,
	})

	crossAppClient := newCrossAppClient(cfg, verifier)
	invoker := mcptools.NewInvoker(
		mcptools.NewEmployeeServer(crossAppClient, GetVersion()),
		mcptools.NewPartnerServer(crossAppClient, GetVersion()),
	)

	asst := assistant.New(assistant.Options{
		Verifier:  verifier,
		Workflows: engine,
		Documents: repository,
		Resources: crossAppClient,
		Tools:     invoker,
		Completer: completer,
		Privacy:   policy,
	})

	if cfg.Auth.AllowDemoToken {
		seedDemoDocuments(ctx, repository)
	}

	logging.Info("Bootstrap", "Assistant ready: agents=%s", strings.Join(scopes.KnownAgents(), ","))
	return runChatLoop(ctx, cmd, asst, userToken)
}

// runChatLoop reads messages from stdin until EOF, "exit", or a signal.
func runChatLoop(ctx context.Context, cmd *cobra.Command, asst *assistant.Assistant, userToken string) error {
	out := cmd.OutOrStdout()
	sessionID := uuid.NewString()
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Fprintln(out, "Streamward assistant ready. Type a message, or 'exit' to quit.")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if message == "exit" || message == "quit" {
			break
		}

		response, err := asst.HandleMessage(ctx, sessionID, userToken, message)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}

		fmt.Fprintln(out, response.Text)
		if response.WorkflowID != "" {
			fmt.Fprintf(out, "(workflow %s)\n", response.WorkflowID)
		}
	}
	return scanner.Err()
}

// seedDemoDocuments loads a few documents for the demo user so document
// questions have something to find out of the box.
func seedDemoDocuments(ctx context.Context, repository *docs.Repository) {
	demo := []struct {
		title   string
		content string
	}{
		{"Travel Policy", "Employees may book economy flights for trips under six hours. Hotel budgets are set per city tier."},
		{"Expense Guide", "Submit expense reports within 30 days. Receipts are required above 25 USD."},
		{"Onboarding Handbook", "New hires receive a laptop and badge on day one. Benefits enrollment closes after 30 days."},
	}
	for _, doc := range demo {
		if _, err := repository.Upload(ctx, "demo.user@streamward.dev", doc.title, doc.content); err != nil {
			logging.Warn("Bootstrap", "Failed to seed demo document %q: %v", doc.title, err)
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", config.GetDefaultConfigPathOrPanic(), "Configuration directory")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
}
