package cmd

import (
	"fmt"
	"os"

	"github.com/streamward/assistant/internal/config"
	"github.com/streamward/assistant/internal/crossapp"
	"github.com/streamward/assistant/internal/exchange"
	"github.com/streamward/assistant/internal/identity"
	"github.com/streamward/assistant/pkg/logging"

	jose "github.com/go-jose/go-jose/v4"
)

// loadConfigAndLogging loads configuration and initializes logging from it.
// Every command goes through here first.
func loadConfigAndLogging(configPath string, debug bool) (config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if debug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr, cfg.Logging.JSON)

	return cfg, nil
}

// newVerifier builds the token verifier from configuration.
func newVerifier(cfg config.Config) *identity.Verifier {
	return identity.NewVerifier(identity.VerifierOptions{
		ClientID:       cfg.Auth.ClientID,
		AllowDemoToken: cfg.Auth.AllowDemoToken,
	})
}

// newExchangeClient builds the RFC 8693 exchange client with all configured
// service credentials.
func newExchangeClient(cfg config.Config, sink exchange.RecordSink) *exchange.Client {
	agentCredentials := make(map[string]exchange.Credentials, len(cfg.Auth.Agents))
	for name, agent := range cfg.Auth.Agents {
		agentCredentials[name] = exchange.Credentials{
			ClientID:     agent.Credential.ClientID,
			ClientSecret: agent.Credential.ClientSecret,
		}
	}

	return exchange.NewClient(exchange.Options{
		AudienceToServer: cfg.Auth.AudienceToAuthServer(),
		TokenEndpoint:    cfg.Auth.TokenEndpoint,
		Orchestrator: exchange.Credentials{
			ClientID:     cfg.Auth.Orchestrator.ClientID,
			ClientSecret: cfg.Auth.Orchestrator.ClientSecret,
		},
		AgentCredentials: agentCredentials,
		Sink:             sink,
	})
}

// newCrossAppClient builds the ID-JAG cross-app client. A missing signing
// key is not fatal here: the client refuses access at exchange time, which
// keeps the rest of the assistant usable.
func newCrossAppClient(cfg config.Config, verifier *identity.Verifier) *crossapp.Client {
	var key jose.JSONWebKey
	if cfg.CrossApp.PrivateKeyFile != "" {
		loaded, err := crossapp.LoadPrivateJWK(cfg.CrossApp.PrivateKeyFile)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load cross-app signing key; tool access will be denied")
		} else {
			key = loaded
		}
	} else {
		logging.Warn("Bootstrap", "No cross-app signing key configured; tool access will be denied")
	}

	resourceServers := make(map[string]crossapp.ResourceServer, len(cfg.CrossApp.ResourceServers))
	for name, server := range cfg.CrossApp.ResourceServers {
		resourceServers[name] = crossapp.ResourceServer{
			AuthServerID: server.AuthServerID,
			Audience:     server.Audience,
		}
	}

	return crossapp.NewClient(crossapp.Options{
		AgentID:             cfg.CrossApp.AgentID,
		PrivateKey:          key,
		Issuer:              cfg.Auth.Issuer,
		TokenEndpoint:       cfg.Auth.TokenEndpoint,
		DefaultAuthServerID: cfg.Auth.DefaultAuthServerID,
		ResourceServers:     resourceServers,
		Verifier:            verifier,
	})
}
