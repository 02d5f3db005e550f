package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/streamward/assistant/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/streamward"
	configFileName = "config.yaml"
)

// GetDefaultConfigPathOrPanic returns the user-level configuration directory.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads configuration from the specified directory. Defaults are
// applied first, config.yaml overlays them, and environment variables win
// over both.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			applyEnv(&config)
			return config, nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)

	applyEnv(&config)
	return config, nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		} else {
			logging.Warn("ConfigLoader", "Ignoring unparsable boolean %s=%q", key, v)
		}
	}
}

// applyEnv overlays environment variables onto the configuration. Every
// credential and endpoint is independently overridable so demo tenants can be
// swapped without editing files.
func applyEnv(c *Config) {
	envString("STREAMWARD_LOG_LEVEL", &c.Logging.Level)
	envBool("STREAMWARD_LOG_JSON", &c.Logging.JSON)

	envString("AUTH_ISSUER_DOMAIN", &c.Auth.IssuerDomain)
	envString("AUTH_CLIENT_ID", &c.Auth.ClientID)
	envString("MAIN_AUDIENCE", &c.Auth.MainAudience)
	envString("DEFAULT_AUTH_SERVER_ID", &c.Auth.DefaultAuthServerID)
	envString("ORCHESTRATOR_CLIENT_ID", &c.Auth.Orchestrator.ClientID)
	envString("ORCHESTRATOR_CLIENT_SECRET", &c.Auth.Orchestrator.ClientSecret)
	envBool("STREAMWARD_ALLOW_DEMO_TOKEN", &c.Auth.AllowDemoToken)

	for _, name := range []string{"hr", "finance", "legal"} {
		agent := c.Auth.Agents[name]
		prefix := map[string]string{"hr": "HR", "finance": "FINANCE", "legal": "LEGAL"}[name]
		envString(prefix+"_AUDIENCE", &agent.Audience)
		envString(prefix+"_AUTH_SERVER_ID", &agent.AuthServerID)
		envString(prefix+"_CLIENT_ID", &agent.Credential.ClientID)
		envString(prefix+"_CLIENT_SECRET", &agent.Credential.ClientSecret)
		if c.Auth.Agents == nil {
			c.Auth.Agents = make(map[string]AgentAuthConfig)
		}
		c.Auth.Agents[name] = agent
	}

	envString("CROSSAPP_AGENT_ID", &c.CrossApp.AgentID)
	envString("CROSSAPP_PRIVATE_KEY_FILE", &c.CrossApp.PrivateKeyFile)

	envBool("ALLOW_PII_IN_LLM_PROMPTS", &c.Privacy.AllowPIIInPrompts)
	envString("ANONYMOUS_ID_SALT", &c.Privacy.AnonymousIDSalt)

	envString("FGA_API_URL", &c.FGA.APIURL)
	envString("FGA_STORE_ID", &c.FGA.StoreID)
	envString("FGA_MODEL_ID", &c.FGA.ModelID)
	envBool("FGA_FAIL_CLOSED", &c.FGA.FailClosed)

	envString("NATS_URL", &c.Audit.NATSURL)
	envString("AUDIT_SUBJECT", &c.Audit.Subject)

	envString("LLM_GATEWAY_URL", &c.LLM.GatewayURL)
	envString("LLM_TOKEN_URL", &c.LLM.TokenURL)
	envString("LLM_CLIENT_ID", &c.LLM.ClientID)
	envString("LLM_CLIENT_SECRET", &c.LLM.ClientSecret)
	envString("LLM_MODEL", &c.LLM.Model)
}
