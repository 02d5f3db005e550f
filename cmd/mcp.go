package cmd

import (
	"github.com/streamward/assistant/internal/config"
	"github.com/streamward/assistant/internal/mcptools"

	"github.com/spf13/cobra"
)

var (
	mcpConfigPath string
	mcpDebug      bool
)

var mcpEmployeesCmd = &cobra.Command{
	Use:   "mcp-employees",
	Short: "Serve the employee-directory MCP tools over stdio",
	Long: `Runs the employee-directory tool server speaking MCP over stdio.

Every tool call must carry a resource-server token obtained through the
cross-app access chain; calls without a valid token get an unauthorized
result.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer(cmd, mcptools.ServerEmployees)
	},
}

var mcpPartnersCmd = &cobra.Command{
	Use:   "mcp-partners",
	Short: "Serve the partner-registry MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer(cmd, mcptools.ServerPartners)
	},
}

func runMCPServer(cmd *cobra.Command, serverName string) error {
	cfg, err := loadConfigAndLogging(mcpConfigPath, mcpDebug)
	if err != nil {
		return err
	}

	verifier := newVerifier(cfg)
	gate := newCrossAppClient(cfg, verifier)

	var server *mcptools.Server
	switch serverName {
	case mcptools.ServerPartners:
		server = mcptools.NewPartnerServer(gate, GetVersion())
	default:
		server = mcptools.NewEmployeeServer(gate, GetVersion())
	}

	return server.Start(cmd.Context())
}

func init() {
	rootCmd.AddCommand(mcpEmployeesCmd)
	rootCmd.AddCommand(mcpPartnersCmd)

	for _, c := range []*cobra.Command{mcpEmployeesCmd, mcpPartnersCmd} {
		c.Flags().StringVar(&mcpConfigPath, "config-path", config.GetDefaultConfigPathOrPanic(), "Configuration directory")
		c.Flags().BoolVar(&mcpDebug, "debug", false, "Enable debug logging")
	}
}
