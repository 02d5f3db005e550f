// Package cmd contains the CLI entry points for the Streamward assistant.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command. Invoked without a subcommand it only prints
// help; the interesting entry points are serve and the mcp-* servers.
var rootCmd = &cobra.Command{
	Use:   "streamward-assistant",
	Short: "Enterprise AI assistant with cross-agent token exchange",
	Long: `streamward-assistant is a demo enterprise assistant. A chat front end
routes questions to document search, multi-agent workflows, and MCP tool
servers; every hop between agents and tools is authorized through OAuth
token exchange rather than forwarded credentials.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from main with
// the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current build version.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the CLI. Called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "streamward-assistant version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
