package mcptools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/streamward/assistant/internal/identity"
	"github.com/streamward/assistant/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Partner is one record in the partner registry.
type Partner struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Tier    string `json:"tier"`
	Region  string `json:"region"`
	Contact string `json:"contact"`
}

var partnerRegistry = map[string]Partner{
	"ptr-2001": {ID: "ptr-2001", Name: "Northwind Logistics", Tier: "gold", Region: "emea", Contact: "ops@northwind.example"},
	"ptr-2002": {ID: "ptr-2002", Name: "Cascade Analytics", Tier: "silver", Region: "amer", Contact: "hello@cascade.example"},
	"ptr-2003": {ID: "ptr-2003", Name: "Harbor Systems", Tier: "gold", Region: "apac", Contact: "team@harbor.example"},
}

// NewPartnerServer creates the partner-registry MCP server.
func NewPartnerServer(gate TokenGate, version string) *Server {
	mcpServer := server.NewMCPServer(
		"streamward-partners",
		version,
		server.WithToolCapabilities(false),
	)

	s := &Server{name: ServerPartners, gate: gate, mcpServer: mcpServer}

	getTool := mcp.NewTool("get_partner",
		mcp.WithDescription("Look up a single partner by id"),
		withToken(),
		mcp.WithString("partner_id",
			mcp.Required(),
			mcp.Description("Partner id, e.g. ptr-2001"),
		),
	)
	s.register(getTool, s.guard(handleGetPartner))

	listTool := mcp.NewTool("list_partners",
		mcp.WithDescription("List partners, optionally filtered by tier"),
		withToken(),
		mcp.WithString("tier",
			mcp.Description("Tier filter (gold, silver)"),
		),
	)
	s.register(listTool, s.guard(handleListPartners))

	return s
}

func handleGetPartner(_ context.Context, request mcp.CallToolRequest, user *identity.UserIdentity) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("partner_id")
	if err != nil {
		return mcp.NewToolResultError("partner_id argument is required"), nil
	}

	partner, ok := partnerRegistry[id]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Partner not found: %s", id)), nil
	}

	logging.Debug("MCP", "get_partner %s for sub=%s", id, user.Subject)
	return jsonResult(partner)
}

func handleListPartners(_ context.Context, request mcp.CallToolRequest, user *identity.UserIdentity) (*mcp.CallToolResult, error) {
	tier := strings.ToLower(request.GetString("tier", ""))

	var results []Partner
	for _, partner := range partnerRegistry {
		if tier == "" || partner.Tier == tier {
			results = append(results, partner)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })

	logging.Debug("MCP", "list_partners tier=%q -> %d results for sub=%s", tier, len(results), user.Subject)
	return jsonResult(map[string]any{
		"partners": results,
		"count":    len(results),
	})
}
