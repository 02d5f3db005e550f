// Package mcptools hosts the MCP tool servers reachable through the
// cross-app access chain. Every tool call must present a resource-server
// token; the verification gate runs before any handler logic, and a missing
// or invalid token gets an unauthorized result, never data.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streamward/assistant/internal/identity"
	"github.com/streamward/assistant/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Resource server names. These key the cross-app client's server table and
// the MCP server identities.
const (
	ServerEmployees = "employees"
	ServerPartners  = "partners"
)

// TokenGate verifies a resource-server token before a tool call. Satisfied
// by *crossapp.Client.
type TokenGate interface {
	VerifyResourceToken(ctx context.Context, accessToken, serverName string) (*identity.UserIdentity, error)
}

// Server is one MCP tool server bound to its verification gate.
type Server struct {
	name      string
	gate      TokenGate
	mcpServer *server.MCPServer
	handlers  map[string]server.ToolHandlerFunc
}

// register adds a tool to the MCP server and keeps the guarded handler for
// in-process calls.
func (s *Server) register(tool mcp.Tool, handler server.ToolHandlerFunc) {
	if s.handlers == nil {
		s.handlers = make(map[string]server.ToolHandlerFunc)
	}
	s.handlers[tool.Name] = handler
	s.mcpServer.AddTool(tool, handler)
}

// Name returns the resource-server name this server answers for.
func (s *Server) Name() string {
	return s.name
}

// Call invokes a tool in process, through the same guarded handler the MCP
// transport uses. The token argument is verified exactly as over the wire.
func (s *Server) Call(ctx context.Context, tool string, args map[string]any) (string, error) {
	handler, ok := s.handlers[tool]
	if !ok {
		return "", fmt.Errorf("unknown tool %q on %s", tool, s.name)
	}

	request := mcp.CallToolRequest{}
	request.Params.Name = tool
	request.Params.Arguments = args

	result, err := handler(ctx, request)
	if err != nil {
		return "", err
	}

	text := ""
	if len(result.Content) > 0 {
		if textContent, ok := mcp.AsTextContent(result.Content[0]); ok {
			text = textContent.Text
		}
	}
	if result.IsError {
		return "", fmt.Errorf("%s", text)
	}
	return text, nil
}

// Start serves the MCP protocol over stdio. Blocks until the peer
// disconnects.
func (s *Server) Start(_ context.Context) error {
	logging.Info("MCP", "Serving %s tools over stdio", s.name)
	return server.ServeStdio(s.mcpServer)
}

// MCPServer returns the underlying server, used by tests to invoke handlers
// directly.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// guard wraps a tool handler with the mandatory token verification. The
// token travels as the "token" argument of every call.
func (s *Server) guard(handler func(ctx context.Context, request mcp.CallToolRequest, user *identity.UserIdentity) (*mcp.CallToolResult, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		token := request.GetString("token", "")
		user, err := s.gate.VerifyResourceToken(ctx, token, s.name)
		if err != nil {
			logging.Warn("MCP", "Refusing %s tool call on %s: %v", request.Params.Name, s.name, err)
			return mcp.NewToolResultError("unauthorized: a valid resource token is required"), nil
		}
		return handler(ctx, request, user)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Invoker dispatches in-process tool calls across a set of servers. It
// satisfies the assistant's tool-calling surface without a transport.
type Invoker struct {
	servers map[string]*Server
}

// NewInvoker creates an invoker over the given servers.
func NewInvoker(servers ...*Server) *Invoker {
	byName := make(map[string]*Server, len(servers))
	for _, s := range servers {
		byName[s.name] = s
	}
	return &Invoker{servers: byName}
}

// Call routes a tool call to the named server.
func (i *Invoker) Call(ctx context.Context, serverName, tool string, args map[string]any) (string, error) {
	s, ok := i.servers[serverName]
	if !ok {
		return "", fmt.Errorf("unknown tool server %q", serverName)
	}
	return s.Call(ctx, tool, args)
}

func withToken() mcp.ToolOption {
	return mcp.WithString("token",
		mcp.Required(),
		mcp.Description("Resource-server access token obtained through the cross-app exchange"),
	)
}
