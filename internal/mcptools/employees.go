package mcptools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/streamward/assistant/internal/identity"
	"github.com/streamward/assistant/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Employee is one record in the employee directory.
type Employee struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Title      string `json:"title"`
}

// employeeDirectory is the demo dataset behind the employee tools.
type employeeDirectory struct {
	mu        sync.RWMutex
	employees map[string]Employee
}

func newEmployeeDirectory() *employeeDirectory {
	seed := []Employee{
		{ID: "emp-1001", Name: "Avery Chen", Email: "avery.chen@streamward.dev", Department: "engineering", Title: "Staff Engineer"},
		{ID: "emp-1002", Name: "Jordan Patel", Email: "jordan.patel@streamward.dev", Department: "finance", Title: "Financial Analyst"},
		{ID: "emp-1003", Name: "Morgan Reyes", Email: "morgan.reyes@streamward.dev", Department: "hr", Title: "People Partner"},
		{ID: "emp-1004", Name: "Riley Novak", Email: "riley.novak@streamward.dev", Department: "engineering", Title: "SRE"},
		{ID: "emp-1005", Name: "Sam Okafor", Email: "sam.okafor@streamward.dev", Department: "legal", Title: "Counsel"},
	}
	directory := &employeeDirectory{employees: make(map[string]Employee, len(seed))}
	for _, e := range seed {
		directory.employees[e.ID] = e
	}
	return directory
}

// NewEmployeeServer creates the employee-directory MCP server.
func NewEmployeeServer(gate TokenGate, version string) *Server {
	mcpServer := server.NewMCPServer(
		"streamward-employees",
		version,
		server.WithToolCapabilities(false),
	)

	s := &Server{name: ServerEmployees, gate: gate, mcpServer: mcpServer}
	directory := newEmployeeDirectory()

	getTool := mcp.NewTool("get_employee",
		mcp.WithDescription("Look up a single employee by id"),
		withToken(),
		mcp.WithString("employee_id",
			mcp.Required(),
			mcp.Description("Employee id, e.g. emp-1001"),
		),
	)
	s.register(getTool, s.guard(directory.handleGet))

	listTool := mcp.NewTool("list_employees",
		mcp.WithDescription("List employees, optionally filtered by department"),
		withToken(),
		mcp.WithString("department",
			mcp.Description("Department filter (engineering, finance, hr, legal)"),
		),
	)
	s.register(listTool, s.guard(directory.handleList))

	updateTool := mcp.NewTool("update_employee",
		mcp.WithDescription("Update one field of an employee record"),
		withToken(),
		mcp.WithString("employee_id",
			mcp.Required(),
			mcp.Description("Employee id to update"),
		),
		mcp.WithString("field",
			mcp.Required(),
			mcp.Description("Field to update: department or title"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("New value"),
		),
	)
	s.register(updateTool, s.guard(directory.handleUpdate))

	return s
}

func (d *employeeDirectory) handleGet(_ context.Context, request mcp.CallToolRequest, user *identity.UserIdentity) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("employee_id")
	if err != nil {
		return mcp.NewToolResultError("employee_id argument is required"), nil
	}

	d.mu.RLock()
	employee, ok := d.employees[id]
	d.mu.RUnlock()
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Employee not found: %s", id)), nil
	}

	logging.Debug("MCP", "get_employee %s for sub=%s", id, user.Subject)
	return jsonResult(employee)
}

func (d *employeeDirectory) handleList(_ context.Context, request mcp.CallToolRequest, user *identity.UserIdentity) (*mcp.CallToolResult, error) {
	department := strings.ToLower(request.GetString("department", ""))

	d.mu.RLock()
	var results []Employee
	for _, employee := range d.employees {
		if department == "" || employee.Department == department {
			results = append(results, employee)
		}
	}
	d.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })

	logging.Debug("MCP", "list_employees department=%q -> %d results for sub=%s", department, len(results), user.Subject)
	return jsonResult(map[string]any{
		"employees": results,
		"count":     len(results),
	})
}

func (d *employeeDirectory) handleUpdate(_ context.Context, request mcp.CallToolRequest, user *identity.UserIdentity) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("employee_id")
	if err != nil {
		return mcp.NewToolResultError("employee_id argument is required"), nil
	}
	field, err := request.RequireString("field")
	if err != nil {
		return mcp.NewToolResultError("field argument is required"), nil
	}
	value, err := request.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError("value argument is required"), nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	employee, ok := d.employees[id]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Employee not found: %s", id)), nil
	}

	switch strings.ToLower(field) {
	case "department":
		employee.Department = strings.ToLower(value)
	case "title":
		employee.Title = value
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Field not updatable: %s", field)), nil
	}
	d.employees[id] = employee

	logging.Info("MCP", "update_employee %s %s by sub=%s", id, field, user.Subject)
	return jsonResult(employee)
}
