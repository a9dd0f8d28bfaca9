// Package mcptools exposes workbench operations as MCP tools over stdio.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/jonathan/prompt-workbench/internal/workbench"
)

// ServerName is the name reported to MCP clients.
const ServerName = "prompt-workbench"

// ToolHandler is the function signature for tool handlers
type ToolHandler = func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// ToolDefinition contains tool metadata and handler
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  []mcp.ToolOption
	Handler     ToolHandler
}

// Tools binds the tool handlers to a workbench service.
type Tools struct {
	svc    *workbench.Service
	logger *slog.Logger
}

// New creates the tool set. A nil logger uses slog.Default.
func New(svc *workbench.Service, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{svc: svc, logger: logger}
}

// Definitions returns every tool, sorted by name.
func (t *Tools) Definitions() []*ToolDefinition {
	defs := []*ToolDefinition{
		t.parseEvaluationTool(),
		t.evaluateReportTool(),
		t.optimizePromptTool(),
		t.libraryListTool(),
		t.libraryLoadTool(),
		t.librarySaveTool(),
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Register adds all tools to an MCP server.
func (t *Tools) Register(s *mcpserver.MCPServer) {
	for _, def := range t.Definitions() {
		opts := append([]mcp.ToolOption{mcp.WithDescription(def.Description)}, def.Parameters...)
		s.AddTool(mcp.NewTool(def.Name, opts...), def.Handler)
	}
}

// NewServer builds an MCP server with the workbench tools registered.
func NewServer(svc *workbench.Service, version string, logger *slog.Logger) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(
		ServerName,
		version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	New(svc, logger).Register(s)
	return s
}

// ServeStdio serves the workbench tools on stdin/stdout until the client disconnects.
func ServeStdio(svc *workbench.Service, version string, logger *slog.Logger) error {
	if err := mcpserver.ServeStdio(NewServer(svc, version, logger)); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// jsonResult returns v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
