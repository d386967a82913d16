package mcpserver

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"leadflow/internal/service"
)

// Server is the MCP server for leadflow. It exposes workflow and job
// tools so AI agents can build and run lead-enrichment pipelines.
type Server struct {
	mcp       *server.MCPServer
	workflows *service.WorkflowService
}

// Deps holds all dependencies passed to the MCP server.
type Deps struct {
	Workflows *service.WorkflowService
}

// New creates and configures a new MCP server with all tools registered.
func New(deps Deps) *Server {
	s := &Server{
		workflows: deps.Workflows,
	}

	s.mcp = server.NewMCPServer(
		"leadflow-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerWorkflowTools()
	s.registerJobTools()
	s.registerFileTools()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}
