package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerFileTools() {
	s.mcp.AddTool(mcp.NewTool("upload_csv",
		mcp.WithDescription("Store CSV content as an uploaded input file. Returns the file name to reference from read_csv blocks."),
		mcp.WithString("name", mcp.Description("Original file name, e.g. leads.csv"), mcp.Required()),
		mcp.WithString("content", mcp.Description("Raw CSV content including the header row"), mcp.Required()),
	), s.handleUploadCSV)

	s.mcp.AddTool(mcp.NewTool("list_outputs",
		mcp.WithDescription("List the output CSV files produced by save_csv blocks"),
	), s.handleListOutputs)
}

func (s *Server) handleUploadCSV(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	content := req.GetString("content", "")
	if name == "" || content == "" {
		return nil, fmt.Errorf("name and content are required")
	}

	stored, err := s.workflows.SaveUpload(name, strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	return jsonResult(map[string]string{"fileName": stored})
}

func (s *Server) handleListOutputs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outputs, err := s.workflows.ListOutputs()
	if err != nil {
		return nil, fmt.Errorf("list outputs: %w", err)
	}
	return jsonResult(outputs)
}
