package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerJobTools() {
	s.mcp.AddTool(mcp.NewTool("get_job",
		mcp.WithDescription("Get a job by ID: overall status, current block index, and per-block states with row counts, previews, and errors"),
		mcp.WithString("jobId", mcp.Description("Job ID"), mcp.Required()),
	), s.handleGetJob)

	s.mcp.AddTool(mcp.NewTool("list_jobs",
		mcp.WithDescription("List all jobs, newest first"),
	), s.handleListJobs)

	s.mcp.AddTool(mcp.NewTool("cancel_job",
		mcp.WithDescription("Request cancellation of a pending or running job. Cancellation is cooperative: a job already past its last block completes normally."),
		mcp.WithString("jobId", mcp.Description("Job ID"), mcp.Required()),
	), s.handleCancelJob)

	s.mcp.AddTool(mcp.NewTool("delete_job",
		mcp.WithDescription("Remove a job record from memory. Its run log is kept."),
		mcp.WithString("jobId", mcp.Description("Job ID"), mcp.Required()),
	), s.handleDeleteJob)
}

func (s *Server) handleGetJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("jobId", "")
	if id == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	j, err := s.workflows.GetJob(id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return jsonResult(j)
}

func (s *Server) handleListJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.workflows.ListJobs())
}

func (s *Server) handleCancelJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("jobId", "")
	if id == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	if err := s.workflows.CancelJob(id); err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	return textResult("Cancellation requested"), nil
}

func (s *Server) handleDeleteJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("jobId", "")
	if id == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	if err := s.workflows.DeleteJob(id); err != nil {
		return nil, fmt.Errorf("delete job: %w", err)
	}
	return textResult("Job deleted"), nil
}
