package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"leadflow/internal/service"
	"leadflow/internal/workflow"
)

func (s *Server) registerWorkflowTools() {
	s.mcp.AddTool(mcp.NewTool("list_block_types",
		mcp.WithDescription("List the available workflow block types with their configuration fields. Use this before building a workflow."),
	), s.handleListBlockTypes)

	s.mcp.AddTool(mcp.NewTool("create_workflow",
		mcp.WithDescription(`Create a workflow: an ordered pipeline of blocks that each read the previous block's output. Available block types (use list_block_types for full config schemas):
- read_csv: {path} — load an uploaded CSV, must be first
- filter: {column, operator (contains|not_contains|equals|not_equals|gt|gte|lt|lte), value} — keep matching rows
- enrich_lead: {struct: {field: description, ...}, research_plan} — research each row and add the requested fields
- find_email: {mode (PROFESSIONAL|PERSONAL)} — find an email address for each row
- save_csv: {path} — write the current dataset to an output CSV
Example blocksJSON: [{"id":"b1","type":"read_csv","params":{"path":"leads.csv"}},{"id":"b2","type":"save_csv","params":{"path":"out.csv"}}]`),
		mcp.WithString("name", mcp.Description("Workflow name (optional, defaults to the next free 'Workflow N')")),
		mcp.WithString("description", mcp.Description("Workflow description")),
		mcp.WithString("blocksJSON", mcp.Description("JSON array of block configs, each {id, type, name?, params}"), mcp.Required()),
		mcp.WithString("triggerType", mcp.Description("manual (default), schedule, or file_watch")),
		mcp.WithString("triggerConfig", mcp.Description("Cron expression for schedule, file path for file_watch")),
		mcp.WithBoolean("enabled", mcp.Description("Whether schedule/file_watch triggers are active")),
	), s.handleCreateWorkflow)

	s.mcp.AddTool(mcp.NewTool("list_workflows",
		mcp.WithDescription("List all workflows"),
	), s.handleListWorkflows)

	s.mcp.AddTool(mcp.NewTool("get_workflow",
		mcp.WithDescription("Get a workflow by ID, including its block configs"),
		mcp.WithString("workflowId", mcp.Description("Workflow ID"), mcp.Required()),
	), s.handleGetWorkflow)

	s.mcp.AddTool(mcp.NewTool("update_workflow",
		mcp.WithDescription("Replace a workflow's name, description, blocks, and trigger settings"),
		mcp.WithString("workflowId", mcp.Description("Workflow ID"), mcp.Required()),
		mcp.WithString("name", mcp.Description("New name (optional, keeps current if empty)")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("blocksJSON", mcp.Description("JSON array of block configs"), mcp.Required()),
		mcp.WithString("triggerType", mcp.Description("manual, schedule, or file_watch")),
		mcp.WithString("triggerConfig", mcp.Description("Cron expression or watch path")),
		mcp.WithBoolean("enabled", mcp.Description("Whether triggers are active")),
	), s.handleUpdateWorkflow)

	s.mcp.AddTool(mcp.NewTool("delete_workflow",
		mcp.WithDescription("Delete a workflow and its run history"),
		mcp.WithString("workflowId", mcp.Description("Workflow ID"), mcp.Required()),
	), s.handleDeleteWorkflow)

	s.mcp.AddTool(mcp.NewTool("run_workflow",
		mcp.WithDescription("Start a workflow run. Returns the job immediately in pending state; poll get_job for progress and per-block results."),
		mcp.WithString("workflowId", mcp.Description("Workflow ID"), mcp.Required()),
		mcp.WithString("inputFile", mcp.Description("Optional uploaded file name overriding the first read_csv block's path for this run")),
	), s.handleRunWorkflow)

	s.mcp.AddTool(mcp.NewTool("list_run_logs",
		mcp.WithDescription("List the recent run history of a workflow"),
		mcp.WithString("workflowId", mcp.Description("Workflow ID"), mcp.Required()),
	), s.handleListRunLogs)
}

func (s *Server) handleListBlockTypes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.workflows.ListBlockTypes())
}

// workflowInputFromArgs builds a WorkflowInput from tool arguments.
// blocksJSON may come as a string or as a raw JSON array.
func workflowInputFromArgs(args map[string]any) (service.WorkflowInput, error) {
	var input service.WorkflowInput
	input.Name, _ = args["name"].(string)
	input.Description, _ = args["description"].(string)
	input.TriggerType, _ = args["triggerType"].(string)
	input.TriggerConfig, _ = args["triggerConfig"].(string)
	input.Enabled, _ = args["enabled"].(bool)

	var blocksStr string
	switch v := args["blocksJSON"].(type) {
	case string:
		blocksStr = v
	default:
		if v != nil {
			b, _ := json.Marshal(v)
			blocksStr = string(b)
		}
	}
	if blocksStr == "" {
		return input, fmt.Errorf("blocksJSON is required")
	}

	var blocks []workflow.BlockConfig
	if err := parseJSON(blocksStr, &blocks); err != nil {
		return input, fmt.Errorf("parse blocksJSON: %w", err)
	}
	input.Blocks = blocks
	return input, nil
}

func (s *Server) handleCreateWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := workflowInputFromArgs(req.GetArguments())
	if err != nil {
		return nil, err
	}
	wf, err := s.workflows.CreateWorkflow(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	return jsonResult(wf)
}

func (s *Server) handleListWorkflows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wfs, err := s.workflows.ListWorkflows()
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return jsonResult(wfs)
}

func (s *Server) handleGetWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("workflowId", "")
	if id == "" {
		return nil, fmt.Errorf("workflowId is required")
	}
	wf, err := s.workflows.GetWorkflow(id)
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return jsonResult(wf)
}

func (s *Server) handleUpdateWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, _ := args["workflowId"].(string)
	if id == "" {
		return nil, fmt.Errorf("workflowId is required")
	}
	input, err := workflowInputFromArgs(args)
	if err != nil {
		return nil, err
	}
	wf, err := s.workflows.UpdateWorkflow(ctx, id, input)
	if err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}
	return jsonResult(wf)
}

func (s *Server) handleDeleteWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("workflowId", "")
	if id == "" {
		return nil, fmt.Errorf("workflowId is required")
	}
	if err := s.workflows.DeleteWorkflow(ctx, id); err != nil {
		return nil, fmt.Errorf("delete workflow: %w", err)
	}
	return textResult("Workflow deleted"), nil
}

func (s *Server) handleRunWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("workflowId", "")
	if id == "" {
		return nil, fmt.Errorf("workflowId is required")
	}
	inputFile := req.GetString("inputFile", "")

	j, err := s.workflows.RunWorkflow(ctx, id, inputFile)
	if err != nil {
		return nil, fmt.Errorf("run workflow: %w", err)
	}
	return jsonResult(j)
}

func (s *Server) handleListRunLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("workflowId", "")
	if id == "" {
		return nil, fmt.Errorf("workflowId is required")
	}
	logs, err := s.workflows.ListRunLogs(id)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	return jsonResult(logs)
}
