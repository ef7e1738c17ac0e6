// Package mcp exposes the pipeline as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"multimodal-pipeline/internal/health"
	"multimodal-pipeline/internal/pipeline"
	"multimodal-pipeline/internal/registry"
	"multimodal-pipeline/pkg/models"
)

type Server struct {
	mcpServer    *server.MCPServer
	orchestrator *pipeline.Orchestrator
	catalog      *registry.Catalog
	reporter     *health.Reporter
}

func NewServer(orch *pipeline.Orchestrator, cat *registry.Catalog, reporter *health.Reporter) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Multimodal Pipeline",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		orchestrator: orch,
		catalog:      cat,
		reporter:     reporter,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"process_request",
			mcp.WithDescription("Run input through a multimodal workflow and return the pipeline response"),
			mcp.WithObject("input_data", mcp.Required(), mcp.Description("Named input fields, e.g. prompt, text or audio_data")),
			mcp.WithString("workflow", mcp.Description("Workflow name; omitted runs the single-stage default")),
			mcp.WithString("user_id", mcp.Description("Requester identity")),
			mcp.WithString("priority", mcp.Description("Priority hint")),
			mcp.WithNumber("max_stages", mcp.Description("Maximum number of stages to run")),
			mcp.WithNumber("timeout", mcp.Description("Overall timeout in seconds")),
		),
		s.handleProcess,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"request_status",
			mcp.WithDescription("Look up an in-flight or finished request"),
			mcp.WithString("request_id", mcp.Required(), mcp.Description("The request id")),
		),
		s.handleStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List the available workflows and their stages"),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"pipeline_stats",
			mcp.WithDescription("Aggregate statistics over recent requests"),
		),
		s.handleStats,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"pipeline_health",
			mcp.WithDescription("Probe every model backend"),
		),
		s.handleHealth,
	)
}

func (s *Server) handleProcess(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	input, ok := args["input_data"].(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: input_data"), nil
	}

	req := models.PipelineRequest{Input: models.Payload(input)}
	req.Workflow, _ = args["workflow"].(string)
	req.UserID, _ = args["user_id"].(string)
	req.Priority, _ = args["priority"].(string)
	if n, ok := args["max_stages"].(float64); ok {
		req.MaxStages = int(n)
	}
	if secs, ok := args["timeout"].(float64); ok {
		req.Timeout = time.Duration(secs * float64(time.Second))
	}

	return jsonResult(s.orchestrator.Process(ctx, req))
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	id, ok := args["request_id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: request_id"), nil
	}

	status, err := s.orchestrator.Status(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to look up request: %v", err)), nil
	}
	return jsonResult(status)
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	details := make(map[string][]models.StageDescriptor)
	for _, wf := range s.catalog.Workflows() {
		details[wf.Name] = wf.Stages
	}
	return jsonResult(details)
}

func (s *Server) handleStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.reporter.Stats())
}

func (s *Server) handleHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.reporter.Health(ctx))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
