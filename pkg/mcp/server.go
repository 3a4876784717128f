// Package mcp exposes the coordinator as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spawn-mcp/adshipper/pkg/coordinator"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

// Coordinator is the functionality the tools call into.
type Coordinator interface {
	RunBatch(ctx context.Context, req types.BatchRequest) types.BatchSummary
	AnalyzeLink(ctx context.Context, key, link string) (*types.VideoAnalysis, bool, error)
	JobStatus(ctx context.Context, jobID string) (*types.PipelineJob, error)
	Discover(ctx context.Context) (*coordinator.DiscoverReport, error)
}

// MCPServer wraps the coordinator with MCP protocol support
type MCPServer struct {
	coordinator Coordinator
	mcpServer   *server.MCPServer
	log         logger.Logger
}

// NewMCPServer creates a new MCP server that exposes coordinator functionality
func NewMCPServer(coord Coordinator, version string, log logger.Logger) *MCPServer {
	mcpServer := server.NewMCPServer(
		"adshipper",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &MCPServer{
		coordinator: coord,
		mcpServer:   mcpServer,
		log:         log,
	}
	s.registerTools()
	return s
}

func (s *MCPServer) registerTools() {
	shipBatch := mcp.NewTool("ship_batch",
		mcp.WithDescription("Ship a batch of rows as paused ads. Each row is staged, analyzed, copywritten, and published independently."),
		mcp.WithString("rows_json",
			mcp.Required(),
			mcp.Description("JSON array of rows: {id, link, adSetName, adName, angle:{name,hook}, landingUrl, utm}"),
		),
		mcp.WithString("group_id",
			mcp.Description("Campaign ID that owns the ad sets; defaults to the configured campaign"),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Stop before anything is published"),
			mcp.DefaultBool(false),
		),
	)
	s.mcpServer.AddTool(shipBatch, s.handleShipBatch)

	analyzeVideo := mcp.NewTool("analyze_video",
		mcp.WithDescription("Stage a video link and return its structured analysis"),
		mcp.WithString("link",
			mcp.Required(),
			mcp.Description("Drive folder, Drive file, or direct video URL"),
		),
		mcp.WithString("key",
			mcp.Description("Staging key; reuse it to hit the analysis cache"),
		),
	)
	s.mcpServer.AddTool(analyzeVideo, s.handleAnalyzeVideo)

	jobStatus := mcp.NewTool("job_status",
		mcp.WithDescription("Get the lifecycle status of a queued pipeline job"),
		mcp.WithString("job_id", mcp.Required()),
	)
	s.mcpServer.AddTool(jobStatus, s.handleJobStatus)

	discover := mcp.NewTool("discover_rows",
		mcp.WithDescription("Queue jobs for every ready row in the planning sheet that has not shipped"),
	)
	s.mcpServer.AddTool(discover, s.handleDiscover)
}

func (s *MCPServer) handleShipBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rowsJSON, err := request.RequireString("rows_json")
	if err != nil {
		return mcp.NewToolResultError("rows_json required"), nil
	}
	var rows []types.Row
	if err := json.Unmarshal([]byte(rowsJSON), &rows); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid rows_json: %v", err)), nil
	}
	if len(rows) == 0 {
		return mcp.NewToolResultError("rows_json must contain at least one row"), nil
	}

	req := types.BatchRequest{
		GroupID: request.GetString("group_id", ""),
		Rows:    rows,
		DryRun:  request.GetBool("dry_run", false),
	}
	s.log.Info("ship_batch called", logger.Int("rows", len(rows)), logger.Bool("dry_run", req.DryRun))
	return jsonResult(s.coordinator.RunBatch(ctx, req))
}

func (s *MCPServer) handleAnalyzeVideo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	link, err := request.RequireString("link")
	if err != nil {
		return mcp.NewToolResultError("link required"), nil
	}
	key := request.GetString("key", "")
	if key == "" {
		key = "adhoc-" + uuid.New().String()
	}
	analysis, cached, err := s.coordinator.AnalyzeLink(ctx, key, link)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to analyze video: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"key":      key,
		"cached":   cached,
		"analysis": analysis,
	})
}

func (s *MCPServer) handleJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError("job_id required"), nil
	}
	job, err := s.coordinator.JobStatus(ctx, jobID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get job status: %v", err)), nil
	}
	return jsonResult(job)
}

func (s *MCPServer) handleDiscover(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.coordinator.Discover(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Discovery failed: %v", err)), nil
	}
	return jsonResult(report)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// Start serves MCP over stdio until stdin closes.
func (s *MCPServer) Start(ctx context.Context) error {
	s.log.Info("Starting MCP server")
	return server.ServeStdio(s.mcpServer)
}
