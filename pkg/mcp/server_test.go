package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spawn-mcp/adshipper/pkg/coordinator"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

type fakeCoordinator struct {
	batch types.BatchRequest
	key   string
}

func (f *fakeCoordinator) RunBatch(ctx context.Context, req types.BatchRequest) types.BatchSummary {
	f.batch = req
	return types.BatchSummary{RunID: "run-1", Total: len(req.Rows), DryRun: len(req.Rows)}
}

func (f *fakeCoordinator) AnalyzeLink(ctx context.Context, key, link string) (*types.VideoAnalysis, bool, error) {
	f.key = key
	if link == "bad" {
		return nil, false, errors.New("unsupported asset link")
	}
	return &types.VideoAnalysis{Tone: "playful"}, true, nil
}

func (f *fakeCoordinator) JobStatus(ctx context.Context, jobID string) (*types.PipelineJob, error) {
	return &types.PipelineJob{ID: jobID, Status: types.JobDrafting}, nil
}

func (f *fakeCoordinator) Discover(ctx context.Context) (*coordinator.DiscoverReport, error) {
	return &coordinator.DiscoverReport{Fetched: 3, Queued: 2, Skipped: 1}, nil
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestShipBatch(t *testing.T) {
	fc := &fakeCoordinator{}
	s := NewMCPServer(fc, "test", logger.NewNop())

	res, err := s.handleShipBatch(context.Background(), call(map[string]any{
		"rows_json": `[{"id":"r1","link":"https://cdn.test/a.mp4","adSetName":"A","adName":"B"}]`,
		"group_id":  "camp-9",
		"dry_run":   true,
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var summary types.BatchSummary
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &summary))
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, "camp-9", fc.batch.GroupID)
	assert.True(t, fc.batch.DryRun)
	require.Len(t, fc.batch.Rows, 1)
	assert.Equal(t, "r1", fc.batch.Rows[0].ID)
}

func TestShipBatchRejectsBadInput(t *testing.T) {
	s := NewMCPServer(&fakeCoordinator{}, "test", logger.NewNop())

	for _, args := range []map[string]any{
		{},
		{"rows_json": "{"},
		{"rows_json": "[]"},
	} {
		res, err := s.handleShipBatch(context.Background(), call(args))
		require.NoError(t, err)
		assert.True(t, res.IsError, "%v", args)
	}
}

func TestAnalyzeVideo(t *testing.T) {
	fc := &fakeCoordinator{}
	s := NewMCPServer(fc, "test", logger.NewNop())

	res, err := s.handleAnalyzeVideo(context.Background(), call(map[string]any{"link": "https://cdn.test/a.mp4"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), `"playful"`)
	assert.Contains(t, fc.key, "adhoc-")

	res, err = s.handleAnalyzeVideo(context.Background(), call(map[string]any{"link": "bad", "key": "k1"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "k1", fc.key)
}

func TestJobStatusAndDiscover(t *testing.T) {
	s := NewMCPServer(&fakeCoordinator{}, "test", logger.NewNop())

	res, err := s.handleJobStatus(context.Background(), call(map[string]any{"job_id": "j-1"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), `"status": "drafting"`)

	res, err = s.handleDiscover(context.Background(), call(nil))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), `"queued": 2`)
}
