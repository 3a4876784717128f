package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spawn-mcp/adshipper/pkg/adplatform"
	"github.com/spawn-mcp/adshipper/pkg/adset"
	"github.com/spawn-mcp/adshipper/pkg/analysis"
	"github.com/spawn-mcp/adshipper/pkg/copywriter"
	"github.com/spawn-mcp/adshipper/pkg/docstore"
	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/objectstore"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

type fakeAssets struct {
	store  *objectstore.Memory
	active atomic.Int32
	peak   atomic.Int32
	fn     func(jobID, link string) (types.StagedAssets, error)
}

func (f *fakeAssets) Resolve(ctx context.Context, jobID, link string) (types.StagedAssets, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	staged := types.StagedAssets{Primary: types.StagedFile{
		StoragePath: "mem://jobs/" + jobID + "/4x5-clip.mp4",
		Ratio:       types.Ratio4x5,
		Name:        "clip.mp4",
	}}
	if f.fn != nil {
		var err error
		if staged, err = f.fn(jobID, link); err != nil {
			return staged, err
		}
	}
	files := []types.StagedFile{staged.Primary}
	if staged.Secondary != nil {
		files = append(files, *staged.Secondary)
	}
	for _, file := range files {
		key := strings.TrimPrefix(file.StoragePath, "mem://")
		if _, err := f.store.Upload(ctx, strings.NewReader("video"), key, objectstore.UploadOptions{ContentType: "video/mp4"}); err != nil {
			return types.StagedAssets{}, err
		}
	}
	return staged, nil
}

type fakeAnalyzer struct {
	calls atomic.Int32
	fn    func(file types.StagedFile) (*types.VideoAnalysis, error)
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, file types.StagedFile, d float64) (*types.VideoAnalysis, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(file)
	}
	return &types.VideoAnalysis{Tone: "upbeat", Approach: "demo", Transcript: "hi"}, nil
}

type fakeWriter struct{}

func (fakeWriter) Write(ctx context.Context, b copywriter.Brief) (*types.CopyResult, error) {
	return &types.CopyResult{
		AdCopy: types.AdCopy{PrimaryText: "Meet " + b.Angle.Name, Headline: "Try it"},
		Review: types.ReviewLog{ComplianceVerdict: types.CompliancePass, AccuracyVerdict: types.AccuracyGreen, Rounds: 1},
	}, nil
}

type harness struct {
	assets   *fakeAssets
	analyzer *fakeAnalyzer
	platform *adplatform.Fake
	docs     *docstore.Memory
	pipeline *Pipeline
}

func newHarness() *harness {
	objects := objectstore.NewMemory("https://signed.test")
	h := &harness{
		assets:   &fakeAssets{store: objects},
		analyzer: &fakeAnalyzer{},
		platform: adplatform.NewFake(),
		docs:     docstore.NewMemory(),
	}
	cache := analysis.NewCache(h.docs, "analysis_cache", time.Hour, logger.NewNop())
	h.pipeline = New(h.assets, cache, h.analyzer, fakeWriter{}, h.platform,
		objects, analysis.Key,
		Options{PageID: "page-1", CallToAction: "SHOP_NOW", DefaultLandingURL: "https://shop.test/p"},
		logger.NewNop())
	return h
}

func (h *harness) scheduler(concurrency int) *Scheduler {
	return NewScheduler(h.pipeline, h.platform, adset.Defaults{DailyBudgetCents: 1000}, concurrency, logger.NewNop())
}

func rows(n int) []types.Row {
	out := make([]types.Row, n)
	for i := range out {
		out[i] = types.Row{
			ID:        fmt.Sprintf("row-%d", i+1),
			Link:      fmt.Sprintf("https://cdn.test/video-%d.mp4", i+1),
			AdSetName: "Broad US",
			AdName:    fmt.Sprintf("Ad %d", i+1),
			Angle:     types.CreativeAngle{Name: "angle"},
		}
	}
	return out
}

func TestScheduler_IsolatesFailingRow(t *testing.T) {
	h := newHarness()
	h.assets.fn = func(jobID, link string) (types.StagedAssets, error) {
		if jobID == "row-3" {
			return types.StagedAssets{}, pipeerrors.Newf(pipeerrors.ErrNoVideoFound, "no video in folder")
		}
		return types.StagedAssets{Primary: types.StagedFile{StoragePath: "mem://jobs/" + jobID + "/a.mp4", Ratio: types.Ratio4x5}}, nil
	}

	summary := h.scheduler(2).Run(context.Background(), types.BatchRequest{GroupID: "camp-1", Rows: rows(5)})

	require.Len(t, summary.Results, 5)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 4, summary.Shipped)
	assert.Equal(t, 1, summary.Failed)
	assert.NotEmpty(t, summary.RunID)
	for i, r := range summary.Results {
		assert.Equal(t, fmt.Sprintf("row-%d", i+1), r.RowID)
		if i == 2 {
			assert.Equal(t, types.RowFailed, r.Status)
			assert.Contains(t, r.Error, "no video in folder")
			assert.Empty(t, r.AdID)
			continue
		}
		assert.Equal(t, types.RowShipped, r.Status)
		assert.NotEmpty(t, r.AdID)
		assert.Empty(t, r.Error)
	}
	assert.Equal(t, 4, h.platform.Calls("CreateAd"))
	assert.Equal(t, 1, h.platform.Calls("CreateAdSet"))
}

func TestScheduler_RecoversPanickingRow(t *testing.T) {
	h := newHarness()
	h.analyzer.fn = func(file types.StagedFile) (*types.VideoAnalysis, error) {
		if strings.Contains(file.StoragePath, "row-2") {
			panic("nil map write")
		}
		return &types.VideoAnalysis{Tone: "calm"}, nil
	}

	summary := h.scheduler(3).Run(context.Background(), types.BatchRequest{GroupID: "camp-1", Rows: rows(3)})

	assert.Equal(t, 2, summary.Shipped)
	assert.Equal(t, 1, summary.Failed)
	failed := summary.Results[1]
	assert.Equal(t, types.RowFailed, failed.Status)
	assert.Contains(t, failed.Error, pipeerrors.ErrPanic)
	assert.Contains(t, failed.Error, "nil map write")
	assert.Positive(t, failed.Duration)
}

func TestScheduler_DryRunSkipsPlatform(t *testing.T) {
	h := newHarness()

	summary := h.scheduler(3).Run(context.Background(), types.BatchRequest{GroupID: "camp-1", Rows: rows(4), DryRun: true})

	assert.Equal(t, 4, summary.DryRun)
	assert.Zero(t, summary.Shipped)
	assert.Zero(t, h.platform.PublishCalls())
	assert.Zero(t, h.platform.Calls("CreateAdSet"))
	assert.Zero(t, h.platform.Calls("FindAdSetByName"))
	for _, r := range summary.Results {
		assert.Equal(t, types.RowDryRun, r.Status)
		require.NotNil(t, r.Copy)
		assert.Contains(t, r.Link, "utm_source=facebook")
	}
}

func TestScheduler_RespectsConcurrencyLimit(t *testing.T) {
	h := newHarness()

	h.scheduler(2).Run(context.Background(), types.BatchRequest{GroupID: "camp-1", Rows: rows(8), DryRun: true})

	assert.LessOrEqual(t, h.assets.peak.Load(), int32(2))
	assert.Positive(t, h.assets.peak.Load())
}

func TestScheduler_SecondBatchHitsAnalysisCache(t *testing.T) {
	h := newHarness()
	s := h.scheduler(2)

	first := s.Run(context.Background(), types.BatchRequest{GroupID: "camp-1", Rows: rows(2), DryRun: true})
	second := s.Run(context.Background(), types.BatchRequest{GroupID: "camp-1", Rows: rows(2), DryRun: true})

	assert.EqualValues(t, 2, h.analyzer.calls.Load())
	for _, r := range first.Results {
		assert.False(t, r.AnalysisCached)
	}
	for _, r := range second.Results {
		assert.True(t, r.AnalysisCached)
	}
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestPipeline_PublishesPlacementCreativePaused(t *testing.T) {
	h := newHarness()
	h.assets.fn = func(jobID, link string) (types.StagedAssets, error) {
		return types.StagedAssets{
			Primary:   types.StagedFile{StoragePath: "mem://jobs/" + jobID + "/4x5-a.mp4", Ratio: types.Ratio4x5, Name: "a.mp4"},
			Secondary: &types.StagedFile{StoragePath: "mem://jobs/" + jobID + "/9x16-b.mp4", Ratio: types.Ratio9x16, Name: "b.mp4"},
		}, nil
	}
	var urls sync.Map
	h.platform.UploadVideoFunc = func(ctx context.Context, fileURL, title string) (adplatform.VideoUpload, error) {
		urls.Store(title, fileURL)
		return adplatform.VideoUpload{VideoID: "v-" + strings.Fields(title)[len(strings.Fields(title))-1]}, nil
	}
	adSets := adset.NewResolver(h.platform, adset.Defaults{}, logger.NewNop())

	row := rows(1)[0]
	row.LandingURL = "https://shop.test/item?ref=abc"
	res := h.pipeline.Ship(context.Background(), RowRequest{JobID: "job-1", GroupID: "camp-1", Row: row, AdSets: adSets})

	require.Equal(t, types.RowShipped, res.Status, res.Error)
	assert.Equal(t, []string{"v-4x5", "v-9x16"}, res.VideoIDs)
	assert.True(t, res.AdSetCreated)

	require.Len(t, h.platform.Creatives, 1)
	c := h.platform.Creatives[0]
	require.Len(t, c.Videos, 2)
	assert.Equal(t, types.Ratio4x5, c.Videos[0].Ratio)
	assert.Equal(t, types.Ratio9x16, c.Videos[1].Ratio)
	assert.Equal(t, "page-1", c.PageID)
	assert.Equal(t, res.Link, c.Link)

	require.Len(t, h.platform.Ads, 1)
	assert.Equal(t, adplatform.StatusPaused, h.platform.Ads[0].Status)

	signed, ok := urls.Load("Ad 1 9x16")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(signed.(string), "https://signed.test/jobs/job-1/9x16-b.mp4"))
}

func TestPipeline_ReportsStagesInOrder(t *testing.T) {
	h := newHarness()
	var seen []types.JobStatus
	onStage := func(ctx context.Context, s types.JobStatus) error {
		seen = append(seen, s)
		return nil
	}
	adSets := adset.NewResolver(h.platform, adset.Defaults{}, logger.NewNop())

	res := h.pipeline.Ship(context.Background(), RowRequest{JobID: "j", GroupID: "g", Row: rows(1)[0], AdSets: adSets, OnStage: onStage})

	require.Equal(t, types.RowShipped, res.Status)
	assert.Equal(t, []types.JobStatus{types.JobStaging, types.JobAnalyzing, types.JobDrafting, types.JobPublishing}, seen)
}

func TestPipeline_StageErrorFailsRow(t *testing.T) {
	h := newHarness()
	storeDown := errors.New("job store unavailable")
	onStage := func(ctx context.Context, s types.JobStatus) error {
		if s == types.JobAnalyzing {
			return storeDown
		}
		return nil
	}

	res := h.pipeline.Ship(context.Background(), RowRequest{JobID: "j", Row: rows(1)[0], DryRun: true, OnStage: onStage})

	assert.Equal(t, types.RowFailed, res.Status)
	assert.Contains(t, res.Error, "job store unavailable")
	assert.Zero(t, h.analyzer.calls.Load())
}

func TestPipeline_RejectsIncompleteRow(t *testing.T) {
	h := newHarness()
	row := rows(1)[0]
	row.AdSetName = ""

	res := h.pipeline.Ship(context.Background(), RowRequest{JobID: "j", Row: row})

	assert.Equal(t, types.RowFailed, res.Status)
	assert.Contains(t, res.Error, "no ad set name")
	assert.Zero(t, h.platform.PublishCalls())
}

func TestPipeline_MissingLandingURLFailsBeforeStaging(t *testing.T) {
	h := newHarness()
	h.pipeline.opts.DefaultLandingURL = ""
	var stages []types.JobStatus
	onStage := func(ctx context.Context, s types.JobStatus) error {
		stages = append(stages, s)
		return nil
	}

	res := h.pipeline.Ship(context.Background(), RowRequest{JobID: "j", Row: rows(1)[0], OnStage: onStage})

	assert.Equal(t, types.RowFailed, res.Status)
	assert.True(t, pipeerrors.IsCode(res.Err, pipeerrors.ErrInvalidInput))
	assert.Contains(t, res.Error, "landing URL is required")
	assert.Empty(t, stages)
	assert.Zero(t, h.assets.active.Load()+h.assets.peak.Load())
	assert.Zero(t, h.analyzer.calls.Load())
	assert.Zero(t, h.platform.PublishCalls())
}

func TestBuildLink(t *testing.T) {
	link, err := BuildLink("https://shop.test/p?ref=abc&utm_source=old", "Broad US", "Ad 7", map[string]string{"utm_term": "video"})
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "abc", q.Get("ref"))
	assert.Equal(t, "facebook", q.Get("utm_source"))
	assert.Equal(t, "paid", q.Get("utm_medium"))
	assert.Equal(t, "Broad US", q.Get("utm_campaign"))
	assert.Equal(t, "Ad 7", q.Get("utm_content"))
	assert.Equal(t, "video", q.Get("utm_term"))

	link, err = BuildLink("https://shop.test", "", "", map[string]string{"utm_source": "meta"})
	require.NoError(t, err)
	assert.Contains(t, link, "utm_source=meta")

	_, err = BuildLink("", "a", "b", nil)
	assert.True(t, pipeerrors.IsCode(err, pipeerrors.ErrInvalidInput))
	_, err = BuildLink("not a url", "a", "b", nil)
	assert.True(t, pipeerrors.IsCode(err, pipeerrors.ErrInvalidInput))
}
