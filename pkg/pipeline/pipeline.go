// Package pipeline ships rows: stage assets, analyze, write copy, and
// publish a paused ad. The Scheduler runs a batch of rows with bounded
// concurrency and isolates every row's failure.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spawn-mcp/adshipper/pkg/adplatform"
	"github.com/spawn-mcp/adshipper/pkg/copywriter"
	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/objectstore"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

// AssetResolver stages the videos behind a link.
type AssetResolver interface {
	Resolve(ctx context.Context, jobID, link string) (types.StagedAssets, error)
}

// AnalysisCache memoizes analyses by key.
type AnalysisCache interface {
	Get(ctx context.Context, key string) (*types.AnalysisCacheEntry, bool)
	Put(ctx context.Context, key, rowID string, analysis types.VideoAnalysis, stagedPath string)
}

// Analyzer produces a structured analysis of a staged video.
type Analyzer interface {
	Analyze(ctx context.Context, file types.StagedFile, durationSeconds float64) (*types.VideoAnalysis, error)
}

// CopyWriter drafts and reviews ad copy.
type CopyWriter interface {
	Write(ctx context.Context, brief copywriter.Brief) (*types.CopyResult, error)
}

// AdSetResolver finds or creates an ad set.
type AdSetResolver interface {
	Resolve(ctx context.Context, groupID, name string) (types.AdSetResolution, error)
}

// StageFunc is told when a row enters a stage. A returned error fails the
// row.
type StageFunc func(ctx context.Context, status types.JobStatus) error

// Options are the publishing settings shared by every row.
type Options struct {
	PageID            string
	CallToAction      string
	DefaultLandingURL string
	SignedURLTTL      time.Duration
}

// Pipeline runs one row end to end.
type Pipeline struct {
	assets   AssetResolver
	cache    AnalysisCache
	analyzer Analyzer
	writer   CopyWriter
	platform adplatform.Platform
	storage  objectstore.Store
	keyFn    func(stagedPath string) string
	opts     Options
	log      logger.Logger
}

// New creates a Pipeline. keyFn maps a staged path to its cache key.
func New(
	assets AssetResolver,
	cache AnalysisCache,
	analyzer Analyzer,
	writer CopyWriter,
	platform adplatform.Platform,
	storage objectstore.Store,
	keyFn func(string) string,
	opts Options,
	log logger.Logger,
) *Pipeline {
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = time.Hour
	}
	return &Pipeline{
		assets:   assets,
		cache:    cache,
		analyzer: analyzer,
		writer:   writer,
		platform: platform,
		storage:  storage,
		keyFn:    keyFn,
		opts:     opts,
		log:      log,
	}
}

// RowRequest is one row plus its batch context.
type RowRequest struct {
	JobID   string
	GroupID string
	Row     types.Row
	DryRun  bool
	AdSets  AdSetResolver
	OnStage StageFunc
}

// Ship runs the row and always returns a result. Errors and panics become a
// failed result carrying the message.
func (p *Pipeline) Ship(ctx context.Context, req RowRequest) (result types.RowResult) {
	start := time.Now()
	result.RowID = req.Row.ID
	log := p.log.With(logger.String("row_id", req.Row.ID), logger.String("job_id", req.JobID))

	defer func() {
		if r := recover(); r != nil {
			err := pipeerrors.Newf(pipeerrors.ErrPanic, "panic: %v", r)
			log.Error("Row panicked", logger.Any("panic", r), logger.String("stack", string(debug.Stack())))
			result.Status = types.RowFailed
			result.Error = err.Error()
			result.Err = err
		}
		result.Duration = time.Since(start)
	}()

	if err := p.ship(ctx, req, &result, log); err != nil {
		log.Warn("Row failed", logger.Error(err))
		result.Status = types.RowFailed
		result.Error = err.Error()
		result.Err = err
		return result
	}
	if req.DryRun {
		result.Status = types.RowDryRun
	} else {
		result.Status = types.RowShipped
	}
	log.Info("Row finished",
		logger.String("status", string(result.Status)),
		logger.String("ad_id", result.AdID),
		logger.Bool("analysis_cached", result.AnalysisCached),
	)
	return result
}

func (p *Pipeline) ship(ctx context.Context, req RowRequest, result *types.RowResult, log logger.Logger) error {
	row := req.Row
	if err := validateRow(row, req.DryRun); err != nil {
		return err
	}
	landing := row.LandingURL
	if landing == "" {
		landing = p.opts.DefaultLandingURL
	}
	link, err := BuildLink(landing, row.AdSetName, row.AdName, row.UTM)
	if err != nil {
		return err
	}
	stage := func(s types.JobStatus) error {
		if req.OnStage == nil {
			return nil
		}
		if err := req.OnStage(ctx, s); err != nil {
			return fmt.Errorf("record stage %s: %w", s, err)
		}
		return nil
	}

	if err := stage(types.JobStaging); err != nil {
		return err
	}
	staged, err := p.assets.Resolve(ctx, req.JobID, row.Link)
	if err != nil {
		return fmt.Errorf("resolve assets: %w", err)
	}

	if err := stage(types.JobAnalyzing); err != nil {
		return err
	}
	analysis, cached, err := p.analyze(ctx, row.ID, staged.Primary)
	if err != nil {
		return fmt.Errorf("analyze video: %w", err)
	}
	result.AnalysisCached = cached

	if err := stage(types.JobDrafting); err != nil {
		return err
	}
	copyResult, err := p.writer.Write(ctx, copywriter.Brief{RowID: row.ID, Analysis: *analysis, Angle: row.Angle})
	if err != nil {
		return fmt.Errorf("write copy: %w", err)
	}
	result.Copy = copyResult
	result.Link = link

	if req.DryRun {
		log.Info("Dry run, skipping publish", logger.String("link", link))
		return nil
	}

	if err := stage(types.JobPublishing); err != nil {
		return err
	}
	adSet, err := req.AdSets.Resolve(ctx, req.GroupID, row.AdSetName)
	if err != nil {
		return fmt.Errorf("resolve ad set: %w", err)
	}
	result.AdSetID = adSet.ID
	result.AdSetCreated = adSet.Created

	videos, err := p.uploadVideos(ctx, row, staged)
	if err != nil {
		return fmt.Errorf("upload videos: %w", err)
	}
	for _, v := range videos {
		result.VideoIDs = append(result.VideoIDs, v.VideoID)
	}

	creativeID, err := p.platform.CreateCreative(ctx, adplatform.CreativeParams{
		Name:         row.AdName,
		PageID:       p.opts.PageID,
		Copy:         copyResult.AdCopy,
		Link:         link,
		CallToAction: p.opts.CallToAction,
		Videos:       videos,
	})
	if err != nil {
		return fmt.Errorf("create creative: %w", err)
	}
	result.CreativeID = creativeID

	adID, err := p.platform.CreateAd(ctx, adplatform.AdParams{
		Name:       row.AdName,
		AdSetID:    adSet.ID,
		CreativeID: creativeID,
		Status:     adplatform.StatusPaused,
	})
	if err != nil {
		return fmt.Errorf("create ad: %w", err)
	}
	result.AdID = adID
	return nil
}

// Analyze stages link and returns its primary video's analysis, from the
// cache when possible. It publishes nothing.
func (p *Pipeline) Analyze(ctx context.Context, jobID, link string) (*types.VideoAnalysis, bool, error) {
	staged, err := p.assets.Resolve(ctx, jobID, link)
	if err != nil {
		return nil, false, fmt.Errorf("resolve assets: %w", err)
	}
	return p.analyze(ctx, jobID, staged.Primary)
}

// analyze returns the cached analysis for the primary file or runs a fresh
// one and caches it.
func (p *Pipeline) analyze(ctx context.Context, rowID string, file types.StagedFile) (*types.VideoAnalysis, bool, error) {
	key := p.keyFn(file.StoragePath)
	if entry, ok := p.cache.Get(ctx, key); ok {
		return &entry.Analysis, true, nil
	}
	analysis, err := p.analyzer.Analyze(ctx, file, file.DurationSeconds)
	if err != nil {
		return nil, false, err
	}
	p.cache.Put(ctx, key, rowID, *analysis, file.StoragePath)
	return analysis, false, nil
}

// uploadVideos hands every staged file to the platform concurrently. The
// returned slice keeps primary first.
func (p *Pipeline) uploadVideos(ctx context.Context, row types.Row, staged types.StagedAssets) ([]adplatform.PlacedVideo, error) {
	files := []types.StagedFile{staged.Primary}
	if staged.Secondary != nil {
		files = append(files, *staged.Secondary)
	}

	placed := make([]adplatform.PlacedVideo, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			fileURL, err := p.storage.SignedURL(gctx, f.StoragePath, p.opts.SignedURLTTL)
			if err != nil {
				return fmt.Errorf("sign %s: %w", f.StoragePath, err)
			}
			up, err := p.platform.UploadVideo(gctx, fileURL, fmt.Sprintf("%s %s", row.AdName, f.Ratio))
			if err != nil {
				return fmt.Errorf("upload %s: %w", f.Name, err)
			}
			placed[i] = adplatform.PlacedVideo{VideoUpload: up, Ratio: f.Ratio}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return placed, nil
}

func validateRow(row types.Row, dryRun bool) error {
	if strings.TrimSpace(row.Link) == "" {
		return pipeerrors.Validation("row %s has no asset link", row.ID)
	}
	if dryRun {
		return nil
	}
	if strings.TrimSpace(row.AdSetName) == "" {
		return pipeerrors.Validation("row %s has no ad set name", row.ID)
	}
	if strings.TrimSpace(row.AdName) == "" {
		return pipeerrors.Validation("row %s has no ad name", row.ID)
	}
	return nil
}
