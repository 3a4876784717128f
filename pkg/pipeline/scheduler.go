package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spawn-mcp/adshipper/pkg/adplatform"
	"github.com/spawn-mcp/adshipper/pkg/adset"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

// DefaultConcurrency is used when the scheduler is given a limit below 1.
const DefaultConcurrency = 3

// Recorder observes batch outcomes.
type Recorder interface {
	RowFinished(status types.RowStatus, d time.Duration)
	AdSetResolved(created bool)
}

// Scheduler runs batches of rows through a Pipeline.
type Scheduler struct {
	pipeline    *Pipeline
	platform    adplatform.Platform
	defaults    adset.Defaults
	concurrency int
	recorder    Recorder
	log         logger.Logger
}

// NewScheduler creates a scheduler running at most concurrency rows at once.
func NewScheduler(p *Pipeline, platform adplatform.Platform, defaults adset.Defaults, concurrency int, log logger.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Scheduler{
		pipeline:    p,
		platform:    platform,
		defaults:    defaults,
		concurrency: concurrency,
		log:         log,
	}
}

// WithRecorder attaches a metrics recorder.
func (s *Scheduler) WithRecorder(r Recorder) *Scheduler {
	s.recorder = r
	return s
}

// Run ships every row in req and returns one result per row, in input
// order. A failing row never stops its siblings.
func (s *Scheduler) Run(ctx context.Context, req types.BatchRequest) types.BatchSummary {
	start := time.Now()
	runID := uuid.New().String()
	log := s.log.With(logger.String("run_id", runID), logger.String("group_id", req.GroupID))
	log.Info("Starting batch",
		logger.Int("rows", len(req.Rows)),
		logger.Int("concurrency", s.concurrency),
		logger.Bool("dry_run", req.DryRun),
	)

	adSets := adset.NewResolver(s.platform, s.defaults, log)
	if s.recorder != nil {
		adSets.OnResolve(s.recorder.AdSetResolved)
	}

	results := make([]types.RowResult, len(req.Rows))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, row := range req.Rows {
		jobID := row.ID
		if jobID == "" {
			jobID = runID + "-" + uuid.New().String()[:8]
		}
		g.Go(func() error {
			results[i] = s.pipeline.Ship(ctx, RowRequest{
				JobID:   jobID,
				GroupID: req.GroupID,
				Row:     row,
				DryRun:  req.DryRun,
				AdSets:  adSets,
			})
			return nil
		})
	}
	_ = g.Wait()

	summary := types.BatchSummary{RunID: runID, Total: len(results), Results: results}
	for _, r := range results {
		switch r.Status {
		case types.RowShipped:
			summary.Shipped++
		case types.RowFailed:
			summary.Failed++
		case types.RowDryRun:
			summary.DryRun++
		}
		if s.recorder != nil {
			s.recorder.RowFinished(r.Status, r.Duration)
		}
	}
	summary.DurationMs = time.Since(start).Milliseconds()

	log.Info("Batch finished",
		logger.Int("shipped", summary.Shipped),
		logger.Int("failed", summary.Failed),
		logger.Int("dry_run", summary.DryRun),
		logger.Int64("duration_ms", summary.DurationMs),
	)
	return summary
}
