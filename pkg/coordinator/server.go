// Package coordinator discovers candidate rows, queues them as jobs, and
// works the queue through the row pipeline.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spawn-mcp/adshipper/pkg/adplatform"
	"github.com/spawn-mcp/adshipper/pkg/adset"
	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/jobs"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/pipeline"
	"github.com/spawn-mcp/adshipper/pkg/types"
	"github.com/spawn-mcp/adshipper/pkg/workspace"
)

// ShippedTracker remembers rows that already produced an ad.
type ShippedTracker interface {
	HasShipped(ctx context.Context, groupID, rowID string) bool
	MarkShipped(ctx context.Context, groupID, rowID, adID string) error
}

// WorkerTrigger starts a worker execution that drains the queue.
type WorkerTrigger interface {
	TriggerWorker(ctx context.Context, jobName string, env map[string]string, timeout time.Duration) (string, error)
}

// Recorder observes coordinator events.
type Recorder interface {
	pipeline.Recorder
	RowSkipped()
}

// Config holds coordinator settings.
type Config struct {
	GroupID       string
	WorkerJobName string
	WorkerTimeout time.Duration
	DryRun        bool
}

// Server owns the job lifecycle around the row pipeline.
type Server struct {
	cfg       Config
	jobs      *jobs.Store
	queue     jobs.Queue
	source    workspace.Source
	tracker   ShippedTracker
	trigger   WorkerTrigger
	pipeline  *pipeline.Pipeline
	scheduler *pipeline.Scheduler
	platform  adplatform.Platform
	defaults  adset.Defaults
	recorder  Recorder
	log       logger.Logger

	resolversMu sync.Mutex
	resolvers   map[string]*adset.Resolver
}

// Deps are the collaborators a Server needs. Tracker, Trigger, and Recorder
// are optional.
type Deps struct {
	Jobs      *jobs.Store
	Queue     jobs.Queue
	Source    workspace.Source
	Tracker   ShippedTracker
	Trigger   WorkerTrigger
	Pipeline  *pipeline.Pipeline
	Scheduler *pipeline.Scheduler
	Platform  adplatform.Platform
	Defaults  adset.Defaults
	Recorder  Recorder
}

// NewServer creates a coordinator.
func NewServer(cfg Config, deps Deps, log logger.Logger) *Server {
	if cfg.WorkerTimeout <= 0 {
		cfg.WorkerTimeout = time.Hour
	}
	return &Server{
		cfg:       cfg,
		jobs:      deps.Jobs,
		queue:     deps.Queue,
		source:    deps.Source,
		tracker:   deps.Tracker,
		trigger:   deps.Trigger,
		pipeline:  deps.Pipeline,
		scheduler: deps.Scheduler,
		platform:  deps.Platform,
		defaults:  deps.Defaults,
		recorder:  deps.Recorder,
		log:       log,
		resolvers: make(map[string]*adset.Resolver),
	}
}

// DiscoverReport summarizes one discovery pass.
type DiscoverReport struct {
	Fetched   int      `json:"fetched"`
	Queued    int      `json:"queued"`
	Skipped   int      `json:"skipped"`
	JobIDs    []string `json:"jobIds"`
	Execution string   `json:"execution,omitempty"`
}

// Discover queues a job for every candidate row that has neither shipped
// nor been queued before, then starts a worker if anything was queued.
func (s *Server) Discover(ctx context.Context) (*DiscoverReport, error) {
	if s.source == nil {
		return nil, pipeerrors.New(pipeerrors.ErrMissingRequired, "no row source configured")
	}
	rows, err := s.source.FetchCandidateRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch candidate rows: %w", err)
	}
	report := &DiscoverReport{Fetched: len(rows)}
	group := s.cfg.GroupID

	for _, row := range rows {
		if s.tracker != nil && s.tracker.HasShipped(ctx, group, row.ID) {
			s.skipped(report)
			continue
		}
		existing, err := s.jobs.FindByRow(ctx, group, row.ID)
		if err != nil {
			return report, err
		}
		if existing != nil {
			s.skipped(report)
			continue
		}

		job, err := s.jobs.Create(ctx, group, row)
		if err != nil {
			return report, err
		}
		if err := s.queue.Enqueue(ctx, jobs.Message{JobID: job.ID, GroupID: group}); err != nil {
			return report, fmt.Errorf("enqueue job %s: %w", job.ID, err)
		}
		report.Queued++
		report.JobIDs = append(report.JobIDs, job.ID)
	}

	if report.Queued > 0 && s.trigger != nil && s.cfg.WorkerJobName != "" {
		exec, err := s.trigger.TriggerWorker(ctx, s.cfg.WorkerJobName, map[string]string{
			"GROUP_ID": group,
			"DRY_RUN":  fmt.Sprint(s.cfg.DryRun),
		}, s.cfg.WorkerTimeout)
		if err != nil {
			return report, fmt.Errorf("trigger worker: %w", err)
		}
		report.Execution = exec
	}

	s.log.Info("Discovery finished",
		logger.String("group_id", group),
		logger.Int("fetched", report.Fetched),
		logger.Int("queued", report.Queued),
		logger.Int("skipped", report.Skipped),
	)
	return report, nil
}

func (s *Server) skipped(report *DiscoverReport) {
	report.Skipped++
	if s.recorder != nil {
		s.recorder.RowSkipped()
	}
}

// Work consumes job messages until ctx is done or the queue is drained.
func (s *Server) Work(ctx context.Context) error {
	s.log.Info("Worker started", logger.String("group_id", s.cfg.GroupID), logger.Bool("dry_run", s.cfg.DryRun))
	return s.queue.Receive(ctx, s.HandleMessage)
}

// HandleMessage runs one job. Returning an error redelivers the message, so only
// job store failures are returned; row failures are recorded on the job.
func (s *Server) HandleMessage(ctx context.Context, msg jobs.Message) error {
	job, err := s.jobs.Get(ctx, msg.JobID)
	if err != nil {
		return err
	}
	log := s.log.With(logger.String("job_id", job.ID), logger.String("row_id", job.RowID))
	if job.Status != types.JobQueued {
		log.Info("Ignoring message for job not in queue", logger.String("status", string(job.Status)))
		return nil
	}

	result := s.pipeline.Ship(ctx, pipeline.RowRequest{
		JobID:   job.ID,
		GroupID: job.GroupID,
		Row:     job.Row,
		DryRun:  s.cfg.DryRun,
		AdSets:  s.resolverFor(job.GroupID),
		OnStage: func(ctx context.Context, st types.JobStatus) error {
			return s.jobs.Transition(ctx, job.ID, st)
		},
	})
	if s.recorder != nil {
		s.recorder.RowFinished(result.Status, result.Duration)
	}

	if result.Status != types.RowFailed {
		if err := s.jobs.Complete(ctx, job.ID, result); err != nil {
			return err
		}
		if result.AdID != "" && s.tracker != nil {
			if err := s.tracker.MarkShipped(ctx, job.GroupID, job.RowID, result.AdID); err != nil {
				log.Warn("Failed to record shipped row", logger.Error(err))
			}
		}
		return nil
	}

	retry, err := s.jobs.Fail(ctx, job.ID, result.Err)
	if err != nil {
		return err
	}
	if !retry {
		log.Error("Job failed permanently", logger.String("error", result.Error), logger.Int("retries", job.RetryCount))
		return nil
	}
	if err := s.jobs.Requeue(ctx, job.ID); err != nil {
		return err
	}
	log.Warn("Job failed, requeued", logger.String("error", result.Error), logger.Int("attempt", msg.Attempt+1))
	return s.queue.Enqueue(ctx, jobs.Message{JobID: job.ID, GroupID: job.GroupID, Attempt: msg.Attempt + 1})
}

// resolverFor keeps one ad set resolver per group for the worker's lifetime.
// The resolver forgets transient failures, so requeued jobs reach the platform.
func (s *Server) resolverFor(groupID string) *adset.Resolver {
	s.resolversMu.Lock()
	defer s.resolversMu.Unlock()
	r, ok := s.resolvers[groupID]
	if !ok {
		r = adset.NewResolver(s.platform, s.defaults, s.log)
		if s.recorder != nil {
			r.OnResolve(s.recorder.AdSetResolved)
		}
		s.resolvers[groupID] = r
	}
	return r
}

// RunBatch ships rows directly, bypassing the queue. Shipped rows are
// recorded in the tracker.
func (s *Server) RunBatch(ctx context.Context, req types.BatchRequest) types.BatchSummary {
	if req.GroupID == "" {
		req.GroupID = s.cfg.GroupID
	}
	summary := s.scheduler.Run(ctx, req)
	if s.tracker == nil {
		return summary
	}
	for _, r := range summary.Results {
		if r.Status != types.RowShipped || r.AdID == "" {
			continue
		}
		if err := s.tracker.MarkShipped(ctx, req.GroupID, r.RowID, r.AdID); err != nil {
			s.log.Warn("Failed to record shipped row", logger.String("row_id", r.RowID), logger.Error(err))
		}
	}
	return summary
}

// JobStatus returns a stored job.
func (s *Server) JobStatus(ctx context.Context, jobID string) (*types.PipelineJob, error) {
	return s.jobs.Get(ctx, jobID)
}

// AnalyzeLink stages and analyzes one link without publishing.
func (s *Server) AnalyzeLink(ctx context.Context, key, link string) (*types.VideoAnalysis, bool, error) {
	return s.pipeline.Analyze(ctx, key, link)
}
