// Package jobs persists PipelineJobs and moves them through their
// lifecycle over a message queue.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spawn-mcp/adshipper/pkg/docstore"
	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

// ErrInvalidTransition is returned when a status change would move a job
// backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid job transition")

// ErrRetriesExhausted is returned by Requeue once a job has used every retry.
var ErrRetriesExhausted = errors.New("job retries exhausted")

// Store is the job collection. Each job is owned by one worker at a time, so
// status changes read then write without a transaction.
type Store struct {
	docs         docstore.Store
	collection   string
	maxRetries   int
	now          func() time.Time
	onTransition func(types.JobStatus)
	log          logger.Logger
}

// NewStore creates a job store over docs.
func NewStore(docs docstore.Store, collection string, maxRetries int, log logger.Logger) *Store {
	if maxRetries < 0 {
		maxRetries = types.MaxJobRetries
	}
	return &Store{docs: docs, collection: collection, maxRetries: maxRetries, now: time.Now, log: log}
}

// OnTransition registers a hook called after every successful status change.
func (s *Store) OnTransition(fn func(types.JobStatus)) { s.onTransition = fn }

// MaxRetries returns the failed -> queued bound.
func (s *Store) MaxRetries() int { return s.maxRetries }

// Create stores a new queued job for row.
func (s *Store) Create(ctx context.Context, groupID string, row types.Row) (*types.PipelineJob, error) {
	now := s.now()
	job := &types.PipelineJob{
		ID:         uuid.New().String(),
		Status:     types.JobQueued,
		SourceLink: row.Link,
		Row:        row,
		Angle:      row.Angle,
		RowID:      row.ID,
		GroupID:    groupID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.docs.Set(ctx, s.collection, job.ID, job); err != nil {
		return nil, fmt.Errorf("create job for row %s: %w", row.ID, err)
	}
	s.notify(types.JobQueued)
	return job, nil
}

// Get loads one job.
func (s *Store) Get(ctx context.Context, id string) (*types.PipelineJob, error) {
	var job types.PipelineJob
	if err := s.docs.Get(ctx, s.collection, id, &job); err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &job, nil
}

// FindByRow returns the job for a row in a group, or nil when none exists.
func (s *Store) FindByRow(ctx context.Context, groupID, rowID string) (*types.PipelineJob, error) {
	docs, err := s.docs.Query(ctx, s.collection,
		docstore.Filter{Field: "groupId", Op: "==", Value: groupID},
		docstore.Filter{Field: "rowId", Op: "==", Value: rowID},
	)
	if err != nil {
		return nil, fmt.Errorf("find job for row %s: %w", rowID, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	var job types.PipelineJob
	if err := docs[0].DataTo(&job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", docs[0].ID, err)
	}
	return &job, nil
}

// ListByStatus returns every job currently in status.
func (s *Store) ListByStatus(ctx context.Context, status types.JobStatus) ([]types.PipelineJob, error) {
	docs, err := s.docs.Query(ctx, s.collection, docstore.Filter{Field: "status", Op: "==", Value: string(status)})
	if err != nil {
		return nil, fmt.Errorf("list %s jobs: %w", status, err)
	}
	out := make([]types.PipelineJob, 0, len(docs))
	for _, d := range docs {
		var job types.PipelineJob
		if err := d.DataTo(&job); err != nil {
			return nil, fmt.Errorf("decode job %s: %w", d.ID, err)
		}
		out = append(out, job)
	}
	return out, nil
}

// Transition moves a job to next, applying extra field updates in the same
// write. Backward moves return ErrInvalidTransition.
func (s *Store) Transition(ctx context.Context, id string, next types.JobStatus, extra ...docstore.Update) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == next {
		return nil
	}
	if !job.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, next)
	}
	if next == types.JobQueued && job.RetryCount >= s.maxRetries {
		return fmt.Errorf("%w: job %s retried %d times", ErrRetriesExhausted, id, job.RetryCount)
	}

	updates := append([]docstore.Update{
		{Path: "status", Value: next},
		{Path: "updatedAt", Value: s.now()},
	}, extra...)
	if err := s.docs.Update(ctx, s.collection, id, updates); err != nil {
		return fmt.Errorf("update job %s to %s: %w", id, next, err)
	}
	s.log.Debug("Job transitioned",
		logger.String("job_id", id),
		logger.String("from", string(job.Status)),
		logger.String("to", string(next)),
	)
	s.notify(next)
	return nil
}

// Complete records the shipped row on the job.
func (s *Store) Complete(ctx context.Context, id string, result types.RowResult) error {
	revised := result.Copy != nil && result.Copy.Review.Revised
	return s.Transition(ctx, id, types.JobCompleted,
		docstore.Update{Path: "adId", Value: result.AdID},
		docstore.Update{Path: "analysisCached", Value: result.AnalysisCached},
		docstore.Update{Path: "copyRevised", Value: revised},
		docstore.Update{Path: "lastError", Value: ""},
	)
}

// Fail marks the job failed and reports whether it may be retried. Only
// retryable errors with retries left are retried.
func (s *Store) Fail(ctx context.Context, id string, cause error) (bool, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.Transition(ctx, id, types.JobFailed, docstore.Update{Path: "lastError", Value: msg}); err != nil {
		return false, err
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return pipeerrors.IsRetryable(cause) && job.RetryCount < s.maxRetries, nil
}

// Requeue takes a failed job back to queued and counts the retry.
func (s *Store) Requeue(ctx context.Context, id string) error {
	return s.Transition(ctx, id, types.JobQueued, docstore.Update{Path: "retryCount", Value: docstore.Increment(1)})
}

// Skip marks a job that needs no work.
func (s *Store) Skip(ctx context.Context, id, reason string) error {
	return s.Transition(ctx, id, types.JobSkipped, docstore.Update{Path: "lastError", Value: reason})
}

func (s *Store) notify(status types.JobStatus) {
	if s.onTransition != nil {
		s.onTransition(status)
	}
}
