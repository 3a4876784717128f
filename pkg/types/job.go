package types

import "time"

// JobStatus is the lifecycle state of a PipelineJob.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobStaging    JobStatus = "staging"
	JobAnalyzing  JobStatus = "analyzing"
	JobDrafting   JobStatus = "drafting"
	JobPublishing JobStatus = "publishing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobSkipped    JobStatus = "skipped"
)

// MaxJobRetries bounds the failed -> queued edge.
const MaxJobRetries = 3

var jobStageOrder = map[JobStatus]int{
	JobQueued:     0,
	JobStaging:    1,
	JobAnalyzing:  2,
	JobDrafting:   3,
	JobPublishing: 4,
	JobCompleted:  5,
}

// PipelineJob is a persisted unit of queued row work.
type PipelineJob struct {
	ID             string        `json:"id" firestore:"id"`
	Status         JobStatus     `json:"status" firestore:"status"`
	SourceLink     string        `json:"sourceLink" firestore:"sourceLink"`
	Row            Row           `json:"row" firestore:"row"`
	Angle          CreativeAngle `json:"angle" firestore:"angle"`
	RowID          string        `json:"rowId" firestore:"rowId"`
	GroupID        string        `json:"groupId" firestore:"groupId"`
	RetryCount     int           `json:"retryCount" firestore:"retryCount"`
	CopyRevised    bool          `json:"copyRevised" firestore:"copyRevised"`
	AnalysisCached bool          `json:"analysisCached" firestore:"analysisCached"`
	LastError      string        `json:"lastError,omitempty" firestore:"lastError,omitempty"`
	AdID           string        `json:"adId,omitempty" firestore:"adId,omitempty"`
	CreatedAt      time.Time     `json:"createdAt" firestore:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt" firestore:"updatedAt"`
}

// Terminal reports whether no further transition is expected. A failed job
// is terminal once its retries are exhausted.
func (j *PipelineJob) Terminal(maxRetries int) bool {
	switch j.Status {
	case JobCompleted, JobSkipped:
		return true
	case JobFailed:
		return j.RetryCount >= maxRetries
	}
	return false
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle
// monotonic. failed -> queued is allowed here; its retry bound is enforced
// by the job store.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobCompleted, JobSkipped:
		return false
	case JobFailed:
		return next == JobQueued
	}
	switch next {
	case JobFailed, JobSkipped:
		return true
	}
	from, ok := jobStageOrder[s]
	if !ok {
		return false
	}
	to, ok := jobStageOrder[next]
	return ok && to > from
}
