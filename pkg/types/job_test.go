package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobQueued, JobStaging, true},
		{JobStaging, JobDrafting, true},
		{JobPublishing, JobCompleted, true},
		{JobAnalyzing, JobStaging, false},
		{JobDrafting, JobFailed, true},
		{JobQueued, JobSkipped, true},
		{JobFailed, JobQueued, true},
		{JobFailed, JobStaging, false},
		{JobCompleted, JobQueued, false},
		{JobSkipped, JobQueued, false},
		{JobQueued, JobQueued, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestPipelineJob_Terminal(t *testing.T) {
	j := &PipelineJob{Status: JobFailed, RetryCount: 1}
	assert.False(t, j.Terminal(MaxJobRetries))
	j.RetryCount = MaxJobRetries
	assert.True(t, j.Terminal(MaxJobRetries))
	assert.True(t, (&PipelineJob{Status: JobCompleted}).Terminal(MaxJobRetries))
	assert.False(t, (&PipelineJob{Status: JobDrafting}).Terminal(MaxJobRetries))
}

func TestAnalysisCacheEntry_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := &AnalysisCacheEntry{CreatedAt: now, ExpiresAt: now.Add(time.Second)}
	assert.False(t, e.Expired(now))
	assert.True(t, e.Expired(now.Add(time.Second)))
}

func TestReviewLog_Clean(t *testing.T) {
	assert.True(t, ReviewLog{ComplianceVerdict: "PASS", AccuracyVerdict: "GREEN"}.Clean())
	assert.False(t, ReviewLog{ComplianceVerdict: "PASS", AccuracyVerdict: "RED"}.Clean())
}
