package gcp

import (
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spawn-mcp/adshipper/pkg/docstore"
)

func TestParseGSPath(t *testing.T) {
	bucket, key, err := parseGSPath("gs://staging/jobs/j1/4x5-a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "staging", bucket)
	assert.Equal(t, "jobs/j1/4x5-a.mp4", key)

	for _, bad := range []string{"mem://x", "gs://bucket", "gs:///key"} {
		_, _, err := parseGSPath(bad)
		assert.Error(t, err, bad)
	}
}

func TestToFirestoreUpdates(t *testing.T) {
	got := toFirestoreUpdates([]docstore.Update{
		{Path: "hitCount", Value: docstore.Increment(1)},
		{Path: "status", Value: "queued"},
	})

	require.Len(t, got, 2)
	assert.Equal(t, "hitCount", got[0].Path)
	assert.Equal(t, firestore.Increment(int64(1)), got[0].Value)
	assert.Equal(t, "queued", got[1].Value)
}

func TestJobPath(t *testing.T) {
	c := &Client{ProjectID: "p", Region: "us-central1"}
	assert.Equal(t, "projects/p/locations/us-central1/jobs/adshipper-worker", c.jobPath("adshipper-worker"))
}
