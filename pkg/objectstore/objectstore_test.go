package objectstore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("https://signed.test")

	path, err := m.Upload(ctx, strings.NewReader("video"), "jobs/j1/4x5-a.mp4", UploadOptions{ContentType: "video/mp4"})
	require.NoError(t, err)
	assert.Equal(t, "mem://jobs/j1/4x5-a.mp4", path)

	rc, err := m.Read(ctx, path)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "video", string(data))

	url, err := m.SignedURL(ctx, path, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://signed.test/jobs/j1/4x5-a.mp4?ttl=3600", url)

	obj, ok := m.Get(path)
	require.True(t, ok)
	assert.Equal(t, "video/mp4", obj.ContentType)
}

func TestMemory_Missing(t *testing.T) {
	m := NewMemory("")
	_, err := m.Read(context.Background(), "mem://nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.SignedURL(context.Background(), "mem://nope", time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)
}
