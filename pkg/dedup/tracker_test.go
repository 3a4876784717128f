package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spawn-mcp/adshipper/pkg/logger"
)

func newTracker(t *testing.T) (*Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTracker(client, time.Hour, logger.NewNop()), mr
}

func TestTracker_MarkAndCheck(t *testing.T) {
	tr, mr := newTracker(t)
	ctx := context.Background()

	assert.False(t, tr.HasShipped(ctx, "camp-1", "row-1"))
	require.NoError(t, tr.MarkShipped(ctx, "camp-1", "row-1", "ad_9"))

	assert.True(t, tr.HasShipped(ctx, "camp-1", "row-1"))
	assert.False(t, tr.HasShipped(ctx, "camp-2", "row-1"))

	adID, err := tr.ShippedAdID(ctx, "camp-1", "row-1")
	require.NoError(t, err)
	assert.Equal(t, "ad_9", adID)

	mr.FastForward(2 * time.Hour)
	assert.False(t, tr.HasShipped(ctx, "camp-1", "row-1"))
}

func TestTracker_ClearAndFlush(t *testing.T) {
	tr, mr := newTracker(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("unrelated", "keep"))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, tr.MarkShipped(ctx, "g", id, "ad-"+id))
	}
	require.NoError(t, tr.Clear(ctx, "g", "a"))
	assert.False(t, tr.HasShipped(ctx, "g", "a"))

	n, err := tr.FlushAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("unrelated"))

	adID, err := tr.ShippedAdID(ctx, "g", "b")
	require.NoError(t, err)
	assert.Empty(t, adID)
}

func TestTracker_RedisDownReadsAsNotShipped(t *testing.T) {
	tr, mr := newTracker(t)
	mr.Close()

	assert.False(t, tr.HasShipped(context.Background(), "g", "row"))
	assert.Error(t, tr.MarkShipped(context.Background(), "g", "row", "ad"))
}
