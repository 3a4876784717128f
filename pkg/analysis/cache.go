// Package analysis memoizes video analyses by staged storage path.
package analysis

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/spawn-mcp/adshipper/pkg/docstore"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

// DefaultTTL is used when a Cache is built with a non-positive TTL.
const DefaultTTL = 7 * 24 * time.Hour

// Cache is a TTL cache over a document store. Every failure is logged and
// swallowed; a degraded backend only means more misses.
type Cache struct {
	store      docstore.Store
	collection string
	ttl        time.Duration
	now        func() time.Time
	log        logger.Logger
	recorder   Recorder
}

// Recorder observes cache outcomes.
type Recorder interface {
	CacheHit()
	CacheMiss()
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithRecorder attaches a hit/miss recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Cache) { c.recorder = r }
}

// NewCache creates a cache over collection.
func NewCache(store docstore.Store, collection string, ttl time.Duration, log logger.Logger, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		store:      store,
		collection: collection,
		ttl:        ttl,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key derives the document ID for a staged path. Paths are escaped because
// document IDs may not contain '/'.
func Key(stagedPath string) string {
	return url.PathEscape(stagedPath)
}

// Get returns the live entry for key. Expired entries read as absent and are
// deleted. A hit increments HitCount.
func (c *Cache) Get(ctx context.Context, key string) (*types.AnalysisCacheEntry, bool) {
	var entry types.AnalysisCacheEntry
	if err := c.store.Get(ctx, c.collection, key, &entry); err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			c.log.Warn("Analysis cache read failed", logger.String("key", key), logger.Error(err))
		}
		c.miss()
		return nil, false
	}

	now := c.now()
	if entry.Expired(now) {
		if err := c.store.BatchDelete(ctx, []docstore.Ref{{Collection: c.collection, Key: key}}); err != nil {
			c.log.Warn("Failed to delete expired analysis", logger.String("key", key), logger.Error(err))
		}
		c.miss()
		return nil, false
	}

	err := c.store.Update(ctx, c.collection, key, []docstore.Update{
		{Path: "hitCount", Value: docstore.Increment(1)},
		{Path: "updatedAt", Value: now},
	})
	if err != nil {
		c.log.Warn("Failed to record analysis cache hit", logger.String("key", key), logger.Error(err))
	} else {
		entry.HitCount++
		entry.UpdatedAt = now
	}
	c.hit()
	return &entry, true
}

// Put stores analysis under key with ExpiresAt = now + TTL.
func (c *Cache) Put(ctx context.Context, key, rowID string, analysis types.VideoAnalysis, stagedPath string) {
	now := c.now()
	entry := types.AnalysisCacheEntry{
		Key:        key,
		RowID:      rowID,
		Analysis:   analysis,
		StagedPath: stagedPath,
		ExpiresAt:  now.Add(c.ttl),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.store.Set(ctx, c.collection, key, entry); err != nil {
		c.log.Warn("Analysis cache write failed", logger.String("key", key), logger.Error(err))
	}
}

// Sweep deletes every entry that expired before now and returns how many
// were removed.
func (c *Cache) Sweep(ctx context.Context, now time.Time) (int, error) {
	docs, err := c.store.Query(ctx, c.collection, docstore.Filter{Field: "expiresAt", Op: "<", Value: now})
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	refs := make([]docstore.Ref, 0, len(docs))
	for _, d := range docs {
		refs = append(refs, docstore.Ref{Collection: c.collection, Key: d.ID})
	}
	if err := c.store.BatchDelete(ctx, refs); err != nil {
		return 0, err
	}
	c.log.Info("Swept expired analyses", logger.Int("count", len(refs)))
	return len(refs), nil
}

func (c *Cache) hit() {
	if c.recorder != nil {
		c.recorder.CacheHit()
	}
}

func (c *Cache) miss() {
	if c.recorder != nil {
		c.recorder.CacheMiss()
	}
}
