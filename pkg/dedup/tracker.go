// Package dedup remembers which rows already shipped an ad so they are not
// queued again.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spawn-mcp/adshipper/pkg/logger"
)

const keyPrefix = "shipped:row:"

type Tracker struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewTracker(client *redis.Client, ttl time.Duration, log logger.Logger) *Tracker {
	return &Tracker{
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

func (t *Tracker) key(groupID, rowID string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, groupID, rowID)
}

// HasShipped reports whether rowID already shipped in groupID. Redis errors
// read as not shipped.
func (t *Tracker) HasShipped(ctx context.Context, groupID, rowID string) bool {
	key := t.key(groupID, rowID)

	exists, err := t.client.Exists(ctx, key).Result()
	if err != nil {
		t.logger.Error("Redis error checking row",
			logger.String("row_id", rowID),
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return false
	}

	shipped := exists == 1
	t.logger.Debug("Checked shipped row",
		logger.String("row_id", rowID),
		logger.String("redis_key", key),
		logger.Bool("shipped", shipped),
	)
	return shipped
}

// ShippedAdID returns the ad recorded for the row, or "" when none is.
func (t *Tracker) ShippedAdID(ctx context.Context, groupID, rowID string) (string, error) {
	adID, err := t.client.Get(ctx, t.key(groupID, rowID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get shipped row: %w", err)
	}
	return adID, nil
}

func (t *Tracker) MarkShipped(ctx context.Context, groupID, rowID, adID string) error {
	key := t.key(groupID, rowID)

	if err := t.client.Set(ctx, key, adID, t.ttl).Err(); err != nil {
		t.logger.Error("Redis error marking row as shipped",
			logger.String("row_id", rowID),
			logger.String("redis_key", key),
			logger.Duration("ttl", t.ttl),
			logger.Error(err),
		)
		return err
	}

	t.logger.Debug("Row marked as shipped",
		logger.String("row_id", rowID),
		logger.String("ad_id", adID),
	)
	return nil
}

func (t *Tracker) Clear(ctx context.Context, groupID, rowID string) error {
	key := t.key(groupID, rowID)
	if err := t.client.Del(ctx, key).Err(); err != nil {
		t.logger.Error("Redis error clearing row",
			logger.String("row_id", rowID),
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return err
	}
	return nil
}

// FlushAll removes every shipped-row key, leaving the rest of the database.
func (t *Tracker) FlushAll(ctx context.Context) (int, error) {
	const scanBatchSize = 100
	pattern := keyPrefix + "*"
	var cursor uint64
	deletedCount := 0

	for {
		keys, next, err := t.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return deletedCount, fmt.Errorf("scan keys: %w", err)
		}
		if len(keys) > 0 {
			deleted, err := t.client.Del(ctx, keys...).Result()
			if err != nil {
				return deletedCount, fmt.Errorf("delete keys: %w", err)
			}
			deletedCount += int(deleted)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	t.logger.Info("Flushed shipped rows",
		logger.Int("keys_deleted", deletedCount),
		logger.String("pattern", pattern),
	)
	return deletedCount, nil
}
