package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cheildo/nexus-clash-connect/internal/qos"
)

// RankingCache stores the latest successful region ranking so consecutive
// matches do not each pay for a full probe round.
type RankingCache interface {
	Get(ctx context.Context) (qos.RankedResult, bool, error)
	Put(ctx context.Context, ranked qos.RankedResult) error
}

type redisRankingCache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRankingCache(rdb *redis.Client, key string, ttl time.Duration) RankingCache {
	return &redisRankingCache{rdb: rdb, key: key, ttl: ttl}
}

// Get returns the cached ranking. A miss is not an error.
func (c *redisRankingCache) Get(ctx context.Context) (qos.RankedResult, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return qos.RankedResult{}, false, nil
	}
	if err != nil {
		slog.Error("Failed to read ranking from Redis", "key", c.key, "error", err)
		return qos.RankedResult{}, false, err
	}

	var ranked qos.RankedResult
	if err := json.Unmarshal(raw, &ranked); err != nil {
		slog.Warn("Discarding unreadable cached ranking", "key", c.key, "error", err)
		return qos.RankedResult{}, false, nil
	}
	return ranked, true, nil
}

// Put caches a ranking. Rankings without a usable region are never cached.
func (c *redisRankingCache) Put(ctx context.Context, ranked qos.RankedResult) error {
	if ranked.ErrorCode != qos.Success {
		return nil
	}
	raw, err := json.Marshal(ranked)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		slog.Error("Failed to cache ranking in Redis", "key", c.key, "error", err)
		return err
	}
	return nil
}
