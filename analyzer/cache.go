package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"scorevera/tradeline"
)

const cacheKeyPrefix = "scorevera:analyzer:"

// kv is the subset of the go-redis client the cache uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Cache memoizes analyzer results in Redis keyed by the report's SHA-256.
// Concurrent requests for the same report share one upstream call. Redis
// failures degrade to a direct call.
type Cache struct {
	next   tradeline.Analyzer
	rdb    kv
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

func NewCache(next tradeline.Analyzer, rdb kv, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(pdf []byte) string {
	sum := sha256.Sum256(pdf)
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *Cache) Analyze(ctx context.Context, pdf []byte) ([]tradeline.Candidate, error) {
	if err := Check(pdf); err != nil {
		return nil, err
	}
	key := cacheKey(pdf)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var items []tradeline.Candidate
		if err := json.Unmarshal(raw, &items); err == nil {
			return items, nil
		}
		c.logger.Warn("analyzer cache entry corrupt", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("analyzer cache read failed", zap.Error(err))
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		items, err := c.next.Analyze(ctx, pdf)
		if err != nil {
			return nil, err
		}
		if encoded, err := json.Marshal(items); err == nil {
			if err := c.rdb.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
				c.logger.Warn("analyzer cache write failed", zap.Error(err))
			}
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	items, ok := v.([]tradeline.Candidate)
	if !ok {
		return nil, fmt.Errorf("analyzer: unexpected cached value %T", v)
	}
	return items, nil
}
