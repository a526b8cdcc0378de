package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/rankdir/internal/model"
	"github.com/mcoot/rankdir/internal/storage"
)

// QueryCache caches directory query results in Redis with SET ... EX
type QueryCache struct {
	client *redis.Client
}

// Ensure QueryCache implements the interface
var _ storage.QueryCache = (*QueryCache)(nil)

// NewQueryCache creates a cache on an existing client
func NewQueryCache(client *redis.Client) *QueryCache {
	return &QueryCache{client: client}
}

func (c *QueryCache) Get(ctx context.Context, key string) (*model.QueryResult, bool, error) {
	data, err := c.client.Get(ctx, queryCacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var result model.QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

func (c *QueryCache) Set(ctx context.Context, key string, result model.QueryResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, queryCacheKey(key), data, ttl).Err()
}
