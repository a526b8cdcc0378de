package memory

import (
	"context"
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/mcoot/rankdir/internal/model"
	"github.com/mcoot/rankdir/internal/storage"
)

// QueryCache is an in-process query result cache
type QueryCache struct {
	cache *gocache.Cache
}

// Ensure QueryCache implements the interface
var _ storage.QueryCache = (*QueryCache)(nil)

// NewQueryCache creates a cache that purges expired entries every cleanupInterval
func NewQueryCache(cleanupInterval time.Duration) *QueryCache {
	return &QueryCache{cache: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (c *QueryCache) Get(_ context.Context, key string) (*model.QueryResult, bool, error) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	result := v.(model.QueryResult)
	result.Data = slices.Clone(result.Data)
	return &result, true, nil
}

func (c *QueryCache) Set(_ context.Context, key string, result model.QueryResult, ttl time.Duration) error {
	result.Data = slices.Clone(result.Data)
	c.cache.Set(key, result, ttl)
	return nil
}

// Len returns the number of cached entries, including expired ones not yet purged
func (c *QueryCache) Len() int {
	return c.cache.ItemCount()
}
