package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coocood/freecache"
	"github.com/golang/glog"
	"github.com/prebid/prebid-headertag/stored_profiles"
)

// NewCache returns an in-memory Cache for partner profile overrides.
//
// A size of zero or less makes the cache unbounded, in which case ttlSeconds is ignored.
// Otherwise entries are evicted LRU style and expire after ttlSeconds. A ttlSeconds of zero
// or less keeps them until eviction.
func NewCache(size int, ttlSeconds int) stored_profiles.Cache {
	if size <= 0 {
		return &unboundedCache{}
	}
	if ttlSeconds < 0 {
		ttlSeconds = 0
	}
	return &lruCache{
		lru:        freecache.NewCache(size),
		ttlSeconds: ttlSeconds,
	}
}

type lruCache struct {
	lru        *freecache.Cache
	ttlSeconds int
}

func (c *lruCache) Get(ctx context.Context, ids []string) map[string]json.RawMessage {
	data := make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		if buf, err := c.lru.Get([]byte(id)); err == nil {
			data[id] = buf
		}
	}
	return data
}

func (c *lruCache) Invalidate(ctx context.Context, ids []string) {
	for _, id := range ids {
		c.lru.Del([]byte(id))
	}
}

func (c *lruCache) Save(ctx context.Context, data map[string]json.RawMessage) {
	for id, value := range data {
		if err := c.lru.Set([]byte(id), value, c.ttlSeconds); err != nil {
			glog.Errorf("error saving stored profile %s to the in-memory cache: %v", id, err)
		}
	}
}

type unboundedCache struct {
	data sync.Map
}

func (c *unboundedCache) Get(ctx context.Context, ids []string) map[string]json.RawMessage {
	data := make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		if value, ok := c.data.Load(id); ok {
			data[id] = value.(json.RawMessage)
		}
	}
	return data
}

func (c *unboundedCache) Invalidate(ctx context.Context, ids []string) {
	for _, id := range ids {
		c.data.Delete(id)
	}
}

func (c *unboundedCache) Save(ctx context.Context, data map[string]json.RawMessage) {
	for id, value := range data {
		c.data.Store(id, value)
	}
}
