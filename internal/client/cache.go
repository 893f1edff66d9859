package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v9"

	"ticketwatch/internal/model"
)

const cacheKeyPrefix = "TWE-"

// CachedCatalog serves Get from Redis for TTL. Redis failures are logged and the
// underlying catalog is queried instead.
type CachedCatalog struct {
	Catalog
	Redis  *redis.Client
	TTL    time.Duration
	Logger logger
}

func NewCachedCatalog(c Catalog, rdb *redis.Client, ttl time.Duration, l logger) *CachedCatalog {
	return &CachedCatalog{Catalog: c, Redis: rdb, TTL: ttl, Logger: l}
}

func (c *CachedCatalog) Get(ctx context.Context, eventID string) (model.Event, error) {
	cacheKey := cacheKeyPrefix + eventID
	cached, err := c.Redis.Get(ctx, cacheKey).Result()
	if err == nil {
		var e model.Event
		if err = json.Unmarshal([]byte(cached), &e); err == nil {
			c.Logger.Debugf("Get: cache found, key: %s", cacheKey)
			return e, nil
		}
		c.Logger.Errorf("Get: error unmarshalling cache, key: %s, err: %v", cacheKey, err)
	} else if err != redis.Nil {
		c.Logger.Errorf("Get: error getting Redis cache with key: %s, err: %v", cacheKey, err)
	}

	e, err := c.Catalog.Get(ctx, eventID)
	if err != nil {
		return e, err
	}

	if eJSON, err := json.Marshal(e); err != nil {
		c.Logger.Errorf("Get: error marshalling Event to cache, key: %s, err: %v", cacheKey, err)
	} else if err = c.Redis.Set(ctx, cacheKey, eJSON, c.TTL).Err(); err != nil {
		c.Logger.Errorf("Get: error caching Event, key: %s, err: %v", cacheKey, err)
	}
	return e, nil
}
