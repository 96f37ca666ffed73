package tenant

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/menu_backend/config"
	"bitbucket.org/mmdatafocus/menu_backend/models"
)

// RedisCache stores resolved businesses in the shared Redis connection. When Redis is not
// connected every read is a miss and writes are dropped.
type RedisCache struct {
	TTL time.Duration
}

func NewRedisCache(ttl time.Duration) *RedisCache {
	return &RedisCache{TTL: ttl}
}

func (c *RedisCache) Get(_ context.Context, key string) (*models.Business, bool, error) {
	var business models.Business
	exists, err := config.GetRedisObject(key, &business)
	if err != nil || !exists {
		return nil, false, err
	}
	return &business, true, nil
}

func (c *RedisCache) Set(_ context.Context, key string, business *models.Business) error {
	if c.TTL <= 0 {
		return nil
	}
	return config.SetRedisObject(key, business, c.TTL)
}
