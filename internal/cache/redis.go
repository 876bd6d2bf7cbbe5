package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"clinicbook/internal/models"
)

// RedisCache is a SlotCache backed by Redis with a TTL per entry.
// Read and write failures degrade to cache misses; availability requests
// never fail because the cache is down.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) GetDay(ctx context.Context, key string) ([]models.Slot, bool) {
	var slots []models.Slot
	if !c.read(ctx, key, &slots) {
		return nil, false
	}
	return slots, true
}

func (c *RedisCache) SetDay(ctx context.Context, key string, slots []models.Slot) {
	if slots == nil {
		slots = []models.Slot{}
	}
	c.write(ctx, key, slots)
}

func (c *RedisCache) GetHeatmap(ctx context.Context, key string) ([]models.DayHeatmapEntry, bool) {
	var days []models.DayHeatmapEntry
	if !c.read(ctx, key, &days) {
		return nil, false
	}
	return days, true
}

func (c *RedisCache) SetHeatmap(ctx context.Context, key string, days []models.DayHeatmapEntry) {
	if days == nil {
		days = []models.DayHeatmapEntry{}
	}
	c.write(ctx, key, days)
}

func (c *RedisCache) read(ctx context.Context, key string, out any) bool {
	if c.rdb == nil || c.ttl <= 0 {
		return false
	}
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *RedisCache) write(ctx context.Context, key string, val any) {
	if c.rdb == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, key, data, c.ttl).Err()
}
