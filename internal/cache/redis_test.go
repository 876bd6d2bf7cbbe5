package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicbook/internal/models"
)

func setupRedisCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisCache(rdb, ttl), mr
}

func TestRedisCacheDayRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := setupRedisCache(t, time.Minute)
	key := DayKey(1, 1, "2026-03-02", 0, false, "")

	_, ok := c.GetDay(ctx, key)
	assert.False(t, ok, "empty cache should miss")

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c.SetDay(ctx, key, []models.Slot{
		{ShiftID: 1, StaffID: 2, StartTime: start, EndTime: start.Add(30 * time.Minute)},
	})

	got, ok := c.GetDay(ctx, key)
	require.True(t, ok, "expected hit after set")
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ShiftID)
	assert.True(t, got[0].StartTime.Equal(start))
}

func TestRedisCacheEmptyDayIsAHit(t *testing.T) {
	ctx := context.Background()
	c, _ := setupRedisCache(t, time.Minute)
	key := DayKey(1, 1, "2026-03-02", 0, false, "")

	c.SetDay(ctx, key, nil)

	got, ok := c.GetDay(ctx, key)
	require.True(t, ok, "cached empty day should be a hit")
	assert.Empty(t, got)
}

func TestRedisCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisCache(t, 30*time.Second)
	key := DayKey(1, 1, "2026-03-02", 0, false, "")

	c.SetDay(ctx, key, []models.Slot{{ShiftID: 1}})
	_, ok := c.GetDay(ctx, key)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	_, ok = c.GetDay(ctx, key)
	assert.False(t, ok, "entry should expire after the TTL")
}

func TestRedisCacheHeatmapRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := setupRedisCache(t, time.Minute)
	key := RangeKey(1, 1, "2026-03-02", "2026-03-04", 0)

	c.SetHeatmap(ctx, key, []models.DayHeatmapEntry{
		{Date: "2026-03-02", AvailableSlots: 3},
		{Date: "2026-03-03", AvailableSlots: 0},
	})

	got, ok := c.GetHeatmap(ctx, key)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].AvailableSlots)
}

func TestRedisCacheDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisCache(t, time.Minute)
	key := DayKey(1, 1, "2026-03-02", 0, false, "")

	c.SetDay(ctx, key, []models.Slot{{ShiftID: 1}})
	mr.Close()

	// Backend down: reads miss instead of failing the request.
	_, ok := c.GetDay(ctx, key)
	assert.False(t, ok)

	// Writes are silently dropped.
	c.SetDay(ctx, key, []models.Slot{{ShiftID: 2}})
}

func TestRedisCacheDisabledTTL(t *testing.T) {
	ctx := context.Background()
	c, _ := setupRedisCache(t, 0)
	key := DayKey(1, 1, "2026-03-02", 0, false, "")

	c.SetDay(ctx, key, []models.Slot{{ShiftID: 1}})
	_, ok := c.GetDay(ctx, key)
	assert.False(t, ok, "zero TTL disables caching")
}

func TestRedisCacheCorruptEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisCache(t, time.Minute)
	key := DayKey(1, 1, "2026-03-02", 0, false, "")

	require.NoError(t, mr.Set(key, "not json"))

	_, ok := c.GetDay(ctx, key)
	assert.False(t, ok, "corrupt payload should degrade to a miss")
}
