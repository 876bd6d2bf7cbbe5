package cache

import (
	"context"
	"fmt"
	"sync"

	"clinicbook/internal/models"
)

// SlotCache memoizes raw per-day slot lists and per-range heatmaps.
// Day entries hold the pre-lock-filter result so lock filtering never
// invalidates the expensive shift/blackout/booking computation. Entries
// must never be served across a key mismatch; keys carry the full
// parameter tuple.
type SlotCache interface {
	GetDay(ctx context.Context, key string) ([]models.Slot, bool)
	SetDay(ctx context.Context, key string, slots []models.Slot)
	GetHeatmap(ctx context.Context, key string) ([]models.DayHeatmapEntry, bool)
	SetHeatmap(ctx context.Context, key string, days []models.DayHeatmapEntry)
}

// DayKey builds the canonical cache key for a single-day slot request.
// staffID 0 means no staff filter; continuation is empty for plain
// requests. The token changes the effective slot duration, so it is
// part of the tuple.
func DayKey(serviceID, locationID int64, date string, staffID int64, twin bool, continuation string) string {
	return fmt.Sprintf("slots:day:%d:%d:%s:%d:%t:%s", serviceID, locationID, date, staffID, twin, continuation)
}

// RangeKey builds the canonical cache key for a range heatmap request.
func RangeKey(serviceID, locationID int64, start, end string, staffID int64) string {
	return fmt.Sprintf("slots:range:%d:%d:%s:%s:%d", serviceID, locationID, start, end, staffID)
}

// MemoryCache is the in-process SlotCache shared across requests. It
// tolerates concurrent get/set; a race that recomputes a key is fine,
// both writers store a valid result.
type MemoryCache struct {
	mu       sync.RWMutex
	days     map[string][]models.Slot
	heatmaps map[string][]models.DayHeatmapEntry
}

// NewMemoryCache constructs an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		days:     make(map[string][]models.Slot),
		heatmaps: make(map[string][]models.DayHeatmapEntry),
	}
}

func (c *MemoryCache) GetDay(_ context.Context, key string) ([]models.Slot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	slots, ok := c.days[key]
	if !ok {
		return nil, false
	}
	out := make([]models.Slot, len(slots))
	copy(out, slots)
	return out, true
}

func (c *MemoryCache) SetDay(_ context.Context, key string, slots []models.Slot) {
	stored := make([]models.Slot, len(slots))
	copy(stored, slots)
	c.mu.Lock()
	c.days[key] = stored
	c.mu.Unlock()
}

func (c *MemoryCache) GetHeatmap(_ context.Context, key string) ([]models.DayHeatmapEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	days, ok := c.heatmaps[key]
	if !ok {
		return nil, false
	}
	out := make([]models.DayHeatmapEntry, len(days))
	copy(out, days)
	return out, true
}

func (c *MemoryCache) SetHeatmap(_ context.Context, key string, days []models.DayHeatmapEntry) {
	stored := make([]models.DayHeatmapEntry, len(days))
	copy(stored, days)
	c.mu.Lock()
	c.heatmaps[key] = stored
	c.mu.Unlock()
}

// Reset drops all entries. Invalidation policy belongs to callers; this
// is the whole-cache hammer for data changes and tests.
func (c *MemoryCache) Reset() {
	c.mu.Lock()
	c.days = make(map[string][]models.Slot)
	c.heatmaps = make(map[string][]models.DayHeatmapEntry)
	c.mu.Unlock()
}
