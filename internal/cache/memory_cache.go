package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// cacheItem represents a cached result with expiration
type cacheItem struct {
	ads       []models.AdView
	expiresAt time.Time
}

// isExpired checks if the cache item has expired
func (ci *cacheItem) isExpired() bool {
	return time.Now().After(ci.expiresAt)
}

// memoryCache implements in-memory caching with TTL
type memoryCache struct {
	items    map[string]*cacheItem
	mu       sync.RWMutex
	maxSize  int
	stopChan chan struct{}
	stopOnce sync.Once
}

// newMemoryCache creates a new in-memory cache
func newMemoryCache(maxSize int, cleanupInterval time.Duration) *memoryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	mc := &memoryCache{
		items:    make(map[string]*cacheItem),
		maxSize:  maxSize,
		stopChan: make(chan struct{}),
	}

	// Start cleanup goroutine
	go mc.cleanup(cleanupInterval)

	return mc
}

func (mc *memoryCache) get(key string) ([]models.AdView, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	item, exists := mc.items[key]
	if !exists || item.isExpired() {
		return nil, false
	}
	return item.ads, true
}

func (mc *memoryCache) set(key string, ads []models.AdView, ttl time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.items[key] = &cacheItem{
		ads:       ads,
		expiresAt: time.Now().Add(ttl),
	}

	// Check if we need to evict items
	mc.evictIfNeeded()
}

// invalidatePlacements drops every key of the placements; nil drops all.
func (mc *memoryCache) invalidatePlacements(placements []string) {
	if len(placements) == 0 {
		mc.clear()
		return
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, p := range placements {
		prefix := placementPrefix(p)
		for key := range mc.items {
			if strings.HasPrefix(key, prefix) {
				delete(mc.items, key)
			}
		}
	}
}

// clear removes all items from memory cache
func (mc *memoryCache) clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.items = make(map[string]*cacheItem)
}

// evictIfNeeded removes expired items and enforces max size
func (mc *memoryCache) evictIfNeeded() {
	if len(mc.items) <= mc.maxSize {
		return
	}

	// Remove expired items first
	for key, item := range mc.items {
		if item.isExpired() {
			delete(mc.items, key)
		}
	}

	// Still over: drop the entries closest to expiry
	for len(mc.items) > mc.maxSize {
		var oldest string
		var oldestAt time.Time
		for key, item := range mc.items {
			if oldest == "" || item.expiresAt.Before(oldestAt) {
				oldest, oldestAt = key, item.expiresAt
			}
		}
		delete(mc.items, oldest)
	}
}

// cleanup periodically removes expired items
func (mc *memoryCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.mu.Lock()
			for key, item := range mc.items {
				if item.isExpired() {
					delete(mc.items, key)
				}
			}
			mc.mu.Unlock()
		case <-mc.stopChan:
			return
		}
	}
}

// close stops the cleanup goroutine
func (mc *memoryCache) close() {
	mc.stopOnce.Do(func() { close(mc.stopChan) })
}

// size returns the current number of items in cache
func (mc *memoryCache) size() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.items)
}
