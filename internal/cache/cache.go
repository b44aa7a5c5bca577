package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-redis/redis/v8"

	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// Cache stores ad selection results under structured keys.
type Cache interface {
	GetAds(ctx context.Context, key Key) ([]models.AdView, error)
	SetAds(ctx context.Context, key Key, ads []models.AdView, ttl time.Duration) error

	// InvalidatePlacements drops every result for the given placements;
	// an empty list drops everything.
	InvalidatePlacements(ctx context.Context, placements []string) error
	InvalidateAll(ctx context.Context) error

	GetStats() CacheStats
	HealthCheck(ctx context.Context) HealthStatus
}

// CacheStats holds cache performance statistics
type CacheStats struct {
	Hits        int64
	Misses      int64
	Errors      int64
	HitRatio    float64
	TotalOps    int64
	LastUpdated time.Time
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	DefaultTTL      time.Duration
	MemoryCacheSize int
	EnableMemory    bool
	EnableRedis     bool
	CleanupInterval time.Duration
	KeyPrefix       string
}

// HybridCache keeps results in process memory in front of Redis. Redis is
// shared by all instances; invalidations are also broadcast over a Redis
// channel so every instance drops its memory copy.
type HybridCache struct {
	// In-memory cache for ultra-fast access
	memoryCache *memoryCache
	// Redis cache for shared state
	redisCache *redisCache
	config     CacheConfig
	logger     log.Logger
	started    time.Time

	stats CacheStats
	mu    sync.RWMutex
}

// NewHybridCache creates a new hybrid cache. client is required when Redis is enabled.
func NewHybridCache(config CacheConfig, client redis.UniversalClient, logger log.Logger) (*HybridCache, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "adserve"
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	hc := &HybridCache{
		config:  config,
		logger:  log.With(logger, "component", "result_cache"),
		started: time.Now(),
		stats: CacheStats{
			LastUpdated: time.Now(),
		},
	}

	if config.EnableMemory {
		hc.memoryCache = newMemoryCache(config.MemoryCacheSize, config.CleanupInterval)
	}

	if config.EnableRedis {
		if client == nil {
			return nil, errors.New("redis cache enabled without a client")
		}
		var err error
		hc.redisCache, err = newRedisCache(client, config.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis cache: %w", err)
		}
	}

	return hc, nil
}

// Start listens for invalidations published by other instances until ctx is
// done. It is a no-op unless both layers are enabled.
func (hc *HybridCache) Start(ctx context.Context) {
	if hc.redisCache == nil || hc.memoryCache == nil {
		return
	}
	go func() {
		err := hc.redisCache.subscribeInvalidation(ctx, func(placements []string) {
			hc.memoryCache.invalidatePlacements(placements)
		})
		if err != nil && ctx.Err() == nil {
			level.Error(hc.logger).Log("msg", "cache invalidation subscription ended", "err", err)
		}
	}()
}

// Close stops background work. The Redis client is owned by the caller.
func (hc *HybridCache) Close() {
	if hc.memoryCache != nil {
		hc.memoryCache.close()
	}
}

// GetAds retrieves results from cache (memory first, then Redis, then miss)
func (hc *HybridCache) GetAds(ctx context.Context, key Key) ([]models.AdView, error) {
	k := key.String()

	if hc.memoryCache != nil {
		if ads, found := hc.memoryCache.get(k); found {
			hc.recordHit()
			return ads, nil
		}
	}

	if hc.redisCache != nil {
		ads, ttl, err := hc.redisCache.get(ctx, k)
		switch {
		case err == nil:
			hc.recordHit()
			// Warm memory cache for what is left of the Redis TTL
			if hc.memoryCache != nil && ttl > 0 {
				hc.memoryCache.set(k, ads, ttl)
			}
			return ads, nil
		case !errors.Is(err, ErrCacheMiss):
			hc.recordError()
			level.Warn(hc.logger).Log("msg", "redis cache read failed", "key", k, "err", err)
		}
	}

	hc.recordMiss()
	return nil, ErrCacheMiss
}

// SetAds stores results in both caches
func (hc *HybridCache) SetAds(ctx context.Context, key Key, ads []models.AdView, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = hc.config.DefaultTTL
	}
	k := key.String()

	if hc.memoryCache != nil {
		hc.memoryCache.set(k, ads, ttl)
	}

	if hc.redisCache != nil {
		if err := hc.redisCache.set(ctx, k, ads, ttl); err != nil {
			hc.recordError()
			return fmt.Errorf("cache store error: %w", err)
		}
	}
	return nil
}

// InvalidatePlacements drops cached results for the placements locally and in
// Redis, then tells the other instances to do the same.
func (hc *HybridCache) InvalidatePlacements(ctx context.Context, placements []string) error {
	if len(placements) == 0 {
		return hc.InvalidateAll(ctx)
	}

	if hc.memoryCache != nil {
		hc.memoryCache.invalidatePlacements(placements)
	}

	if hc.redisCache != nil {
		var errs []error
		for _, p := range placements {
			if err := hc.redisCache.deletePrefix(ctx, placementPrefix(p)); err != nil {
				errs = append(errs, err)
			}
		}
		if err := hc.redisCache.publishInvalidation(ctx, placements); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			hc.recordError()
			return fmt.Errorf("cache invalidation errors: %w", errors.Join(errs...))
		}
	}
	return nil
}

// InvalidateAll clears all caches
func (hc *HybridCache) InvalidateAll(ctx context.Context) error {
	if hc.memoryCache != nil {
		hc.memoryCache.clear()
	}

	if hc.redisCache != nil {
		var errs []error
		if err := hc.redisCache.deletePrefix(ctx, keyNamespace); err != nil {
			errs = append(errs, err)
		}
		if err := hc.redisCache.publishInvalidation(ctx, nil); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			hc.recordError()
			return fmt.Errorf("cache invalidation errors: %w", errors.Join(errs...))
		}
	}
	return nil
}

// GetStats returns cache statistics
func (hc *HybridCache) GetStats() CacheStats {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	stats := hc.stats
	if stats.TotalOps > 0 {
		stats.HitRatio = float64(stats.Hits) / float64(stats.TotalOps)
	}
	return stats
}

// Helper methods for statistics
func (hc *HybridCache) recordHit() {
	hc.mu.Lock()
	hc.stats.Hits++
	hc.stats.TotalOps++
	hc.stats.LastUpdated = time.Now()
	hc.mu.Unlock()
}

func (hc *HybridCache) recordMiss() {
	hc.mu.Lock()
	hc.stats.Misses++
	hc.stats.TotalOps++
	hc.stats.LastUpdated = time.Now()
	hc.mu.Unlock()
}

func (hc *HybridCache) recordError() {
	hc.mu.Lock()
	hc.stats.Errors++
	hc.mu.Unlock()
}

// Custom errors
var (
	ErrCacheMiss = errors.New("cache miss")
)
