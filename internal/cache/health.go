package cache

import (
	"context"
	"time"
)

// HealthStatus describes both cache layers.
type HealthStatus struct {
	Overall  string            `json:"overall"`
	Uptime   string            `json:"uptime"`
	LastTest time.Time         `json:"last_test"`
	Memory   MemoryCacheHealth `json:"memory"`
	Redis    RedisCacheHealth  `json:"redis"`
	Stats    CacheStats        `json:"stats"`
}

type MemoryCacheHealth struct {
	Enabled bool    `json:"enabled"`
	Status  string  `json:"status"`
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	UtilPct float64 `json:"util_pct"`
}

type RedisCacheHealth struct {
	Enabled   bool   `json:"enabled"`
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusDisabled  = "disabled"
	statusUnhealthy = "unhealthy"
)

// HealthCheck reports the state of the memory layer and pings Redis.
// A Redis outage degrades the cache rather than failing it.
func (hc *HybridCache) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Overall:  statusHealthy,
		Uptime:   time.Since(hc.started).Round(time.Second).String(),
		LastTest: time.Now(),
		Memory:   MemoryCacheHealth{Status: statusDisabled},
		Redis:    RedisCacheHealth{Status: statusDisabled},
		Stats:    hc.GetStats(),
	}

	if hc.memoryCache != nil {
		size := hc.memoryCache.size()
		status.Memory = MemoryCacheHealth{
			Enabled: true,
			Status:  statusHealthy,
			Size:    size,
			MaxSize: hc.memoryCache.maxSize,
			UtilPct: float64(size) / float64(hc.memoryCache.maxSize) * 100,
		}
	}

	if hc.redisCache != nil {
		status.Redis = RedisCacheHealth{Enabled: true, Status: statusHealthy, Connected: true}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := hc.redisCache.ping(pingCtx); err != nil {
			status.Redis.Status = statusUnhealthy
			status.Redis.Connected = false
			status.Redis.Error = err.Error()
			status.Overall = statusDegraded
		}
	}

	return status
}
