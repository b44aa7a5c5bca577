package config

import (
	"os"
	"strconv"
	"time"

	"github.com/prajwalbharadwajbm/adserve/internal/cache"
)

// RedisConfig is shared by the result cache, the click window and the sweep lock.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// GetRedisConfig creates Redis configuration from environment variables
func GetRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  getBoolEnv("REDIS_ENABLED", false),
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
		Prefix:   getEnv("REDIS_KEY_PREFIX", "adserve"),
	}
}

// GetCacheConfig creates cache configuration from environment variables.
// The Redis layer is only enabled when Redis itself is.
func GetCacheConfig() cache.CacheConfig {
	redisCfg := GetRedisConfig()
	return cache.CacheConfig{
		DefaultTTL:      getDurationEnv("CACHE_DEFAULT_TTL", 2*time.Minute),
		MemoryCacheSize: getEnvInt("CACHE_MEMORY_SIZE", 1000),
		EnableMemory:    getBoolEnv("CACHE_ENABLE_MEMORY", true),
		EnableRedis:     redisCfg.Enabled && getBoolEnv("CACHE_ENABLE_REDIS", true),
		CleanupInterval: getDurationEnv("CACHE_CLEANUP_INTERVAL", 5*time.Minute),
		KeyPrefix:       redisCfg.Prefix,
	}
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
