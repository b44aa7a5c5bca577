package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

const scanBatch = 100

// redisCache implements Redis-based caching
type redisCache struct {
	client redis.UniversalClient
	prefix string
}

// newRedisCache wraps a connected client, failing fast when Redis is unreachable
func newRedisCache(client redis.UniversalClient, prefix string) (*redisCache, error) {
	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisCache{
		client: client,
		prefix: prefix,
	}, nil
}

func (rc *redisCache) key(k string) string {
	return rc.prefix + ":" + k
}

func (rc *redisCache) channel() string {
	return rc.prefix + ":cache:invalidate"
}

// get returns the cached results and the remaining TTL of the key.
func (rc *redisCache) get(ctx context.Context, k string) ([]models.AdView, time.Duration, error) {
	pipe := rc.client.Pipeline()
	getCmd := pipe.Get(ctx, rc.key(k))
	ttlCmd := pipe.PTTL(ctx, rc.key(k))
	_, _ = pipe.Exec(ctx)

	data, err := getCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, ErrCacheMiss
		}
		return nil, 0, fmt.Errorf("Redis get error: %w", err)
	}

	var ads []models.AdView
	if err := json.Unmarshal(data, &ads); err != nil {
		return nil, 0, fmt.Errorf("JSON unmarshal error: %w", err)
	}
	return ads, ttlCmd.Val(), nil
}

func (rc *redisCache) set(ctx context.Context, k string, ads []models.AdView, ttl time.Duration) error {
	if ads == nil {
		ads = []models.AdView{}
	}
	data, err := json.Marshal(ads)
	if err != nil {
		return fmt.Errorf("JSON marshal error: %w", err)
	}

	if err := rc.client.Set(ctx, rc.key(k), data, ttl).Err(); err != nil {
		return fmt.Errorf("Redis set error: %w", err)
	}
	return nil
}

// deletePrefix removes every key under prefix. SCAN keeps Redis responsive
// where KEYS would block it.
func (rc *redisCache) deletePrefix(ctx context.Context, prefix string) error {
	pattern := escapeGlob(rc.key(prefix)) + "*"

	var cursor uint64
	for {
		keys, next, err := rc.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("Redis scan error: %w", err)
		}
		if len(keys) > 0 {
			if err := rc.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("Redis delete error: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// publishInvalidation announces dropped placements; an empty list means all.
func (rc *redisCache) publishInvalidation(ctx context.Context, placements []string) error {
	if placements == nil {
		placements = []string{}
	}
	payload, err := json.Marshal(placements)
	if err != nil {
		return err
	}
	return rc.client.Publish(ctx, rc.channel(), payload).Err()
}

// subscribeInvalidation delivers invalidation events to handler until ctx is done.
func (rc *redisCache) subscribeInvalidation(ctx context.Context, handler func([]string)) error {
	pubsub := rc.client.Subscribe(ctx, rc.channel())
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reading messages
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("Redis subscribe error: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var placements []string
			if err := json.Unmarshal([]byte(msg.Payload), &placements); err != nil {
				continue
			}
			handler(placements)
		}
	}
}

func (rc *redisCache) ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
