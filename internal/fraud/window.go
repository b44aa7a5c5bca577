// Package fraud counts clicks per viewer and creative in a trailing window.
// The counts feed an advisory heuristic; nothing here rejects a click.
package fraud

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// AnonymousPrefix marks keys derived from the remote address of an anonymous viewer.
const AnonymousPrefix = "anon:"

// Key returns the window key for a click: the user id, or the remote address
// when the viewer is anonymous.
func Key(userID, remoteAddr string) string {
	if userID != "" {
		return userID
	}
	if remoteAddr == "" {
		return ""
	}
	return AnonymousPrefix + remoteAddr
}

// RedisClickWindow keeps one sorted set per (key, creative) scored by click time.
type RedisClickWindow struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisClickWindow(client redis.UniversalClient, prefix string) *RedisClickWindow {
	if prefix == "" {
		prefix = "adserve"
	}
	return &RedisClickWindow{client: client, prefix: prefix}
}

func (w *RedisClickWindow) key(key, creativeID string) string {
	return fmt.Sprintf("%s:clicks:%s:%s", w.prefix, creativeID, key)
}

// Observe adds the click, trims entries older than the window and returns the
// number of clicks left in it.
func (w *RedisClickWindow) Observe(ctx context.Context, key, creativeID string, at time.Time, window time.Duration) (int, error) {
	if key == "" {
		return 0, nil
	}
	redisKey := w.key(key, creativeID)
	cutoff := strconv.FormatInt(at.Add(-window).UnixNano(), 10)

	pipe := w.client.TxPipeline()
	pipe.ZAdd(ctx, redisKey, &redis.Z{Score: float64(at.UnixNano()), Member: uuid.NewString()})
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", "("+cutoff)
	count := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("click window update failed: %w", err)
	}
	return int(count.Val()), nil
}

// ClickCounter is the part of the campaign store the fallback window reads.
type ClickCounter interface {
	CountClicks(ctx context.Context, userID, creativeID string, since time.Time) (int, error)
}

// StoreClickWindow derives the count from the recorded click events. It is
// meant to be observed after the click has been stored, so the count already
// includes it. Anonymous viewers are not attributable from stored events and
// always count zero.
type StoreClickWindow struct {
	counter ClickCounter
}

func NewStoreClickWindow(counter ClickCounter) *StoreClickWindow {
	return &StoreClickWindow{counter: counter}
}

func (w *StoreClickWindow) Observe(ctx context.Context, key, creativeID string, at time.Time, window time.Duration) (int, error) {
	if key == "" || strings.HasPrefix(key, AnonymousPrefix) {
		return 0, nil
	}
	return w.counter.CountClicks(ctx, key, creativeID, at.Add(-window))
}
