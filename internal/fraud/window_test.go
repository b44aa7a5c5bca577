package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWindow(t *testing.T) (*RedisClickWindow, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisClickWindow(client, "test"), mr
}

func TestKey(t *testing.T) {
	assert.Equal(t, "user-1", Key("user-1", "10.0.0.1"))
	assert.Equal(t, "anon:10.0.0.1", Key("", "10.0.0.1"))
	assert.Equal(t, "", Key("", ""))
}

func TestRedisClickWindow_CountsWithinWindow(t *testing.T) {
	w, _ := newTestWindow(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		n, err := w.Observe(ctx, "user-1", "cr-1", base.Add(time.Duration(i)*time.Minute), time.Hour)
		require.NoError(t, err)
		assert.Equal(t, i+1, n)
	}

	// A different creative has its own window.
	n, err := w.Observe(ctx, "user-1", "cr-2", base, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRedisClickWindow_DropsExpiredClicks(t *testing.T) {
	w, _ := newTestWindow(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := w.Observe(ctx, "user-1", "cr-1", base, time.Hour)
	require.NoError(t, err)
	_, err = w.Observe(ctx, "user-1", "cr-1", base.Add(10*time.Minute), time.Hour)
	require.NoError(t, err)

	n, err := w.Observe(ctx, "user-1", "cr-1", base.Add(65*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRedisClickWindow_RedisDown(t *testing.T) {
	w, mr := newTestWindow(t)
	mr.Close()

	_, err := w.Observe(context.Background(), "user-1", "cr-1", time.Now(), time.Hour)
	assert.Error(t, err)
}

type counterFunc func(ctx context.Context, userID, creativeID string, since time.Time) (int, error)

func (f counterFunc) CountClicks(ctx context.Context, userID, creativeID string, since time.Time) (int, error) {
	return f(ctx, userID, creativeID, since)
}

func TestStoreClickWindow(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotSince time.Time
	w := NewStoreClickWindow(counterFunc(func(_ context.Context, userID, creativeID string, since time.Time) (int, error) {
		gotSince = since
		if userID == "broken" {
			return 0, errors.New("db down")
		}
		return 7, nil
	}))

	n, err := w.Observe(context.Background(), "user-1", "cr-1", at, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, at.Add(-time.Hour), gotSince)

	n, err = w.Observe(context.Background(), "anon:10.0.0.1", "cr-1", at, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = w.Observe(context.Background(), "broken", "cr-1", at, time.Hour)
	assert.Error(t, err)
}
