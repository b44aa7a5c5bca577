package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prajwalbharadwajbm/adserve/internal/metrics"
	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

func memoryOnlyConfig() CacheConfig {
	return CacheConfig{
		DefaultTTL:      time.Minute,
		MemoryCacheSize: 100,
		EnableMemory:    true,
	}
}

func sampleAds(ids ...string) []models.AdView {
	ads := make([]models.AdView, 0, len(ids))
	for _, id := range ids {
		ads = append(ads, models.AdView{
			CreativeID:     id,
			CampaignID:     "campaign-" + id,
			Type:           models.AdTypeBanner,
			Title:          "Ad " + id,
			DestinationURL: "https://example.com/" + id,
		})
	}
	return ads
}

func newRedisBackedCache(t *testing.T, client redis.UniversalClient, memory bool) *HybridCache {
	t.Helper()
	hc, err := NewHybridCache(CacheConfig{
		DefaultTTL:      time.Minute,
		MemoryCacheSize: 100,
		EnableMemory:    memory,
		EnableRedis:     true,
	}, client, nil)
	require.NoError(t, err)
	t.Cleanup(hc.Close)
	return hc
}

func TestNewKey(t *testing.T) {
	req := models.SelectionRequest{
		Placement: "home",
		Type:      models.AdTypeBanner,
		Limit:     3,
		Category:  "music",
		Context: models.RequestContext{
			UserID:    "u1",
			Country:   "us",
			Interests: []string{"music", "sports"},
		},
	}
	key := NewKey(req)

	assert.True(t, strings.HasPrefix(key.String(), placementPrefix("home")))
	assert.Equal(t, "u1", key.UserID)

	t.Run("interest order does not matter", func(t *testing.T) {
		other := req
		other.Context.Interests = []string{"sports", "music"}
		assert.Equal(t, key, NewKey(other))
	})

	t.Run("viewer attributes change the hash", func(t *testing.T) {
		other := req
		other.Context.Country = "in"
		assert.NotEqual(t, key.ContextHash, NewKey(other).ContextHash)
	})
}

func TestHybridCache_MemoryOnly(t *testing.T) {
	hc, err := NewHybridCache(memoryOnlyConfig(), nil, nil)
	require.NoError(t, err)
	defer hc.Close()

	ctx := context.Background()
	key := Key{Placement: "home", Limit: 3}
	ads := sampleAds("a", "b")

	_, err = hc.GetAds(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, hc.SetAds(ctx, key, ads, time.Minute))

	cached, err := hc.GetAds(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, ads, cached)

	stats := hc.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRatio, 0.001)
}

func TestHybridCache_TTLExpiry(t *testing.T) {
	hc, err := NewHybridCache(memoryOnlyConfig(), nil, nil)
	require.NoError(t, err)
	defer hc.Close()

	ctx := context.Background()
	key := Key{Placement: "home", Limit: 1}
	require.NoError(t, hc.SetAds(ctx, key, sampleAds("a"), 50*time.Millisecond))

	_, err = hc.GetAds(ctx, key)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	_, err = hc.GetAds(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestHybridCache_InvalidatePlacements(t *testing.T) {
	hc, err := NewHybridCache(memoryOnlyConfig(), nil, nil)
	require.NoError(t, err)
	defer hc.Close()

	ctx := context.Background()
	home := Key{Placement: "home", Limit: 3}
	homeUser := Key{Placement: "home", Limit: 3, UserID: "u1"}
	sidebar := Key{Placement: "sidebar", Limit: 3}
	for _, k := range []Key{home, homeUser, sidebar} {
		require.NoError(t, hc.SetAds(ctx, k, sampleAds("a"), time.Minute))
	}

	require.NoError(t, hc.InvalidatePlacements(ctx, []string{"home"}))

	for _, k := range []Key{home, homeUser} {
		_, err := hc.GetAds(ctx, k)
		assert.ErrorIs(t, err, ErrCacheMiss, k.String())
	}
	_, err = hc.GetAds(ctx, sidebar)
	assert.NoError(t, err)

	t.Run("campaign placements match regardless of case", func(t *testing.T) {
		homepage := Key{Placement: "homepage", Limit: 2}
		require.NoError(t, hc.SetAds(ctx, homepage, sampleAds("b"), time.Minute))

		require.NoError(t, hc.InvalidatePlacements(ctx, []string{" Homepage"}))
		_, err := hc.GetAds(ctx, homepage)
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("empty list drops everything", func(t *testing.T) {
		require.NoError(t, hc.InvalidatePlacements(ctx, nil))
		_, err := hc.GetAds(ctx, sidebar)
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}

func TestMemoryCache_EvictsOverCapacity(t *testing.T) {
	mc := newMemoryCache(3, time.Minute)
	defer mc.close()

	for i := 0; i < 5; i++ {
		mc.set(fmt.Sprintf("k%d", i), sampleAds("a"), time.Duration(i+1)*time.Minute)
	}

	assert.Equal(t, 3, mc.size())
	// The longest-lived entries survive.
	_, ok := mc.get("k4")
	assert.True(t, ok)
	_, ok = mc.get("k0")
	assert.False(t, ok)
}

func TestHybridCache_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	hc := newRedisBackedCache(t, client, false)

	key := Key{Placement: "home", Limit: 2}
	ads := sampleAds("a", "b")
	require.NoError(t, hc.SetAds(ctx, key, ads, time.Minute))
	assert.True(t, mr.Exists("adserve:"+key.String()))

	cached, err := hc.GetAds(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, ads, cached)

	t.Run("empty results are cached", func(t *testing.T) {
		empty := Key{Placement: "footer", Limit: 2}
		require.NoError(t, hc.SetAds(ctx, empty, nil, time.Minute))
		cached, err := hc.GetAds(ctx, empty)
		require.NoError(t, err)
		assert.Empty(t, cached)
	})

	t.Run("invalidation removes only the placement", func(t *testing.T) {
		other := Key{Placement: "sidebar", Limit: 2}
		require.NoError(t, hc.SetAds(ctx, other, ads, time.Minute))

		require.NoError(t, hc.InvalidatePlacements(ctx, []string{"home"}))
		assert.False(t, mr.Exists("adserve:"+key.String()))
		assert.True(t, mr.Exists("adserve:"+other.String()))
	})

	t.Run("expiry", func(t *testing.T) {
		k := Key{Placement: "expiring", Limit: 1}
		require.NoError(t, hc.SetAds(ctx, k, ads, time.Second))
		mr.FastForward(2 * time.Second)
		_, err := hc.GetAds(ctx, k)
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}

func TestHybridCache_InvalidationFanOut(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writer := newRedisBackedCache(t, client, true)
	reader := newRedisBackedCache(t, client, true)
	writer.Start(ctx)
	reader.Start(ctx)

	channel := "adserve:cache:invalidate"
	require.Eventually(t, func() bool {
		subs, err := client.PubSubNumSub(ctx, channel).Result()
		return err == nil && subs[channel] == 2
	}, time.Second, 10*time.Millisecond)

	key := Key{Placement: "home", Limit: 1}
	require.NoError(t, writer.SetAds(ctx, key, sampleAds("a"), time.Minute))

	// Read through Redis so the reader's memory layer holds a copy.
	_, err := reader.GetAds(ctx, key)
	require.NoError(t, err)
	_, ok := reader.memoryCache.get(key.String())
	require.True(t, ok)

	require.NoError(t, writer.InvalidatePlacements(ctx, []string{"home"}))

	assert.Eventually(t, func() bool {
		_, ok := reader.memoryCache.get(key.String())
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestHybridCache_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	ctx := context.Background()
	hc := newRedisBackedCache(t, client, true)
	mr.Close()

	key := Key{Placement: "home", Limit: 1}
	_, err := hc.GetAds(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, int64(1), hc.GetStats().Errors)

	assert.Error(t, hc.SetAds(ctx, key, sampleAds("a"), time.Minute))
	assert.Error(t, hc.InvalidatePlacements(ctx, []string{"home"}))

	health := hc.HealthCheck(ctx)
	assert.Equal(t, statusDegraded, health.Overall)
	assert.False(t, health.Redis.Connected)
	assert.True(t, health.Memory.Enabled)
}

func TestNewHybridCache_RedisWithoutClient(t *testing.T) {
	_, err := NewHybridCache(CacheConfig{EnableRedis: true}, nil, nil)
	assert.Error(t, err)
}

type mockSelector struct {
	mock.Mock
}

func (m *mockSelector) SelectAds(ctx context.Context, req models.SelectionRequest) ([]models.AdView, error) {
	args := m.Called(ctx, req)
	ads, _ := args.Get(0).([]models.AdView)
	return ads, args.Error(1)
}

func TestCachedSelector(t *testing.T) {
	hc, err := NewHybridCache(memoryOnlyConfig(), nil, nil)
	require.NoError(t, err)
	defer hc.Close()

	m := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	next := &mockSelector{}
	selector := NewCachedSelector(next, hc, time.Minute, m, nil)

	ctx := context.Background()
	req := models.SelectionRequest{Placement: "home", Limit: 2}
	ads := sampleAds("a", "b")
	next.On("SelectAds", mock.Anything, req).Return(ads, nil).Once()

	first, err := selector.SelectAds(ctx, req)
	require.NoError(t, err)
	second, err := selector.SelectAds(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, ads, first)
	assert.Equal(t, ads, second)
	next.AssertNumberOfCalls(t, "SelectAds", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))

	t.Run("invalidation forces a fresh selection", func(t *testing.T) {
		fresh := sampleAds("c")
		next.On("SelectAds", mock.Anything, req).Return(fresh, nil).Once()

		require.NoError(t, selector.InvalidatePlacements(ctx, []string{"home"}))
		got, err := selector.SelectAds(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, fresh, got)
	})

	t.Run("selection errors are not cached", func(t *testing.T) {
		failing := models.SelectionRequest{Placement: "sidebar", Limit: 1}
		next.On("SelectAds", mock.Anything, failing).Return(nil, errors.New("store down")).Once()
		next.On("SelectAds", mock.Anything, failing).Return(ads, nil).Once()

		_, err := selector.SelectAds(ctx, failing)
		assert.Error(t, err)
		got, err := selector.SelectAds(ctx, failing)
		require.NoError(t, err)
		assert.Equal(t, ads, got)
	})
}

func BenchmarkHybridCache_MemoryHit(b *testing.B) {
	hc, _ := NewHybridCache(memoryOnlyConfig(), nil, nil)
	defer hc.Close()

	ctx := context.Background()
	key := Key{Placement: "home", Limit: 3}
	_ = hc.SetAds(ctx, key, sampleAds("a", "b", "c"), time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = hc.GetAds(ctx, key)
	}
}
