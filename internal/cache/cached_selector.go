package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/prajwalbharadwajbm/adserve/internal/metrics"
	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// Selector produces ad results for a normalized request.
type Selector interface {
	SelectAds(ctx context.Context, req models.SelectionRequest) ([]models.AdView, error)
}

// CachedSelector serves repeated selections from the cache. Any change that
// can alter what a placement serves must go through InvalidatePlacements.
type CachedSelector struct {
	next    Selector
	cache   Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  log.Logger
}

// NewCachedSelector creates a caching decorator around next
func NewCachedSelector(next Selector, cache Cache, ttl time.Duration, metrics *metrics.Metrics, logger log.Logger) *CachedSelector {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &CachedSelector{
		next:    next,
		cache:   cache,
		ttl:     ttl,
		metrics: metrics,
		logger:  log.With(logger, "component", "cached_selector"),
	}
}

// SelectAds returns cached results when present, otherwise selects and caches.
func (s *CachedSelector) SelectAds(ctx context.Context, req models.SelectionRequest) ([]models.AdView, error) {
	key := NewKey(req)

	ads, err := s.cache.GetAds(ctx, key)
	if err == nil {
		s.metrics.RecordCacheLookup(true)
		return ads, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		level.Warn(s.logger).Log("msg", "cache read failed, selecting directly", "err", err)
	}
	s.metrics.RecordCacheLookup(false)

	ads, err = s.next.SelectAds(ctx, req)
	if err != nil {
		return nil, err
	}

	// A failed write only costs the next request a selection.
	if err := s.cache.SetAds(ctx, key, ads, s.ttl); err != nil {
		level.Warn(s.logger).Log("msg", "failed to cache selection", "placement", req.Placement, "err", err)
	}
	return ads, nil
}

// InvalidatePlacements drops cached results for placements; an empty list drops all.
func (s *CachedSelector) InvalidatePlacements(ctx context.Context, placements []string) error {
	if err := s.cache.InvalidatePlacements(ctx, placements); err != nil {
		level.Error(s.logger).Log("msg", "cache invalidation failed", "placements", len(placements), "err", err)
		return err
	}
	return nil
}
