package service

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/prajwalbharadwajbm/adserve/internal/metrics"
	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// Selector is the rotation engine: it filters servable campaigns through
// targeting and ranks their active creatives by Score.
type Selector struct {
	repository CampaignRepository
	matcher    *models.TargetingMatcher
	weights    ScoringWeights
	tracking   trackingLinks
	now        func() time.Time
	metrics    *metrics.Metrics
	logger     log.Logger
}

// NewSelector creates a selector using the built-in targeting dimensions.
func NewSelector(deps Dependencies, opts Options) *Selector {
	return NewSelectorWithMatcher(deps, opts, models.NewTargetingMatcher(models.NewDimensionRegistry()))
}

// NewSelectorWithMatcher creates a selector with a custom matcher
func NewSelectorWithMatcher(deps Dependencies, opts Options, matcher *models.TargetingMatcher) *Selector {
	deps = deps.withDefaults()
	opts = opts.withDefaults()
	return &Selector{
		repository: deps.Repository,
		matcher:    matcher,
		weights:    opts.Weights,
		tracking:   trackingLinks{base: strings.TrimSuffix(opts.TrackingBaseURL, "/")},
		now:        opts.Now,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
}

type candidate struct {
	campaign *models.Campaign
	creative *models.Creative
	weight   float64
}

// SelectAds returns up to req.Limit creatives ordered by weight. An empty
// pool is a normal outcome and yields an empty, non-nil slice; only a store
// failure is an error.
func (s *Selector) SelectAds(ctx context.Context, req models.SelectionRequest) ([]models.AdView, error) {
	now := req.Context.Now
	if now.IsZero() {
		now = s.now()
		req.Context.Now = now
	}

	campaigns, err := s.repository.ListServableCampaigns(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve campaigns: %w", models.AsTransient(err))
	}

	var candidates []candidate
	for i := range campaigns {
		c := &campaigns[i]
		if !c.Servable(now) {
			continue
		}
		if req.Type != "" && c.Type != req.Type {
			continue
		}
		if !s.matcher.Matches(&c.Targeting, req.Context) {
			continue
		}
		for j := range c.Creatives {
			cr := &c.Creatives[j]
			if !cr.IsActive() {
				continue
			}
			candidates = append(candidates, candidate{
				campaign: &c.Campaign,
				creative: cr,
				weight:   Score(&c.Campaign, cr, req.Placement, now, s.weights),
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.weight != b.weight {
			return a.weight > b.weight
		}
		if a.creative.Primary != b.creative.Primary {
			return a.creative.Primary
		}
		return a.creative.ID < b.creative.ID
	})

	limit := req.Limit
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	views := make([]models.AdView, 0, limit)
	for _, cand := range candidates[:limit] {
		views = append(views, models.NewAdView(cand.campaign, cand.creative, s.tracking.For(cand.campaign.ID, cand.creative.ID)))
	}

	level.Debug(s.logger).Log("msg", "ads selected", "placement", req.Placement,
		"campaigns", len(campaigns), "candidates", len(candidates), "returned", len(views))
	s.metrics.RecordAdSelection(req.Placement, len(views))

	return views, nil
}

// trackingLinks builds the callback URLs embedded in an AdView.
type trackingLinks struct {
	base string
}

func (t trackingLinks) For(campaignID, creativeID string) models.TrackingURLs {
	q := url.Values{}
	q.Set("campaignId", campaignID)
	q.Set("creativeId", creativeID)
	query := q.Encode()
	return models.TrackingURLs{
		Impression: t.base + "/v1/events/impressions?" + query,
		Click:      t.base + "/v1/events/clicks?" + query,
		Conversion: t.base + "/v1/events/conversions?" + query,
	}
}
