package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prajwalbharadwajbm/adserve/internal/cache"
	"github.com/prajwalbharadwajbm/adserve/internal/metrics"
	"github.com/prajwalbharadwajbm/adserve/internal/models"
	"github.com/prajwalbharadwajbm/adserve/internal/repository"
	"github.com/prajwalbharadwajbm/adserve/internal/service"
)

func TestEngine_ServeAndAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.createActive(t, nil)

	for i := 0; i < 100; i++ {
		err := h.engine.RecordImpression(ctx, models.ImpressionInput{EventContext: eventContext(c, 0), Viewability: 80})
		require.NoError(t, err)
	}

	got := h.campaign(t, c.ID)
	requireDecimal(t, "0.5", got.Budget.Spent)
	requireDecimal(t, "999.5", got.Budget.Remaining)
	assert.Equal(t, int64(100), got.Metrics.Impressions)
	assert.True(t, got.Budget.Consistent())
	assert.InDelta(t, 5.0, got.Metrics.CPM, 1e-9)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.engine.RecordClick(ctx, models.ClickInput{EventContext: eventContext(c, 0)}))
	}
	got = h.campaign(t, c.ID)
	assert.Equal(t, 5.0, got.Metrics.CTR)
	// Clicks are free on a cost-per-mille campaign.
	requireDecimal(t, "0.5", got.Budget.Spent)
	assert.InDelta(t, 0.1, got.Metrics.CPC, 1e-9)

	err := h.engine.RecordConversion(ctx, models.ConversionInput{
		EventContext:   eventContext(c, 0),
		ConversionType: models.ConversionPurchase,
		Value:          decimal.NewFromInt(200),
	})
	require.NoError(t, err)

	got = h.campaign(t, c.ID)
	assert.Equal(t, int64(1), got.Metrics.Conversions)
	requireDecimal(t, "200", got.Metrics.ConversionValue)
	assert.InDelta(t, 40000.0, got.Metrics.ROAS, 1e-9)

	creative := got.Creatives[0]
	assert.Equal(t, int64(100), creative.Impressions)
	assert.Equal(t, int64(5), creative.Clicks)
	assert.Equal(t, int64(1), creative.Conversions)
	assert.Equal(t, 5.0, creative.CTR)

	h.engine.Lifecycle().Wait()
	purchases := h.notifier.OfKind(models.NotifyPurchaseConversion)
	require.Len(t, purchases, 1)
	assert.Equal(t, "ads@acme.test", purchases[0].Recipient)
	requireDecimal(t, "200", purchases[0].Value)
}

func TestEngine_ImpressionBelowViewabilityIsFree(t *testing.T) {
	h := newHarness(t)
	c := h.createActive(t, nil)

	err := h.engine.RecordImpression(context.Background(), models.ImpressionInput{EventContext: eventContext(c, 0), Viewability: 49.9})
	require.NoError(t, err)

	got := h.campaign(t, c.ID)
	assert.Equal(t, int64(1), got.Metrics.Impressions)
	assert.True(t, got.Budget.Spent.IsZero())
}

func TestEngine_EventValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.createActive(t, nil)

	tests := []struct {
		name    string
		record  func() error
		wantErr error
	}{
		{
			name: "missing creative",
			record: func() error {
				return h.engine.RecordImpression(ctx, models.ImpressionInput{EventContext: models.EventContext{CampaignID: c.ID}})
			},
			wantErr: models.ErrValidation,
		},
		{
			name: "viewability out of range",
			record: func() error {
				return h.engine.RecordImpression(ctx, models.ImpressionInput{EventContext: eventContext(c, 0), Viewability: 120})
			},
			wantErr: models.ErrValidation,
		},
		{
			name: "unknown conversion type",
			record: func() error {
				return h.engine.RecordConversion(ctx, models.ConversionInput{EventContext: eventContext(c, 0), ConversionType: "refund"})
			},
			wantErr: models.ErrValidation,
		},
		{
			name: "negative conversion value",
			record: func() error {
				return h.engine.RecordConversion(ctx, models.ConversionInput{
					EventContext:   eventContext(c, 0),
					ConversionType: models.ConversionLead,
					Value:          decimal.NewFromInt(-1),
				})
			},
			wantErr: models.ErrValidation,
		},
		{
			name: "unknown creative",
			record: func() error {
				return h.engine.RecordClick(ctx, models.ClickInput{EventContext: models.EventContext{CampaignID: c.ID, CreativeID: "missing"}})
			},
			wantErr: models.ErrNotFound,
		},
		{
			name: "creative of another campaign",
			record: func() error {
				other := h.createActive(t, nil)
				return h.engine.RecordClick(ctx, models.ClickInput{EventContext: models.EventContext{CampaignID: c.ID, CreativeID: other.Creatives[0].ID}})
			},
			wantErr: models.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	got := h.campaign(t, c.ID)
	assert.Zero(t, got.Metrics.Impressions)
	assert.Zero(t, got.Metrics.Clicks)
	assert.Zero(t, got.Metrics.Conversions)
}

func TestEngine_EventOnPausedCampaign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.createActive(t, nil)

	_, err := h.engine.UpdateCampaignStatus(ctx, c.ID, models.StatusPaused)
	require.NoError(t, err)

	err = h.engine.RecordImpression(ctx, models.ImpressionInput{EventContext: eventContext(c, 0), Viewability: 100})
	assert.ErrorIs(t, err, models.ErrInvalidState)

	events, err := h.repo.ListEvents(ctx, c.ID, c.Dates.Start, c.Dates.End)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEngine_ActiveAds_EmptyPool(t *testing.T) {
	h := newHarness(t)

	ads, err := h.engine.ActiveAds(context.Background(), models.SelectionRequest{Placement: "homepage"})
	require.NoError(t, err)
	assert.NotNil(t, ads)
	assert.Empty(t, ads)
}

func TestEngine_ActiveAds_InvalidRequest(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		req  models.SelectionRequest
	}{
		{name: "missing placement", req: models.SelectionRequest{}},
		{name: "unknown type", req: models.SelectionRequest{Placement: "homepage", Type: "popup"}},
		{name: "limit above max", req: models.SelectionRequest{Placement: "homepage", Limit: 21}},
		{name: "negative limit", req: models.SelectionRequest{Placement: "homepage", Limit: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.ActiveAds(context.Background(), tt.req)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestEngine_ActiveAds_TargetingAndOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	us := h.createActive(t, func(in *models.NewCampaignInput) {
		in.Name = "US"
		in.Targeting.Geographic = &models.Geographic{Countries: []string{"us"}}
	})
	h.createActive(t, func(in *models.NewCampaignInput) {
		in.Name = "DE"
		in.Targeting.Geographic = &models.Geographic{Countries: []string{"de"}}
	})
	// Drafts are never served.
	h.createCampaign(t, nil)

	ads, err := h.engine.ActiveAds(ctx, models.SelectionRequest{
		Placement: "Homepage",
		Context:   models.RequestContext{Country: "US"},
	})
	require.NoError(t, err)
	require.Len(t, ads, 2)

	for _, ad := range ads {
		assert.Equal(t, us.ID, ad.CampaignID)
		assert.True(t, strings.HasPrefix(ad.TrackingURLs.Impression, "https://track.example.com/v1/events/impressions?"))
		assert.Contains(t, ad.TrackingURLs.Click, "campaignId="+us.ID)
		assert.Contains(t, ad.TrackingURLs.Conversion, "creativeId="+ad.CreativeID)
	}
	// Equal weights put the primary creative first.
	assert.Equal(t, us.Creatives[0].ID, ads[0].CreativeID)
	assert.Equal(t, "https://cdn.acme.test/hero.png", ads[0].ImageURL)

	ads, err = h.engine.ActiveAds(ctx, models.SelectionRequest{
		Placement: "homepage",
		Limit:     1,
		Context:   models.RequestContext{Country: "us"},
	})
	require.NoError(t, err)
	assert.Len(t, ads, 1)

	ads, err = h.engine.ActiveAds(ctx, models.SelectionRequest{
		Placement: "homepage",
		Context:   models.RequestContext{Country: "fr"},
	})
	require.NoError(t, err)
	assert.Empty(t, ads)

	ads, err = h.engine.ActiveAds(ctx, models.SelectionRequest{
		Placement: "homepage",
		Type:      models.AdTypeVideo,
		Context:   models.RequestContext{Country: "us"},
	})
	require.NoError(t, err)
	assert.Empty(t, ads)
}

func TestEngine_ActiveAds_PrefersRemainingBudget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	spent := h.createActive(t, func(in *models.NewCampaignInput) {
		in.Name = "Half spent"
		in.Creatives = in.Creatives[:1]
	})
	fresh := h.createActive(t, func(in *models.NewCampaignInput) {
		in.Name = "Fresh"
		in.Creatives = in.Creatives[:1]
	})

	_, err := h.engine.Ledger().Debit(ctx, spent.ID, decimal.NewFromInt(500))
	require.NoError(t, err)

	ads, err := h.engine.ActiveAds(ctx, models.SelectionRequest{Placement: "homepage"})
	require.NoError(t, err)
	require.Len(t, ads, 2)
	assert.Equal(t, fresh.ID, ads[0].CampaignID)
	assert.Equal(t, spent.ID, ads[1].CampaignID)
}

func TestScore(t *testing.T) {
	budget, err := models.NewBudget(decimal.NewFromInt(100), "USD")
	require.NoError(t, err)
	budget.Debit(decimal.NewFromInt(50))

	c := &models.Campaign{
		Budget:    budget,
		Targeting: models.Targeting{PositionAffinity: []string{"sidebar"}},
	}
	fresh := &models.Creative{CreatedAt: testStart}
	proven := &models.Creative{CreatedAt: testStart, Impressions: 100, Clicks: 10, CTR: 10}
	old := &models.Creative{CreatedAt: testStart.AddDate(0, -3, 0)}

	w := service.DefaultScoringWeights

	assert.InDelta(t, 0.5, service.Score(c, fresh, "homepage", testStart, w), 1e-9)
	assert.InDelta(t, 0.75, service.Score(c, fresh, "sidebar", testStart, w), 1e-9)
	assert.InDelta(t, 0.5*0.2, service.Score(c, proven, "homepage", testStart, w), 1e-9)
	assert.InDelta(t, 0.5*w.RecencyFloor, service.Score(c, old, "homepage", testStart, w), 1e-9)
}

func TestEngine_CachedResultsFollowCampaignChanges(t *testing.T) {
	clock := newFakeClock(testStart)
	resultCache, err := cache.NewHybridCache(cache.CacheConfig{
		DefaultTTL:      time.Hour,
		MemoryCacheSize: 100,
		EnableMemory:    true,
	}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(resultCache.Close)

	deps := service.Dependencies{
		Repository: repository.NewMemoryRepository(),
		Metrics:    metrics.NewPrometheusMetrics(prometheus.NewRegistry()),
	}
	opts := service.Options{TrackingBaseURL: "https://track.example.com/", Now: clock.Now}
	selector := cache.NewCachedSelector(service.NewSelector(deps, opts), resultCache, time.Hour, deps.Metrics, nil)
	deps.Invalidator = selector

	engine := service.NewEngine(deps, opts, selector)
	t.Cleanup(engine.Stop)
	ctx := context.Background()

	in := newCampaignInput(clock.Now())
	in.Targeting.Placements = []string{"Homepage"}
	c, err := engine.CreateCampaign(ctx, in)
	require.NoError(t, err)
	_, err = engine.UpdateCampaignStatus(ctx, c.ID, models.StatusActive)
	require.NoError(t, err)

	req := models.SelectionRequest{Placement: "homepage"}
	ads, err := engine.ActiveAds(ctx, req)
	require.NoError(t, err)
	require.Len(t, ads, 2)

	// The cached result for the placement is dropped as soon as the campaign
	// stops serving, even though it was targeted with different casing.
	_, err = engine.UpdateCampaignStatus(ctx, c.ID, models.StatusPaused)
	require.NoError(t, err)
	ads, err = engine.ActiveAds(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, ads)

	_, err = engine.UpdateCampaignStatus(ctx, c.ID, models.StatusActive)
	require.NoError(t, err)
	ads, err = engine.ActiveAds(ctx, req)
	require.NoError(t, err)
	assert.Len(t, ads, 2)
}
