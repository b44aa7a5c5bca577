package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

func TestStatistics_MonthlyBuckets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.clock.Set(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))

	c := h.createActive(t, func(in *models.NewCampaignInput) {
		in.End = time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	})
	impression := models.ImpressionInput{EventContext: eventContext(c, 0), Viewability: 100}

	require.NoError(t, h.engine.RecordImpression(ctx, impression))

	h.clock.Set(time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC))
	require.NoError(t, h.engine.RecordImpression(ctx, impression))
	require.NoError(t, h.engine.RecordClick(ctx, models.ClickInput{EventContext: eventContext(c, 0)}))

	h.clock.Set(time.Date(2025, 3, 5, 18, 0, 0, 0, time.UTC))
	require.NoError(t, h.engine.RecordConversion(ctx, models.ConversionInput{
		EventContext:   eventContext(c, 0),
		ConversionType: models.ConversionSignup,
		Value:          decimal.NewFromInt(50),
	}))

	buckets, err := h.engine.CampaignStatistics(ctx, models.StatisticsRequest{
		CampaignID:  c.ID,
		Start:       time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		End:         time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Granularity: models.GranularityMonthly,
	})
	require.NoError(t, err)
	require.Len(t, buckets, 3)

	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), buckets[0].PeriodStart)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), buckets[1].PeriodStart)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), buckets[2].PeriodStart)

	assert.Equal(t, int64(1), buckets[0].Impressions)
	assert.Zero(t, buckets[0].Clicks)

	assert.Equal(t, int64(1), buckets[1].Impressions)
	assert.Equal(t, int64(1), buckets[1].Clicks)
	assert.Equal(t, 100.0, buckets[1].CTR)

	assert.Equal(t, int64(1), buckets[2].Conversions)
	requireDecimal(t, "50", buckets[2].ConversionValue)
	assert.Zero(t, buckets[2].CTR)
}

func TestStatistics_DailyDefaultsToFlightWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.createActive(t, nil)

	require.NoError(t, h.engine.RecordImpression(ctx, models.ImpressionInput{EventContext: eventContext(c, 0), Viewability: 100}))
	h.clock.Advance(48 * time.Hour)
	require.NoError(t, h.engine.RecordImpression(ctx, models.ImpressionInput{EventContext: eventContext(c, 1), Viewability: 100}))
	require.NoError(t, h.engine.RecordClick(ctx, models.ClickInput{EventContext: eventContext(c, 1)}))

	// Without bounds the window runs from the campaign start to now.
	buckets, err := h.engine.CampaignStatistics(ctx, models.StatisticsRequest{CampaignID: c.ID})
	require.NoError(t, err)
	require.Len(t, buckets, 3)

	assert.Equal(t, testStart.Truncate(24*time.Hour), buckets[0].PeriodStart)
	assert.Equal(t, int64(1), buckets[0].Impressions)
	assert.Zero(t, buckets[1].Impressions)
	assert.Equal(t, int64(1), buckets[2].Impressions)
	assert.Equal(t, int64(1), buckets[2].Clicks)
	assert.Equal(t, 100.0, buckets[2].CTR)

	// The statistics come from the event log and agree with the counters.
	var impressions, clicks int64
	for _, b := range buckets {
		impressions += b.Impressions
		clicks += b.Clicks
	}
	got := h.campaign(t, c.ID)
	assert.Equal(t, got.Metrics.Impressions, impressions)
	assert.Equal(t, got.Metrics.Clicks, clicks)
}

func TestStatistics_HourlyAndWeekly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.createActive(t, nil)

	start := testStart
	end := testStart.Add(3 * time.Hour)

	hourly, err := h.engine.CampaignStatistics(ctx, models.StatisticsRequest{
		CampaignID: c.ID, Start: start, End: end.Add(-time.Minute), Granularity: models.GranularityHourly,
	})
	require.NoError(t, err)
	assert.Len(t, hourly, 3)

	weekly, err := h.engine.CampaignStatistics(ctx, models.StatisticsRequest{
		CampaignID: c.ID, Start: start, End: start.AddDate(0, 0, 15), Granularity: models.GranularityWeekly,
	})
	require.NoError(t, err)
	require.Len(t, weekly, 3)
	assert.Equal(t, 7*24*time.Hour, weekly[1].PeriodStart.Sub(weekly[0].PeriodStart))
	for _, b := range weekly {
		assert.Zero(t, b.Impressions)
		assert.True(t, b.ConversionValue.IsZero())
	}
}

func TestStatistics_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.createActive(t, nil)

	tests := []struct {
		name    string
		req     models.StatisticsRequest
		wantErr error
	}{
		{
			name:    "unknown interval",
			req:     models.StatisticsRequest{CampaignID: c.ID, Granularity: "yearly"},
			wantErr: models.ErrValidation,
		},
		{
			name:    "empty range",
			req:     models.StatisticsRequest{CampaignID: c.ID, Start: testStart, End: testStart},
			wantErr: models.ErrInvalidDateRange,
		},
		{
			name:    "reversed range",
			req:     models.StatisticsRequest{CampaignID: c.ID, Start: testStart, End: testStart.Add(-time.Hour)},
			wantErr: models.ErrInvalidDateRange,
		},
		{
			name: "too many buckets",
			req: models.StatisticsRequest{
				CampaignID: c.ID, Start: testStart, End: testStart.AddDate(1, 0, 0), Granularity: models.GranularityHourly,
			},
			wantErr: models.ErrValidation,
		},
		{
			name:    "unknown campaign",
			req:     models.StatisticsRequest{CampaignID: "missing"},
			wantErr: models.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.CampaignStatistics(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStatistics_EventAtBoundaryEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.createActive(t, nil)

	end := testStart.Add(2 * time.Hour)
	require.NoError(t, h.engine.RecordImpression(ctx, models.ImpressionInput{EventContext: eventContext(c, 0), Viewability: 100}))
	h.clock.Set(end)
	require.NoError(t, h.engine.RecordClick(ctx, models.ClickInput{EventContext: eventContext(c, 0)}))

	buckets, err := h.engine.CampaignStatistics(ctx, models.StatisticsRequest{
		CampaignID: c.ID, Start: testStart, End: end, Granularity: models.GranularityHourly,
	})
	require.NoError(t, err)
	require.Len(t, buckets, 3)

	// The click at end opens its own period instead of joining the hour before.
	assert.Equal(t, end, buckets[2].PeriodStart)
	assert.Equal(t, int64(1), buckets[2].Clicks)
	assert.Zero(t, buckets[1].Clicks)
	assert.Equal(t, int64(1), buckets[0].Impressions)
}
