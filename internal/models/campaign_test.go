package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBudget_DebitKeepsInvariant(t *testing.T) {
	b, err := NewBudget(dec("1"), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultCurrency, b.Currency)

	cost := dec("0.3")
	charges := []string{"0.3", "0.3", "0.3", "0.1", "0"}
	for i, want := range charges {
		charged := b.Debit(cost)
		assert.True(t, charged.Equal(dec(want)), "debit %d charged %s, want %s", i, charged, want)
		assert.True(t, b.Consistent(), "invariant broken after debit %d", i)
		assert.False(t, b.Remaining.IsNegative())
	}
	assert.True(t, b.Exhausted())
	assert.True(t, b.Spent.Equal(dec("1")))
}

func TestBudget_NewRejectsNonPositiveTotal(t *testing.T) {
	_, err := NewBudget(decimal.Zero, "ETB")
	assert.True(t, errors.Is(err, ErrInvalidBudget))
}

func TestBudget_Resize(t *testing.T) {
	b, err := NewBudget(dec("100"), "ETB")
	require.NoError(t, err)
	b.Debit(dec("40"))

	err = b.Resize(dec("40"))
	assert.True(t, errors.Is(err, ErrInvalidBudget))

	require.NoError(t, b.Resize(dec("150")))
	assert.True(t, b.Remaining.Equal(dec("110")))
	assert.True(t, b.Consistent())
}

func TestNewDates(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	d, err := NewDates(start, start.Add(36*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, d.DurationDays)
	assert.True(t, d.Contains(start))
	assert.False(t, d.Contains(start.Add(-time.Second)))

	_, err = NewDates(start, start)
	assert.True(t, errors.Is(err, ErrInvalidDateRange))
}

func TestMetrics_Recompute(t *testing.T) {
	tests := []struct {
		name  string
		m     Metrics
		spent string
		ctr   float64
		cpm   float64
		cpc   float64
		roas  float64
	}{
		{
			name:  "ctr from 200 impressions and 10 clicks",
			m:     Metrics{Impressions: 200, Clicks: 10},
			spent: "0",
			ctr:   5.0,
		},
		{
			name:  "zero impressions yields zeros",
			m:     Metrics{},
			spent: "0",
		},
		{
			name:  "full set",
			m:     Metrics{Impressions: 100, Clicks: 5, Conversions: 1, ConversionValue: dec("200")},
			spent: "0.5",
			ctr:   5.0,
			cpm:   5.0,
			cpc:   0.1,
			roas:  40000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.m.Recompute(dec(tt.spent))
			assert.Equal(t, tt.ctr, tt.m.CTR)
			assert.Equal(t, tt.cpm, tt.m.CPM)
			assert.Equal(t, tt.cpc, tt.m.CPC)
			assert.Equal(t, tt.roas, tt.m.ROAS)
		})
	}
}

func TestCreative_RecomputeCTR(t *testing.T) {
	cr := Creative{Impressions: 0, Clicks: 3}
	cr.RecomputeCTR()
	assert.Equal(t, 0.0, cr.CTR)

	cr.Impressions = 200
	cr.Clicks = 10
	cr.RecomputeCTR()
	assert.Equal(t, 5.0, cr.CTR)
}

func TestPricing_Costs(t *testing.T) {
	cpm := Pricing{Model: PricingCPM, BaseRate: dec("5")}
	assert.True(t, cpm.ImpressionCost().Equal(dec("0.005")))
	assert.True(t, cpm.ClickCost().IsZero())

	cpc := Pricing{Model: PricingCPC, BaseRate: dec("0.25")}
	assert.True(t, cpc.ImpressionCost().IsZero())
	assert.True(t, cpc.ClickCost().Equal(dec("0.25")))
}

func TestStatusTransitions(t *testing.T) {
	allowed := map[CampaignStatus][]CampaignStatus{
		StatusDraft:   {StatusPending, StatusActive, StatusCancelled},
		StatusPending: {StatusActive, StatusDraft, StatusCancelled},
		StatusActive:  {StatusPaused, StatusCompleted, StatusCancelled},
		StatusPaused:  {StatusActive, StatusCompleted, StatusCancelled},
	}
	all := []CampaignStatus{StatusDraft, StatusPending, StatusActive, StatusPaused, StatusCompleted, StatusCancelled}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			err := ValidateTransition(from, to)
			if want {
				assert.NoError(t, err, "%s -> %s", from, to)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidTransition), "%s -> %s should be rejected", from, to)
			}
		}
	}

	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, errors.Is(ValidateTransition(StatusCompleted, StatusActive), ErrInvalidTransition))
}

func TestCampaign_StorageRoundTrip(t *testing.T) {
	start := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	schedStart := start.Add(24 * time.Hour)
	activated := start.Add(time.Hour)

	budget, err := NewBudget(dec("1000"), "ETB")
	require.NoError(t, err)
	budget.Debit(dec("0.505"))
	dates, err := NewDates(start, end)
	require.NoError(t, err)

	original := Campaign{
		ID:       "c-1",
		Name:     "Graduate hiring",
		Type:     AdTypeSidebar,
		ClientID: "client-1",
		Budget:   budget,
		Dates:    dates,
		Pricing:  Pricing{Model: PricingCPM, BaseRate: dec("5")},
		Targeting: Targeting{
			Demographics:     &Demographics{AgeMin: 21, AgeMax: 30, Genders: []string{"female"}},
			Geographic:       &Geographic{Regions: []string{"addis_ababa"}, ExcludedRegions: []string{"afar"}},
			Interests:        []string{"engineering"},
			PositionAffinity: []string{"sidebar"},
			Schedule:         &Schedule{Start: &schedStart, DaysOfWeek: []int{1, 2, 3}, Hours: []int{9, 17}},
		},
		Status:      StatusActive,
		ActivatedAt: &activated,
		CreatedAt:   start,
		UpdatedAt:   start,
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Campaign
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.True(t, decoded.Budget.Total.Equal(original.Budget.Total))
	assert.True(t, decoded.Budget.Spent.Equal(original.Budget.Spent))
	assert.True(t, decoded.Budget.Remaining.Equal(original.Budget.Remaining))
	assert.Equal(t, original.Budget.Currency, decoded.Budget.Currency)
	assert.True(t, decoded.Dates.Start.Equal(original.Dates.Start))
	assert.True(t, decoded.Dates.End.Equal(original.Dates.End))
	assert.Equal(t, original.Dates.DurationDays, decoded.Dates.DurationDays)
	assert.Equal(t, original.Targeting.Demographics, decoded.Targeting.Demographics)
	assert.Equal(t, original.Targeting.Geographic, decoded.Targeting.Geographic)
	assert.Equal(t, original.Targeting.Interests, decoded.Targeting.Interests)
	assert.Equal(t, original.Targeting.PositionAffinity, decoded.Targeting.PositionAffinity)
	assert.True(t, decoded.Targeting.Schedule.Start.Equal(schedStart))
	assert.Equal(t, original.Targeting.Schedule.DaysOfWeek, decoded.Targeting.Schedule.DaysOfWeek)
	assert.Equal(t, original.Targeting.Schedule.Hours, decoded.Targeting.Schedule.Hours)
	assert.True(t, decoded.ActivatedAt.Equal(activated))

	// The JSON column representation used by the SQL store.
	value, err := original.Targeting.Value()
	require.NoError(t, err)
	var scanned Targeting
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, original.Targeting.Geographic, scanned.Geographic)
	assert.Equal(t, original.Targeting.Rules(), scanned.Rules())
}
