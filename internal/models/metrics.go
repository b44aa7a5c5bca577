package models

import "github.com/shopspring/decimal"

// Metrics are the campaign's raw counters and the ratios derived from them.
// Derived fields are only ever written by Recompute.
type Metrics struct {
	Impressions     int64           `json:"impressions"`
	Clicks          int64           `json:"clicks"`
	Conversions     int64           `json:"conversions"`
	ConversionValue decimal.Decimal `json:"conversionValue"`
	CTR             float64         `json:"ctr"`
	CPC             float64         `json:"cpc"`
	CPM             float64         `json:"cpm"`
	ROAS            float64         `json:"roas"`
}

var hundred = decimal.NewFromInt(100)

// Recompute derives CTR, CPC, CPM and ROAS from the counters and spend.
// Any ratio with a zero denominator is 0.
func (m *Metrics) Recompute(spent decimal.Decimal) {
	m.CTR = percentage(m.Clicks, m.Impressions)

	m.CPM = 0
	if m.Impressions > 0 {
		m.CPM = spent.Mul(thousand).Div(decimal.NewFromInt(m.Impressions)).InexactFloat64()
	}

	m.CPC = 0
	if m.Clicks > 0 {
		m.CPC = spent.Div(decimal.NewFromInt(m.Clicks)).InexactFloat64()
	}

	m.ROAS = 0
	if spent.IsPositive() {
		m.ROAS = m.ConversionValue.Mul(hundred).Div(spent).InexactFloat64()
	}
}

// RecomputeMetrics refreshes the campaign's derived metrics from its counters.
func (c *Campaign) RecomputeMetrics() {
	c.Metrics.Recompute(c.Budget.Spent)
}

// percentage returns part/whole*100, multiplying first so whole-number
// ratios stay exact.
func percentage(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) * 100 / float64(whole)
}
