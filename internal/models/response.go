package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ErrorResponse represents error response format
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}

// TrackingURLs are the pixels a client fires back for a served creative.
type TrackingURLs struct {
	Impression string `json:"impression"`
	Click      string `json:"click"`
	Conversion string `json:"conversion"`
}

// AdView is the serving representation of one selected creative.
type AdView struct {
	CreativeID     string       `json:"creativeId"`
	CampaignID     string       `json:"campaignId"`
	Type           AdType       `json:"type"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	ImageURL       string       `json:"imageUrl,omitempty"`
	CallToAction   string       `json:"callToAction,omitempty"`
	DestinationURL string       `json:"destinationUrl"`
	TrackingURLs   TrackingURLs `json:"trackingUrls"`
}

// NewAdView converts a selected creative to its serving representation.
func NewAdView(c *Campaign, cr *Creative, tracking TrackingURLs) AdView {
	return AdView{
		CreativeID:     cr.ID,
		CampaignID:     c.ID,
		Type:           c.Type,
		Title:          cr.Title,
		Description:    cr.Description,
		ImageURL:       cr.Content.URL,
		CallToAction:   cr.CallToAction,
		DestinationURL: cr.DestinationURL,
		TrackingURLs:   tracking,
	}
}

// Granularity is the bucket width of a statistics query.
type Granularity string

const (
	GranularityHourly  Granularity = "hourly"
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

func (g Granularity) IsValid() bool {
	switch g {
	case GranularityHourly, GranularityDaily, GranularityWeekly, GranularityMonthly:
		return true
	}
	return false
}

// StatisticsRequest selects a campaign and window to report on.
// Zero Start/End fall back to the campaign's flight window.
type StatisticsRequest struct {
	CampaignID  string      `json:"campaignId"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Granularity Granularity `json:"interval"`
}

// StatBucket aggregates events that occurred within [PeriodStart, next bucket).
type StatBucket struct {
	PeriodStart     time.Time       `json:"periodStart"`
	Impressions     int64           `json:"impressions"`
	Clicks          int64           `json:"clicks"`
	Conversions     int64           `json:"conversions"`
	ConversionValue decimal.Decimal `json:"conversionValue"`
	CTR             float64         `json:"ctr"`
}

// RecomputeCTR derives the bucket CTR from its counters.
func (b *StatBucket) RecomputeCTR() {
	b.CTR = percentage(b.Clicks, b.Impressions)
}
