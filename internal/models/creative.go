package models

import (
	"strings"
	"time"
)

// Creative is one piece of ad content owned by a campaign.
type Creative struct {
	ID             string         `json:"id" db:"id"`
	CampaignID     string         `json:"campaignId" db:"campaign_id"`
	Title          string         `json:"title" db:"title"`
	Description    string         `json:"description,omitempty" db:"description"`
	CallToAction   string         `json:"callToAction,omitempty" db:"call_to_action"`
	DestinationURL string         `json:"destinationUrl" db:"destination_url"`
	Content        Content        `json:"content"`
	Primary        bool           `json:"primary" db:"is_primary"`
	Status         CreativeStatus `json:"status" db:"status"`
	Impressions    int64          `json:"impressions" db:"impressions"`
	Clicks         int64          `json:"clicks" db:"clicks"`
	Conversions    int64          `json:"conversions" db:"conversions"`
	CTR            float64        `json:"ctr" db:"ctr"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`
}

// Content references the stored asset of a creative.
type Content struct {
	URL        string `json:"url"`
	Format     string `json:"format,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	SizeBytes  int64  `json:"sizeBytes,omitempty"`
	StorageKey string `json:"storageKey,omitempty"`
}

// IsActive returns true if the creative may be served.
func (cr *Creative) IsActive() bool {
	return cr.Status == CreativeActive
}

// RecomputeCTR derives CTR from the raw counters.
func (cr *Creative) RecomputeCTR() {
	cr.CTR = percentage(cr.Clicks, cr.Impressions)
}

// NewCreativeInput carries the caller-supplied fields of a new creative.
type NewCreativeInput struct {
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	CallToAction   string         `json:"callToAction,omitempty"`
	DestinationURL string         `json:"destinationUrl"`
	Content        Content        `json:"content"`
	Primary        bool           `json:"primary"`
	Status         CreativeStatus `json:"status,omitempty"`
}

// Validate checks required fields and defaults the status to active.
func (in *NewCreativeInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return Validationf("creative title is required")
	}
	if strings.TrimSpace(in.DestinationURL) == "" {
		return Validationf("creative destinationUrl is required")
	}
	if in.Status == "" {
		in.Status = CreativeActive
	}
	if !in.Status.IsValid() {
		return Validationf("invalid creative status %q", in.Status)
	}
	return nil
}
