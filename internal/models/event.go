package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventType discriminates the append-only event log.
type EventType string

const (
	EventImpression EventType = "impression"
	EventClick      EventType = "click"
	EventConversion EventType = "conversion"
)

// ConversionType classifies a conversion.
type ConversionType string

const (
	ConversionPurchase ConversionType = "purchase"
	ConversionSignup   ConversionType = "signup"
	ConversionLead     ConversionType = "lead"
	ConversionDownload ConversionType = "download"
	ConversionOther    ConversionType = "other"
)

func (t ConversionType) IsValid() bool {
	switch t {
	case ConversionPurchase, ConversionSignup, ConversionLead, ConversionDownload, ConversionOther:
		return true
	}
	return false
}

// BillableViewability is the minimum viewability percentage that is charged.
const BillableViewability = 50.0

// DeviceInfo describes the viewer's device.
type DeviceInfo struct {
	Type    string `json:"type,omitempty"`
	OS      string `json:"os,omitempty"`
	Browser string `json:"browser,omitempty"`
}

// Event is an immutable record of an impression, click or conversion.
type Event struct {
	ID             string            `json:"id" db:"id"`
	Type           EventType         `json:"type" db:"event_type"`
	CampaignID     string            `json:"campaignId" db:"campaign_id"`
	CreativeID     string            `json:"creativeId" db:"creative_id"`
	UserID         string            `json:"userId,omitempty" db:"user_id"`
	PageURL        string            `json:"pageUrl,omitempty" db:"page_url"`
	Position       string            `json:"position,omitempty" db:"position"`
	Device         DeviceInfo        `json:"device"`
	Viewability    float64           `json:"viewability,omitempty" db:"viewability"`
	Cost           decimal.Decimal   `json:"cost" db:"cost"`
	ConversionType ConversionType    `json:"conversionType,omitempty" db:"conversion_type"`
	Value          decimal.Decimal   `json:"value" db:"value"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	OccurredAt     time.Time         `json:"occurredAt" db:"occurred_at"`
}

// EventContext is shared by every reported event.
type EventContext struct {
	CreativeID string     `json:"creativeId"`
	CampaignID string     `json:"campaignId"`
	UserID     string     `json:"userId,omitempty"`
	PageURL    string     `json:"pageUrl,omitempty"`
	Position   string     `json:"position,omitempty"`
	Device     DeviceInfo `json:"device"`
}

func (ec *EventContext) validate() error {
	ec.CreativeID = strings.TrimSpace(ec.CreativeID)
	ec.CampaignID = strings.TrimSpace(ec.CampaignID)
	if ec.CreativeID == "" {
		return Validationf("creativeId is required")
	}
	if ec.CampaignID == "" {
		return Validationf("campaignId is required")
	}
	return nil
}

// ImpressionInput reports one rendering of a creative.
type ImpressionInput struct {
	EventContext
	Viewability float64 `json:"viewability"`
}

func (in *ImpressionInput) Validate() error {
	if err := in.validate(); err != nil {
		return err
	}
	if in.Viewability < 0 || in.Viewability > 100 {
		return Validationf("viewability must be within 0-100, got %v", in.Viewability)
	}
	return nil
}

// Billable reports whether the impression was visible enough to charge.
func (in ImpressionInput) Billable() bool {
	return in.Viewability >= BillableViewability
}

// ClickInput reports one click on a creative.
type ClickInput struct {
	EventContext
}

func (in *ClickInput) Validate() error {
	return in.validate()
}

// ConversionInput reports one attributed conversion.
type ConversionInput struct {
	EventContext
	ConversionType ConversionType    `json:"conversionType"`
	Value          decimal.Decimal   `json:"value"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

func (in *ConversionInput) Validate() error {
	if err := in.validate(); err != nil {
		return err
	}
	if !in.ConversionType.IsValid() {
		return Validationf("invalid conversionType %q", in.ConversionType)
	}
	if in.Value.IsNegative() {
		return Validationf("conversion value cannot be negative")
	}
	return nil
}

// Notifiable reports whether the conversion warrants a client notification.
func (in ConversionInput) Notifiable() bool {
	return in.ConversionType == ConversionPurchase && in.Value.IsPositive()
}
