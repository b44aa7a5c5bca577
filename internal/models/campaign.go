package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Campaign is a budgeted, time-boxed advertising order placed by a client.
// It owns its creatives and is the unit of budget accounting.
type Campaign struct {
	ID          string         `json:"id" db:"id"`
	Name        string         `json:"name" db:"name"`
	Type        AdType         `json:"type" db:"ad_type"`
	ClientID    string         `json:"clientId" db:"client_id"`
	CreatedBy   string         `json:"createdBy,omitempty" db:"created_by"`
	Budget      Budget         `json:"budget"`
	Dates       Dates          `json:"dates"`
	Pricing     Pricing        `json:"pricing"`
	Targeting   Targeting      `json:"targeting" db:"targeting"`
	Status      CampaignStatus `json:"status" db:"status"`
	Metrics     Metrics        `json:"metrics"`
	ActivatedAt *time.Time     `json:"activatedAt,omitempty" db:"activated_at"`
	CompletedAt *time.Time     `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt   time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time      `json:"updatedAt" db:"updated_at"`
}

// IsActive returns true if campaign is active
func (c *Campaign) IsActive() bool {
	return c.Status == StatusActive
}

// Servable reports whether the campaign may be shown at now.
func (c *Campaign) Servable(now time.Time) bool {
	return c.IsActive() && c.Dates.Contains(now) && !c.Budget.Exhausted()
}

// CampaignWithCreatives is a campaign together with its ordered creatives.
type CampaignWithCreatives struct {
	Campaign
	Creatives []Creative `json:"creatives"`
}

// AdType is the display format of a campaign.
type AdType string

const (
	AdTypeBanner       AdType = "banner"
	AdTypeSidebar      AdType = "sidebar"
	AdTypeInterstitial AdType = "interstitial"
	AdTypeNative       AdType = "native"
	AdTypeVideo        AdType = "video"
)

func (t AdType) IsValid() bool {
	switch t {
	case AdTypeBanner, AdTypeSidebar, AdTypeInterstitial, AdTypeNative, AdTypeVideo:
		return true
	}
	return false
}

// PricingModel decides which events are billed.
type PricingModel string

const (
	PricingCPM  PricingModel = "cpm"
	PricingCPC  PricingModel = "cpc"
	PricingFlat PricingModel = "flat"
)

func (m PricingModel) IsValid() bool {
	return m == PricingCPM || m == PricingCPC || m == PricingFlat
}

// Pricing is the campaign's billing configuration.
type Pricing struct {
	Model    PricingModel    `json:"model"`
	BaseRate decimal.Decimal `json:"baseRate"`
}

var thousand = decimal.NewFromInt(1000)

// ImpressionCost is the charge for one billable impression.
func (p Pricing) ImpressionCost() decimal.Decimal {
	if p.Model != PricingCPM {
		return decimal.Zero
	}
	return p.BaseRate.Div(thousand)
}

// ClickCost is the charge for one click.
func (p Pricing) ClickCost() decimal.Decimal {
	if p.Model != PricingCPC {
		return decimal.Zero
	}
	return p.BaseRate
}

// Client is the advertiser owning campaigns; used to address notifications.
type Client struct {
	ID    string `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
}

// NewCampaignInput carries the caller-supplied fields of a new campaign.
type NewCampaignInput struct {
	Name      string             `json:"name"`
	Type      AdType             `json:"type"`
	ClientID  string             `json:"clientId"`
	CreatedBy string             `json:"createdBy,omitempty"`
	Total     decimal.Decimal    `json:"total"`
	Currency  string             `json:"currency,omitempty"`
	Start     time.Time          `json:"start"`
	End       time.Time          `json:"end"`
	Pricing   Pricing            `json:"pricing"`
	Targeting Targeting          `json:"targeting"`
	Creatives []NewCreativeInput `json:"creatives,omitempty"`
}

// Validate checks the fields that do not depend on the clock.
func (in *NewCampaignInput) Validate() error {
	if in.Name == "" {
		return Validationf("name is required")
	}
	if in.ClientID == "" {
		return Validationf("clientId is required")
	}
	if !in.Type.IsValid() {
		return Validationf("invalid ad type %q", in.Type)
	}
	if in.Pricing.Model == "" {
		in.Pricing.Model = PricingCPM
	}
	if !in.Pricing.Model.IsValid() {
		return Validationf("invalid pricing model %q", in.Pricing.Model)
	}
	if in.Pricing.BaseRate.IsNegative() {
		return Validationf("baseRate cannot be negative")
	}
	if err := in.Targeting.Validate(); err != nil {
		return err
	}
	primaries := 0
	for i := range in.Creatives {
		if err := in.Creatives[i].Validate(); err != nil {
			return err
		}
		if in.Creatives[i].Primary {
			primaries++
		}
	}
	if primaries > 1 {
		return Validationf("at most one creative can be primary")
	}
	return nil
}
