package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NotificationKind identifies why a client is being told something.
type NotificationKind string

const (
	NotifyCampaignCompleted  NotificationKind = "campaign_completed"
	NotifyPurchaseConversion NotificationKind = "purchase_conversion"
)

// Notification is handed to the dispatcher fire-and-forget.
type Notification struct {
	Kind         NotificationKind `json:"kind"`
	CampaignID   string           `json:"campaignId"`
	CampaignName string           `json:"campaignName"`
	ClientID     string           `json:"clientId"`
	Recipient    string           `json:"recipient,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Value        decimal.Decimal  `json:"value"`
	Currency     string           `json:"currency,omitempty"`
	OccurredAt   time.Time        `json:"occurredAt"`
}
