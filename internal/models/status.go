package models

import "fmt"

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "draft"
	StatusPending   CampaignStatus = "pending"
	StatusActive    CampaignStatus = "active"
	StatusPaused    CampaignStatus = "paused"
	StatusCompleted CampaignStatus = "completed"
	StatusCancelled CampaignStatus = "cancelled"
)

// allowedTransitions is the complete transition table. Terminal states have no entry.
var allowedTransitions = map[CampaignStatus][]CampaignStatus{
	StatusDraft:   {StatusPending, StatusActive, StatusCancelled},
	StatusPending: {StatusActive, StatusDraft, StatusCancelled},
	StatusActive:  {StatusPaused, StatusCompleted, StatusCancelled},
	StatusPaused:  {StatusActive, StatusCompleted, StatusCancelled},
}

func (s CampaignStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusActive, StatusPaused, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition can leave s.
func (s CampaignStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to CampaignStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition for moves outside the table.
func ValidateTransition(from, to CampaignStatus) error {
	if !to.IsValid() {
		return Validationf("unknown status %q", to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// CreativeStatus is the review/serving state of a creative.
type CreativeStatus string

const (
	CreativeDraft    CreativeStatus = "draft"
	CreativePending  CreativeStatus = "pending"
	CreativeActive   CreativeStatus = "active"
	CreativePaused   CreativeStatus = "paused"
	CreativeArchived CreativeStatus = "archived"
)

func (s CreativeStatus) IsValid() bool {
	switch s {
	case CreativeDraft, CreativePending, CreativeActive, CreativePaused, CreativeArchived:
		return true
	}
	return false
}
