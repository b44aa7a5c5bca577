package models

import (
	"slices"
	"strings"
	"time"
)

// RequestContext describes the viewer a selection is made for.
type RequestContext struct {
	UserID    string   `json:"userId,omitempty"`
	Region    string   `json:"region,omitempty"`
	Country   string   `json:"country,omitempty"`
	City      string   `json:"city,omitempty"`
	Age       int      `json:"age,omitempty"`
	Gender    string   `json:"gender,omitempty"`
	Interests []string `json:"interests,omitempty"`
	Segment   string   `json:"segment,omitempty"`
	Device    string   `json:"device,omitempty"`
	OS        string   `json:"os,omitempty"`
	Browser   string   `json:"browser,omitempty"`
	Placement string   `json:"placement,omitempty"`

	// Now is the evaluation instant for schedule checks.
	Now time.Time `json:"-"`
}

// Normalize converts request values to lowercase for consistent comparison
func (rc *RequestContext) Normalize() {
	rc.UserID = strings.TrimSpace(rc.UserID)
	rc.Region = normalize(rc.Region)
	rc.Country = normalize(rc.Country)
	rc.City = normalize(rc.City)
	rc.Gender = normalize(rc.Gender)
	rc.Segment = normalize(rc.Segment)
	rc.Device = normalize(rc.Device)
	rc.OS = normalize(rc.OS)
	rc.Browser = normalize(rc.Browser)
	rc.Placement = normalize(rc.Placement)
	interests := rc.Interests[:0:0]
	for _, i := range rc.Interests {
		if n := normalize(i); n != "" {
			interests = append(interests, n)
		}
	}
	rc.Interests = interests
}

// SelectionRequest asks for the best creatives for one placement.
type SelectionRequest struct {
	Placement string         `json:"placement"`
	Type      AdType         `json:"type,omitempty"`
	Limit     int            `json:"limit"`
	Category  string         `json:"category,omitempty"`
	Context   RequestContext `json:"context"`
}

// Validate checks if the request has all required parameters
func (r *SelectionRequest) Validate(maxLimit int) error {
	if strings.TrimSpace(r.Placement) == "" {
		return Validationf("missing placement param")
	}
	if r.Type != "" && !r.Type.IsValid() {
		return Validationf("invalid type param %q", r.Type)
	}
	if r.Limit < 0 || (maxLimit > 0 && r.Limit > maxLimit) {
		return Validationf("limit must be within 1-%d", maxLimit)
	}
	return nil
}

// Normalize lowercases the request and copies the placement into the context.
func (r *SelectionRequest) Normalize(defaultLimit int) {
	r.Placement = normalize(r.Placement)
	r.Category = normalize(r.Category)
	r.Type = AdType(normalize(string(r.Type)))
	if r.Limit == 0 {
		r.Limit = defaultLimit
	}
	r.Context.Normalize()
	r.Context.Placement = r.Placement
	// The page category is a contextual interest.
	if r.Category != "" && !slices.Contains(r.Context.Interests, r.Category) {
		r.Context.Interests = append(r.Context.Interests, r.Category)
	}
}
