package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Targeting restricts which viewer contexts a campaign may serve. Every field
// is optional; an absent field does not restrict anything.
type Targeting struct {
	Demographics     *Demographics    `json:"demographics,omitempty"`
	Geographic       *Geographic      `json:"geographic,omitempty"`
	Interests        []string         `json:"interests,omitempty"`
	Behavioral       *Behavioral      `json:"behavioral,omitempty"`
	Device           *DeviceTargeting `json:"device,omitempty"`
	Placements       []string         `json:"placements,omitempty"`
	PositionAffinity []string         `json:"positionAffinity,omitempty"`
	Schedule         *Schedule        `json:"schedule,omitempty"`
}

type Demographics struct {
	AgeMin  int      `json:"ageMin,omitempty"`
	AgeMax  int      `json:"ageMax,omitempty"`
	Genders []string `json:"genders,omitempty"`
}

type Geographic struct {
	Regions         []string `json:"regions,omitempty"`
	ExcludedRegions []string `json:"excludedRegions,omitempty"`
	Countries       []string `json:"countries,omitempty"`
	Cities          []string `json:"cities,omitempty"`
}

type Behavioral struct {
	Segments []string `json:"segments,omitempty"`
}

type DeviceTargeting struct {
	Types    []string `json:"types,omitempty"`
	OS       []string `json:"os,omitempty"`
	Browsers []string `json:"browsers,omitempty"`
}

// Schedule limits serving to a window, to weekdays (ISO: Monday=1 .. Sunday=7)
// and to hours of the day (0-23, UTC).
type Schedule struct {
	Start      *time.Time `json:"start,omitempty"`
	End        *time.Time `json:"end,omitempty"`
	DaysOfWeek []int      `json:"daysOfWeek,omitempty"`
	Hours      []int      `json:"hours,omitempty"`
}

// ISOWeekday maps time.Weekday (Sunday=0) onto Monday=1 .. Sunday=7.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// Allows reports whether now satisfies the schedule.
func (s *Schedule) Allows(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.Start != nil && now.Before(*s.Start) {
		return false
	}
	if s.End != nil && now.After(*s.End) {
		return false
	}
	utc := now.UTC()
	if len(s.DaysOfWeek) > 0 && !containsInt(s.DaysOfWeek, ISOWeekday(utc)) {
		return false
	}
	if len(s.Hours) > 0 && !containsInt(s.Hours, utc.Hour()) {
		return false
	}
	return true
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// TargetDimension names one matchable attribute of a request context.
type TargetDimension string

const (
	DimensionRegion    TargetDimension = "region"
	DimensionCountry   TargetDimension = "country"
	DimensionCity      TargetDimension = "city"
	DimensionAge       TargetDimension = "age"
	DimensionGender    TargetDimension = "gender"
	DimensionInterest  TargetDimension = "interest"
	DimensionSegment   TargetDimension = "segment"
	DimensionDevice    TargetDimension = "device_type"
	DimensionOS        TargetDimension = "os"
	DimensionBrowser   TargetDimension = "browser"
	DimensionPlacement TargetDimension = "placement"
)

// RuleType represents include/exclude rule types
type RuleType string

const (
	RuleTypeInclude RuleType = "include"
	RuleTypeExclude RuleType = "exclude"
)

// TargetingRule is one compiled constraint over a single dimension.
type TargetingRule struct {
	Dimension TargetDimension `json:"dimension"`
	RuleType  RuleType        `json:"rule_type"`
	Values    []string        `json:"values"`
}

// Rules compiles the structured targeting into per-dimension rules.
// Empty lists produce no rule.
func (t *Targeting) Rules() []TargetingRule {
	var rules []TargetingRule
	add := func(dim TargetDimension, rt RuleType, values []string) {
		if len(values) > 0 {
			rules = append(rules, TargetingRule{Dimension: dim, RuleType: rt, Values: values})
		}
	}

	if d := t.Demographics; d != nil {
		if d.AgeMin > 0 || d.AgeMax > 0 {
			add(DimensionAge, RuleTypeInclude, []string{formatAgeRange(d.AgeMin, d.AgeMax)})
		}
		add(DimensionGender, RuleTypeInclude, d.Genders)
	}
	if g := t.Geographic; g != nil {
		add(DimensionRegion, RuleTypeInclude, g.Regions)
		add(DimensionRegion, RuleTypeExclude, g.ExcludedRegions)
		add(DimensionCountry, RuleTypeInclude, g.Countries)
		add(DimensionCity, RuleTypeInclude, g.Cities)
	}
	add(DimensionInterest, RuleTypeInclude, t.Interests)
	if b := t.Behavioral; b != nil {
		add(DimensionSegment, RuleTypeInclude, b.Segments)
	}
	if d := t.Device; d != nil {
		add(DimensionDevice, RuleTypeInclude, d.Types)
		add(DimensionOS, RuleTypeInclude, d.OS)
		add(DimensionBrowser, RuleTypeInclude, d.Browsers)
	}
	add(DimensionPlacement, RuleTypeInclude, t.Placements)
	return rules
}

// IsEmpty reports whether the targeting restricts nothing.
func (t *Targeting) IsEmpty() bool {
	return len(t.Rules()) == 0 && t.Schedule == nil
}

// HasAffinity reports whether the campaign prefers the given placement.
func (t *Targeting) HasAffinity(placement string) bool {
	placement = normalize(placement)
	if placement == "" {
		return false
	}
	for _, p := range t.PositionAffinity {
		if normalize(p) == placement {
			return true
		}
	}
	return false
}

// Validate checks the structural constraints of the targeting.
func (t *Targeting) Validate() error {
	if d := t.Demographics; d != nil {
		if d.AgeMin < 0 || d.AgeMax < 0 || (d.AgeMax > 0 && d.AgeMin > d.AgeMax) {
			return Validationf("invalid age range %d-%d", d.AgeMin, d.AgeMax)
		}
	}
	if s := t.Schedule; s != nil {
		if s.Start != nil && s.End != nil && !s.Start.Before(*s.End) {
			return fmt.Errorf("%w: schedule start must be before schedule end", ErrInvalidDateRange)
		}
		for _, d := range s.DaysOfWeek {
			if d < 1 || d > 7 {
				return Validationf("daysOfWeek must be within 1-7 (Monday=1), got %d", d)
			}
		}
		for _, h := range s.Hours {
			if h < 0 || h > 23 {
				return Validationf("hours must be within 0-23, got %d", h)
			}
		}
	}
	return nil
}

// Value stores targeting as a JSON document.
func (t Targeting) Value() (driver.Value, error) {
	return json.Marshal(t)
}

// Scan reads targeting from a JSON document column.
func (t *Targeting) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = Targeting{}
		return nil
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return fmt.Errorf("unsupported targeting column type %T", src)
	}
}

func formatAgeRange(min, max int) string {
	if max == 0 {
		return strconv.Itoa(min) + "-"
	}
	return strconv.Itoa(min) + "-" + strconv.Itoa(max)
}

// parseAgeRange parses "min-max" or "min-" (open upper bound).
func parseAgeRange(s string) (min, max int, ok bool) {
	lo, hi, found := strings.Cut(strings.TrimSpace(s), "-")
	if !found {
		return 0, 0, false
	}
	min, err := strconv.Atoi(lo)
	if err != nil {
		return 0, 0, false
	}
	if hi == "" {
		return min, 0, true
	}
	max, err = strconv.Atoi(hi)
	if err != nil {
		return 0, 0, false
	}
	return min, max, true
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
