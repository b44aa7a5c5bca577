package models

import (
	"testing"
	"time"
)

func TestDimensionRegistry(t *testing.T) {
	registry := NewDimensionRegistry()

	expectedDimensions := []string{
		"region", "country", "city", "age", "gender", "interest",
		"segment", "device_type", "os", "browser", "placement",
	}
	actualDimensions := registry.ListDimensions()

	if len(actualDimensions) != len(expectedDimensions) {
		t.Errorf("Expected %d dimensions, got %d", len(expectedDimensions), len(actualDimensions))
	}

	for _, expected := range expectedDimensions {
		if _, exists := registry.GetProcessor(expected); !exists {
			t.Errorf("Expected dimension %s to be registered", expected)
		}
	}
}

func TestTargetingMatcher_OpenWorld(t *testing.T) {
	matcher := NewTargetingMatcher(NewDimensionRegistry())

	tests := []struct {
		name      string
		targeting *Targeting
		ctx       RequestContext
		want      bool
	}{
		{
			name:      "nil targeting matches everyone",
			targeting: nil,
			ctx:       RequestContext{Region: "oromia"},
			want:      true,
		},
		{
			name:      "empty targeting matches everyone",
			targeting: &Targeting{},
			ctx:       RequestContext{},
			want:      true,
		},
		{
			name:      "no geographic targeting matches any region",
			targeting: &Targeting{Interests: []string{"tech"}},
			ctx:       RequestContext{Region: "oromia", Interests: []string{"tech"}},
			want:      true,
		},
		{
			name:      "region mismatch",
			targeting: &Targeting{Geographic: &Geographic{Regions: []string{"addis_ababa"}}},
			ctx:       RequestContext{Region: "oromia"},
			want:      false,
		},
		{
			name:      "region match is case insensitive",
			targeting: &Targeting{Geographic: &Geographic{Regions: []string{"Addis_Ababa"}}},
			ctx:       RequestContext{Region: "addis_ababa"},
			want:      true,
		},
		{
			name:      "missing region with region include does not match",
			targeting: &Targeting{Geographic: &Geographic{Regions: []string{"addis_ababa"}}},
			ctx:       RequestContext{},
			want:      false,
		},
		{
			name:      "excluded region",
			targeting: &Targeting{Geographic: &Geographic{ExcludedRegions: []string{"tigray"}}},
			ctx:       RequestContext{Region: "tigray"},
			want:      false,
		},
		{
			name:      "exclusion alone allows other regions",
			targeting: &Targeting{Geographic: &Geographic{ExcludedRegions: []string{"tigray"}}},
			ctx:       RequestContext{Region: "amhara"},
			want:      true,
		},
		{
			name:      "any overlapping interest matches",
			targeting: &Targeting{Interests: []string{"jobs", "education"}},
			ctx:       RequestContext{Interests: []string{"sports", "Education"}},
			want:      true,
		},
		{
			name:      "age inside range",
			targeting: &Targeting{Demographics: &Demographics{AgeMin: 18, AgeMax: 35}},
			ctx:       RequestContext{Age: 25},
			want:      true,
		},
		{
			name:      "age outside range",
			targeting: &Targeting{Demographics: &Demographics{AgeMin: 18, AgeMax: 35}},
			ctx:       RequestContext{Age: 40},
			want:      false,
		},
		{
			name:      "open ended age range",
			targeting: &Targeting{Demographics: &Demographics{AgeMin: 50}},
			ctx:       RequestContext{Age: 80},
			want:      true,
		},
		{
			name:      "all constrained dimensions must pass",
			targeting: &Targeting{Device: &DeviceTargeting{Types: []string{"mobile"}}, Behavioral: &Behavioral{Segments: []string{"job_seeker"}}},
			ctx:       RequestContext{Device: "mobile", Segment: "employer"},
			want:      false,
		},
		{
			name:      "placement restriction",
			targeting: &Targeting{Placements: []string{"sidebar"}},
			ctx:       RequestContext{Placement: "header"},
			want:      false,
		},
		{
			name:      "position affinity does not restrict",
			targeting: &Targeting{PositionAffinity: []string{"sidebar"}},
			ctx:       RequestContext{Placement: "header"},
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matcher.Matches(tt.targeting, tt.ctx); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTargetingMatcher_Schedule(t *testing.T) {
	matcher := NewTargetingMatcher(NewDimensionRegistry())

	// 2026-03-02 is a Monday.
	monday10 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	sunday10 := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)
	windowStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		schedule *Schedule
		now      time.Time
		want     bool
	}{
		{"monday is day 1", &Schedule{DaysOfWeek: []int{1}}, monday10, true},
		{"sunday is day 7", &Schedule{DaysOfWeek: []int{7}}, sunday10, true},
		{"sunday is not day 0", &Schedule{DaysOfWeek: []int{1, 2, 3, 4, 5, 6}}, sunday10, false},
		{"hour allowed", &Schedule{Hours: []int{9, 10, 11}}, monday10, true},
		{"hour not allowed", &Schedule{Hours: []int{20, 21}}, monday10, false},
		{"inside window", &Schedule{Start: &windowStart, End: &windowEnd}, monday10, true},
		{"before window", &Schedule{Start: &windowStart, End: &windowEnd}, windowStart.Add(-time.Hour), false},
		{"after window", &Schedule{Start: &windowStart, End: &windowEnd}, windowEnd.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targeting := &Targeting{Schedule: tt.schedule}
			if got := matcher.Matches(targeting, RequestContext{Now: tt.now}); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestISOWeekday(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // Monday
	for i := 0; i < 7; i++ {
		if got := ISOWeekday(start.AddDate(0, 0, i)); got != i+1 {
			t.Errorf("ISOWeekday(day %d) = %d, want %d", i, got, i+1)
		}
	}
}

func TestTargetingMatcher_ValidateTargeting(t *testing.T) {
	matcher := NewTargetingMatcher(NewDimensionRegistry())

	valid := &Targeting{
		Geographic:   &Geographic{Regions: []string{"addis_ababa"}},
		Demographics: &Demographics{AgeMin: 18, AgeMax: 35},
		Schedule:     &Schedule{DaysOfWeek: []int{1, 7}, Hours: []int{0, 23}},
	}
	if err := matcher.ValidateTargeting(valid); err != nil {
		t.Errorf("Expected valid targeting, got %v", err)
	}

	invalid := []*Targeting{
		{Schedule: &Schedule{DaysOfWeek: []int{0}}},
		{Schedule: &Schedule{Hours: []int{24}}},
		{Demographics: &Demographics{AgeMin: 40, AgeMax: 20}},
		{Geographic: &Geographic{Regions: []string{" "}}},
	}
	for i, targeting := range invalid {
		if err := matcher.ValidateTargeting(targeting); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestCustomDimensionRegistration(t *testing.T) {
	registry := NewDimensionRegistry()
	registry.RegisterProcessor(NewValueProcessor("language", func(rc RequestContext) string { return rc.Segment }))

	processor, exists := registry.GetProcessor("language")
	if !exists {
		t.Fatal("Expected language dimension to be registered")
	}
	if processor.GetName() != "language" {
		t.Errorf("Expected processor name to be 'language', got '%s'", processor.GetName())
	}
}
