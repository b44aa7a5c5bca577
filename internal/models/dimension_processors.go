package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

func builtinProcessors() []DimensionProcessor {
	return []DimensionProcessor{
		NewValueProcessor(DimensionRegion, func(rc RequestContext) string { return rc.Region }),
		NewValueProcessor(DimensionCountry, func(rc RequestContext) string { return rc.Country }),
		NewValueProcessor(DimensionCity, func(rc RequestContext) string { return rc.City }),
		NewValueProcessor(DimensionGender, func(rc RequestContext) string { return rc.Gender }),
		NewValueProcessor(DimensionSegment, func(rc RequestContext) string { return rc.Segment }),
		NewValueProcessor(DimensionDevice, func(rc RequestContext) string { return rc.Device }),
		NewValueProcessor(DimensionOS, func(rc RequestContext) string { return rc.OS }),
		NewValueProcessor(DimensionBrowser, func(rc RequestContext) string { return rc.Browser }),
		NewValueProcessor(DimensionPlacement, func(rc RequestContext) string { return rc.Placement }),
		NewInterestProcessor(),
		NewAgeProcessor(),
	}
}

// ValueProcessor matches a single-valued, case-insensitive context attribute.
type ValueProcessor struct {
	name    TargetDimension
	extract func(RequestContext) string
}

func NewValueProcessor(name TargetDimension, extract func(RequestContext) string) DimensionProcessor {
	return &ValueProcessor{name: name, extract: extract}
}

func (vp *ValueProcessor) GetName() string {
	return string(vp.name)
}

func (vp *ValueProcessor) GetValues(rc RequestContext) []string {
	if v := vp.NormalizeValue(vp.extract(rc)); v != "" {
		return []string{v}
	}
	return nil
}

func (vp *ValueProcessor) NormalizeValue(value string) string {
	return normalize(value)
}

func (vp *ValueProcessor) ValidateRule(rule TargetingRule) error {
	return requireValues(vp.GetName(), rule)
}

func (vp *ValueProcessor) MatchesRule(requestValue string, rule TargetingRule) bool {
	normalizedRequest := vp.NormalizeValue(requestValue)

	for _, ruleValue := range rule.Values {
		if normalizedRequest == vp.NormalizeValue(ruleValue) {
			return true
		}
	}

	return false
}

// InterestProcessor matches when any of the viewer's interests is targeted.
type InterestProcessor struct {
	ValueProcessor
}

func NewInterestProcessor() DimensionProcessor {
	return &InterestProcessor{ValueProcessor{name: DimensionInterest}}
}

func (ip *InterestProcessor) GetValues(rc RequestContext) []string {
	values := make([]string, 0, len(rc.Interests))
	for _, i := range rc.Interests {
		if n := ip.NormalizeValue(i); n != "" {
			values = append(values, n)
		}
	}
	return values
}

// AgeProcessor handles inclusive age ranges written as "min-max" or "min-".
type AgeProcessor struct{}

func NewAgeProcessor() DimensionProcessor {
	return &AgeProcessor{}
}

func (ap *AgeProcessor) GetName() string {
	return string(DimensionAge)
}

func (ap *AgeProcessor) GetValues(rc RequestContext) []string {
	if rc.Age <= 0 {
		return nil
	}
	return []string{strconv.Itoa(rc.Age)}
}

func (ap *AgeProcessor) NormalizeValue(value string) string {
	return strings.TrimSpace(value)
}

func (ap *AgeProcessor) ValidateRule(rule TargetingRule) error {
	if err := requireValues(ap.GetName(), rule); err != nil {
		return err
	}
	for _, v := range rule.Values {
		if _, _, ok := parseAgeRange(v); !ok {
			return fmt.Errorf("age range %q must look like 18-35 or 65-", v)
		}
	}
	return nil
}

func (ap *AgeProcessor) MatchesRule(requestValue string, rule TargetingRule) bool {
	age, err := strconv.Atoi(ap.NormalizeValue(requestValue))
	if err != nil {
		return false
	}
	for _, v := range rule.Values {
		lo, hi, ok := parseAgeRange(v)
		if !ok {
			continue
		}
		if age >= lo && (hi == 0 || age <= hi) {
			return true
		}
	}
	return false
}

func requireValues(name string, rule TargetingRule) error {
	if len(rule.Values) == 0 {
		return fmt.Errorf("%s rule must have at least one value", name)
	}
	for _, value := range rule.Values {
		if strings.TrimSpace(value) == "" {
			return errors.New(name + " rule values cannot be blank")
		}
	}
	return nil
}
