package models

import (
	"fmt"
	"time"
)

// DimensionProcessor defines the interface for processing targeting dimensions
type DimensionProcessor interface {
	// GetName returns the dimension name (e.g., "region", "os", "interest")
	GetName() string

	// GetValues extracts the dimension values from a request context.
	// Most dimensions are single-valued; interests are not.
	GetValues(rc RequestContext) []string

	// NormalizeValue normalizes a value for consistent comparison
	NormalizeValue(value string) string

	// ValidateRule checks if a targeting rule is valid for this dimension
	ValidateRule(rule TargetingRule) error

	// MatchesRule checks if a request value matches a targeting rule
	MatchesRule(requestValue string, rule TargetingRule) bool
}

// DimensionRegistry manages all available dimension processors
type DimensionRegistry struct {
	processors map[string]DimensionProcessor
}

// NewDimensionRegistry creates a new dimension registry with built-in processors
func NewDimensionRegistry() *DimensionRegistry {
	registry := &DimensionRegistry{
		processors: make(map[string]DimensionProcessor),
	}

	for _, p := range builtinProcessors() {
		registry.RegisterProcessor(p)
	}

	return registry
}

// RegisterProcessor adds a new dimension processor to the registry.
// Registration happens at wiring time; the registry is read-only afterwards.
func (dr *DimensionRegistry) RegisterProcessor(processor DimensionProcessor) {
	dr.processors[processor.GetName()] = processor
}

// GetProcessor retrieves a dimension processor by name
func (dr *DimensionRegistry) GetProcessor(dimensionName string) (DimensionProcessor, bool) {
	processor, exists := dr.processors[dimensionName]
	return processor, exists
}

// ListDimensions returns all available dimension names
func (dr *DimensionRegistry) ListDimensions() []string {
	dimensions := make([]string, 0, len(dr.processors))
	for name := range dr.processors {
		dimensions = append(dimensions, name)
	}
	return dimensions
}

// TargetingMatcher evaluates campaign targeting against request contexts.
// It holds no mutable state and is safe for concurrent use.
type TargetingMatcher struct {
	Registry *DimensionRegistry
}

// NewTargetingMatcher creates a new matcher with the given registry
func NewTargetingMatcher(registry *DimensionRegistry) *TargetingMatcher {
	return &TargetingMatcher{
		Registry: registry,
	}
}

// Matches reports whether rc satisfies every dimension the targeting constrains.
// Dimensions the targeting leaves out are unrestricted.
func (tm *TargetingMatcher) Matches(t *Targeting, rc RequestContext) bool {
	if t == nil {
		return true
	}

	now := rc.Now
	if now.IsZero() {
		now = time.Now()
	}
	if !t.Schedule.Allows(now) {
		return false
	}

	rules := t.Rules()
	if len(rules) == 0 {
		return true
	}

	rulesByDimension := make(map[string][]TargetingRule, len(rules))
	for _, rule := range rules {
		dimensionName := string(rule.Dimension)
		rulesByDimension[dimensionName] = append(rulesByDimension[dimensionName], rule)
	}

	for dimensionName, dimRules := range rulesByDimension {
		processor, exists := tm.Registry.GetProcessor(dimensionName)
		if !exists {
			// Skip unknown dimensions (backward compatibility)
			continue
		}

		if !tm.dimensionMatches(rc, dimRules, processor) {
			return false
		}
	}

	return true
}

// dimensionMatches checks if request matches rules for a specific dimension using its processor
func (tm *TargetingMatcher) dimensionMatches(rc RequestContext, rules []TargetingRule, processor DimensionProcessor) bool {
	var includeRules, excludeRules []TargetingRule

	for _, rule := range rules {
		switch rule.RuleType {
		case RuleTypeInclude:
			includeRules = append(includeRules, rule)
		case RuleTypeExclude:
			excludeRules = append(excludeRules, rule)
		}
	}

	requestValues := processor.GetValues(rc)
	if len(requestValues) == 0 {
		return len(includeRules) == 0 // No value means only match if no include rules
	}

	if len(includeRules) > 0 && !anyMatches(processor, requestValues, includeRules) {
		return false
	}

	return !anyMatches(processor, requestValues, excludeRules)
}

func anyMatches(processor DimensionProcessor, values []string, rules []TargetingRule) bool {
	for _, rule := range rules {
		for _, v := range values {
			if processor.MatchesRule(v, rule) {
				return true
			}
		}
	}
	return false
}

// ValidateTargeting validates every compiled rule with its processor.
func (tm *TargetingMatcher) ValidateTargeting(t *Targeting) error {
	if err := t.Validate(); err != nil {
		return err
	}
	for _, rule := range t.Rules() {
		processor, exists := tm.Registry.GetProcessor(string(rule.Dimension))
		if !exists {
			return Validationf("unknown dimension: %s", rule.Dimension)
		}
		if err := processor.ValidateRule(rule); err != nil {
			return fmt.Errorf("%w: %s", ErrValidation, err.Error())
		}
	}
	return nil
}
