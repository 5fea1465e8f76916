package feepolicy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	minPercent = decimal.Zero
	maxPercent = decimal.NewFromInt(100)
)

// Registry holds the platform fee percentage applied when an escrow is funded
type Registry struct {
	defaultPercent decimal.Decimal
	byCategory     map[string]decimal.Decimal
}

// NewRegistry creates a registry with a default percent and per-category overrides
func NewRegistry(defaultPercent decimal.Decimal, overrides map[string]decimal.Decimal) (*Registry, error) {
	if err := validatePercent(defaultPercent); err != nil {
		return nil, fmt.Errorf("invalid default fee percent: %w", err)
	}

	registry := &Registry{
		defaultPercent: defaultPercent,
		byCategory:     make(map[string]decimal.Decimal, len(overrides)),
	}

	for category, percent := range overrides {
		if err := validatePercent(percent); err != nil {
			return nil, fmt.Errorf("invalid fee percent for category %s: %w", category, err)
		}
		registry.byCategory[normalize(category)] = percent
	}

	return registry, nil
}

// ParseOverrides reads "design=25,video=30" into a category map
func ParseOverrides(raw string) (map[string]decimal.Decimal, error) {
	overrides := make(map[string]decimal.Decimal)
	if strings.TrimSpace(raw) == "" {
		return overrides, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		category, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(category) == "" {
			return nil, fmt.Errorf("malformed fee override %q", pair)
		}
		percent, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("malformed fee override %q: %w", pair, err)
		}
		overrides[normalize(category)] = percent
	}

	return overrides, nil
}

// PercentFor returns the fee percent for a category (case-insensitive),
// falling back to the default
func (r *Registry) PercentFor(category string) decimal.Decimal {
	if percent, exists := r.byCategory[normalize(category)]; exists {
		return percent
	}
	return r.defaultPercent
}

// Default returns the default fee percent
func (r *Registry) Default() decimal.Decimal {
	return r.defaultPercent
}

// Categories returns all categories with an override, sorted
func (r *Registry) Categories() []string {
	categories := make([]string, 0, len(r.byCategory))
	for category := range r.byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

func validatePercent(percent decimal.Decimal) error {
	if percent.LessThan(minPercent) || percent.GreaterThan(maxPercent) {
		return fmt.Errorf("percent %s out of range [0, 100]", percent.String())
	}
	// escrows store the percent as NUMERIC(5,2)
	if !percent.Equal(percent.Round(2)) {
		return fmt.Errorf("percent %s has more than 2 decimal places", percent.String())
	}
	return nil
}

func normalize(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}
