package feepolicy

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPercentFor(t *testing.T) {
	overrides, err := ParseOverrides("Design=25, video = 30")
	if err != nil {
		t.Fatalf("Failed to parse overrides: %v", err)
	}

	registry, err := NewRegistry(decimal.NewFromInt(33), overrides)
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	tests := []struct {
		category string
		want     string
	}{
		{category: "design", want: "25"},
		{category: "DESIGN", want: "25"},
		{category: "video", want: "30"},
		{category: "music", want: "33"},
		{category: "", want: "33"},
	}

	for _, test := range tests {
		t.Run(test.category, func(t *testing.T) {
			got := registry.PercentFor(test.category)
			if !got.Equal(decimal.RequireFromString(test.want)) {
				t.Errorf("Expected %s, got %s", test.want, got)
			}
		})
	}

	if got := registry.Categories(); len(got) != 2 || got[0] != "design" || got[1] != "video" {
		t.Errorf("Unexpected categories: %v", got)
	}
}

func TestRegistryRejectsOutOfRange(t *testing.T) {
	if _, err := NewRegistry(decimal.NewFromInt(101), nil); err == nil {
		t.Error("Expected error for default percent above 100")
	}

	overrides := map[string]decimal.Decimal{"design": decimal.NewFromInt(-1)}
	if _, err := NewRegistry(decimal.NewFromInt(33), overrides); err == nil {
		t.Error("Expected error for negative override")
	}
}

func TestRegistryRejectsSubCentPrecision(t *testing.T) {
	tests := []struct {
		name      string
		def       string
		overrides map[string]decimal.Decimal
		wantErr   bool
	}{
		{name: "TwoPlaces", def: "33.33", wantErr: false},
		{name: "TrailingZeros", def: "33.3300", wantErr: false},
		{name: "DefaultThreePlaces", def: "33.333", wantErr: true},
		{name: "OverrideThreePlaces", def: "33", overrides: map[string]decimal.Decimal{"video": decimal.RequireFromString("20.005")}, wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewRegistry(decimal.RequireFromString(test.def), test.overrides)
			if (err != nil) != test.wantErr {
				t.Errorf("Expected error=%v, got %v", test.wantErr, err)
			}
		})
	}
}

func TestParseOverridesMalformed(t *testing.T) {
	for _, raw := range []string{"design", "=20", "design=abc"} {
		if _, err := ParseOverrides(raw); err == nil {
			t.Errorf("Expected error for %q", raw)
		}
	}
}
