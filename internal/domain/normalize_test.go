package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		name        string
		value       string
		description string
		expected    string
	}{
		{"canonical passes through", "high", "", SeverityHigh},
		{"severe maps to high", "severe", "", SeverityHigh},
		{"uppercase severe", "SEVERE", "", SeverityHigh},
		{"medium maps to moderate", "medium", "", SeverityModerate},
		{"extreme maps to critical", "extreme", "", SeverityCritical},
		{"minor maps to low", "minor", "", SeverityLow},
		{"whitespace trimmed", "  urgent  ", "", SeverityHigh},
		{"empty falls back to inference", "", "smoke near I-5", SeverityModerate},
		{"unknown falls back to inference", "catastrophic?", "house fire on elm st", SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeSeverity(tt.value, tt.description))
		})
	}
}

func TestInferSeverity(t *testing.T) {
	tests := []struct {
		name        string
		description string
		expected    string
	}{
		{"explosion is critical", "heard an explosion downtown", SeverityCritical},
		{"gas leak is critical", "strong gas leak smell in the building", SeverityCritical},
		{"fire is high", "brush fire spreading near the park", SeverityHigh},
		{"flooding is high", "street flooding after the storm", SeverityHigh},
		{"injured stem matches", "two people injured at the crossing", SeverityHigh},
		{"evacuation stem matches", "they are evacuating the block", SeverityHigh},
		{"odor is low", "weird odor from the drain", SeverityLow},
		{"default is moderate", "smoke near I-5", SeverityModerate},
		{"empty is moderate", "", SeverityModerate},
		{"critical beats high", "fire and explosion reported", SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, InferSeverity(tt.description))
		})
	}
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{"canonical health", "health", TypeHealth},
		{"environment synonym", "environment", TypeEnvironmental},
		{"env abbreviation", "env", TypeEnvironmental},
		{"storm maps to weather", "storm", TypeWeather},
		{"disaster maps to emergency", "disaster", TypeEmergency},
		{"mixed case", "Environmental", TypeEnvironmental},
		{"ambiguous defaults to health", "something else", TypeHealth},
		{"empty defaults to health", "", TypeHealth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeType(tt.value))
		})
	}
}

func TestNormalizeTimeframe(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{"canonical now", "now", TimeframeNow},
		{"spaced hour", "1 hour", TimeframeHour},
		{"this week", "this week", TimeframeWeek},
		{"continuing maps to ongoing", "continuing", TimeframeOngoing},
		{"unknown defaults to today", "last month", TimeframeToday},
		{"empty defaults to today", "", TimeframeToday},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTimeframe(tt.value))
		})
	}
}

func TestNormalizeSpecificType(t *testing.T) {
	assert.Equal(t, "air quality", NormalizeSpecificType("  air quality "))
	assert.Equal(t, "unspecified", NormalizeSpecificType(""))
	assert.Equal(t, "unspecified", NormalizeSpecificType("   "))
}
