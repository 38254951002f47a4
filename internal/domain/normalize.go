package domain

import "strings"

// Synonym tables folding submitter vocabulary onto the canonical enums.
// Keys are lowercased before lookup.
var (
	severitySynonyms = map[string]string{
		"low":       SeverityLow,
		"minor":     SeverityLow,
		"mild":      SeverityLow,
		"moderate":  SeverityModerate,
		"medium":    SeverityModerate,
		"med":       SeverityModerate,
		"high":      SeverityHigh,
		"severe":    SeverityHigh,
		"serious":   SeverityHigh,
		"urgent":    SeverityHigh,
		"critical":  SeverityCritical,
		"extreme":   SeverityCritical,
		"emergency": SeverityCritical,
	}

	typeSynonyms = map[string]string{
		"health":        TypeHealth,
		"medical":       TypeHealth,
		"illness":       TypeHealth,
		"disease":       TypeHealth,
		"environmental": TypeEnvironmental,
		"environment":   TypeEnvironmental,
		"env":           TypeEnvironmental,
		"pollution":     TypeEnvironmental,
		"weather":       TypeWeather,
		"storm":         TypeWeather,
		"climate":       TypeWeather,
		"emergency":     TypeEmergency,
		"disaster":      TypeEmergency,
	}

	timeframeSynonyms = map[string]string{
		"now":        TimeframeNow,
		"current":    TimeframeNow,
		"right now":  TimeframeNow,
		"1hour":      TimeframeHour,
		"1 hour":     TimeframeHour,
		"hour":       TimeframeHour,
		"past hour":  TimeframeHour,
		"today":      TimeframeToday,
		"yesterday":  TimeframeYesterday,
		"week":       TimeframeWeek,
		"this week":  TimeframeWeek,
		"past week":  TimeframeWeek,
		"ongoing":    TimeframeOngoing,
		"continuing": TimeframeOngoing,
	}
)

// Description keywords used by InferSeverity, checked in order of urgency.
var (
	criticalKeywords = []string{
		"explosion", "death", "fatal", "collapse", "shooting",
		"gas leak", "overdose", "unresponsive", "not breathing", "trapped",
	}
	highKeywords = []string{
		"fire", "flood", "injur", "chemical", "outbreak",
		"evacuat", "spill", "tornado", "contaminat", "hospitalized",
	}
	lowKeywords = []string{
		"odor", "litter", "noise", "graffiti", "pothole", "minor",
	}
)

// NormalizeSeverity folds a loose severity value onto the canonical set. When
// the value is empty or unrecognized, severity is inferred from the
// description instead.
func NormalizeSeverity(value, description string) string {
	if canonical, ok := severitySynonyms[strings.ToLower(strings.TrimSpace(value))]; ok {
		return canonical
	}
	return InferSeverity(description)
}

// InferSeverity derives a severity from keywords in the description. The
// default is moderate: an unclassifiable citizen report warrants review but
// not paging anyone.
func InferSeverity(description string) string {
	desc := strings.ToLower(description)
	for _, kw := range criticalKeywords {
		if strings.Contains(desc, kw) {
			return SeverityCritical
		}
	}
	for _, kw := range highKeywords {
		if strings.Contains(desc, kw) {
			return SeverityHigh
		}
	}
	for _, kw := range lowKeywords {
		if strings.Contains(desc, kw) {
			return SeverityLow
		}
	}
	return SeverityModerate
}

// NormalizeType folds a loose report type onto the canonical set. Ambiguous
// or empty values default to health.
func NormalizeType(value string) string {
	if canonical, ok := typeSynonyms[strings.ToLower(strings.TrimSpace(value))]; ok {
		return canonical
	}
	return TypeHealth
}

// NormalizeTimeframe folds a loose timeframe onto the canonical set,
// defaulting to today.
func NormalizeTimeframe(value string) string {
	if canonical, ok := timeframeSynonyms[strings.ToLower(strings.TrimSpace(value))]; ok {
		return canonical
	}
	return TimeframeToday
}

// NormalizeSpecificType trims the free-text subtype, defaulting to
// "unspecified".
func NormalizeSpecificType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unspecified"
	}
	return value
}
