package domain

import (
	"context"
	"log/slog"
	"strings"
)

// EnrichLocation resolves a free-text location into the report's structured
// location fields. It only runs when the submitter gave a location string and
// none of the structured fields are already set. The platform only maps US
// communities, so non-US results are discarded. Geocoder failures degrade
// gracefully, leaving the fields null.
func EnrichLocation(ctx context.Context, r Report, locationText string, geocoder Geocoder, logger *slog.Logger) Report {
	if geocoder == nil {
		return r
	}
	locationText = strings.TrimSpace(locationText)
	if locationText == "" || hasLocation(r) {
		return r
	}

	result, err := geocoder.ForwardGeocode(ctx, locationText)
	if err != nil {
		logger.Warn("geocoding failed",
			"report_id", r.ReportID,
			"location", locationText,
			"error", err,
		)
		return r
	}
	if result.Country != "" && !strings.EqualFold(result.Country, "US") {
		logger.Info("discarding non-US geocode result",
			"report_id", r.ReportID,
			"location", locationText,
			"country", result.Country,
		)
		return r
	}
	if result.Lat == 0 && result.Lon == 0 && result.City == "" && result.State == "" {
		return r
	}

	if result.City != "" {
		r.City = &result.City
	}
	if result.State != "" {
		r.State = &result.State
	}
	if result.County != "" {
		r.County = &result.County
	}
	if result.ZipCode != "" {
		r.ZipCode = &result.ZipCode
	}
	if result.FormattedAddress != "" && r.Address == nil {
		r.Address = &result.FormattedAddress
	}
	if result.Lat != 0 || result.Lon != 0 {
		lat, lon := result.Lat, result.Lon
		r.Latitude = &lat
		r.Longitude = &lon
	}
	return r
}

// hasLocation reports whether any structured location field is already
// populated. Enrichment never overwrites submitter-provided fields.
func hasLocation(r Report) bool {
	return r.City != nil || r.State != nil || r.County != nil ||
		r.Latitude != nil || r.Longitude != nil
}
