package domain

import "context"

// GeocodingResult contains structured location data returned by a geocoding
// provider. Country is an ISO 3166-1 alpha-2 code.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	City             string
	State            string
	County           string
	ZipCode          string
	Country          string
	FormattedAddress string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Geocoder resolves free-text locations into structured fields.
type Geocoder interface {
	ForwardGeocode(ctx context.Context, query string) (GeocodingResult, error)
}
