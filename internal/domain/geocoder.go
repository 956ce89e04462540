package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Candidate is one autocomplete suggestion. X is the longitude and Y the
// latitude, matching the shape autocomplete providers usually expose.
type Candidate struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label"`
}

// ReverseGeocoder converts coordinates to place details.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}

// Suggester returns ranked address candidates for partial text input.
type Suggester interface {
	Suggest(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// Geocoder is a provider that supports both lookups.
type Geocoder interface {
	ReverseGeocoder
	Suggester
}
