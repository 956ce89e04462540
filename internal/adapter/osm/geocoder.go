// Package osm adapts the geo-golang OpenStreetMap geocoder to the picker's
// geocoding interfaces.
package osm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	geo "github.com/codingsince1985/geo-golang"
	"github.com/codingsince1985/geo-golang/openstreetmap"

	"github.com/couchcryptid/location-picker/internal/domain"
	"github.com/couchcryptid/location-picker/internal/observability"
)

// Geocoder wraps a geo.Geocoder. The library has no context support, so
// calls run in a goroutine and are abandoned when ctx ends.
type Geocoder struct {
	geocoder geo.Geocoder
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New creates an OSM geocoder. An empty baseURL uses the public Nominatim
// server; otherwise it must end with a slash.
func New(baseURL string, metrics *observability.Metrics, logger *slog.Logger) *Geocoder {
	g := openstreetmap.Geocoder()
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		g = openstreetmap.GeocoderWithURL(baseURL)
	}
	return &Geocoder{geocoder: g, metrics: metrics, logger: logger}
}

func (g *Geocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	addr, err := call(ctx, func() (*geo.Address, error) { return g.geocoder.ReverseGeocode(lat, lon) })
	if err != nil {
		g.metrics.GeocodeRequests.WithLabelValues("reverse", "error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	if addr == nil || strings.TrimSpace(addr.FormattedAddress) == "" {
		g.metrics.GeocodeRequests.WithLabelValues("reverse", "empty").Inc()
		return domain.GeocodingResult{}, nil
	}
	g.metrics.GeocodeRequests.WithLabelValues("reverse", "success").Inc()
	return domain.GeocodingResult{
		Lat:              lat,
		Lon:              lon,
		FormattedAddress: strings.TrimSpace(addr.FormattedAddress),
		PlaceName:        placeName(addr),
	}, nil
}

// Suggest returns at most one candidate: the library resolves a query to its
// best match only.
func (g *Geocoder) Suggest(ctx context.Context, query string, _ int) ([]domain.Candidate, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	loc, err := call(ctx, func() (*geo.Location, error) { return g.geocoder.Geocode(q) })
	if err != nil {
		g.metrics.GeocodeRequests.WithLabelValues("suggest", "error").Inc()
		return nil, fmt.Errorf("suggest geocode request: %w", err)
	}
	if loc == nil {
		g.metrics.GeocodeRequests.WithLabelValues("suggest", "empty").Inc()
		return nil, nil
	}
	g.metrics.GeocodeRequests.WithLabelValues("suggest", "success").Inc()
	return []domain.Candidate{{X: loc.Lng, Y: loc.Lat, Label: q}}, nil
}

func placeName(a *geo.Address) string {
	for _, s := range []string{a.Street, a.Suburb, a.City} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
