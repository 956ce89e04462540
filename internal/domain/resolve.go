package domain

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Resolver turns coordinates into a display address. It never fails: when the
// geocoder is missing, errors, times out, or answers without an address, the
// coordinate string from FallbackAddress is returned instead (graceful
// degradation).
type Resolver struct {
	geocoder ReverseGeocoder
	timeout  time.Duration
	logger   *slog.Logger
}

// NewResolver creates a Resolver. A zero timeout leaves the deadline to the
// caller's context and the transport.
func NewResolver(geocoder ReverseGeocoder, timeout time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		geocoder: geocoder,
		timeout:  timeout,
		logger:   logger,
	}
}

// Resolve looks up the address for lat/lng. The lookup is not retried.
func (r *Resolver) Resolve(ctx context.Context, lat, lng float64) string {
	fallback := FallbackAddress(lat, lng)
	if r == nil || r.geocoder == nil {
		return fallback
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	result, err := r.geocoder.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		r.logger.Warn("reverse geocoding failed, using coordinates",
			"lat", lat,
			"lng", lng,
			"error", err,
		)
		return fallback
	}

	address := strings.TrimSpace(result.FormattedAddress)
	if address == "" {
		r.logger.Debug("reverse geocoding returned no address, using coordinates",
			"lat", lat,
			"lng", lng,
		)
		return fallback
	}
	return address
}
