// Package geolocation provides position sources for the locate control: a
// per-request device report carried on the context and a network fallback.
package geolocation

import (
	"context"

	"github.com/couchcryptid/location-picker/internal/domain"
)

// Report is what a client device says about its own location: either a fix
// or the kind of failure it hit.
type Report struct {
	Position *domain.Position
	Kind     domain.GeolocationErrorKind
}

type reportKey struct{}

// WithReport attaches a device report to ctx.
func WithReport(ctx context.Context, r Report) context.Context {
	return context.WithValue(ctx, reportKey{}, r)
}

// ReportFrom returns the device report carried by ctx.
func ReportFrom(ctx context.Context) (Report, bool) {
	r, ok := ctx.Value(reportKey{}).(Report)
	return r, ok
}

// Device answers position requests from the report attached to the request
// context. Without a report it asks Fallback, and without a fallback the
// request fails as UnsupportedFeature. Reports are never cached.
type Device struct {
	Fallback domain.Geolocator
}

// NewDevice creates a device geolocator. fallback may be nil; when set, its
// fixes are reused for PositionOptions.MaximumAge.
func NewDevice(fallback domain.Geolocator) *Device {
	if fallback != nil {
		fallback = domain.NewFixCache(fallback, nil)
	}
	return &Device{Fallback: fallback}
}

// Available reports whether a request carrying ctx can be answered: it has
// a device report or a fallback is configured.
func (d *Device) Available(ctx context.Context) bool {
	if _, ok := ReportFrom(ctx); ok {
		return true
	}
	return domain.GeolocationAvailable(ctx, d.Fallback)
}

func (d *Device) CurrentPosition(ctx context.Context, opts domain.PositionOptions) (domain.Position, error) {
	if r, ok := ReportFrom(ctx); ok {
		if r.Position != nil {
			pos := *r.Position
			if pos.Timestamp.IsZero() {
				pos.Timestamp = domain.Clock().Now()
			}
			return pos, nil
		}
		return domain.Position{}, domain.NewGeolocationError(r.Kind, nil)
	}
	if d.Fallback != nil {
		return d.Fallback.CurrentPosition(ctx, opts)
	}
	return domain.Position{}, domain.NewGeolocationError(domain.UnsupportedFeature, domain.ErrNoGeolocator)
}
