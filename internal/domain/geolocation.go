package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// PositionOptions mirrors the knobs of a platform location API.
type PositionOptions struct {
	EnableHighAccuracy bool
	Timeout            time.Duration
	MaximumAge         time.Duration // a fix younger than this may be reused
}

// DefaultPositionOptions requests a high-accuracy fix within 10s and accepts
// a cached fix up to 10s old.
func DefaultPositionOptions() PositionOptions {
	return PositionOptions{
		EnableHighAccuracy: true,
		Timeout:            10 * time.Second,
		MaximumAge:         10 * time.Second,
	}
}

// Position is a device location fix.
type Position struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy,omitempty"` // meters
	Timestamp time.Time `json:"timestamp"`
}

// Geolocator reads the current device position.
type Geolocator interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error)
}

// Availability is implemented by geolocators that can tell, before any read,
// whether a request carrying ctx can be answered at all.
type Availability interface {
	Available(ctx context.Context) bool
}

// GeolocationAvailable reports whether g may attempt a read for ctx. A nil
// source is never available; a source without [Availability] always is.
func GeolocationAvailable(ctx context.Context, g Geolocator) bool {
	if g == nil {
		return false
	}
	if a, ok := g.(Availability); ok {
		return a.Available(ctx)
	}
	return true
}

// GeolocationErrorKind classifies why a position could not be obtained.
type GeolocationErrorKind int

const (
	GeolocationUnknown GeolocationErrorKind = iota
	PermissionDenied
	PositionUnavailable
	GeolocationTimeout
	UnsupportedFeature
)

var kindNames = map[GeolocationErrorKind]string{
	GeolocationUnknown:  "unknown",
	PermissionDenied:    "permission_denied",
	PositionUnavailable: "position_unavailable",
	GeolocationTimeout:  "timeout",
	UnsupportedFeature:  "unsupported_feature",
}

var kindMessages = map[GeolocationErrorKind]string{
	GeolocationUnknown:  "An unknown error occurred while retrieving your location.",
	PermissionDenied:    "Location access was denied. Allow location access and try again.",
	PositionUnavailable: "Your location is currently unavailable.",
	GeolocationTimeout:  "Retrieving your location took too long. Please try again.",
	UnsupportedFeature:  "Geolocation is not supported on this device.",
}

func (k GeolocationErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[GeolocationUnknown]
}

// ParseGeolocationErrorKind maps a kind name (as produced by String) back to
// its value. Unrecognized names map to GeolocationUnknown.
func ParseGeolocationErrorKind(s string) GeolocationErrorKind {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return GeolocationUnknown
}

// GeolocationError is a classified position failure. Message is user-facing.
type GeolocationError struct {
	Kind    GeolocationErrorKind
	Message string
	Err     error
}

// NewGeolocationError creates an error of the given kind with its default
// user-facing message.
func NewGeolocationError(kind GeolocationErrorKind, cause error) *GeolocationError {
	return &GeolocationError{Kind: kind, Message: kindMessages[kind], Err: cause}
}

func (e *GeolocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geolocation %s: %v", e.Kind, e.Err)
	}
	return "geolocation " + e.Kind.String()
}

func (e *GeolocationError) Unwrap() error { return e.Err }

// ErrNoGeolocator is the cause attached to UnsupportedFeature errors raised
// when no position source is available.
var ErrNoGeolocator = errors.New("no geolocation source available")

// ClassifyGeolocationError maps any error from a Geolocator onto the
// geolocation error taxonomy.
func ClassifyGeolocationError(err error) *GeolocationError {
	if err == nil {
		return nil
	}

	var gerr *GeolocationError
	if errors.As(err, &gerr) {
		if gerr.Message == "" {
			gerr.Message = kindMessages[gerr.Kind]
		}
		return gerr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewGeolocationError(GeolocationTimeout, err)
	case errors.Is(err, ErrNoGeolocator):
		return NewGeolocationError(UnsupportedFeature, err)
	default:
		return NewGeolocationError(GeolocationUnknown, err)
	}
}

// FixCache decorates a Geolocator so that a fix younger than
// PositionOptions.MaximumAge is reused without a new read.
type FixCache struct {
	source Geolocator
	clock  clockwork.Clock

	mu   sync.Mutex
	last *Position
}

// NewFixCache wraps source. A nil clock uses the package clock.
func NewFixCache(source Geolocator, c clockwork.Clock) *FixCache {
	if c == nil {
		c = clock
	}
	return &FixCache{source: source, clock: c}
}

// Available forwards to the wrapped source.
func (f *FixCache) Available(ctx context.Context) bool {
	return GeolocationAvailable(ctx, f.source)
}

func (f *FixCache) CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error) {
	if opts.MaximumAge > 0 {
		f.mu.Lock()
		last := f.last
		f.mu.Unlock()
		if last != nil && f.clock.Since(last.Timestamp) <= opts.MaximumAge {
			return *last, nil
		}
	}

	pos, err := f.source.CurrentPosition(ctx, opts)
	if err != nil {
		return Position{}, err
	}
	if pos.Timestamp.IsZero() {
		pos.Timestamp = f.clock.Now()
	}

	f.mu.Lock()
	f.last = &pos
	f.mu.Unlock()
	return pos, nil
}
