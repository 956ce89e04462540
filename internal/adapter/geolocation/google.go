package geolocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"googlemaps.github.io/maps"

	"github.com/couchcryptid/location-picker/internal/domain"
)

// Google estimates a position with the Google Geolocation API from the
// caller's network. It never reaches high accuracy; EnableHighAccuracy is
// ignored.
type Google struct {
	client *maps.Client
	logger *slog.Logger
}

// NewGoogle creates a network geolocator. Extra options (a base URL for
// tests, an HTTP client) are passed to the Maps client.
func NewGoogle(apiKey string, logger *slog.Logger, opts ...maps.ClientOption) (*Google, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("google geolocation: API key cannot be empty")
	}
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create google maps client: %w", err)
	}
	return &Google{client: client, logger: logger}, nil
}

func (g *Google) CurrentPosition(ctx context.Context, _ domain.PositionOptions) (domain.Position, error) {
	resp, err := g.client.Geolocate(ctx, &maps.GeolocationRequest{ConsiderIP: true})
	if err != nil {
		kind := classifyGoogle(ctx, err)
		g.logger.Debug("google geolocate failed", "kind", kind.String(), "error", err)
		return domain.Position{}, domain.NewGeolocationError(kind, fmt.Errorf("google geolocate: %w", err))
	}
	return domain.Position{
		Lat:       resp.Location.Lat,
		Lng:       resp.Location.Lng,
		Accuracy:  resp.Accuracy,
		Timestamp: domain.Clock().Now(),
	}, nil
}

// classifyGoogle maps a Geolocate failure onto the error taxonomy. The client
// only surfaces the API's error message, so matching is on its text.
func classifyGoogle(ctx context.Context, err error) domain.GeolocationErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.GeolocationTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found"), strings.Contains(msg, "notfound"):
		return domain.PositionUnavailable
	case strings.Contains(msg, "key"), strings.Contains(msg, "denied"),
		strings.Contains(msg, "forbidden"), strings.Contains(msg, "permission"):
		return domain.PermissionDenied
	default:
		return domain.GeolocationUnknown
	}
}
