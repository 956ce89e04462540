package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/location-picker/internal/domain"
	"github.com/couchcryptid/location-picker/internal/observability"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	language   string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client. language, if set, is passed
// through as the response language (e.g. "vi").
func NewClient(token string, timeout time.Duration, language string, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:  defaultBaseURL,
		language: language,
		metrics:  metrics,
		logger:   logger,
	}
}

// ReverseGeocode converts coordinates to place details.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	// Mapbox uses lon,lat order.
	coord := fmt.Sprintf("%.6f,%.6f", lon, lat)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params := c.params()
	params.Set("limit", "1")

	features, err := c.doRequest(ctx, u+"?"+params.Encode(), "reverse")
	if err != nil || len(features) == 0 {
		return domain.GeocodingResult{}, err
	}
	return features[0].result(), nil
}

// Suggest returns autocomplete candidates for partial address text.
func (c *Client) Suggest(ctx context.Context, query string, limit int) ([]domain.Candidate, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := c.params()
	params.Set("autocomplete", "true")
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	features, err := c.doRequest(ctx, u+"?"+params.Encode(), "suggest")
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, len(features))
	for _, f := range features {
		if len(f.Center) != 2 {
			continue
		}
		candidates = append(candidates, domain.Candidate{X: f.Center[0], Y: f.Center[1], Label: f.PlaceName})
	}
	return candidates, nil
}

func (c *Client) params() url.Values {
	params := url.Values{"access_token": {c.token}}
	if c.language != "" {
		params.Set("language", c.language)
	}
	return params
}

func (c *Client) doRequest(ctx context.Context, fullURL, method string) ([]feature, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GeocodeAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("%s geocode request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(mapboxResp.Features) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues(method, "empty").Inc()
		c.logger.Debug("mapbox returned no features", "method", method)
		return nil, nil
	}
	c.metrics.GeocodeRequests.WithLabelValues(method, "success").Inc()
	return mapboxResp.Features, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}

func (f feature) result() domain.GeocodingResult {
	result := domain.GeocodingResult{
		FormattedAddress: f.PlaceName,
		PlaceName:        f.Text,
		Confidence:       f.Relevance,
	}
	if len(f.Center) == 2 {
		result.Lon = f.Center[0]
		result.Lat = f.Center[1]
	}
	return result
}
