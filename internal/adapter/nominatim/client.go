package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/location-picker/internal/domain"
	"github.com/couchcryptid/location-picker/internal/observability"
)

const (
	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "location-picker/1.0"
)

// Config configures a Nominatim client.
type Config struct {
	BaseURL   string
	UserAgent string
	Language  string        // Accept-Language, e.g. "vi,en"
	Timeout   time.Duration // per request; 0 means 6s
	RateLimit float64       // requests per second; 0 disables limiting
}

// Client implements domain.Geocoder against a Nominatim server. The public
// server allows one request per second, which RateLimit enforces.
type Client struct {
	baseURL    string
	userAgent  string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Nominatim client.
func NewClient(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		language:   cfg.Language,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		metrics:    metrics,
		logger:     logger,
	}
}

// ReverseGeocode resolves coordinates through /reverse. A response without a
// display_name yields an empty result and no error.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	params := url.Values{
		"format": {"jsonv2"},
		"lat":    {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(lon, 'f', -1, 64)},
	}

	var place reversePlace
	if err := c.get(ctx, "/reverse", params, "reverse", &place); err != nil {
		return domain.GeocodingResult{}, err
	}
	if place.Error != "" {
		c.metrics.GeocodeRequests.WithLabelValues("reverse", "empty").Inc()
		c.logger.Debug("nominatim reverse found nothing", "lat", lat, "lon", lon, "reason", place.Error)
		return domain.GeocodingResult{}, nil
	}

	result := domain.GeocodingResult{
		Lat:              lat,
		Lon:              lon,
		FormattedAddress: strings.TrimSpace(place.DisplayName),
		PlaceName:        strings.TrimSpace(place.Name),
		Confidence:       place.Importance,
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(place.Lat), 64); err == nil {
		result.Lat = v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(place.Lon), 64); err == nil {
		result.Lon = v
	}
	outcome := "success"
	if result.FormattedAddress == "" {
		outcome = "empty"
	}
	c.metrics.GeocodeRequests.WithLabelValues("reverse", outcome).Inc()
	return result, nil
}

// Suggest returns ranked candidates from /search. Entries with unparsable
// coordinates are skipped.
func (c *Client) Suggest(ctx context.Context, query string, limit int) ([]domain.Candidate, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	params := url.Values{
		"q":      {q},
		"format": {"jsonv2"},
		"limit":  {strconv.Itoa(limit)},
	}

	var items []searchItem
	if err := c.get(ctx, "/search", params, "suggest", &items); err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(items))
	for _, item := range items {
		lat, err := strconv.ParseFloat(strings.TrimSpace(item.Lat), 64)
		if err != nil {
			continue
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(item.Lon), 64)
		if err != nil {
			continue
		}
		out = append(out, domain.Candidate{X: lng, Y: lat, Label: strings.TrimSpace(item.DisplayName)})
	}
	outcome := "success"
	if len(out) == 0 {
		outcome = "empty"
	}
	c.metrics.GeocodeRequests.WithLabelValues("suggest", outcome).Inc()
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, method string, into any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
			return fmt.Errorf("%s rate limit: %w", method, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GeocodeAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return fmt.Errorf("%s geocode request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("nominatim status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 2<<20)).Decode(into); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Nominatim API response types.

type reversePlace struct {
	DisplayName string  `json:"display_name"`
	Name        string  `json:"name"`
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	Importance  float64 `json:"importance"`
	Error       string  `json:"error"`
}

type searchItem struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}
