package nominatim

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/location-picker/internal/domain"
	"github.com/couchcryptid/location-picker/internal/observability"
)

const contentTypeJSON = "application/json"

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", Language: "vi"},
		observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{}, observability.NewMetricsForTesting(), slog.Default())

	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultUserAgent, c.userAgent)
	assert.Equal(t, 6*time.Second, c.httpClient.Timeout)
	assert.Nil(t, c.limiter)
}

func TestClient_ReverseGeocode_Success(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "10.850721", r.URL.Query().Get("lat"))
		assert.Equal(t, "106.771395", r.URL.Query().Get("lon"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "vi", r.Header.Get("Accept-Language"))

		w.Header().Set("Content-Type", contentTypeJSON)
		_, _ = w.Write([]byte(`{
			"lat": "10.8507",
			"lon": "106.7717",
			"name": "Trường Đại học Sư phạm Kỹ thuật",
			"display_name": "Trường Đại học Sư phạm Kỹ thuật, Võ Văn Ngân, Thủ Đức, Việt Nam",
			"importance": 0.41
		}`))
	})

	got, err := c.ReverseGeocode(context.Background(), 10.850721, 106.771395)
	require.NoError(t, err)

	assert.Equal(t, "Trường Đại học Sư phạm Kỹ thuật, Võ Văn Ngân, Thủ Đức, Việt Nam", got.FormattedAddress)
	assert.Equal(t, "Trường Đại học Sư phạm Kỹ thuật", got.PlaceName)
	assert.Equal(t, 10.8507, got.Lat)
	assert.Equal(t, 106.7717, got.Lon)
	assert.Equal(t, 0.41, got.Confidence)
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("reverse", "success")), 0)
}

func TestClient_ReverseGeocode_UnableToGeocode(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	})

	got, err := c.ReverseGeocode(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got.FormattedAddress)
}

func TestClient_ReverseGeocode_MissingDisplayName(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)
		_, _ = w.Write([]byte(`{"place_id": 1}`))
	})

	got, err := c.ReverseGeocode(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Empty(t, got.FormattedAddress)

	// Through the resolver the empty answer becomes the coordinate string.
	r := domain.NewResolver(c, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, "1, 2", r.Resolve(context.Background(), 1, 2))
}

func TestClient_ReverseGeocode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("overloaded"))
			},
			wantErr: "status 503",
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			wantErr: "decode response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, tt.handler)

			_, err := c.ReverseGeocode(context.Background(), 1, 2)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClient_Suggest_Success(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Thu Duc", r.URL.Query().Get("q"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", contentTypeJSON)
		_, _ = w.Write([]byte(`[
			{"display_name": "Thủ Đức, Hồ Chí Minh", "lat": "10.85", "lon": "106.75"},
			{"display_name": "broken", "lat": "n/a", "lon": "106.75"},
			{"display_name": "Thủ Đức Market", "lat": "10.8", "lon": "106.7"}
		]`))
	})

	got, err := c.Suggest(context.Background(), "  Thu Duc ", 3)
	require.NoError(t, err)

	assert.Equal(t, []domain.Candidate{
		{X: 106.75, Y: 10.85, Label: "Thủ Đức, Hồ Chí Minh"},
		{X: 106.7, Y: 10.8, Label: "Thủ Đức Market"},
	}, got)
}

func TestClient_Suggest_BlankQuerySkipsRequest(t *testing.T) {
	called := false
	c := testClient(t, func(http.ResponseWriter, *http.Request) { called = true })

	got, err := c.Suggest(context.Background(), "   ", 5)

	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, called)
}

func TestClient_RateLimitHonorsContext(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	c.limiter = rate.NewLimiter(rate.Every(time.Minute), 1)

	_, err := c.Suggest(context.Background(), "first", 5)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Suggest(ctx, "second", 5)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}
