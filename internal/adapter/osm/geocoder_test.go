package osm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	geo "github.com/codingsince1985/geo-golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/location-picker/internal/observability"
)

type stubGeo struct {
	loc   *geo.Location
	addr  *geo.Address
	err   error
	delay time.Duration
}

func (s stubGeo) Geocode(string) (*geo.Location, error) {
	time.Sleep(s.delay)
	return s.loc, s.err
}

func (s stubGeo) ReverseGeocode(float64, float64) (*geo.Address, error) {
	time.Sleep(s.delay)
	return s.addr, s.err
}

func withStub(s stubGeo) *Geocoder {
	return &Geocoder{
		geocoder: s,
		metrics:  observability.NewMetricsForTesting(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestGeocoder_ReverseGeocode(t *testing.T) {
	g := withStub(stubGeo{addr: &geo.Address{FormattedAddress: " 1 Võ Văn Ngân, Thủ Đức ", Street: "Võ Văn Ngân"}})

	got, err := g.ReverseGeocode(context.Background(), 10.85, 106.77)

	require.NoError(t, err)
	assert.Equal(t, "1 Võ Văn Ngân, Thủ Đức", got.FormattedAddress)
	assert.Equal(t, "Võ Văn Ngân", got.PlaceName)
	assert.InDelta(t, 10.85, got.Lat, 0)
}

func TestGeocoder_ReverseGeocode_NilAddress(t *testing.T) {
	g := withStub(stubGeo{})

	got, err := g.ReverseGeocode(context.Background(), 1, 2)

	require.NoError(t, err)
	assert.Empty(t, got.FormattedAddress)
}

func TestGeocoder_ReverseGeocode_Error(t *testing.T) {
	g := withStub(stubGeo{err: errors.New("boom")})

	_, err := g.ReverseGeocode(context.Background(), 1, 2)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "reverse geocode request")
}

func TestGeocoder_ContextEndsCall(t *testing.T) {
	g := withStub(stubGeo{delay: time.Second, addr: &geo.Address{FormattedAddress: "late"}})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := g.ReverseGeocode(ctx, 1, 2)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGeocoder_Suggest(t *testing.T) {
	g := withStub(stubGeo{loc: &geo.Location{Lat: 10.8, Lng: 106.7}})

	got, err := g.Suggest(context.Background(), " Quận 1 ", 5)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 106.7, got[0].X, 0)
	assert.InDelta(t, 10.8, got[0].Y, 0)
	assert.Equal(t, "Quận 1", got[0].Label)
}

func TestGeocoder_Suggest_NoMatch(t *testing.T) {
	g := withStub(stubGeo{})

	got, err := g.Suggest(context.Background(), "nowhere", 5)

	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = g.Suggest(context.Background(), "  ", 5)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNew_CustomURL(t *testing.T) {
	paths := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"lat":"10.85","lon":"106.77","display_name":"Thủ Đức, Việt Nam","address":{"city":"Thủ Đức","country":"Việt Nam"}}`))
	}))
	defer srv.Close()

	g := New(srv.URL, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := g.ReverseGeocode(context.Background(), 10.85, 106.77)

	require.NoError(t, err)
	path := <-paths
	assert.True(t, strings.HasSuffix(path, "reverse"), "request went to %s", path)
}
