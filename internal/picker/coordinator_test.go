package picker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/location-picker/internal/domain"
	"github.com/couchcryptid/location-picker/internal/observability"
)

// --- fakes ---

type recorder struct {
	mu  sync.Mutex
	got []domain.Selection
}

func (r *recorder) OnAddressChange(s domain.Selection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, s)
}

func (r *recorder) all() []domain.Selection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Selection, len(r.got))
	copy(out, r.got)
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func (r *recorder) last() domain.Selection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.got[len(r.got)-1]
}

type fakeGeocoder struct {
	mu      sync.Mutex
	results map[domain.Coordinates]string
	errs    map[domain.Coordinates]error
	gates   map[domain.Coordinates]chan struct{}
	calls   []domain.Coordinates
}

func newFakeGeocoder() *fakeGeocoder {
	return &fakeGeocoder{
		results: make(map[domain.Coordinates]string),
		errs:    make(map[domain.Coordinates]error),
		gates:   make(map[domain.Coordinates]chan struct{}),
	}
}

func (f *fakeGeocoder) answer(lat, lng float64, address string) *fakeGeocoder {
	f.results[domain.Coordinates{Lat: lat, Lng: lng}] = address
	return f
}

func (f *fakeGeocoder) fail(lat, lng float64, err error) *fakeGeocoder {
	f.errs[domain.Coordinates{Lat: lat, Lng: lng}] = err
	return f
}

// hold blocks lookups for lat/lng until the returned function is called.
func (f *fakeGeocoder) hold(lat, lng float64) func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[domain.Coordinates{Lat: lat, Lng: lng}] = gate
	f.mu.Unlock()
	return func() { close(gate) }
}

func (f *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	key := domain.Coordinates{Lat: lat, Lng: lon}
	f.mu.Lock()
	f.calls = append(f.calls, key)
	gate := f.gates[key]
	address, err := f.results[key], f.errs[key]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.GeocodingResult{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.GeocodingResult{}, err
	}
	return domain.GeocodingResult{Lat: lat, Lon: lon, FormattedAddress: address}, nil
}

func (f *fakeGeocoder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type notifications struct {
	mu  sync.Mutex
	got []Notification
}

func (n *notifications) Notify(x Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, x)
}

func (n *notifications) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.got))
	copy(out, n.got)
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	c       *Coordinator
	rec     *recorder
	geo     *fakeGeocoder
	notes   *notifications
	clock   *clockwork.FakeClock
	metrics *observability.Metrics
}

func newHarness(t *testing.T, configure func(*Config, *Dependencies)) *harness {
	t.Helper()
	h := &harness{
		rec:     &recorder{},
		geo:     newFakeGeocoder(),
		notes:   &notifications{},
		clock:   clockwork.NewFakeClock(),
		metrics: observability.NewMetricsForTesting(),
	}
	cfg := DefaultConfig()
	deps := Dependencies{
		Geocoder:        h.geo,
		Notifier:        h.notes,
		OnAddressChange: h.rec.OnAddressChange,
		Clock:           h.clock,
		Logger:          discardLogger(),
		Metrics:         h.metrics,
	}
	if configure != nil {
		configure(&cfg, &deps)
	}
	c, err := New(cfg, deps)
	require.NoError(t, err)
	h.c = c
	t.Cleanup(c.Unmount)
	return h
}

func (h *harness) mount(t *testing.T) {
	t.Helper()
	require.NoError(t, h.c.Mount(context.Background()))
}

func (h *harness) waitSelections(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.rec.count() == n },
		2*time.Second, 5*time.Millisecond, "want %d selections", n)
}

// --- tests ---

func TestNew_RequiresCallback(t *testing.T) {
	_, err := New(DefaultConfig(), Dependencies{})
	require.Error(t, err)
}

func TestMount_EmitsDefaultExactlyOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	got := h.rec.all()
	want := []domain.Selection{{
		Lat:     10.850721,
		Lng:     106.771395,
		Address: "Trường Đại học Sư phạm Kỹ thuật TP.HCM, Thủ Đức, TP.HCM",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("selections mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, want[0], h.c.Selection())
	assert.Equal(t, want[0].Coordinates(), h.c.Map().View().Marker())
	assert.Equal(t, 15, h.c.Map().View().Zoom())
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.PickersMounted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.SelectionsTotal.WithLabelValues("default")), 0)
}

func TestMount_ConfiguredDefaultWithoutAddressFallsBack(t *testing.T) {
	h := newHarness(t, func(cfg *Config, _ *Dependencies) {
		cfg.Default = domain.Selection{Lat: 21.0285, Lng: 105.8542}
	})
	h.mount(t)

	assert.Equal(t, "21.0285, 105.8542", h.rec.last().Address)
}

func TestMount_AttachesControls(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	m := h.c.Map()
	assert.Equal(t, []string{
		ElementLocateButton,
		ElementSearchForm,
		ElementSearchInput,
		ElementSearchResults,
		ElementSearchSubmit,
	}, m.Elements())
	assert.Equal(t, 1, m.Listeners())
	assert.Equal(t, 3, m.Bindings())
}

func TestMount_Lifecycle(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	require.ErrorIs(t, h.c.Mount(context.Background()), ErrAlreadyMounted)

	h.c.Unmount()
	h.c.Unmount()
	assert.False(t, h.c.Mounted())
	require.ErrorIs(t, h.c.Mount(context.Background()), ErrUnmounted)
	assert.Equal(t, 1, h.rec.count())
	assert.InDelta(t, 0, testutil.ToFloat64(h.metrics.PickersMounted), 0)
}

func TestMount_AttachFailureReleasesEverything(t *testing.T) {
	h := newHarness(t, nil)
	squatter, err := h.c.Map().Attach(&stubControl{name: "squatter", elements: []string{ElementLocateButton}})
	require.NoError(t, err)

	err = h.c.Mount(context.Background())

	require.ErrorIs(t, err, ErrElementExists)
	assert.False(t, h.c.Mounted())
	assert.Zero(t, h.rec.count(), "no default is reported when mounting fails")
	assert.Equal(t, []string{ElementLocateButton}, h.c.Map().Elements())
	assert.Zero(t, h.c.Map().Listeners())
	assert.Equal(t, 1, h.c.Map().Bindings())
	assert.InDelta(t, 0, testutil.ToFloat64(h.metrics.PickersMounted), 0)

	squatter.Release()
	assert.Zero(t, h.c.Map().Bindings())
}

func TestOperationsBeforeMount(t *testing.T) {
	h := newHarness(t, nil)

	require.ErrorIs(t, h.c.Click(1, 2), ErrNotMounted)
	require.ErrorIs(t, h.c.UpdateSelection(Update{Lat: 1, Lng: 2, Address: "x"}), ErrNotMounted)
	require.ErrorIs(t, h.c.Search().Input("abc"), ErrDetached)
	require.ErrorIs(t, h.c.Locate().Activate(context.Background()), ErrDetached)
	assert.Zero(t, h.rec.count())
}

func TestClick_ResolvesAddress(t *testing.T) {
	h := newHarness(t, nil)
	h.geo.answer(10.8, 106.7, "Y")
	h.mount(t)

	require.NoError(t, h.c.Click(10.8, 106.7))
	h.waitSelections(t, 2)

	assert.Equal(t, domain.Selection{Lat: 10.8, Lng: 106.7, Address: "Y"}, h.c.Selection())
	assert.Equal(t, domain.Coordinates{Lat: 10.8, Lng: 106.7}, h.c.Map().View().Marker())
}

func TestClick_GeocoderFailureUsesCoordinates(t *testing.T) {
	h := newHarness(t, nil)
	h.geo.fail(10.5, 106.25, errors.New("connection refused"))
	h.mount(t)

	require.NoError(t, h.c.Click(10.5, 106.25))
	h.waitSelections(t, 2)

	assert.Equal(t, "10.5, 106.25", h.rec.last().Address)
}

func TestClick_NoGeocoderUsesCoordinates(t *testing.T) {
	h := newHarness(t, func(_ *Config, deps *Dependencies) {
		deps.Geocoder = nil
	})
	h.mount(t)

	require.NoError(t, h.c.Click(1.5, 2.5))
	h.waitSelections(t, 2)

	assert.Equal(t, "1.5, 2.5", h.rec.last().Address)
}

func TestUpdateSelection_KnownAddressIsImmediate(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	require.NoError(t, h.c.UpdateSelection(Update{Lat: 1, Lng: 2, Address: "Known", Source: domain.SourceSearch}))

	assert.Equal(t, 2, h.rec.count(), "known addresses are committed synchronously")
	assert.Equal(t, domain.Selection{Lat: 1, Lng: 2, Address: "Known"}, h.c.Selection())
	assert.Zero(t, h.geo.callCount())
}

func TestUpdateSelection_UnknownAddressIsResolved(t *testing.T) {
	h := newHarness(t, nil)
	h.geo.answer(3, 4, "Resolved")
	h.mount(t)

	require.NoError(t, h.c.UpdateSelection(Update{Lat: 3, Lng: 4}))
	h.waitSelections(t, 2)

	assert.Equal(t, "Resolved", h.c.Selection().Address)
}

func TestStaleReverseGeocodeIsDiscarded(t *testing.T) {
	h := newHarness(t, nil)
	h.geo.answer(1, 1, "first").answer(2, 2, "second")
	releaseFirst := h.geo.hold(1, 1)
	h.mount(t)

	require.NoError(t, h.c.Click(1, 1))
	require.NoError(t, h.c.Click(2, 2))
	h.waitSelections(t, 2)
	assert.Equal(t, "second", h.c.Selection().Address)

	releaseFirst()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.StaleResponses) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, h.rec.count())
	assert.Equal(t, "second", h.c.Selection().Address)
	assert.Equal(t, domain.Coordinates{Lat: 2, Lng: 2}, h.c.Map().View().Marker())
}

func TestSearchSelectionSupersedesPendingClick(t *testing.T) {
	h := newHarness(t, func(_ *Config, deps *Dependencies) {
		deps.Suggester = &fakeSuggester{results: map[string][]domain.Candidate{
			"campus": {{X: 106.77, Y: 10.85, Label: "Campus"}},
		}}
	})
	h.geo.answer(5, 5, "clicked")
	release := h.geo.hold(5, 5)
	h.mount(t)

	require.NoError(t, h.c.Click(5, 5))
	search := h.c.Search()
	require.NoError(t, search.Input("campus"))
	search.Submit()
	require.Eventually(t, func() bool { return len(search.Suggestions()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, search.Select(0))

	release()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.StaleResponses) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []domain.Selection{
		domain.DefaultSelection(),
		{Lat: 10.85, Lng: 106.77, Address: "Campus"},
	}, h.rec.all())
}

func TestUnmount_NoCallbacksAfterwards(t *testing.T) {
	h := newHarness(t, nil)
	h.geo.answer(1, 1, "late")
	release := h.geo.hold(1, 1)
	h.mount(t)
	require.NoError(t, h.c.Click(1, 1))

	h.c.Unmount()
	release()

	assert.Never(t, func() bool { return h.rec.count() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Empty(t, h.c.Map().Elements())
	assert.Zero(t, h.c.Map().Listeners())
	assert.Zero(t, h.c.Map().Bindings())

	require.ErrorIs(t, h.c.Click(2, 2), ErrNotMounted)
	require.ErrorIs(t, h.c.Search().Input("abc"), ErrDetached)
	require.ErrorIs(t, h.c.Search().Select(0), ErrDetached)
	require.ErrorIs(t, h.c.Locate().Activate(context.Background()), ErrDetached)
	assert.Zero(t, h.c.Map().Click(domain.Coordinates{Lat: 3, Lng: 3}), "no listener survives unmount")
}

func TestInterleavedInputsEmitOncePerConfirmedEvent(t *testing.T) {
	h := newHarness(t, func(_ *Config, deps *Dependencies) {
		deps.Suggester = &fakeSuggester{results: map[string][]domain.Candidate{
			"market": {{X: 106.70, Y: 10.77, Label: "Ben Thanh Market"}},
		}}
		deps.Geolocator = &fakeGeolocator{pos: domain.Position{Lat: 10.9, Lng: 106.8}}
	})
	h.geo.answer(10.1, 106.1, "A").answer(10.9, 106.8, "Home")
	h.mount(t)

	require.NoError(t, h.c.Click(10.1, 106.1))
	h.waitSelections(t, 2)

	search := h.c.Search()
	require.NoError(t, search.Input("market"))
	h.clock.Advance(300 * time.Millisecond)
	require.Eventually(t, func() bool { return len(search.Suggestions()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, search.Select(0))
	assert.Equal(t, 3, h.rec.count())

	require.NoError(t, h.c.Locate().Activate(context.Background()))
	h.waitSelections(t, 4)

	require.NoError(t, h.c.Click(10.2, 106.2))
	h.waitSelections(t, 5)

	want := []domain.Selection{
		domain.DefaultSelection(),
		{Lat: 10.1, Lng: 106.1, Address: "A"},
		{Lat: 10.77, Lng: 106.70, Address: "Ben Thanh Market"},
		{Lat: 10.9, Lng: 106.8, Address: "Home"},
		{Lat: 10.2, Lng: 106.2, Address: "10.2, 106.2"},
	}
	if diff := cmp.Diff(want, h.rec.all()); diff != "" {
		t.Errorf("selection sequence mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 2, testutil.ToFloat64(h.metrics.SelectionsTotal.WithLabelValues("click")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.SelectionsTotal.WithLabelValues("search")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.SelectionsTotal.WithLabelValues("locate")), 0)
}

func TestSearchSelectionCentersView(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	require.NoError(t, h.c.UpdateSelection(Update{Lat: 1, Lng: 2, Address: "x", Source: domain.SourceSearch}))
	assert.Equal(t, domain.Coordinates{Lat: 1, Lng: 2}, h.c.Map().View().Center())

	require.NoError(t, h.c.UpdateSelection(Update{Lat: 3, Lng: 4, Address: "y", Source: domain.SourceClick}))
	assert.Equal(t, domain.Coordinates{Lat: 1, Lng: 2}, h.c.Map().View().Center(), "clicks move only the marker")
	assert.Equal(t, domain.Coordinates{Lat: 3, Lng: 4}, h.c.Map().View().Marker())
}

func TestSource_TracksCommittedInput(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)
	assert.Equal(t, domain.SourceDefault, h.c.Source())

	require.NoError(t, h.c.Click(1, 2))
	h.waitSelections(t, 2)
	assert.Equal(t, domain.SourceClick, h.c.Source())

	require.NoError(t, h.c.UpdateSelection(Update{Lat: 3, Lng: 4, Address: "Bến Thành", Source: domain.SourceSearch}))
	h.waitSelections(t, 3)
	assert.Equal(t, domain.SourceSearch, h.c.Source())
}
