package picker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/location-picker/internal/domain"
)

type stubControl struct {
	name      string
	elements  []string
	listeners int
	failAfter error
	clicks    []domain.Coordinates
	released  int
}

func (s *stubControl) Name() string { return s.name }

func (s *stubControl) Attach(b *ControlBinding) error {
	if err := b.Defer(func() { s.released++ }); err != nil {
		return err
	}
	for _, id := range s.elements {
		if err := b.AddElement(id); err != nil {
			return err
		}
	}
	for range s.listeners {
		if err := b.OnClick(func(p domain.Coordinates) { s.clicks = append(s.clicks, p) }); err != nil {
			return err
		}
	}
	return s.failAfter
}

func newTestMap() *Map {
	return NewMap(NewViewport(domain.Coordinates{Lat: 10, Lng: 106}, 15, DefaultTileLayer()))
}

func TestMap_AttachAndRelease(t *testing.T) {
	m := newTestMap()
	ctl := &stubControl{name: "stub", elements: []string{"a", "b"}, listeners: 1}

	b, err := m.Attach(ctl)
	require.NoError(t, err)
	assert.Equal(t, "stub", b.Name())
	assert.Same(t, m, b.Map())
	assert.Equal(t, []string{"a", "b"}, m.Elements())
	assert.Equal(t, 1, m.Listeners())

	assert.Equal(t, 1, m.Click(domain.Coordinates{Lat: 1, Lng: 2}))
	assert.Equal(t, []domain.Coordinates{{Lat: 1, Lng: 2}}, ctl.clicks)

	b.Release()
	b.Release()

	assert.True(t, b.Released())
	assert.Equal(t, 1, ctl.released, "release runs cleanups once")
	assert.Empty(t, m.Elements())
	assert.Zero(t, m.Listeners())
	assert.Zero(t, m.Bindings())
	assert.Zero(t, m.Click(domain.Coordinates{}))
}

func TestMap_AttachIsAllOrNothing(t *testing.T) {
	m := newTestMap()
	boom := errors.New("boom")
	ctl := &stubControl{name: "broken", elements: []string{"x"}, listeners: 2, failAfter: boom}

	b, err := m.Attach(ctl)

	require.ErrorIs(t, err, boom)
	assert.Nil(t, b)
	assert.Empty(t, m.Elements())
	assert.Zero(t, m.Listeners())
	assert.Zero(t, m.Bindings())
	assert.Equal(t, 1, ctl.released)
}

func TestMap_DuplicateElement(t *testing.T) {
	m := newTestMap()
	_, err := m.Attach(&stubControl{name: "first", elements: []string{"shared"}})
	require.NoError(t, err)

	_, err = m.Attach(&stubControl{name: "second", elements: []string{"mine", "shared"}})

	require.ErrorIs(t, err, ErrElementExists)
	assert.Equal(t, []string{"shared"}, m.Elements())
}

func TestControlBinding_RegisterAfterRelease(t *testing.T) {
	m := newTestMap()
	b, err := m.Attach(&stubControl{name: "stub"})
	require.NoError(t, err)
	b.Release()

	require.ErrorIs(t, b.AddElement("late"), ErrBindingReleased)
	require.ErrorIs(t, b.OnClick(func(domain.Coordinates) {}), ErrBindingReleased)
	require.ErrorIs(t, b.Defer(func() {}), ErrBindingReleased)
}

func TestMap_ClickOrder(t *testing.T) {
	m := newTestMap()
	var order []string
	_, err := m.Attach(controlFunc("one", func(b *ControlBinding) error {
		return b.OnClick(func(domain.Coordinates) { order = append(order, "one") })
	}))
	require.NoError(t, err)
	_, err = m.Attach(controlFunc("two", func(b *ControlBinding) error {
		return b.OnClick(func(domain.Coordinates) { order = append(order, "two") })
	}))
	require.NoError(t, err)

	m.Click(domain.Coordinates{})

	assert.Equal(t, []string{"one", "two"}, order)
}

type funcControl struct {
	name   string
	attach func(*ControlBinding) error
}

func controlFunc(name string, attach func(*ControlBinding) error) Control {
	return funcControl{name: name, attach: attach}
}

func (f funcControl) Name() string { return f.name }
func (f funcControl) Attach(b *ControlBinding) error { return f.attach(b) }

func TestViewport_TileURL(t *testing.T) {
	v := NewViewport(domain.Coordinates{}, 15, DefaultTileLayer())

	assert.Equal(t, "https://a.tile.openstreetmap.org/15/0/0.png", v.TileURL(15, 0, 0))
	assert.Equal(t, "https://b.tile.openstreetmap.org/15/1/0.png", v.TileURL(15, 1, 0))

	plain := NewViewport(domain.Coordinates{}, 3, TileLayer{URLTemplate: "https://tiles.example.com/{z}/{x}/{y}.png"})
	assert.Equal(t, "https://tiles.example.com/3/4/5.png", plain.TileURL(3, 4, 5))
}

func TestViewport_FlyToAndSetView(t *testing.T) {
	start := domain.Coordinates{Lat: 10, Lng: 106}
	v := NewViewport(start, 15, DefaultTileLayer())
	_, flown := v.LastFlight()
	assert.False(t, flown)

	target := domain.Coordinates{Lat: 11, Lng: 107}
	a := v.FlyTo(target, 800*time.Millisecond)

	assert.Equal(t, Animation{From: start, To: target, Zoom: 15, Duration: 800 * time.Millisecond}, a)
	assert.Equal(t, target, v.Center())
	assert.Equal(t, start, v.Marker(), "flying does not move the marker")
	last, ok := v.LastFlight()
	require.True(t, ok)
	assert.Equal(t, a, last)

	v.SetView(start, 0)
	assert.Equal(t, 15, v.Zoom())
	v.SetView(start, 12)
	assert.Equal(t, 12, v.Zoom())

	st := v.State()
	assert.Equal(t, start, st.Center)
	require.NotNil(t, st.LastFlight)
	assert.Equal(t, target, st.LastFlight.To)
}
