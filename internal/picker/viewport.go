package picker

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/location-picker/internal/domain"
)

// TileLayer describes a raster tile source.
type TileLayer struct {
	URLTemplate string   `json:"url_template"` // e.g. https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png
	Attribution string   `json:"attribution"`
	Subdomains  []string `json:"subdomains,omitempty"`
	MaxZoom     int      `json:"max_zoom"`
}

// DefaultTileLayer is the standard OpenStreetMap raster layer.
func DefaultTileLayer() TileLayer {
	return TileLayer{
		URLTemplate: "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`,
		Subdomains:  []string{"a", "b", "c"},
		MaxZoom:     19,
	}
}

// Animation records a fly-to transition of the view center.
type Animation struct {
	From     domain.Coordinates `json:"from"`
	To       domain.Coordinates `json:"to"`
	Zoom     int                `json:"zoom"`
	Duration time.Duration      `json:"duration"`
}

// ViewState is a point-in-time copy of the viewport.
type ViewState struct {
	Center     domain.Coordinates `json:"center"`
	Zoom       int                `json:"zoom"`
	Marker     domain.Coordinates `json:"marker"`
	Tiles      TileLayer          `json:"tiles"`
	LastFlight *Animation         `json:"last_flight,omitempty"`
}

// Viewport holds the map view center, zoom, tile layer and the single marker.
// It carries no business logic.
type Viewport struct {
	mu         sync.RWMutex
	center     domain.Coordinates
	zoom       int
	marker     domain.Coordinates
	tiles      TileLayer
	lastFlight *Animation
}

// NewViewport creates a viewport centered on center with the marker there.
func NewViewport(center domain.Coordinates, zoom int, tiles TileLayer) *Viewport {
	return &Viewport{
		center: center,
		zoom:   zoom,
		marker: center,
		tiles:  tiles,
	}
}

// Center returns the current map center.
func (v *Viewport) Center() domain.Coordinates {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.center
}

// Zoom returns the current zoom level.
func (v *Viewport) Zoom() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.zoom
}

// SetView jumps to center without animation. A zoom <= 0 keeps the current zoom.
func (v *Viewport) SetView(center domain.Coordinates, zoom int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.center = center
	if zoom > 0 {
		v.zoom = zoom
	}
}

// FlyTo animates the center to target over d and returns the transition.
func (v *Viewport) FlyTo(target domain.Coordinates, d time.Duration) Animation {
	v.mu.Lock()
	defer v.mu.Unlock()
	a := Animation{From: v.center, To: target, Zoom: v.zoom, Duration: d}
	v.center = target
	v.lastFlight = &a
	return a
}

// LastFlight returns the most recent fly-to transition, if any.
func (v *Viewport) LastFlight() (Animation, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.lastFlight == nil {
		return Animation{}, false
	}
	return *v.lastFlight, true
}

// Marker returns the marker position.
func (v *Viewport) Marker() domain.Coordinates {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.marker
}

// SetMarker moves the marker to c.
func (v *Viewport) SetMarker(c domain.Coordinates) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.marker = c
}

// Tiles returns the base tile layer.
func (v *Viewport) Tiles() TileLayer {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.tiles
}

// TileURL expands the tile template for one tile. {s} rotates through the
// configured subdomains.
func (v *Viewport) TileURL(z, x, y int) string {
	v.mu.RLock()
	tiles := v.tiles
	v.mu.RUnlock()

	s := ""
	if n := len(tiles.Subdomains); n > 0 {
		s = tiles.Subdomains[abs(x+y)%n]
	}
	return strings.NewReplacer(
		"{s}", s,
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	).Replace(tiles.URLTemplate)
}

// State returns a copy of the viewport.
func (v *Viewport) State() ViewState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	st := ViewState{
		Center: v.center,
		Zoom:   v.zoom,
		Marker: v.marker,
		Tiles:  v.tiles,
	}
	if v.lastFlight != nil {
		a := *v.lastFlight
		st.LastFlight = &a
	}
	return st
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
