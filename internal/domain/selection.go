package domain

import (
	"fmt"
	"strconv"
)

// Fallback defaults used when no default location is configured or the
// configured values cannot be parsed.
const (
	DefaultLatitude  = 10.850721
	DefaultLongitude = 106.771395
	DefaultAddress   = "Trường Đại học Sư phạm Kỹ thuật TP.HCM, Thủ Đức, TP.HCM"
)

// Coordinates is a WGS-84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String renders the pair the same way FallbackAddress does.
func (c Coordinates) String() string {
	return FallbackAddress(c.Lat, c.Lng)
}

// Selection is the single location value reported to the host.
// Address is never empty.
type Selection struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

// Coordinates returns the coordinate part of the selection.
func (s Selection) Coordinates() Coordinates {
	return Coordinates{Lat: s.Lat, Lng: s.Lng}
}

// NewSelection builds a Selection, substituting the coordinate string when
// address is empty.
func NewSelection(lat, lng float64, address string) Selection {
	if address == "" {
		address = FallbackAddress(lat, lng)
	}
	return Selection{Lat: lat, Lng: lng, Address: address}
}

// DefaultSelection is the hard-coded initial selection.
func DefaultSelection() Selection {
	return Selection{Lat: DefaultLatitude, Lng: DefaultLongitude, Address: DefaultAddress}
}

// FallbackAddress formats coordinates as "{lat}, {lng}" using the shortest
// decimal representation that round-trips, e.g. "10.85, 106.77".
func FallbackAddress(lat, lng float64) string {
	return fmt.Sprintf("%s, %s",
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lng, 'f', -1, 64),
	)
}

// Source identifies which input mode produced a selection.
type Source string

const (
	SourceDefault Source = "default"
	SourceSearch  Source = "search"
	SourceClick   Source = "click"
	SourceLocate  Source = "locate"
)
