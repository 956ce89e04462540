// Command genmock writes a reproducible fixture of selection events, as the
// picker service would publish them, for tests and for replaying into Kafka.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/selections.json -pickers 20 -seed 42
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/location-picker/internal/domain"
)

// Places a simulated user may pick through the search control.
var places = []domain.Selection{
	{Lat: 10.772431, Lng: 106.698047, Address: "Chợ Bến Thành, Quận 1, TP.HCM"},
	{Lat: 10.779783, Lng: 106.699018, Address: "Nhà thờ Đức Bà, Quận 1, TP.HCM"},
	{Lat: 10.776889, Lng: 106.700806, Address: "Nhà hát Thành phố, Quận 1, TP.HCM"},
	{Lat: 10.762622, Lng: 106.660172, Address: "Đại học Bách khoa, Quận 10, TP.HCM"},
	{Lat: 10.870046, Lng: 106.803043, Address: "Làng Đại học, Thủ Đức, TP.HCM"},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the selection event fixture")
	pickers := flag.Int("pickers", 10, "number of simulated widgets")
	perPicker := flag.Int("selections", 5, "user selections per widget, after the default")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	if *out == "" || *pickers <= 0 || *perPicker < 0 {
		flag.Usage()
		return fmt.Errorf("missing or invalid flags: -out, -pickers, -selections")
	}

	// Fixed clock and UUID source so the same seed produces the same file.
	rng := rand.New(rand.NewSource(*seed))
	uuid.SetRand(rng)
	defer uuid.SetRand(nil)
	clk := clockwork.NewFakeClockAt(time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC))
	domain.SetClock(clk)
	defer domain.SetClock(nil)

	events := generate(rng, clk, *pickers, *perPicker)

	if err := writeJSON(*out, events); err != nil {
		return err
	}
	log.Printf("wrote %d selection events for %d pickers to %s", len(events), *pickers, *out)
	return nil
}

func generate(rng *rand.Rand, clk *clockwork.FakeClock, pickers, perPicker int) []domain.SelectionEvent {
	events := make([]domain.SelectionEvent, 0, pickers*(perPicker+1))
	for range pickers {
		id := uuid.NewString()
		events = append(events, domain.NewSelectionEvent(id, domain.DefaultSelection(), domain.SourceDefault))

		for range perPicker {
			clk.Advance(time.Duration(1+rng.Intn(30)) * time.Second)
			sel, source := nextSelection(rng)
			events = append(events, domain.NewSelectionEvent(id, sel, source))
		}
	}
	return events
}

// nextSelection simulates one user input. Clicks and locate fixes land near
// the default location and carry the coordinate fallback address, as when
// the reverse geocoder is unavailable.
func nextSelection(rng *rand.Rand) (domain.Selection, domain.Source) {
	switch rng.Intn(3) {
	case 0:
		return places[rng.Intn(len(places))], domain.SourceSearch
	case 1:
		lat, lng := jitter(rng, 0.02)
		return domain.NewSelection(lat, lng, ""), domain.SourceClick
	default:
		lat, lng := jitter(rng, 0.002)
		return domain.NewSelection(lat, lng, ""), domain.SourceLocate
	}
}

func jitter(rng *rand.Rand, spread float64) (float64, float64) {
	lat := domain.DefaultLatitude + (rng.Float64()*2-1)*spread
	lng := domain.DefaultLongitude + (rng.Float64()*2-1)*spread
	return roundTo(lat, 6), roundTo(lng, 6)
}

func roundTo(v float64, digits int) float64 {
	p := 1.0
	for range digits {
		p *= 10
	}
	return float64(int64(v*p+0.5)) / p
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
