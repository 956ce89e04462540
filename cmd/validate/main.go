// Command validate checks a stream of published selection events for
// integrity: field presence and ranges, address fallback formatting, unique
// event IDs, and per-picker ordering. Events are read from a JSON fixture
// (as written by genmock) or straight from the Kafka selection topic.
//
// Usage:
//
//	go run ./cmd/validate -file data/mock/selections.json
//	go run ./cmd/validate -brokers localhost:9092 -topic location-selections -timeout 10s
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	kafkaadapter "github.com/couchcryptid/location-picker/internal/adapter/kafka"
	"github.com/couchcryptid/location-picker/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	file := flag.String("file", "", "path to a selection event JSON fixture")
	brokers := flag.String("brokers", "", "comma-separated Kafka brokers; used when -file is empty")
	topic := flag.String("topic", "location-selections", "Kafka selection topic")
	timeout := flag.Duration("timeout", 10*time.Second, "stop reading Kafka after this long without a message")
	flag.Parse()

	var (
		events []domain.SelectionEvent
		err    error
	)
	switch {
	case *file != "":
		events, err = loadJSON(*file)
	case *brokers != "":
		events, err = readTopic(sharedcfg.ParseBrokers(*brokers), *topic, *timeout)
	default:
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load selection events: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(events))
}

func run(events []domain.SelectionEvent) int {
	fmt.Println("=== Selection Event Validation ===")
	fmt.Println()

	phases := []*phase{
		validateFields(events),
		validateUniqueIDs(events),
		validatePickerOrdering(events),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Events: %d across %d pickers\n", len(events), countPickers(events))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadJSON(path string) ([]domain.SelectionEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var events []domain.SelectionEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

// readTopic consumes the topic from the beginning with a throwaway consumer
// group until no message arrives within idle.
func readTopic(brokers []string, topic string, idle time.Duration) ([]domain.SelectionEvent, error) {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "location-picker-validate-" + uuid.NewString(),
		StartOffset: kafkago.FirstOffset,
	})
	defer r.Close()

	var events []domain.SelectionEvent
	for {
		ctx, cancel := context.WithTimeout(context.Background(), idle)
		msg, err := r.ReadMessage(ctx)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			return events, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", topic, err)
		}
		ev, err := kafkaadapter.ParseMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", msg.Offset, err)
		}
		if key := string(msg.Key); key != ev.PickerID {
			return nil, fmt.Errorf("offset %d: message key %q does not match picker %q", msg.Offset, key, ev.PickerID)
		}
		events = append(events, ev)
	}
}

// ── Validation phases ──

var validSources = map[domain.Source]bool{
	domain.SourceDefault: true,
	domain.SourceSearch:  true,
	domain.SourceClick:   true,
	domain.SourceLocate:  true,
}

func validateFields(events []domain.SelectionEvent) *phase {
	p := &phase{name: "Field presence and ranges"}
	for i, ev := range events {
		if ev.ID == "" {
			p.errorf("event %d: empty id", i)
		}
		if ev.PickerID == "" {
			p.errorf("event %d: empty picker_id", i)
		}
		if ev.Lat < -90 || ev.Lat > 90 || ev.Lng < -180 || ev.Lng > 180 {
			p.errorf("event %d: coordinates out of range (%v, %v)", i, ev.Lat, ev.Lng)
		}
		if strings.TrimSpace(ev.Address) == "" {
			p.errorf("event %d: empty address", i)
		}
		if !validSources[ev.Source] {
			p.errorf("event %d: unknown source %q", i, ev.Source)
		}
		if ev.SelectedAt.IsZero() {
			p.errorf("event %d: missing selected_at", i)
		}
		// A coordinate-looking address must be exactly the fallback form.
		if looksLikeCoordinates(ev.Address) && ev.Address != domain.FallbackAddress(ev.Lat, ev.Lng) {
			p.errorf("event %d: address %q does not match coordinates (%v, %v)", i, ev.Address, ev.Lat, ev.Lng)
		}
	}
	return p
}

func validateUniqueIDs(events []domain.SelectionEvent) *phase {
	p := &phase{name: "Unique event IDs"}
	seen := make(map[string]int, len(events))
	for i, ev := range events {
		if j, ok := seen[ev.ID]; ok {
			p.errorf("event %d: id %s already used by event %d", i, ev.ID, j)
			continue
		}
		seen[ev.ID] = i
	}
	return p
}

// validatePickerOrdering checks that each picker starts with one default
// selection and that its selection times never go backwards.
func validatePickerOrdering(events []domain.SelectionEvent) *phase {
	p := &phase{name: "Per-picker ordering"}
	last := make(map[string]domain.SelectionEvent)
	for i, ev := range events {
		prev, ok := last[ev.PickerID]
		switch {
		case !ok && ev.Source != domain.SourceDefault:
			p.errorf("event %d: picker %s starts with %q, want %q", i, ev.PickerID, ev.Source, domain.SourceDefault)
		case ok && ev.Source == domain.SourceDefault:
			p.errorf("event %d: picker %s reported the default selection twice", i, ev.PickerID)
		case ok && ev.SelectedAt.Before(prev.SelectedAt):
			p.errorf("event %d: picker %s selected_at %s before previous %s",
				i, ev.PickerID, ev.SelectedAt.Format(time.RFC3339Nano), prev.SelectedAt.Format(time.RFC3339Nano))
		}
		last[ev.PickerID] = ev
	}
	return p
}

// ── Helpers ──

func looksLikeCoordinates(s string) bool {
	lat, lng, ok := strings.Cut(s, ", ")
	if !ok {
		return false
	}
	_, err1 := strconv.ParseFloat(lat, 64)
	_, err2 := strconv.ParseFloat(lng, 64)
	return err1 == nil && err2 == nil
}

func countPickers(events []domain.SelectionEvent) int {
	ids := make(map[string]struct{})
	for _, ev := range events {
		ids[ev.PickerID] = struct{}{}
	}
	return len(ids)
}
