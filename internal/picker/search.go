package picker

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/location-picker/internal/domain"
	"github.com/couchcryptid/location-picker/internal/observability"
)

// Overlay element ids injected by the search control.
const (
	ElementSearchForm    = "search-form"
	ElementSearchInput   = "search-input"
	ElementSearchResults = "search-results"
	ElementSearchSubmit  = "search-submit"
)

// SearchOptions tunes the search control.
type SearchOptions struct {
	Debounce       time.Duration
	MaxSuggestions int
}

// DefaultSearchOptions waits 300ms after the last keystroke and lists at most
// five suggestions.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{Debounce: 300 * time.Millisecond, MaxSuggestions: 5}
}

// SearchResult is the event emitted when a suggestion is chosen.
type SearchResult struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Label string  `json:"label"`
}

// FormEvent reports what happened to a form event raised inside the search
// overlay. Submission events never escape the overlay.
type FormEvent struct {
	Type               string `json:"type"`
	Key                string `json:"key,omitempty"`
	DefaultPrevented   bool   `json:"default_prevented"`
	PropagationStopped bool   `json:"propagation_stopped"`
}

// env is the per-widget runtime shared by the coordinator and its controls.
type env struct {
	loop    *loop
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	ctx     context.Context // set at mount, cancelled at unmount
}

// SearchControl is a text-search overlay bound to an autocomplete provider.
// It never holds the selection; chosen suggestions go to onSelect.
type SearchControl struct {
	env      *env
	provider domain.Suggester
	opts     SearchOptions
	onSelect func(SearchResult)

	mu          sync.Mutex
	attached    bool
	text        string
	queried     string
	suggestions []domain.Candidate
	timer       clockwork.Timer
	gen         uint64 // debounce generation
	seq         uint64 // query sequence
	inFlight    bool
}

func newSearchControl(e *env, provider domain.Suggester, opts SearchOptions, onSelect func(SearchResult)) *SearchControl {
	return &SearchControl{
		env:      e,
		provider: provider,
		opts:     opts,
		onSelect: onSelect,
	}
}

// Name identifies the control in bindings and logs.
func (s *SearchControl) Name() string { return "search" }

// Attach adds the search box to the map.
func (s *SearchControl) Attach(b *ControlBinding) error {
	if err := b.Defer(s.detach); err != nil {
		return err
	}
	for _, id := range []string{ElementSearchForm, ElementSearchInput, ElementSearchResults, ElementSearchSubmit} {
		if err := b.AddElement(id); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.attached = true
	s.mu.Unlock()
	return nil
}

func (s *SearchControl) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
	s.stopTimerLocked()
	s.gen++
	s.seq++
	s.inFlight = false
	s.suggestions = nil
}

// Input replaces the search text and restarts the debounce timer. Blank text
// clears the suggestions without querying.
func (s *SearchControl) Input(text string) error {
	if !s.isAttached() {
		return ErrDetached
	}
	if !s.env.loop.do(func() { s.input(text) }) {
		return ErrDetached
	}
	return nil
}

// KeyDown handles a key pressed in the search input. Enter is neutralized and
// runs the pending query immediately.
func (s *SearchControl) KeyDown(key string) FormEvent {
	ev := FormEvent{Type: "keydown", Key: key}
	if key != "Enter" {
		return ev
	}
	ev.DefaultPrevented = true
	ev.PropagationStopped = true
	s.flush()
	return ev
}

// Submit handles the overlay form's submit event (button or Enter). The event
// is always neutralized so it can never submit an enclosing page form, even
// when the control is detached.
func (s *SearchControl) Submit() FormEvent {
	s.flush()
	return FormEvent{Type: "submit", DefaultPrevented: true, PropagationStopped: true}
}

// Select emits the suggestion at index i. The provider label is used as the
// address, so no reverse lookup happens.
func (s *SearchControl) Select(i int) error {
	if !s.isAttached() {
		return ErrDetached
	}
	var err error
	if !s.env.loop.do(func() { err = s.selectIndex(i) }) {
		return ErrDetached
	}
	return err
}

// Text returns the current input text.
func (s *SearchControl) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Suggestions returns a copy of the listed suggestions.
func (s *SearchControl) Suggestions() []domain.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.suggestions) == 0 {
		return nil
	}
	out := make([]domain.Candidate, len(s.suggestions))
	copy(out, s.suggestions)
	return out
}

// Pending reports whether a debounced or in-flight query exists.
func (s *SearchControl) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil || s.inFlight
}

func (s *SearchControl) isAttached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

func (s *SearchControl) flush() {
	if !s.isAttached() {
		return
	}
	s.env.loop.do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.attached {
			return
		}
		q := strings.TrimSpace(s.text)
		if q == "" || (s.timer == nil && q == s.queried) {
			return
		}
		s.stopTimerLocked()
		s.gen++
		s.queryLocked(q)
	})
}

func (s *SearchControl) input(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return
	}

	s.text = text
	s.gen++
	s.stopTimerLocked()

	if strings.TrimSpace(text) == "" {
		s.seq++
		s.inFlight = false
		s.queried = ""
		s.suggestions = nil
		return
	}

	gen := s.gen
	s.timer = s.env.clock.AfterFunc(s.opts.Debounce, func() {
		s.env.loop.post(func() { s.fire(gen) })
	})
}

func (s *SearchControl) fire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached || gen != s.gen {
		return
	}
	s.timer = nil
	s.queryLocked(strings.TrimSpace(s.text))
}

func (s *SearchControl) queryLocked(q string) {
	s.seq++
	s.queried = q
	if s.provider == nil {
		s.suggestions = nil
		return
	}

	seq := s.seq
	s.inFlight = true
	ctx := s.env.ctx
	limit := s.opts.MaxSuggestions
	go func() {
		candidates, err := s.provider.Suggest(ctx, q, limit)
		s.env.loop.post(func() { s.apply(seq, q, candidates, err) })
	}()
}

func (s *SearchControl) apply(seq uint64, q string, candidates []domain.Candidate, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached || seq != s.seq {
		return
	}
	s.inFlight = false

	if err != nil {
		s.env.logger.Warn("autocomplete query failed", "query", q, "error", err)
		s.env.metrics.SearchQueries.WithLabelValues("error").Inc()
		s.suggestions = nil
		return
	}

	if limit := s.opts.MaxSuggestions; limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	s.suggestions = candidates
	if len(candidates) == 0 {
		s.env.metrics.SearchQueries.WithLabelValues("empty").Inc()
		return
	}
	s.env.metrics.SearchQueries.WithLabelValues("success").Inc()
}

func (s *SearchControl) selectIndex(i int) error {
	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		return ErrDetached
	}
	if i < 0 || i >= len(s.suggestions) {
		s.mu.Unlock()
		return ErrNoSuchSuggestion
	}
	c := s.suggestions[i]
	s.text = c.Label
	s.queried = strings.TrimSpace(c.Label)
	s.suggestions = nil
	s.stopTimerLocked()
	s.gen++
	s.seq++
	s.inFlight = false
	s.mu.Unlock()

	s.onSelect(SearchResult{Lat: c.Y, Lng: c.X, Label: c.Label})
	return nil
}

func (s *SearchControl) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
