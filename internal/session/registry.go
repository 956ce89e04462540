// Package session keeps widgets mounted on behalf of remote clients, one per
// session ID, and unmounts them on request or after an idle period.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/location-picker/internal/domain"
	"github.com/couchcryptid/location-picker/internal/observability"
	"github.com/couchcryptid/location-picker/internal/picker"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrClosed   = errors.New("session registry closed")
)

// EventSink receives confirmed selections for publishing. Offer must not block.
type EventSink interface {
	Offer(domain.SelectionEvent) bool
}

// Options configures the widgets a Registry mounts.
type Options struct {
	Widget     picker.Config
	Geocoder   domain.ReverseGeocoder
	Suggester  domain.Suggester
	Geolocator domain.Geolocator
	Publisher  EventSink

	IdleTimeout      time.Duration // 0 disables reaping
	MaxNotifications int           // per session; 0 means 20
	Clock            clockwork.Clock
}

// Registry owns the mounted sessions.
type Registry struct {
	opts    Options
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates an empty registry. An Options.Widget without zoom and
// tile layer uses picker.DefaultConfig.
func NewRegistry(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Registry {
	if opts.Widget.Zoom == 0 && opts.Widget.Tiles.URLTemplate == "" {
		opts.Widget = picker.DefaultConfig()
	}
	if opts.MaxNotifications <= 0 {
		opts.MaxNotifications = 20
	}
	c := opts.Clock
	if c == nil {
		c = domain.Clock()
	}
	return &Registry{
		opts:     opts,
		clock:    c,
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[string]*Session),
	}
}

// Create mounts a new widget and registers it under a fresh ID. The default
// selection has been reported by the time Create returns.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	now := r.clock.Now()
	s := &Session{
		id:        uuid.NewString(),
		sink:      r.opts.Publisher,
		logger:    r.logger,
		createdAt: now,
		lastSeen:  now,
		maxNotes:  r.opts.MaxNotifications,
	}
	w, err := picker.New(r.opts.Widget, picker.Dependencies{
		Geocoder:        r.opts.Geocoder,
		Suggester:       r.opts.Suggester,
		Geolocator:      r.opts.Geolocator,
		Notifier:        s,
		OnAddressChange: s.onAddressChange,
		Clock:           r.clock,
		Logger:          r.logger.With("picker_id", s.id),
		Metrics:         r.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create widget: %w", err)
	}
	s.widget = w

	if err := w.Mount(ctx); err != nil {
		return nil, fmt.Errorf("mount widget: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		w.Unmount()
		return nil, ErrClosed
	}
	r.sessions[s.id] = s
	r.mu.Unlock()

	r.logger.Info("session created", "picker_id", s.id)
	return s, nil
}

// Get returns the session and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(r.clock.Now())
	return s, nil
}

// Delete unmounts and removes the session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.widget.Unmount()
	r.logger.Info("session deleted", "picker_id", id)
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ReapIdle unmounts every session not used within the idle timeout and
// returns how many were removed.
func (r *Registry) ReapIdle() int {
	if r.opts.IdleTimeout <= 0 {
		return 0
	}
	cutoff := r.clock.Now().Add(-r.opts.IdleTimeout)

	var idle []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.widget.Unmount()
		r.logger.Info("session expired", "picker_id", s.id, "last_seen", s.LastSeen())
	}
	return len(idle)
}

// RunReaper calls ReapIdle periodically until ctx ends. It returns
// immediately when reaping is disabled.
func (r *Registry) RunReaper(ctx context.Context) error {
	if r.opts.IdleTimeout <= 0 {
		return nil
	}
	interval := r.opts.IdleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if n := r.ReapIdle(); n > 0 {
				r.logger.Debug("reaped idle sessions", "count", n)
			}
		}
	}
}

// Close unmounts every session and rejects further Create calls.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.widget.Unmount()
	}
}

// CheckReadiness reports whether the registry accepts new sessions.
func (r *Registry) CheckReadiness(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	return nil
}
