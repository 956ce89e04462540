package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/location-picker/internal/domain"
	"github.com/couchcryptid/location-picker/internal/picker"
)

// Session is one mounted widget owned by a remote client.
type Session struct {
	id        string
	widget    *picker.Coordinator
	sink      EventSink
	logger    *slog.Logger
	createdAt time.Time
	maxNotes  int

	mu        sync.Mutex
	lastSeen  time.Time
	confirmed domain.Selection
	source    domain.Source
	count     int
	notes     []picker.Notification
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Widget returns the mounted widget.
func (s *Session) Widget() *picker.Coordinator { return s.widget }

// CreatedAt returns when the session was mounted.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastSeen returns the time of the last client request.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// Confirmed returns the latest selection reported to the host callback, its
// source and how many selections were reported so far.
func (s *Session) Confirmed() (domain.Selection, domain.Source, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed, s.source, s.count
}

// Notifications returns the retained user notifications, oldest first.
func (s *Session) Notifications() []picker.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]picker.Notification, len(s.notes))
	copy(out, s.notes)
	return out
}

// onAddressChange is the widget's host callback. It runs on the widget's
// event goroutine.
func (s *Session) onAddressChange(sel domain.Selection) {
	source := s.widget.Source()

	s.mu.Lock()
	s.confirmed = sel
	s.source = source
	s.count++
	s.mu.Unlock()

	if s.sink == nil {
		return
	}
	if !s.sink.Offer(domain.NewSelectionEvent(s.id, sel, source)) {
		s.logger.Warn("selection event dropped", "picker_id", s.id, "source", source)
	}
}

// Notify stores n for the client, keeping only the newest entries.
func (s *Session) Notify(n picker.Notification) {
	s.logger.Info("user notification", "picker_id", s.id, "kind", n.Kind, "message", n.Message)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
	if over := len(s.notes) - s.maxNotes; over > 0 {
		s.notes = append(s.notes[:0], s.notes[over:]...)
	}
}
