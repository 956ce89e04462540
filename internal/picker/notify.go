package picker

import (
	"log/slog"
	"time"
)

// Notification is a user-facing message raised by a control.
type Notification struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier surfaces notifications to the user.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to a logger. It is the default when the
// host does not supply a notifier.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(n Notification) {
	l.Logger.Warn("user notification", "kind", n.Kind, "message", n.Message)
}
